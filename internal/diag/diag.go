// Package diag classifies interpreter errors and reports them with source
// span and call-stack context, mirroring the teacher's CompilerError /
// ErrorCollector split between a typed error value and a side reporting sink.
package diag

import (
	"fmt"
	"strings"
)

// Category names one of the error kinds spec.md §7 enumerates at the
// interface. The literal names are part of the contract the test harness
// groups failures by — do not rename without checking §6/§7.
type Category int

const (
	// Memory-level categories (§4.1, §7).
	OutOfMemory Category = iota
	PointerOutOfBounds
	AlignmentCheckFailed
	ReadPointerAsBytes
	ReadBytesAsPointer
	ReadUndefBytes
	DanglingPointerDeref
	DerefFunctionPointer
	ExecuteMemory
	ErrFrozenWrite
	InvalidFunctionPointer
	InvalidBool
	InvalidChar

	// Limit categories (§5).
	StackFrameLimitReached
	ExecutionTimeLimitReached

	// Interface-level categories (§6).
	MirNotFound
	CrateNotFound
	CantCallCAbi
	UnimplementedIntrinsic
	Unsupported
	UnsupportedAbi
	LimitReached

	// Recoverable-but-not-corpus-fatal (§7).
	Unimplemented
)

func (c Category) String() string {
	switch c {
	case OutOfMemory:
		return "OutOfMemory"
	case PointerOutOfBounds:
		return "PointerOutOfBounds"
	case AlignmentCheckFailed:
		return "AlignmentCheckFailed"
	case ReadPointerAsBytes:
		return "ReadPointerAsBytes"
	case ReadBytesAsPointer:
		return "ReadBytesAsPointer"
	case ReadUndefBytes:
		return "ReadUndefBytes"
	case DanglingPointerDeref:
		return "DanglingPointerDeref"
	case DerefFunctionPointer:
		return "DerefFunctionPointer"
	case ExecuteMemory:
		return "ExecuteMemory"
	case ErrFrozenWrite:
		return "ErrFrozenWrite"
	case InvalidFunctionPointer:
		return "InvalidFunctionPointer"
	case InvalidBool:
		return "InvalidBool"
	case InvalidChar:
		return "InvalidChar"
	case StackFrameLimitReached:
		return "StackFrameLimitReached"
	case ExecutionTimeLimitReached:
		return "ExecutionTimeLimitReached"
	case MirNotFound:
		return "MirNotFound"
	case CrateNotFound:
		return "CrateNotFound"
	case CantCallCAbi:
		return "CantCallCAbi"
	case UnimplementedIntrinsic:
		return "UnimplementedIntrinsic"
	case Unsupported:
		return "Unsupported"
	case UnsupportedAbi:
		return "UnsupportedAbi"
	case LimitReached:
		return "LimitReached"
	case Unimplemented:
		return "Unimplemented"
	default:
		return "Unknown"
	}
}

// Recoverable reports whether the host may continue running other programs
// after this error (§7: "Unimplemented is recoverable for corpus testing").
func (c Category) Recoverable() bool {
	return c == Unimplemented || c == UnimplementedIntrinsic || c == CantCallCAbi || c == UnsupportedAbi
}

// Span is the call-site/statement source location an error is attributed to.
// There is no compiler front-end here, so Span names IR coordinates rather
// than file:line:col the way the teacher's SourceLocation does for C67 source.
type Span struct {
	Function string
	Block    int
	Stmt     int // -1 for the terminator
}

func (s Span) String() string {
	if s.Function == "" {
		return "<unknown>"
	}
	if s.Stmt < 0 {
		return fmt.Sprintf("%s@bb%d/terminator", s.Function, s.Block)
	}
	return fmt.Sprintf("%s@bb%d[%d]", s.Function, s.Block, s.Stmt)
}

// Frame is one entry of the inside-call stack trace attached to an Error.
type Frame struct {
	Function string
	Span     Span
}

// Error is the uniform error value every core operation returns. It is a
// plain value, never thrown — see spec.md §7.
type Error struct {
	Category Category
	Detail   string // free-text detail, e.g. an intrinsic or symbol name
	Span     Span
	Stack    []Frame

	// Structured payloads for categories whose message needs more than a
	// single detail string (populated by the callsite that classifies it).
	AllocSize  int64
	MemSize    int64
	MemUsage   int64
	Required   int
	Has        int
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Category.String())
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	switch e.Category {
	case OutOfMemory:
		fmt.Fprintf(&sb, " (requested %d, budget %d, in use %d)", e.AllocSize, e.MemSize, e.MemUsage)
	case AlignmentCheckFailed:
		fmt.Fprintf(&sb, " (required %d, has %d)", e.Required, e.Has)
	case PointerOutOfBounds:
		fmt.Fprintf(&sb, " (size %d, allocation size %d)", e.AllocSize, e.MemSize)
	}
	if e.Span.Function != "" {
		fmt.Fprintf(&sb, " at %s", e.Span)
	}
	return sb.String()
}

// New builds a bare category error, the common case.
func New(cat Category, detail string) *Error {
	return &Error{Category: cat, Detail: detail}
}

// WithSpan returns a copy of e attributed to span.
func (e *Error) WithSpan(span Span) *Error {
	cp := *e
	cp.Span = span
	return &cp
}

// WithStack returns a copy of e carrying the given inside-call stack trace,
// innermost frame first — built by the stepper from live Frame metadata when
// an error propagates to the top of step().
func (e *Error) WithStack(stack []Frame) *Error {
	cp := *e
	cp.Stack = append([]Frame(nil), stack...)
	return &cp
}

// Reporter receives diagnostics as the evaluator produces them. The two
// implementations are NopReporter (eval.New's default) and
// CollectingReporter; there is no stderr-writing reporter and no verbose
// flag. No structured-logging library is used: neither the teacher nor any
// sibling repo in the retrieval pack depends on one.
type Reporter interface {
	Report(err *Error)
}

// NopReporter discards every diagnostic; useful for tests that only care
// about the returned error value.
type NopReporter struct{}

func (NopReporter) Report(*Error) {}

// CollectingReporter accumulates diagnostics in order, the in-process analog
// of the teacher's ErrorCollector (errors.go) but with a single severity
// (every core error already carries its own classification).
type CollectingReporter struct {
	Errors []*Error
}

func (c *CollectingReporter) Report(err *Error) {
	c.Errors = append(c.Errors, err)
}
