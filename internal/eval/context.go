// Package eval implements EvalContext: the frame stack and the place/
// operand/rvalue evaluator that gives the typed IR its meaning, spec.md
// §4.2's core. It is grounded on the teacher's CompilerState (compiler_state.go)
// for the "one struct owns every collaborator, constructed once, mutated by
// method calls across the run" shape, generalized from "holds an ELF/PE
// writer and register trackers" to "holds memory, the layout adapter, and
// the live frame stack" — and on stack_validator.go for the frame/stack
// depth bookkeeping (StackValidator's push/pop-with-panic-on-imbalance
// idiom becomes PushFrame/PopFrame returning a classified
// StackFrameLimitReached error instead of panicking, since exceeding a
// guest program's stack budget is an expected, recoverable outcome here).
package eval

import (
	"mirevaluator/internal/diag"
	"mirevaluator/internal/ir"
	"mirevaluator/internal/layout"
	"mirevaluator/internal/memory"
	"mirevaluator/internal/vtable"
)

// CleanupKind is the return-cleanup action spec.md §3 attaches to a Frame.
type CleanupKind int

const (
	CleanupFreeze CleanupKind = iota
	CleanupGoto
	CleanupNone
)

type Cleanup struct {
	Kind        CleanupKind
	FreezeAlloc memory.AllocID
	GotoBlock   int
}

// StaticEntry is what the statics table (spec.md §3's "a statics table
// mapping constant key to allocation id") remembers once a global or
// promoted constant has been materialized: where it lives and what type it
// was computed as, so later Place evaluation doesn't need to re-resolve MIR
// for it.
type StaticEntry struct {
	Ptr memory.Pointer
	Ty  layout.TypeID
}

// Frame is spec.md §3's per-call activation record.
type Frame struct {
	Key        ir.FunctionKey
	Body       *ir.Body
	CallSpan   diag.Span
	ReturnSlot *memory.Pointer
	Cleanup    Cleanup

	Locals []memory.Pointer // indexed exactly as Body.LocalTypes: args ∥ vars ∥ temps

	CurBlock int
	CurStmt  int // equals the block's statement count once only the terminator remains to run
}

func (f *Frame) span() diag.Span {
	stmt := f.CurStmt
	if f.CurBlock < len(f.Body.Blocks) && stmt >= len(f.Body.Blocks[f.CurBlock].Statements) {
		stmt = -1
	}
	return diag.Span{Function: string(f.Key.DefID), Block: f.CurBlock, Stmt: stmt}
}

// EvalContext is spec.md §6's evaluator: "new(tcx, mir_map, memory_size,
// stack_limit) -> EvalContext".
type EvalContext struct {
	Program ir.Program
	Mem     *memory.Memory
	Layout  *layout.Adapter
	Report  diag.Reporter
	VTables *vtable.Builder

	frames     []*Frame
	Statics    map[ir.ConstantKey]StaticEntry
	StackLimit int

	Intrinsics map[string]IntrinsicFunc

	StepCount int64
	StepLimit int64
}

// New constructs an EvalContext per spec.md §6.
func New(prog ir.Program, memSize int64, stackLimit int) *EvalContext {
	dl := prog.DataLayout()
	ec := &EvalContext{
		Program:    prog,
		Mem:        memory.New(dl, memSize),
		Layout:     layout.NewAdapter(prog),
		Report:     diag.NopReporter{},
		Statics:    make(map[ir.ConstantKey]StaticEntry),
		StackLimit: stackLimit,
	}
	ec.Intrinsics = defaultIntrinsics()
	ec.VTables = vtable.NewBuilder(ec.Mem, int64(dl.PointerSize))
	return ec
}

// Frames exposes the live frame stack, innermost last — the stack()
// accessor spec.md §6 names.
func (ec *EvalContext) Frames() []*Frame { return ec.frames }

// Frame returns the currently executing frame, or nil if the stack is
// empty (§6's frame() accessor).
func (ec *EvalContext) Frame() *Frame {
	if len(ec.frames) == 0 {
		return nil
	}
	return ec.frames[len(ec.frames)-1]
}

// CallStack renders the live frames as a diag call-stack trace, innermost
// first, for attaching to a propagating error (§7).
func (ec *EvalContext) CallStack() []diag.Frame {
	out := make([]diag.Frame, 0, len(ec.frames))
	for i := len(ec.frames) - 1; i >= 0; i-- {
		f := ec.frames[i]
		out = append(out, diag.Frame{Function: string(f.Key.DefID), Span: f.span()})
	}
	return out
}

// PushFrame allocates locals for key's body and pushes a new frame.
// Exceeding StackLimit fails with StackFrameLimitReached at exactly the
// (stack_limit+1)-th push, spec.md scenario S6.
func (ec *EvalContext) PushFrame(key ir.FunctionKey, body *ir.Body, returnSlot *memory.Pointer, cleanup Cleanup, callSpan diag.Span) (*Frame, *diag.Error) {
	if ec.StackLimit > 0 && len(ec.frames) >= ec.StackLimit {
		return nil, diag.New(diag.StackFrameLimitReached, "").WithSpan(callSpan)
	}
	locals := make([]memory.Pointer, len(body.LocalTypes))
	for i, ty := range body.LocalTypes {
		l, err := ec.Layout.LayoutOf(ty)
		if err != nil {
			return nil, diag.New(diag.Unsupported, err.Error()).WithSpan(callSpan)
		}
		p, derr := ec.Mem.Allocate(l.Size, l.Align)
		if derr != nil {
			return nil, derr.WithSpan(callSpan)
		}
		locals[i] = p
	}
	f := &Frame{
		Key: key, Body: body, CallSpan: callSpan,
		ReturnSlot: returnSlot, Cleanup: cleanup, Locals: locals,
		CurBlock: 0, CurStmt: 0,
	}
	ec.frames = append(ec.frames, f)
	return f, nil
}

// PopFrame removes the current frame and applies its return-cleanup action
// (§3, §4.7): Freeze seals the target allocation read-only; Goto resumes
// the caller at the recorded block; None leaves the stack empty or at a
// diverging frame's caller, whichever the stepper already arranged.
func (ec *EvalContext) PopFrame() *diag.Error {
	if len(ec.frames) == 0 {
		panic("eval: PopFrame with empty frame stack")
	}
	f := ec.frames[len(ec.frames)-1]
	ec.frames = ec.frames[:len(ec.frames)-1]

	switch f.Cleanup.Kind {
	case CleanupFreeze:
		if derr := ec.Mem.Freeze(f.Cleanup.FreezeAlloc); derr != nil {
			return derr
		}
	case CleanupGoto:
		if caller := ec.Frame(); caller != nil {
			caller.CurBlock = f.Cleanup.GotoBlock
			caller.CurStmt = 0
		}
	case CleanupNone:
	}
	return nil
}
