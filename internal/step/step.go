// Package step implements the single-step driver of spec.md §4.6: each
// call to Step executes exactly one statement or terminator of the current
// frame, first running a ConstantExtractor pass that materializes any
// global or promoted constant the next instruction references but hasn't
// been evaluated yet. It is grounded on the teacher's dependency_graph.go
// (a worklist of not-yet-resolved keys processed before the thing that
// needed them proceeds) generalized from build-target dependencies to
// lazily-materialized constants.
package step

import (
	"mirevaluator/internal/diag"
	"mirevaluator/internal/eval"
	"mirevaluator/internal/ir"
)

// Stepper drives one EvalContext to completion one instruction at a time.
type Stepper struct {
	EC *eval.EvalContext
}

func New(ec *eval.EvalContext) *Stepper {
	return &Stepper{EC: ec}
}

// Step executes one statement or terminator. It returns (true, nil) after
// making progress (including a step that only materialized constants),
// (false, nil) once the frame stack is empty (the program returned), and
// (false, err) on a failure that ends evaluation.
func (s *Stepper) Step() (bool, *diag.Error) {
	f := s.EC.Frame()
	if f == nil {
		return false, nil
	}

	s.EC.StepCount++
	if s.EC.StepLimit > 0 && s.EC.StepCount > s.EC.StepLimit {
		return false, diag.New(diag.ExecutionTimeLimitReached, "").WithSpan(s.span(f))
	}

	block := f.Body.Blocks[f.CurBlock]

	if f.CurStmt < len(block.Statements) {
		stmt := block.Statements[f.CurStmt]
		refs := dedupNew(s.EC, append(refsInPlace(stmt.Dest, f.Key), refsInRvalue(stmt.Rvalue, f.Key)...))
		if len(refs) > 0 {
			return s.materializeAll(refs)
		}
		if derr := s.EC.EvalRvalue(stmt.Dest, stmt.Rvalue); derr != nil {
			return false, s.attach(derr, f)
		}
		f.CurStmt++
		return true, nil
	}

	term := block.Terminator
	refs := dedupNew(s.EC, refsInTerminator(term, f.Key))
	if len(refs) > 0 {
		return s.materializeAll(refs)
	}

	switch term.Kind {
	case ir.TermGoto:
		f.CurBlock, f.CurStmt = term.Target, 0
		return true, nil

	case ir.TermSwitchInt:
		v, derr := s.EC.EvalOperand(term.Discriminant)
		if derr != nil {
			return false, s.attach(derr, f)
		}
		target := term.Targets[len(term.Targets)-1] // otherwise/default arm
		for i, want := range term.Values {
			if v.I == want {
				target = term.Targets[i]
				break
			}
		}
		f.CurBlock, f.CurStmt = target, 0
		return true, nil

	case ir.TermReturn:
		if derr := s.EC.PerformReturn(); derr != nil {
			return false, s.attach(derr, f)
		}
		return true, nil

	case ir.TermCall:
		if derr := s.EC.PerformCall(term.Call, s.span(f)); derr != nil {
			return false, s.attach(derr, f)
		}
		return true, nil

	case ir.TermUnreachable:
		return false, diag.New(diag.Unsupported, "reached an unreachable terminator").WithSpan(s.span(f))

	default:
		return false, diag.New(diag.Unsupported, "unknown terminator kind").WithSpan(s.span(f))
	}
}

// Run steps until the program returns or fails.
func (s *Stepper) Run() *diag.Error {
	for {
		more, derr := s.Step()
		if derr != nil {
			return derr
		}
		if !more {
			return nil
		}
	}
}

func (s *Stepper) span(f *eval.Frame) diag.Span {
	stmt := f.CurStmt
	if f.CurBlock < len(f.Body.Blocks) && stmt >= len(f.Body.Blocks[f.CurBlock].Statements) {
		stmt = -1
	}
	return diag.Span{Function: string(f.Key.DefID), Block: f.CurBlock, Stmt: stmt}
}

func (s *Stepper) attach(derr *diag.Error, f *eval.Frame) *diag.Error {
	if derr.Span == (diag.Span{}) {
		derr = derr.WithSpan(s.span(f))
	}
	return derr.WithStack(s.EC.CallStack())
}

// materializeAll pushes an evaluator frame per not-yet-materialized key,
// each sealed by Freeze on return, and lets the stack's natural LIFO order
// run them before the instruction that needed them resumes (§4.6:
// "executing sub-frames in reverse push order").
func (s *Stepper) materializeAll(keys []ir.ConstantKey) (bool, *diag.Error) {
	for _, key := range keys {
		if derr := s.materialize(key); derr != nil {
			return false, derr
		}
	}
	return true, nil
}

func (s *Stepper) materialize(key ir.ConstantKey) *diag.Error {
	var body *ir.Body
	switch key.Kind {
	case ir.KeyGlobal:
		b, ok := s.EC.Program.FetchItemMIR(key.DefID)
		if !ok {
			return diag.New(diag.MirNotFound, string(key.DefID))
		}
		body = b
	case ir.KeyPromoted:
		f := s.EC.Frame()
		if f == nil || key.Promoted < 0 || key.Promoted >= len(f.Body.Promoted) {
			return diag.New(diag.Unsupported, "promoted constant index out of range")
		}
		body = f.Body.Promoted[key.Promoted]
	}

	l, err := s.EC.Layout.LayoutOf(body.ReturnType)
	if err != nil {
		return diag.New(diag.Unsupported, err.Error())
	}
	slot, derr := s.EC.Mem.Allocate(l.Size, l.Align)
	if derr != nil {
		return derr
	}
	s.EC.Statics[key] = eval.StaticEntry{Ptr: slot, Ty: body.ReturnType}

	cleanup := eval.Cleanup{Kind: eval.CleanupFreeze, FreezeAlloc: slot.Alloc}
	fnKey := ir.FunctionKey{DefID: key.DefID, Substs: key.Substs}
	_, derr = s.EC.PushFrame(fnKey, body, &slot, cleanup, diag.Span{})
	return derr
}
