package eval

import (
	"mirevaluator/internal/diag"
	"mirevaluator/internal/ir"
	"mirevaluator/internal/layout"
	"mirevaluator/internal/memory"
	"mirevaluator/internal/prim"
)

// IntrinsicFunc implements one intrinsic by name: given its already-
// evaluated scalar arguments and (if the call has one) its destination,
// it writes the result and returns any failure (§4.7: "an intrinsic name
// dispatches to an internal handler that writes its result into the return
// slot").
type IntrinsicFunc func(ec *EvalContext, args []prim.Value, destTy layout.TypeID, dest memory.Pointer) *diag.Error

func defaultIntrinsics() map[string]IntrinsicFunc {
	return map[string]IntrinsicFunc{
		"abort": func(ec *EvalContext, args []prim.Value, destTy layout.TypeID, dest memory.Pointer) *diag.Error {
			return diag.New(diag.Unimplemented, "program called abort intrinsic")
		},
		"copy_nonoverlapping": func(ec *EvalContext, args []prim.Value, destTy layout.TypeID, dest memory.Pointer) *diag.Error {
			if len(args) != 3 {
				return diag.New(diag.Unsupported, "copy_nonoverlapping expects (src, dst, count)")
			}
			src := memory.Pointer{Alloc: memory.AllocID(args[0].Ptr.Alloc), Offset: args[0].Ptr.Offset}
			dst := memory.Pointer{Alloc: memory.AllocID(args[1].Ptr.Alloc), Offset: args[1].Ptr.Offset}
			return ec.Mem.Copy(src, dst, args[2].I)
		},
		"write_bytes": func(ec *EvalContext, args []prim.Value, destTy layout.TypeID, dest memory.Pointer) *diag.Error {
			if len(args) != 3 {
				return diag.New(diag.Unsupported, "write_bytes expects (dst, value, count)")
			}
			dst := memory.Pointer{Alloc: memory.AllocID(args[0].Ptr.Alloc), Offset: args[0].Ptr.Offset}
			return ec.Mem.WriteRepeat(dst, byte(args[1].I), args[2].I)
		},
	}
}

// PerformCall resolves term's callee and either runs a registered
// intrinsic in place or pushes a new frame for its MIR body, copying
// arguments in (§4.7).
func (ec *EvalContext) PerformCall(term ir.CallTerminator, span diag.Span) *diag.Error {
	fv, derr := ec.EvalOperand(term.Func)
	if derr != nil {
		return derr
	}
	if fv.Kind != prim.KindFnPtr {
		return diag.New(diag.InvalidFunctionPointer, "call target is not a function pointer").WithSpan(span)
	}
	fi, derr := ec.Mem.GetFn(memory.AllocID(fv.Ptr.Alloc))
	if derr != nil {
		return derr.WithSpan(span)
	}

	if fn, ok := ec.Intrinsics[fi.DefID]; ok {
		return ec.callIntrinsic(fn, term, span)
	}

	key := ir.FunctionKey{DefID: ir.DefID(fi.DefID), Substs: ir.Substs(fi.SubstsKey)}
	body, ok := ec.Program.Body(key)
	if !ok {
		body, ok = ec.Program.FetchItemMIR(key.DefID)
		if !ok {
			return diag.New(diag.MirNotFound, string(key.DefID)).WithSpan(span)
		}
	}

	var returnSlot *memory.Pointer
	cleanup := Cleanup{Kind: CleanupNone}
	if term.HasDest {
		addr, _, _, derr := ec.EvalPlace(term.Dest)
		if derr != nil {
			return derr
		}
		returnSlot = &addr
		cleanup = Cleanup{Kind: CleanupGoto, GotoBlock: term.Target}
	}

	frame, derr := ec.PushFrame(key, body, returnSlot, cleanup, span)
	if derr != nil {
		return derr
	}
	// Argument operands name the caller's places: evaluate them with the
	// caller's frame on top, writing into the callee's argument slots.
	ec.frames = ec.frames[:len(ec.frames)-1]
	for i, a := range term.Args {
		if i >= body.NumArgs {
			break
		}
		if derr := ec.writeOperandAt(frame.Locals[i], body.LocalTypes[i], a); derr != nil {
			return derr
		}
	}
	ec.frames = append(ec.frames, frame)
	return nil
}

func (ec *EvalContext) callIntrinsic(fn IntrinsicFunc, term ir.CallTerminator, span diag.Span) *diag.Error {
	vals := make([]prim.Value, len(term.Args))
	for i, a := range term.Args {
		v, derr := ec.EvalOperand(a)
		if derr != nil {
			return derr
		}
		vals[i] = v
	}
	var destAddr memory.Pointer
	var destTy layout.TypeID
	if term.HasDest {
		var derr *diag.Error
		destAddr, destTy, _, derr = ec.EvalPlace(term.Dest)
		if derr != nil {
			return derr
		}
	}
	if derr := fn(ec, vals, destTy, destAddr); derr != nil {
		return derr.WithSpan(span)
	}
	if f := ec.Frame(); f != nil && term.HasDest {
		f.CurBlock = term.Target
		f.CurStmt = 0
	}
	return nil
}

// PerformReturn pops the current frame, applying its return-cleanup
// action. Exposed distinctly from PopFrame for the Stepper's TermReturn
// case to call by name (§4.7).
func (ec *EvalContext) PerformReturn() *diag.Error {
	return ec.PopFrame()
}
