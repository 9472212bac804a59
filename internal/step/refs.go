package step

import (
	"mirevaluator/internal/eval"
	"mirevaluator/internal/ir"
)

// refsInOperand collects the constant keys op itself names, for the
// ConstantExtractor's dependency walk (§4.6). cur identifies the frame
// evaluating op, needed to key a promoted constant by its owning function.
func refsInOperand(op ir.Operand, cur ir.FunctionKey) []ir.ConstantKey {
	switch op.Kind {
	case ir.OpLiteralItem:
		if op.Item.IsFn {
			return nil // function values mint a zero-byte allocation, no MIR body needed up front
		}
		return []ir.ConstantKey{{DefID: op.Item.DefID, Substs: op.Item.Substs, Kind: ir.KeyGlobal}}
	case ir.OpLiteralPromoted:
		return []ir.ConstantKey{{DefID: cur.DefID, Substs: cur.Substs, Kind: ir.KeyPromoted, Promoted: op.Promoted}}
	case ir.OpConsume:
		return refsInPlace(op.Place, cur)
	default:
		return nil
	}
}

func refsInPlace(p ir.Place, cur ir.FunctionKey) []ir.ConstantKey {
	var out []ir.ConstantKey
	if p.Base.Kind == ir.BaseStatic {
		out = append(out, ir.ConstantKey{DefID: p.Base.Static, Kind: ir.KeyGlobal})
	}
	for _, proj := range p.Projections {
		if proj.Kind == ir.ProjIndex {
			out = append(out, refsInOperand(proj.Index, cur)...)
		}
	}
	return out
}

func refsInRvalue(rv ir.Rvalue, cur ir.FunctionKey) []ir.ConstantKey {
	var out []ir.ConstantKey
	out = append(out, refsInOperand(rv.Operand, cur)...)
	out = append(out, refsInOperand(rv.Operand2, cur)...)
	for _, o := range rv.Operands {
		out = append(out, refsInOperand(o, cur)...)
	}
	if rv.Kind == ir.RLen || rv.Kind == ir.RRef {
		out = append(out, refsInPlace(rv.Place, cur)...)
	}
	return out
}

func refsInTerminator(t ir.Terminator, cur ir.FunctionKey) []ir.ConstantKey {
	var out []ir.ConstantKey
	out = append(out, refsInOperand(t.Discriminant, cur)...)
	if t.Kind == ir.TermCall {
		out = append(out, refsInOperand(t.Call.Func, cur)...)
		for _, a := range t.Call.Args {
			out = append(out, refsInOperand(a, cur)...)
		}
		if t.Call.HasDest {
			out = append(out, refsInPlace(t.Call.Dest, cur)...)
		}
	}
	return out
}

// dedupNew filters keys down to those not already in ec.Statics, dropping
// duplicates within the batch itself.
func dedupNew(ec *eval.EvalContext, keys []ir.ConstantKey) []ir.ConstantKey {
	var out []ir.ConstantKey
	seen := make(map[ir.ConstantKey]bool, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		if _, ok := ec.Statics[k]; ok {
			continue
		}
		out = append(out, k)
	}
	return out
}
