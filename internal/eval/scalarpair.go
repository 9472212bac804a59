package eval

import (
	"mirevaluator/internal/diag"
	"mirevaluator/internal/layout"
	"mirevaluator/internal/memory"
	"mirevaluator/internal/prim"
)

// writeScalarPair stores a CheckedBinaryOp result: the wrapped value
// followed by a bool flag, laid out as the destination struct's two
// fields (SPEC_FULL.md §E.3's scalar pair — the same {value, flag}
// representation a fat pointer uses for {data, metadata}, reused here for
// a checked arithmetic result instead of reinventing a second ad hoc
// two-word shape).
func (ec *EvalContext) writeScalarPair(destTy layout.TypeID, addr memory.Pointer, value prim.Value, overflow bool) *diag.Error {
	def, derr := ec.lookup(destTy)
	if derr != nil {
		return derr
	}
	l, err := ec.Layout.LayoutOf(destTy)
	if err != nil {
		return diag.New(diag.Unsupported, err.Error())
	}
	if def.Kind != layout.KindStruct || len(def.Fields) != 2 {
		return diag.New(diag.Unsupported, "CheckedBinaryOp destination must be a {value, bool} pair")
	}
	if derr := ec.WriteScalar(def.Fields[0], addr.Add(l.FieldOffset(0, 0)), value); derr != nil {
		return derr
	}
	return ec.WriteScalar(def.Fields[1], addr.Add(l.FieldOffset(0, 1)), prim.Bool(overflow))
}
