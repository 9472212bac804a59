package eval

import (
	"mirevaluator/internal/diag"
	"mirevaluator/internal/ir"
	"mirevaluator/internal/layout"
	"mirevaluator/internal/memory"
	"mirevaluator/internal/prim"
)

// Fat is a two-word value: a data word and a metadata word (a slice/str
// length or a trait object's vtable pointer), the
// shape spec.md §4.5 assigns to slice/str/trait-object pointers ("the
// pointer occupies 2*pointer_size bytes, data then metadata").
type Fat struct {
	Data prim.Value
	Meta prim.Value
}

func (ec *EvalContext) lookup(ty layout.TypeID) (*layout.TypeDef, *diag.Error) {
	norm := ec.Program.Normalize(ty)
	def, ok := ec.Program.Lookup(norm)
	if !ok {
		return nil, diag.New(diag.Unsupported, "unknown type "+string(ty))
	}
	return def, nil
}

func memPtr(v prim.Value) memory.Pointer {
	return memory.Pointer{Alloc: memory.AllocID(v.Ptr.Alloc), Offset: v.Ptr.Offset}
}

func primPtr(p memory.Pointer) prim.Ptr {
	return prim.Ptr{Alloc: uint64(p.Alloc), Offset: p.Offset}
}

// ReadScalar reads the thin value stored at addr as type ty. ty must be a
// scalar, function-pointer, or thin raw-pointer type (§3's PrimVal shapes).
func (ec *EvalContext) ReadScalar(ty layout.TypeID, addr memory.Pointer) (prim.Value, *diag.Error) {
	def, derr := ec.lookup(ty)
	if derr != nil {
		return prim.Value{}, derr
	}
	switch def.Kind {
	case layout.KindScalar:
		k := def.Prim
		switch {
		case k == prim.KindF32:
			f, derr := ec.Mem.ReadF32(addr)
			return prim.F32(f), derr
		case k == prim.KindF64:
			f, derr := ec.Mem.ReadF64(addr)
			return prim.F64(f), derr
		case k == prim.KindBool:
			v, derr := ec.Mem.ReadInt(addr, 1, false)
			return prim.Bool(v != 0), derr
		case k == prim.KindChar:
			v, derr := ec.Mem.ReadInt(addr, 4, false)
			return prim.Char(rune(v)), derr
		default:
			v, derr := ec.Mem.ReadInt(addr, int64(k.Bytes()), k.IsSigned())
			return prim.Int(k, v), derr
		}
	case layout.KindFnPointer:
		p, derr := ec.Mem.ReadPtr(addr)
		if derr != nil {
			return prim.Value{}, derr
		}
		return prim.FnPtr(primPtr(p)), nil
	case layout.KindRawPointer:
		l, err := ec.Layout.LayoutOf(ty)
		if err != nil {
			return prim.Value{}, diag.New(diag.Unsupported, err.Error())
		}
		if l.Unsized {
			return prim.Value{}, diag.New(diag.Unsupported, "ReadScalar on a fat pointer; use ReadFat")
		}
		p, derr := ec.Mem.ReadPtr(addr)
		if derr == nil {
			return prim.AbstractPtr(primPtr(p)), nil
		}
		if derr.Category != diag.ReadBytesAsPointer {
			return prim.Value{}, derr
		}
		ptrSize := ec.Layout.PointerSize()
		u, derr2 := ec.Mem.ReadInt(addr, ptrSize, false)
		if derr2 != nil {
			return prim.Value{}, derr2
		}
		return prim.IntegerPtr(uint64(u)), nil
	default:
		return prim.Value{}, diag.New(diag.Unsupported, "ReadScalar on aggregate type "+string(ty))
	}
}

// WriteScalar is ReadScalar's inverse.
func (ec *EvalContext) WriteScalar(ty layout.TypeID, addr memory.Pointer, v prim.Value) *diag.Error {
	def, derr := ec.lookup(ty)
	if derr != nil {
		return derr
	}
	switch def.Kind {
	case layout.KindScalar:
		switch {
		case v.Kind == prim.KindF32:
			return ec.Mem.WriteF32(addr, v.F32)
		case v.Kind == prim.KindF64:
			return ec.Mem.WriteF64(addr, v.F64)
		case v.Kind == prim.KindBool:
			return ec.Mem.WriteInt(addr, 1, v.I)
		case v.Kind == prim.KindChar:
			return ec.Mem.WriteInt(addr, 4, v.I)
		default:
			return ec.Mem.WriteInt(addr, int64(v.Kind.Bytes()), v.I)
		}
	case layout.KindFnPointer:
		return ec.Mem.WritePtr(addr, memPtr(v))
	case layout.KindRawPointer:
		l, err := ec.Layout.LayoutOf(ty)
		if err != nil {
			return diag.New(diag.Unsupported, err.Error())
		}
		if l.Unsized {
			return diag.New(diag.Unsupported, "WriteScalar on a fat pointer; use WriteFat")
		}
		if v.Kind == prim.KindIntegerPtr {
			return ec.Mem.WriteInt(addr, ec.Layout.PointerSize(), int64(v.IPtr))
		}
		return ec.Mem.WritePtr(addr, memPtr(v))
	default:
		return diag.New(diag.Unsupported, "WriteScalar on aggregate type "+string(ty))
	}
}

// ReadFat reads a two-word fat value at addr. metaIsPtr distinguishes a
// vtable-bearing trait object's second word (a pointer) from a slice/str's
// second word (a length).
func (ec *EvalContext) ReadFat(addr memory.Pointer, metaIsPtr bool) (Fat, *diag.Error) {
	ptrSize := ec.Layout.PointerSize()
	dataPtr, derr := ec.Mem.ReadPtr(addr)
	if derr != nil {
		return Fat{}, derr
	}
	metaAddr := addr.Add(layout.SecondWordOffset(ptrSize))
	if metaIsPtr {
		mp, derr := ec.Mem.ReadPtr(metaAddr)
		if derr != nil {
			return Fat{}, derr
		}
		return Fat{Data: prim.AbstractPtr(primPtr(dataPtr)), Meta: prim.AbstractPtr(primPtr(mp))}, nil
	}
	n, derr := ec.Mem.ReadInt(metaAddr, ptrSize, false)
	if derr != nil {
		return Fat{}, derr
	}
	return Fat{Data: prim.AbstractPtr(primPtr(dataPtr)), Meta: prim.Uint(prim.KindU64, uint64(n))}, nil
}

// WriteFat is ReadFat's inverse.
func (ec *EvalContext) WriteFat(addr memory.Pointer, f Fat) *diag.Error {
	ptrSize := ec.Layout.PointerSize()
	if derr := ec.Mem.WritePtr(addr, memPtr(f.Data)); derr != nil {
		return derr
	}
	metaAddr := addr.Add(layout.SecondWordOffset(ptrSize))
	if f.Meta.Kind == prim.KindAbstractPtr || f.Meta.Kind == prim.KindFnPtr {
		return ec.Mem.WritePtr(metaAddr, memPtr(f.Meta))
	}
	return ec.Mem.WriteInt(metaAddr, ptrSize, int64(f.Meta.AsUint64()))
}

// EvalOperand resolves op to a thin scalar value: Consume reads the place's
// current value, the Literal* variants materialize or look up a constant
// (§4.2).
func (ec *EvalContext) EvalOperand(op ir.Operand) (prim.Value, *diag.Error) {
	switch op.Kind {
	case ir.OpConsume:
		addr, ty, _, derr := ec.EvalPlace(op.Place)
		if derr != nil {
			return prim.Value{}, derr
		}
		return ec.ReadScalar(ty, addr)

	case ir.OpLiteralValue:
		l := op.Lit
		def, derr := ec.lookup(l.Ty)
		if derr != nil {
			return prim.Value{}, derr
		}
		if def.Kind != layout.KindScalar {
			return prim.Value{}, diag.New(diag.Unsupported, "non-scalar literal operand")
		}
		switch {
		case def.Prim == prim.KindF32:
			return prim.F32(l.F32), nil
		case def.Prim == prim.KindF64:
			return prim.F64(l.F64), nil
		case def.Prim == prim.KindBool:
			return prim.Bool(l.Bool), nil
		case def.Prim == prim.KindChar:
			return prim.Char(l.Char), nil
		default:
			return prim.Int(def.Prim, l.Int), nil
		}

	case ir.OpLiteralItem:
		if op.Item.IsFn {
			id := ec.Mem.CreateFnPtr(memory.FunctionInfo{
				DefID: string(op.Item.DefID), SubstsKey: string(op.Item.Substs), FnTypeKey: string(op.Item.Ty),
			})
			return prim.FnPtr(prim.Ptr{Alloc: uint64(id)}), nil
		}
		key := ir.ConstantKey{DefID: op.Item.DefID, Substs: op.Item.Substs, Kind: ir.KeyGlobal}
		entry, ok := ec.Statics[key]
		if !ok {
			return prim.Value{}, diag.New(diag.Unsupported, "constant not yet materialized: "+string(op.Item.DefID))
		}
		return ec.ReadScalar(entry.Ty, entry.Ptr)

	case ir.OpLiteralPromoted:
		f := ec.Frame()
		key := ir.ConstantKey{DefID: f.Key.DefID, Substs: f.Key.Substs, Kind: ir.KeyPromoted, Promoted: op.Promoted}
		entry, ok := ec.Statics[key]
		if !ok {
			return prim.Value{}, diag.New(diag.Unsupported, "promoted constant not yet materialized")
		}
		return ec.ReadScalar(entry.Ty, entry.Ptr)

	default:
		return prim.Value{}, diag.New(diag.Unsupported, "unknown operand kind")
	}
}

// OperandType reports the static type of op, needed by rvalue evaluation to
// decide whether an operand round-trips as a scalar or an aggregate copy.
func (ec *EvalContext) OperandType(op ir.Operand) (layout.TypeID, *diag.Error) {
	switch op.Kind {
	case ir.OpConsume:
		_, ty, _, derr := ec.EvalPlace(op.Place)
		return ty, derr
	case ir.OpLiteralValue:
		return op.Lit.Ty, nil
	case ir.OpLiteralItem:
		return op.Item.Ty, nil
	case ir.OpLiteralPromoted:
		f := ec.Frame()
		key := ir.ConstantKey{DefID: f.Key.DefID, Substs: f.Key.Substs, Kind: ir.KeyPromoted, Promoted: op.Promoted}
		entry, ok := ec.Statics[key]
		if !ok {
			return "", diag.New(diag.Unsupported, "promoted constant not yet materialized")
		}
		return entry.Ty, nil
	default:
		return "", diag.New(diag.Unsupported, "unknown operand kind")
	}
}
