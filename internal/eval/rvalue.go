package eval

import (
	"mirevaluator/internal/diag"
	"mirevaluator/internal/ir"
	"mirevaluator/internal/layout"
	"mirevaluator/internal/memory"
	"mirevaluator/internal/prim"
)

// EvalRvalue computes rv and stores the result at dest, spec.md §4.2's
// per-kind assignment semantics.
func (ec *EvalContext) EvalRvalue(dest ir.Place, rv ir.Rvalue) *diag.Error {
	addr, ty, _, derr := ec.EvalPlace(dest)
	if derr != nil {
		return derr
	}

	switch rv.Kind {
	case ir.RUse:
		return ec.evalUse(addr, ty, rv.Operand)

	case ir.RBinaryOp:
		return ec.evalBinOp(addr, ty, rv.BinOp, rv.Operand, rv.Operand2, false)

	case ir.RCheckedBinaryOp:
		return ec.evalBinOp(addr, ty, rv.BinOp, rv.Operand, rv.Operand2, true)

	case ir.RUnaryOp:
		v, derr := ec.EvalOperand(rv.Operand)
		if derr != nil {
			return derr
		}
		return ec.WriteScalar(ty, addr, prim.Unary(rv.UnOp, v))

	case ir.RAggregate:
		return ec.evalAggregate(addr, ty, rv)

	case ir.RRepeat:
		return ec.evalRepeat(addr, ty, rv)

	case ir.RLen:
		return ec.evalLen(addr, ty, rv.Place)

	case ir.RRef:
		return ec.evalRef(addr, ty, rv.Place)

	case ir.RBox:
		return ec.evalBox(addr, ty)

	case ir.RCast:
		return ec.evalCast(addr, ty, rv)

	default:
		return diag.New(diag.Unsupported, "unknown rvalue kind")
	}
}

// evalUse implements Rvalue::Use: copy the operand's value verbatim,
// scalar-by-value or aggregate-by-memcpy depending on its type.
func (ec *EvalContext) evalUse(addr memory.Pointer, ty layout.TypeID, op ir.Operand) *diag.Error {
	def, derr := ec.lookup(ty)
	if derr != nil {
		return derr
	}
	l, err := ec.Layout.LayoutOf(ty)
	if err != nil {
		return diag.New(diag.Unsupported, err.Error())
	}
	if isScalarLike(def.Kind, l.Unsized) {
		v, derr := ec.EvalOperand(op)
		if derr != nil {
			return derr
		}
		return ec.WriteScalar(ty, addr, v)
	}
	if op.Kind != ir.OpConsume {
		return diag.New(diag.Unsupported, "non-scalar literal operand in Use")
	}
	srcAddr, srcTy, _, derr := ec.EvalPlace(op.Place)
	if derr != nil {
		return derr
	}
	srcLayout, err := ec.Layout.LayoutOf(srcTy)
	if err != nil {
		return diag.New(diag.Unsupported, err.Error())
	}
	return ec.Mem.Copy(srcAddr, addr, srcLayout.Size)
}

// isScalarLike reports whether a value of this kind round-trips through
// ReadScalar/WriteScalar as a single word, rather than needing a memcpy.
// A raw pointer whose own layout is unsized (a fat pointer: slice/str/
// trait-object reference) occupies two words and must take the aggregate
// path below instead, so its fat-pointer metadata word isn't dropped.
func isScalarLike(k layout.Kind, unsized bool) bool {
	switch k {
	case layout.KindScalar, layout.KindFnPointer:
		return true
	case layout.KindRawPointer:
		return !unsized
	default:
		return false
	}
}

// evalBinOp implements BinaryOp/CheckedBinaryOp. Checked results are
// written as the {value, overflow_bool} pair spec.md §4.3 describes;
// *PtrMismatchError panics from prim are recovered and reclassified here,
// the one place prim.Binary's documented panic path is meant to surface.
func (ec *EvalContext) evalBinOp(addr memory.Pointer, destTy layout.TypeID, op prim.BinOp, o1, o2 ir.Operand, checked bool) (derr *diag.Error) {
	defer func() {
		if r := recover(); r != nil {
			if pm, ok := r.(*prim.PtrMismatchError); ok {
				derr = diag.New(diag.Unsupported, pm.Error())
				return
			}
			panic(r)
		}
	}()

	a, derr := ec.EvalOperand(o1)
	if derr != nil {
		return derr
	}
	b, derr := ec.EvalOperand(o2)
	if derr != nil {
		return derr
	}
	result, overflow := prim.Binary(op, a, b)

	if !checked {
		return ec.WriteScalar(destTy, addr, result)
	}
	return ec.writeScalarPair(destTy, addr, result, overflow)
}

func (ec *EvalContext) evalAggregate(addr memory.Pointer, ty layout.TypeID, rv ir.Rvalue) *diag.Error {
	def, derr := ec.lookup(ty)
	if derr != nil {
		return derr
	}
	l, err := ec.Layout.LayoutOf(ty)
	if err != nil {
		return diag.New(diag.Unsupported, err.Error())
	}

	variant := rv.Variant
	switch rv.AggKind {
	case ir.AggCEnum:
		return ec.Mem.WriteInt(addr, l.DiscrSize, l.DiscriminantValue(variant))

	case ir.AggRawNullable:
		if variant == l.NonNullVariant {
			return ec.evalFieldList(addr, ty, def, l, variant, rv.Operands)
		}
		return ec.Mem.WriteInt(addr, ec.Layout.PointerSize(), 0)

	case ir.AggStructWrappedNullable:
		if variant != l.NonNullVariant {
			fieldAddr := addr
			for _, fi := range l.DiscrFieldPath {
				fieldAddr = fieldAddr.Add(l.FieldOffsets[fi])
			}
			return ec.Mem.WriteInt(fieldAddr, ec.Layout.PointerSize(), 0)
		}
		return ec.evalFieldList(addr, ty, def, l, variant, rv.Operands)

	case ir.AggGeneral:
		if derr := ec.Mem.WriteInt(addr, l.DiscrSize, l.DiscriminantValue(variant)); derr != nil {
			return derr
		}
		return ec.evalFieldList(addr, ty, def, l, variant, rv.Operands)

	case ir.AggArray:
		elemLayout, err := ec.Layout.LayoutOf(def.Elem)
		if err != nil {
			return diag.New(diag.Unsupported, err.Error())
		}
		for i, o := range rv.Operands {
			if derr := ec.writeOperandAt(addr.Add(int64(i)*elemLayout.Size), def.Elem, o); derr != nil {
				return derr
			}
		}
		return nil

	case ir.AggUnivariant:
		return ec.evalFieldList(addr, ty, def, l, 0, rv.Operands)

	default:
		return diag.New(diag.Unsupported, "unknown aggregate kind")
	}
}

func (ec *EvalContext) evalFieldList(addr memory.Pointer, ty layout.TypeID, def *layout.TypeDef, l *layout.Layout, variant int, ops []ir.Operand) *diag.Error {
	fields := fieldTypesOf(def, variant)
	for i, o := range ops {
		if i >= len(fields) {
			return diag.New(diag.Unsupported, "too many aggregate field operands")
		}
		off := l.FieldOffset(variant, i)
		if derr := ec.writeOperandAt(addr.Add(off), fields[i], o); derr != nil {
			return derr
		}
	}
	return nil
}

func (ec *EvalContext) writeOperandAt(addr memory.Pointer, ty layout.TypeID, op ir.Operand) *diag.Error {
	def, derr := ec.lookup(ty)
	if derr != nil {
		return derr
	}
	l, err := ec.Layout.LayoutOf(ty)
	if err != nil {
		return diag.New(diag.Unsupported, err.Error())
	}
	if isScalarLike(def.Kind, l.Unsized) {
		v, derr := ec.EvalOperand(op)
		if derr != nil {
			return derr
		}
		return ec.WriteScalar(ty, addr, v)
	}
	if op.Kind != ir.OpConsume {
		return diag.New(diag.Unsupported, "non-scalar literal operand in aggregate field")
	}
	srcAddr, srcTy, _, derr := ec.EvalPlace(op.Place)
	if derr != nil {
		return derr
	}
	srcLayout, err := ec.Layout.LayoutOf(srcTy)
	if err != nil {
		return diag.New(diag.Unsupported, err.Error())
	}
	return ec.Mem.Copy(srcAddr, addr, srcLayout.Size)
}

func (ec *EvalContext) evalRepeat(addr memory.Pointer, ty layout.TypeID, rv ir.Rvalue) *diag.Error {
	def, derr := ec.lookup(ty)
	if derr != nil {
		return derr
	}
	elemLayout, err := ec.Layout.LayoutOf(def.Elem)
	if err != nil {
		return diag.New(diag.Unsupported, err.Error())
	}
	for i := int64(0); i < rv.RepeatCount; i++ {
		if derr := ec.writeOperandAt(addr.Add(i*elemLayout.Size), def.Elem, rv.Operand); derr != nil {
			return derr
		}
	}
	return nil
}

// evalLen implements Rvalue::Len: arrays read their length straight out of
// the layout; slices/strs only know their length at the fat-pointer
// metadata word of the place that was dereferenced to reach them.
func (ec *EvalContext) evalLen(addr memory.Pointer, destTy layout.TypeID, place ir.Place) *diag.Error {
	_, srcTy, extra, derr := ec.EvalPlace(place)
	if derr != nil {
		return derr
	}
	l, err := ec.Layout.LayoutOf(srcTy)
	if err != nil {
		return diag.New(diag.Unsupported, err.Error())
	}
	var n int64
	if l.Kind == layout.KindArray {
		n = l.ArrayLen
	} else if extra.Kind == ExtraLen {
		n = extra.Len
	} else {
		return diag.New(diag.Unsupported, "Len of a place with no known length")
	}
	return ec.Mem.WriteInt(addr, ec.Layout.PointerSize(), n)
}

// evalRef implements Rvalue::Ref: write the referent's address, carrying
// forward fat-pointer metadata (§3: "Place ↔ fat-pointer shape is
// identical").
func (ec *EvalContext) evalRef(addr memory.Pointer, destTy layout.TypeID, place ir.Place) *diag.Error {
	refAddr, _, extra, derr := ec.EvalPlace(place)
	if derr != nil {
		return derr
	}
	destDef, derr := ec.lookup(destTy)
	if derr != nil {
		return derr
	}
	destLayout, err := ec.Layout.LayoutOf(destTy)
	if err != nil {
		return diag.New(diag.Unsupported, err.Error())
	}
	if destLayout.Unsized {
		metaIsPtr := extra.Kind == ExtraVTable
		var meta prim.Value
		if metaIsPtr {
			meta = prim.AbstractPtr(primPtr(extra.VTable))
		} else {
			meta = prim.Uint(prim.KindU64, uint64(extra.Len))
		}
		return ec.WriteFat(addr, Fat{Data: prim.AbstractPtr(primPtr(refAddr)), Meta: meta})
	}
	_ = destDef
	return ec.WriteScalar(destTy, addr, prim.AbstractPtr(primPtr(refAddr)))
}

// evalBox implements Rvalue::Box: allocate storage for the boxed type and
// write a thin owning pointer to it, spec.md §4.2's heap-allocation rvalue.
func (ec *EvalContext) evalBox(addr memory.Pointer, destTy layout.TypeID) *diag.Error {
	destDef, derr := ec.lookup(destTy)
	if derr != nil {
		return derr
	}
	inner, err := ec.Layout.LayoutOf(destDef.Elem)
	if err != nil {
		return diag.New(diag.Unsupported, err.Error())
	}
	p, mderr := ec.Mem.Allocate(inner.Size, inner.Align)
	if mderr != nil {
		return mderr
	}
	return ec.WriteScalar(destTy, addr, prim.AbstractPtr(primPtr(p)))
}

// evalCast implements Rvalue::Cast's four kinds (§4.2).
func (ec *EvalContext) evalCast(addr memory.Pointer, destTy layout.TypeID, rv ir.Rvalue) *diag.Error {
	switch rv.CastKind {
	case ir.CastMisc:
		srcTy, derr := ec.OperandType(rv.Operand)
		if derr != nil {
			return derr
		}
		srcLayout, err := ec.Layout.LayoutOf(srcTy)
		if err != nil {
			return diag.New(diag.Unsupported, err.Error())
		}
		destLayout, err := ec.Layout.LayoutOf(destTy)
		if err != nil {
			return diag.New(diag.Unsupported, err.Error())
		}

		if srcLayout.Unsized || destLayout.Unsized {
			return ec.evalCastFat(addr, srcTy, destTy, srcLayout, destLayout, rv.Operand)
		}

		v, derr := ec.EvalOperand(rv.Operand)
		if derr != nil {
			return derr
		}
		destDef, derr := ec.lookup(destTy)
		if derr != nil {
			return derr
		}
		if destDef.Kind != layout.KindScalar {
			return diag.New(diag.Unsupported, "Misc cast to a non-scalar type")
		}
		return ec.WriteScalar(destTy, addr, prim.Cast(v, destDef.Prim))

	case ir.CastReifyFnPointer, ir.CastUnsafeFnPointer:
		v, derr := ec.EvalOperand(rv.Operand)
		if derr != nil {
			return derr
		}
		return ec.WriteScalar(destTy, addr, v)

	case ir.CastUnsize:
		return ec.evalUnsize(addr, destTy, rv)

	default:
		return diag.New(diag.Unsupported, "unknown cast kind")
	}
}

// evalCastFat implements the fat-pointer halves of Misc (§4.2): fat-to-fat
// copies both words verbatim (e.g. &mut dyn Trait -> &dyn Trait); fat-to-thin
// keeps the data word and drops the metadata word (e.g. &[T] -> *const T).
func (ec *EvalContext) evalCastFat(addr memory.Pointer, srcTy, destTy layout.TypeID, srcLayout, destLayout *layout.Layout, op ir.Operand) *diag.Error {
	if !srcLayout.Unsized {
		return diag.New(diag.Unsupported, "Misc cast from a thin pointer to a fat type")
	}
	if op.Kind != ir.OpConsume {
		return diag.New(diag.Unsupported, "Misc cast of a fat pointer requires a place operand")
	}
	srcAddr, _, _, derr := ec.EvalPlace(op.Place)
	if derr != nil {
		return derr
	}

	if destLayout.Unsized {
		return ec.Mem.Copy(srcAddr, addr, destLayout.Size)
	}

	srcDef, derr := ec.lookup(srcTy)
	if derr != nil {
		return derr
	}
	pointeeDef, derr := ec.lookup(srcDef.Elem)
	if derr != nil {
		return derr
	}
	fat, derr := ec.ReadFat(srcAddr, pointeeDef.Kind == layout.KindTraitObject)
	if derr != nil {
		return derr
	}
	return ec.WriteScalar(destTy, addr, fat.Data)
}

// evalUnsize implements the thin-to-fat half of Rvalue::Cast: [T; n] -> [T]
// carries the constant n forward as the new length word; a concrete type
// coerced to a trait object builds (or reuses) that type's vtable (§4.4).
func (ec *EvalContext) evalUnsize(addr memory.Pointer, destTy layout.TypeID, rv ir.Rvalue) *diag.Error {
	srcTy, derr := ec.OperandType(rv.Operand)
	if derr != nil {
		return derr
	}
	v, derr := ec.EvalOperand(rv.Operand)
	if derr != nil {
		return derr
	}
	srcDef, derr := ec.lookup(srcTy)
	if derr != nil {
		return derr
	}
	destDef, derr := ec.lookup(destTy)
	if derr != nil {
		return derr
	}
	targetElemDef, derr := ec.lookup(destDef.Elem)
	if derr != nil {
		return derr
	}

	switch targetElemDef.Kind {
	case layout.KindSlice:
		pointeeDef, derr := ec.lookup(srcDef.Elem)
		if derr != nil {
			return derr
		}
		if pointeeDef.Kind != layout.KindArray {
			return diag.New(diag.Unsupported, "Unsize to a slice requires an array pointer source")
		}
		return ec.WriteFat(addr, Fat{Data: v, Meta: prim.Uint(prim.KindU64, uint64(pointeeDef.ArrayLen))})

	case layout.KindTraitObject:
		concreteTy := srcDef.Elem
		concreteLayout, err := ec.Layout.LayoutOf(concreteTy)
		if err != nil {
			return diag.New(diag.Unsupported, err.Error())
		}
		key := string(concreteTy) + "::" + string(destDef.Elem)
		vt, derr := ec.VTables.Build(key, rv.Unsize.Drop, rv.Unsize.Methods, concreteLayout.Size, concreteLayout.Align)
		if derr != nil {
			return derr
		}
		return ec.WriteFat(addr, Fat{Data: v, Meta: prim.AbstractPtr(primPtr(vt))})

	default:
		return diag.New(diag.Unsupported, "Unsize target is not a slice or trait object")
	}
}
