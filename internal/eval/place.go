package eval

import (
	"mirevaluator/internal/diag"
	"mirevaluator/internal/ir"
	"mirevaluator/internal/layout"
	"mirevaluator/internal/memory"
	"mirevaluator/internal/prim"
)

// ExtraKind tags what, if anything, a projection attached beyond a bare
// address — spec.md §4.2's "extra metadata: none / slice length / vtable
// pointer / active variant".
type ExtraKind int

const (
	ExtraNone ExtraKind = iota
	ExtraLen
	ExtraVTable
	ExtraVariant
)

type PlaceExtra struct {
	Kind    ExtraKind
	Len     int64
	VTable  memory.Pointer
	Variant int
}

func fieldTypesOf(def *layout.TypeDef, variant int) []layout.TypeID {
	switch def.Kind {
	case layout.KindEnumGeneral:
		return def.Variants[variant].Fields
	case layout.KindEnumStructWrappedNullable, layout.KindEnumRawNullable:
		return def.Variants[def.NonNullVariant].Fields
	default:
		return def.Fields
	}
}

// EvalPlace resolves p to a byte address, the type of the value living
// there, and any fat-pointer/active-variant metadata a preceding
// projection established (§4.2).
func (ec *EvalContext) EvalPlace(p ir.Place) (memory.Pointer, layout.TypeID, PlaceExtra, *diag.Error) {
	var addr memory.Pointer
	var ty layout.TypeID
	variant := 0
	extra := PlaceExtra{Kind: ExtraNone}

	switch p.Base.Kind {
	case ir.BaseReturn:
		f := ec.Frame()
		if f == nil || f.ReturnSlot == nil {
			return memory.Pointer{}, "", extra, diag.New(diag.Unsupported, "no return slot in current frame")
		}
		addr, ty = *f.ReturnSlot, f.Body.ReturnType
	case ir.BaseLocal:
		f := ec.Frame()
		if f == nil || p.Base.Local < 0 || p.Base.Local >= len(f.Locals) {
			return memory.Pointer{}, "", extra, diag.New(diag.Unsupported, "local out of range")
		}
		addr, ty = f.Locals[p.Base.Local], f.Body.LocalTypes[p.Base.Local]
	case ir.BaseStatic:
		entry, ok := ec.Statics[ir.ConstantKey{DefID: p.Base.Static, Kind: ir.KeyGlobal}]
		if !ok {
			return memory.Pointer{}, "", extra, diag.New(diag.Unsupported, "static not yet materialized: "+string(p.Base.Static))
		}
		addr, ty = entry.Ptr, entry.Ty
	default:
		return memory.Pointer{}, "", extra, diag.New(diag.Unsupported, "unknown place base")
	}

	for _, proj := range p.Projections {
		def, derr := ec.lookup(ty)
		if derr != nil {
			return memory.Pointer{}, "", extra, derr
		}
		l, err := ec.Layout.LayoutOf(ty)
		if err != nil {
			return memory.Pointer{}, "", extra, diag.New(diag.Unsupported, err.Error())
		}

		switch proj.Kind {
		case ir.ProjField:
			fields := fieldTypesOf(def, variant)
			if proj.Field < 0 || proj.Field >= len(fields) {
				return memory.Pointer{}, "", extra, diag.New(diag.Unsupported, "field index out of range")
			}
			addr = addr.Add(l.FieldOffset(variant, proj.Field))
			ty = fields[proj.Field]
			variant = 0
			extra = PlaceExtra{Kind: ExtraNone}

		case ir.ProjDowncast:
			variant = proj.Variant
			extra = PlaceExtra{Kind: ExtraVariant, Variant: variant}

		case ir.ProjDeref:
			elemDef, derr := ec.lookup(def.Elem)
			if derr != nil {
				return memory.Pointer{}, "", extra, derr
			}
			if l.Unsized {
				metaIsPtr := elemDef.Kind == layout.KindTraitObject
				fat, derr := ec.ReadFat(addr, metaIsPtr)
				if derr != nil {
					return memory.Pointer{}, "", extra, derr
				}
				addr = memPtr(fat.Data)
				if metaIsPtr {
					extra = PlaceExtra{Kind: ExtraVTable, VTable: memPtr(fat.Meta)}
				} else {
					extra = PlaceExtra{Kind: ExtraLen, Len: int64(fat.Meta.AsUint64())}
				}
			} else {
				v, derr := ec.ReadScalar(ty, addr)
				if derr != nil {
					return memory.Pointer{}, "", extra, derr
				}
				addr = memPtr(v)
				extra = PlaceExtra{Kind: ExtraNone}
			}
			ty = def.Elem
			variant = 0

		case ir.ProjIndex:
			idx, derr := ec.EvalOperand(proj.Index)
			if derr != nil {
				return memory.Pointer{}, "", extra, derr
			}
			elemLayout, err := ec.Layout.LayoutOf(def.Elem)
			if err != nil {
				return memory.Pointer{}, "", extra, diag.New(diag.Unsupported, err.Error())
			}
			addr = addr.Add(idx.I * elemLayout.Size)
			ty = def.Elem
			variant = 0
			extra = PlaceExtra{Kind: ExtraNone}

		default:
			return memory.Pointer{}, "", extra, diag.New(diag.Unsupported, "unknown projection kind")
		}
	}

	return addr, ty, extra, nil
}

// DiscriminantOf reads the discriminant word of an enum value at addr and
// resolves it to a variant index (SPEC_FULL.md §E.3, grounded on
// original_source/src/interpreter/mod.rs's read_discriminant). The
// Stepper's SwitchInt terminator does not call it: SwitchInt compares the
// integer value of its Discriminant operand directly.
func (ec *EvalContext) DiscriminantOf(ty layout.TypeID, addr memory.Pointer) (int, *diag.Error) {
	l, err := ec.Layout.LayoutOf(ty)
	if err != nil {
		return 0, diag.New(diag.Unsupported, err.Error())
	}
	switch l.Kind {
	case layout.KindEnumCEnum, layout.KindEnumGeneral:
		v, derr := ec.Mem.ReadInt(addr, l.DiscrSize, l.DiscrSigned)
		if derr != nil {
			return 0, derr
		}
		vi, ok := l.VariantForDiscriminant(v)
		if !ok {
			return 0, diag.New(diag.Unsupported, "discriminant value matches no declared variant")
		}
		return vi, nil
	case layout.KindEnumRawNullable:
		v, derr := ec.ReadScalar(l.Variants[l.NonNullVariant].Fields[0], addr)
		if derr != nil {
			return 0, derr
		}
		if v.Kind == prim.KindIntegerPtr && v.IPtr == 0 {
			return 1 - l.NonNullVariant, nil
		}
		return l.NonNullVariant, nil
	case layout.KindEnumStructWrappedNullable:
		fieldAddr := addr
		fields := l.FieldOffsets
		for _, fi := range l.DiscrFieldPath {
			if fi < 0 || fi >= len(fields) {
				return 0, diag.New(diag.Unsupported, "malformed discriminant field path")
			}
			fieldAddr = fieldAddr.Add(fields[fi])
		}
		v, derr := ec.Mem.ReadInt(fieldAddr, ec.Layout.PointerSize(), false)
		if derr != nil {
			return 0, derr
		}
		if v == 0 {
			return 1 - l.NonNullVariant, nil
		}
		return l.NonNullVariant, nil
	default:
		return 0, nil
	}
}
