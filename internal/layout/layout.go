package layout

import "fmt"

// Layout is the computed answer for one monomorphized TypeID: size,
// alignment, field offsets, and (for sum types) discriminant shape —
// everything spec.md §4.5 lists the adapter as producing.
type Layout struct {
	Size  int64
	Align int64
	Kind  Kind

	// KindStruct / each General-enum variant: offset of field i from the
	// outer base (§4.5: "the byte distance from the outer base").
	FieldOffsets []int64

	// KindArray/KindSlice
	ElemSize int64
	ArrayLen int64 // -1 for KindSlice

	// Enum kinds
	DiscrSize      int64 // bytes
	DiscrSigned    bool
	VariantOffsets [][]int64 // General: per-variant field offsets (discriminant prefix already skipped)
	Variants       []Variant
	NonNullVariant int
	DiscrFieldPath []int

	// KindRawPointer/KindTraitObject/KindSlice/KindStr when the pointee
	// is unsized: the pointer occupies 2*pointer_size bytes, data then
	// metadata (§3: "Place ↔ fat-pointer shape is identical").
	Unsized bool
}

// SecondWordOffset is where a fat pointer's metadata word lives — always
// pointer_size, per spec.md §4.5 ("for the second slot of a fat pointer the
// offset is pointer_size").
func SecondWordOffset(ptrSize int64) int64 { return ptrSize }

// Adapter computes and caches Layouts for a TypeContext. One Adapter is
// shared by every frame in an EvalContext (spec.md §4.5's "monomorphization
// / type-layout queries").
type Adapter struct {
	tcx   TypeContext
	cache map[TypeID]*Layout
}

func NewAdapter(tcx TypeContext) *Adapter {
	return &Adapter{tcx: tcx, cache: make(map[TypeID]*Layout)}
}

func (a *Adapter) PointerSize() int64 { return a.tcx.PointerSize() }

// LayoutOf returns (and memoizes) the layout of id, normalizing associated
// types first (§4.5).
func (a *Adapter) LayoutOf(id TypeID) (*Layout, error) {
	id = a.tcx.Normalize(id)
	if l, ok := a.cache[id]; ok {
		return l, nil
	}
	def, ok := a.tcx.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("layout: unknown type %q", id)
	}
	l, err := a.compute(def)
	if err != nil {
		return nil, fmt.Errorf("layout: %s: %w", id, err)
	}
	a.cache[id] = l
	return l, nil
}

func roundUp(n, align int64) int64 {
	if align <= 1 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}

func (a *Adapter) fieldLayouts(fields []TypeID) ([]*Layout, error) {
	out := make([]*Layout, len(fields))
	for i, f := range fields {
		l, err := a.LayoutOf(f)
		if err != nil {
			return nil, err
		}
		out[i] = l
	}
	return out, nil
}

// layoutFields computes sequential field offsets starting at startOff,
// "first field at offset 0" relative to startOff (§4.2's Aggregate case),
// returning offsets, the total size rounded up to the max field alignment
// (trailing padding included), and that max field alignment.
func layoutFields(fields []*Layout, startOff int64) (offsets []int64, size, align int64) {
	align = 1
	off := startOff
	offsets = make([]int64, len(fields))
	for i, f := range fields {
		off = roundUp(off, f.Align)
		offsets[i] = off
		off += f.Size
		if f.Align > align {
			align = f.Align
		}
	}
	size = roundUp(off, align)
	return offsets, size, align
}

func (a *Adapter) compute(def *TypeDef) (*Layout, error) {
	ptrSize := a.tcx.PointerSize()
	switch def.Kind {
	case KindScalar:
		sz := int64(def.Prim.Bytes())
		if sz == 0 {
			sz = 1 // bool-sized scalars with Bits()==8 already covered; guard pathological zero
		}
		return &Layout{Size: sz, Align: sz, Kind: def.Kind}, nil

	case KindFnPointer:
		return &Layout{Size: ptrSize, Align: ptrSize, Kind: def.Kind}, nil // one pointer word naming a function allocation

	case KindRawPointer:
		elemDef, ok := a.tcx.Lookup(a.tcx.Normalize(def.Elem))
		unsized := ok && isUnsizedKind(elemDef.Kind)
		size := ptrSize
		if unsized {
			size = 2 * ptrSize
		}
		return &Layout{Size: size, Align: ptrSize, Kind: def.Kind, Unsized: unsized}, nil

	case KindTraitObject:
		return &Layout{Size: 2 * ptrSize, Align: ptrSize, Kind: def.Kind, Unsized: true}, nil

	case KindSlice, KindStr:
		elemSize := int64(0)
		if def.Kind == KindSlice {
			el, err := a.LayoutOf(def.Elem)
			if err != nil {
				return nil, err
			}
			elemSize = el.Size
		} else {
			elemSize = 1
		}
		return &Layout{Size: 0, Align: 1, Kind: def.Kind, ElemSize: elemSize, ArrayLen: -1, Unsized: true}, nil

	case KindArray:
		el, err := a.LayoutOf(def.Elem)
		if err != nil {
			return nil, err
		}
		return &Layout{
			Size: el.Size * def.ArrayLen, Align: el.Align, Kind: def.Kind,
			ElemSize: el.Size, ArrayLen: def.ArrayLen,
		}, nil

	case KindStruct:
		fields, err := a.fieldLayouts(def.Fields)
		if err != nil {
			return nil, err
		}
		offs, size, align := layoutFields(fields, 0)
		return &Layout{Size: size, Align: align, Kind: def.Kind, FieldOffsets: offs}, nil

	case KindEnumCEnum:
		discrSize, discrSigned := cEnumDiscrWidth(def.Variants)
		return &Layout{
			Size: discrSize, Align: discrSize, Kind: def.Kind,
			DiscrSize: discrSize, DiscrSigned: discrSigned, Variants: def.Variants,
		}, nil

	case KindEnumRawNullable:
		nn := def.Variants[def.NonNullVariant]
		if len(nn.Fields) != 1 {
			return nil, fmt.Errorf("RawNullablePointer non-null variant must carry exactly one field")
		}
		inner, err := a.LayoutOf(nn.Fields[0])
		if err != nil {
			return nil, err
		}
		return &Layout{
			Size: inner.Size, Align: inner.Align, Kind: def.Kind,
			FieldOffsets: []int64{0}, Variants: def.Variants, NonNullVariant: def.NonNullVariant,
		}, nil

	case KindEnumStructWrappedNullable:
		nn := def.Variants[def.NonNullVariant]
		fields, err := a.fieldLayouts(nn.Fields)
		if err != nil {
			return nil, err
		}
		offs, size, align := layoutFields(fields, 0)
		return &Layout{
			Size: size, Align: align, Kind: def.Kind, FieldOffsets: offs,
			Variants: def.Variants, NonNullVariant: def.NonNullVariant, DiscrFieldPath: def.DiscrFieldPath,
		}, nil

	case KindEnumGeneral:
		discrSize, discrSigned := generalDiscrWidth(def.Variants)
		maxSize, maxAlign := discrSize, discrSize
		variantOffsets := make([][]int64, len(def.Variants))
		for vi, v := range def.Variants {
			fields, err := a.fieldLayouts(v.Fields)
			if err != nil {
				return nil, err
			}
			offs, size, align := layoutFields(fields, discrSize)
			variantOffsets[vi] = offs
			if size > maxSize {
				maxSize = size
			}
			if align > maxAlign {
				maxAlign = align
			}
		}
		return &Layout{
			Size: roundUp(maxSize, maxAlign), Align: maxAlign, Kind: def.Kind,
			DiscrSize: discrSize, DiscrSigned: discrSigned,
			VariantOffsets: variantOffsets, Variants: def.Variants,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported type kind %d", def.Kind)
	}
}

func isUnsizedKind(k Kind) bool {
	return k == KindSlice || k == KindStr || k == KindTraitObject
}

func cEnumDiscrWidth(variants []Variant) (size int64, signed bool) {
	var lo, hi int64
	for _, v := range variants {
		if v.DiscrVal < lo {
			lo = v.DiscrVal
		}
		if v.DiscrVal > hi {
			hi = v.DiscrVal
		}
	}
	signed = lo < 0
	for _, width := range []int64{1, 2, 4, 8} {
		if fitsWidth(lo, hi, width, signed) {
			return width, signed
		}
	}
	return 8, signed
}

func generalDiscrWidth(variants []Variant) (int64, bool) {
	return cEnumDiscrWidth(variants)
}

func fitsWidth(lo, hi, width int64, signed bool) bool {
	bits := uint(width * 8)
	if signed {
		if width == 8 {
			return true // every int64 value fits in an 8-byte signed width.
		}
		min := -(int64(1) << (bits - 1))
		max := int64(1)<<(bits-1) - 1
		return lo >= min && hi <= max
	}
	if width == 8 {
		return lo >= 0 // every non-negative int64 value fits in an 8-byte unsigned width.
	}
	max := int64(1)<<bits - 1
	return lo >= 0 && hi <= max
}

// DiscriminantValue returns the integer the CEnum/General/RawNullable
// layout writes for variant vi, implementing §4.2's Aggregate cases.
func (l *Layout) DiscriminantValue(vi int) int64 {
	switch l.Kind {
	case KindEnumRawNullable:
		if vi == l.NonNullVariant {
			return 1 // nonzero sentinel; the actual bit pattern is the pointer itself
		}
		return 0
	default:
		return l.Variants[vi].DiscrVal
	}
}

// VariantForDiscriminant inverts DiscriminantValue, used by eval's
// DiscriminantOf when reading an existing value back (SPEC_FULL.md §E.3).
func (l *Layout) VariantForDiscriminant(v int64) (int, bool) {
	for i, variant := range l.Variants {
		if variant.DiscrVal == v {
			return i, true
		}
	}
	return 0, false
}

// FieldOffset returns the byte offset of field `field` within variant `vi`
// (vi is ignored for KindStruct/KindEnumStructWrappedNullable, which have
// only one shape).
func (l *Layout) FieldOffset(vi, field int) int64 {
	switch l.Kind {
	case KindEnumGeneral:
		return l.VariantOffsets[vi][field]
	default:
		return l.FieldOffsets[field]
	}
}
