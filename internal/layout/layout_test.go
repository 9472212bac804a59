package layout

import (
	"testing"

	"mirevaluator/internal/prim"
)

type testCtx struct {
	types map[TypeID]*TypeDef
	ptr   int64
}

func newTestCtx() *testCtx {
	return &testCtx{types: make(map[TypeID]*TypeDef), ptr: 8}
}

func (c *testCtx) add(id TypeID, def *TypeDef) { c.types[id] = def }

func (c *testCtx) Lookup(id TypeID) (*TypeDef, bool) { d, ok := c.types[id]; return d, ok }
func (c *testCtx) Normalize(id TypeID) TypeID         { return id }
func (c *testCtx) PointerSize() int64                 { return c.ptr }

func TestScalarLayout(t *testing.T) {
	ctx := newTestCtx()
	ctx.add("i32", &TypeDef{Kind: KindScalar, Prim: prim.KindI32})
	a := NewAdapter(ctx)
	l, err := a.LayoutOf("i32")
	if err != nil {
		t.Fatal(err)
	}
	if l.Size != 4 || l.Align != 4 {
		t.Fatalf("got size=%d align=%d, want 4/4", l.Size, l.Align)
	}
}

func TestStructLayoutPadding(t *testing.T) {
	ctx := newTestCtx()
	ctx.add("u8", &TypeDef{Kind: KindScalar, Prim: prim.KindU8})
	ctx.add("i32", &TypeDef{Kind: KindScalar, Prim: prim.KindI32})
	ctx.add("pair", &TypeDef{Kind: KindStruct, Fields: []TypeID{"u8", "i32"}})
	a := NewAdapter(ctx)
	l, err := a.LayoutOf("pair")
	if err != nil {
		t.Fatal(err)
	}
	if l.Align != 4 {
		t.Fatalf("got align %d, want 4", l.Align)
	}
	if l.FieldOffsets[0] != 0 || l.FieldOffsets[1] != 4 {
		t.Fatalf("got offsets %v, want [0 4]", l.FieldOffsets)
	}
	if l.Size != 8 {
		t.Fatalf("got size %d, want 8 (padded)", l.Size)
	}
}

func TestArrayLayout(t *testing.T) {
	ctx := newTestCtx()
	ctx.add("i32", &TypeDef{Kind: KindScalar, Prim: prim.KindI32})
	ctx.add("arr", &TypeDef{Kind: KindArray, Elem: "i32", ArrayLen: 5})
	a := NewAdapter(ctx)
	l, err := a.LayoutOf("arr")
	if err != nil {
		t.Fatal(err)
	}
	if l.Size != 20 || l.ElemSize != 4 || l.ArrayLen != 5 {
		t.Fatalf("got %+v", l)
	}
}

func TestSliceIsUnsized(t *testing.T) {
	ctx := newTestCtx()
	ctx.add("i32", &TypeDef{Kind: KindScalar, Prim: prim.KindI32})
	ctx.add("slice", &TypeDef{Kind: KindSlice, Elem: "i32"})
	a := NewAdapter(ctx)
	l, err := a.LayoutOf("slice")
	if err != nil {
		t.Fatal(err)
	}
	if !l.Unsized || l.ElemSize != 4 {
		t.Fatalf("got %+v", l)
	}
}

func TestFatRawPointerToSlice(t *testing.T) {
	ctx := newTestCtx()
	ctx.add("i32", &TypeDef{Kind: KindScalar, Prim: prim.KindI32})
	ctx.add("slice", &TypeDef{Kind: KindSlice, Elem: "i32"})
	ctx.add("ptr_to_slice", &TypeDef{Kind: KindRawPointer, Elem: "slice"})
	a := NewAdapter(ctx)
	l, err := a.LayoutOf("ptr_to_slice")
	if err != nil {
		t.Fatal(err)
	}
	if !l.Unsized || l.Size != 16 {
		t.Fatalf("got %+v, want unsized 16-byte fat pointer", l)
	}
}

// Property: RawNullablePointer enums are the same size as their non-null
// variant's single field, never larger (§8 property 8).
func TestRawNullablePointerLayout(t *testing.T) {
	ctx := newTestCtx()
	ctx.add("i32", &TypeDef{Kind: KindScalar, Prim: prim.KindI32})
	ctx.add("ptr", &TypeDef{Kind: KindRawPointer, Elem: "i32"})
	ctx.add("option_box", &TypeDef{
		Kind: KindEnumRawNullable,
		Variants: []Variant{
			{Name: "None"},
			{Name: "Some", Fields: []TypeID{"ptr"}},
		},
		NonNullVariant: 1,
	})
	a := NewAdapter(ctx)
	ptrLayout, err := a.LayoutOf("ptr")
	if err != nil {
		t.Fatal(err)
	}
	enumLayout, err := a.LayoutOf("option_box")
	if err != nil {
		t.Fatal(err)
	}
	if enumLayout.Size != ptrLayout.Size || enumLayout.Align != ptrLayout.Align {
		t.Fatalf("got size=%d align=%d, want size=%d align=%d (same as bare pointer)",
			enumLayout.Size, enumLayout.Align, ptrLayout.Size, ptrLayout.Align)
	}
}

func TestGeneralEnumVariantForDiscriminant(t *testing.T) {
	ctx := newTestCtx()
	ctx.add("i32", &TypeDef{Kind: KindScalar, Prim: prim.KindI32})
	ctx.add("e", &TypeDef{
		Kind: KindEnumGeneral,
		Variants: []Variant{
			{Name: "A", DiscrVal: 0},
			{Name: "B", DiscrVal: 1, Fields: []TypeID{"i32"}},
		},
	})
	a := NewAdapter(ctx)
	l, err := a.LayoutOf("e")
	if err != nil {
		t.Fatal(err)
	}
	vi, ok := l.VariantForDiscriminant(1)
	if !ok || vi != 1 {
		t.Fatalf("got vi=%d ok=%v, want 1/true", vi, ok)
	}
	_, ok = l.VariantForDiscriminant(42)
	if ok {
		t.Fatal("expected unknown discriminant to fail lookup")
	}
}

func TestLayoutOfIsMemoized(t *testing.T) {
	ctx := newTestCtx()
	ctx.add("i32", &TypeDef{Kind: KindScalar, Prim: prim.KindI32})
	a := NewAdapter(ctx)
	l1, err := a.LayoutOf("i32")
	if err != nil {
		t.Fatal(err)
	}
	l2, err := a.LayoutOf("i32")
	if err != nil {
		t.Fatal(err)
	}
	if l1 != l2 {
		t.Fatal("expected the same cached *Layout pointer on repeat lookup")
	}
}
