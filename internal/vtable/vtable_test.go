package vtable

import (
	"testing"

	"mirevaluator/internal/ir"
	"mirevaluator/internal/memory"
)

func TestBuildAndReadBackSlots(t *testing.T) {
	mem := memory.New(memory.DefaultDataLayout(), 0)
	b := NewBuilder(mem, 8)

	drop := ir.ItemRef{DefID: "drop_glue_Foo"}
	methods := []ir.ItemRef{{DefID: "Foo::speak"}, {DefID: "Foo::greet"}}

	vt, derr := b.Build("Foo::Speaker", drop, methods, 24, 8)
	if derr != nil {
		t.Fatal(derr)
	}

	size, derr := b.Size(vt)
	if derr != nil {
		t.Fatal(derr)
	}
	if size != 24 {
		t.Fatalf("got size %d, want 24", size)
	}
	align, derr := b.Align(vt)
	if derr != nil {
		t.Fatal(derr)
	}
	if align != 8 {
		t.Fatalf("got align %d, want 8", align)
	}

	dropFn, derr := b.DropFn(vt)
	if derr != nil {
		t.Fatal(derr)
	}
	dropInfo, derr := mem.GetFn(dropFn.Alloc)
	if derr != nil {
		t.Fatal(derr)
	}
	if dropInfo.DefID != "drop_glue_Foo" {
		t.Fatalf("got %q, want drop_glue_Foo", dropInfo.DefID)
	}

	m0, derr := b.MethodAt(vt, 0)
	if derr != nil {
		t.Fatal(derr)
	}
	m0Info, derr := mem.GetFn(m0.Alloc)
	if derr != nil {
		t.Fatal(derr)
	}
	if m0Info.DefID != "Foo::speak" {
		t.Fatalf("got %q, want Foo::speak", m0Info.DefID)
	}

	m1, derr := b.MethodAt(vt, 1)
	if derr != nil {
		t.Fatal(derr)
	}
	m1Info, derr := mem.GetFn(m1.Alloc)
	if derr != nil {
		t.Fatal(derr)
	}
	if m1Info.DefID != "Foo::greet" {
		t.Fatalf("got %q, want Foo::greet", m1Info.DefID)
	}
}

func TestBuildDeduplicatesByKey(t *testing.T) {
	mem := memory.New(memory.DefaultDataLayout(), 0)
	b := NewBuilder(mem, 8)
	drop := ir.ItemRef{DefID: "drop_glue_Foo"}

	first, derr := b.Build("Foo::Speaker", drop, nil, 8, 8)
	if derr != nil {
		t.Fatal(derr)
	}
	second, derr := b.Build("Foo::Speaker", drop, nil, 8, 8)
	if derr != nil {
		t.Fatal(derr)
	}
	if first != second {
		t.Fatalf("expected the same vtable pointer for repeated coercions of the same pair, got %+v and %+v", first, second)
	}
}
