package ir

import "testing"

func TestPlaceBuildersAppendProjections(t *testing.T) {
	base := Local(3)
	derived := base.Field(1).Downcast(2).Deref().Index(Consume(Local(0)))

	if base.Base.Local != 3 || len(base.Projections) != 0 {
		t.Fatal("Local must not carry projections, and builders must not mutate the receiver")
	}
	if len(derived.Projections) != 4 {
		t.Fatalf("got %d projections, want 4", len(derived.Projections))
	}
	if derived.Projections[0].Kind != ProjField || derived.Projections[0].Field != 1 {
		t.Fatal("first projection should be the field access")
	}
	if derived.Projections[1].Kind != ProjDowncast || derived.Projections[1].Variant != 2 {
		t.Fatal("second projection should be the downcast")
	}
	if derived.Projections[2].Kind != ProjDeref {
		t.Fatal("third projection should be the deref")
	}
	if derived.Projections[3].Kind != ProjIndex {
		t.Fatal("fourth projection should be the index")
	}
}

func TestPlaceBuildersDoNotMutateSharedBase(t *testing.T) {
	base := Local(0).Field(0)
	_ = base.Field(1)
	_ = base.Field(2)
	if len(base.Projections) != 1 || base.Projections[0].Field != 0 {
		t.Fatal("branching off the same base place must not mutate it")
	}
}

func TestOperandConstructors(t *testing.T) {
	if op := Consume(Local(1)); op.Kind != OpConsume {
		t.Fatal("Consume must produce OpConsume")
	}
	if op := LiteralValue(Literal{Ty: "i32", Int: 7}); op.Kind != OpLiteralValue || op.Lit.Int != 7 {
		t.Fatal("LiteralValue must carry its literal through")
	}
	if op := LiteralItem(ItemRef{DefID: "foo"}); op.Kind != OpLiteralItem || op.Item.DefID != "foo" {
		t.Fatal("LiteralItem must carry its item ref through")
	}
	if op := LiteralPromoted(2); op.Kind != OpLiteralPromoted || op.Promoted != 2 {
		t.Fatal("LiteralPromoted must carry its index through")
	}
}

func TestSampleProgramShape(t *testing.T) {
	p := NewSampleProgram()
	body, ok := p.Body(FunctionKey{DefID: "main"})
	if !ok {
		t.Fatal("expected a main body")
	}
	if body.ReturnType != "i32" {
		t.Fatalf("got return type %q, want i32", body.ReturnType)
	}
	if len(body.Blocks) != 1 || len(body.Blocks[0].Statements) != 1 {
		t.Fatal("expected exactly one block with one statement")
	}
	stmt := body.Blocks[0].Statements[0]
	if stmt.Rvalue.Kind != RBinaryOp || stmt.Rvalue.BinOp != 0 {
		t.Fatal("expected the sample body to compute a binary op")
	}
	if _, ok := p.Body(FunctionKey{DefID: "nonexistent"}); ok {
		t.Fatal("expected lookup of an unknown function to fail")
	}
	if _, ok := p.Lookup("i32"); !ok {
		t.Fatal("expected i32 to be a registered type")
	}
	if p.PointerSize() != 8 {
		t.Fatalf("got pointer size %d, want 8", p.PointerSize())
	}
}
