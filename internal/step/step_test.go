package step

import (
	"testing"

	"mirevaluator/internal/diag"
	"mirevaluator/internal/eval"
	"mirevaluator/internal/ir"
	"mirevaluator/internal/layout"
	"mirevaluator/internal/memory"
	"mirevaluator/internal/prim"
)

type testProgram struct {
	types  map[layout.TypeID]*layout.TypeDef
	bodies map[ir.FunctionKey]*ir.Body
}

func newTestProgram() *testProgram {
	return &testProgram{types: make(map[layout.TypeID]*layout.TypeDef), bodies: make(map[ir.FunctionKey]*ir.Body)}
}

func (p *testProgram) add(id layout.TypeID, def *layout.TypeDef) { p.types[id] = def }

func (p *testProgram) Lookup(id layout.TypeID) (*layout.TypeDef, bool) { d, ok := p.types[id]; return d, ok }
func (p *testProgram) Normalize(id layout.TypeID) layout.TypeID        { return id }
func (p *testProgram) PointerSize() int64                              { return 8 }
func (p *testProgram) Body(key ir.FunctionKey) (*ir.Body, bool)        { b, ok := p.bodies[key]; return b, ok }
func (p *testProgram) FetchItemMIR(id ir.DefID) (*ir.Body, bool)       { return p.Body(ir.FunctionKey{DefID: id}) }
func (p *testProgram) LangItem(name string) (ir.DefID, bool)          { return "", false }
func (p *testProgram) DataLayout() memory.DataLayout                  { return memory.DefaultDataLayout() }

// Property: a terminating program steps until the frame stack empties and
// leaves its result in the return slot (§8 property 6; the StepLimit half
// is TestExecutionTimeLimitReached).
func TestStepRunsToCompletion(t *testing.T) {
	prog := newTestProgram()
	prog.add("i32", &layout.TypeDef{Kind: layout.KindScalar, Prim: prim.KindI32})
	body := &ir.Body{
		DefID: "main", ReturnType: "i32",
		Blocks: []ir.Block{{
			Statements: []ir.Statement{{
				Dest: ir.ReturnPlace(),
				Rvalue: ir.Rvalue{
					Kind: ir.RBinaryOp, Ty: "i32", BinOp: prim.Add,
					Operand: ir.LiteralValue(ir.Literal{Ty: "i32", Int: 1}),
					Operand2: ir.LiteralValue(ir.Literal{Ty: "i32", Int: 2}),
				},
			}},
			Terminator: ir.Terminator{Kind: ir.TermReturn},
		}},
	}
	prog.bodies[ir.FunctionKey{DefID: "main"}] = body

	ec := eval.New(prog, 0, 256)
	slot, derr := ec.Mem.Allocate(4, 4)
	if derr != nil {
		t.Fatal(derr)
	}
	if _, derr := ec.PushFrame(ir.FunctionKey{DefID: "main"}, body, &slot, eval.Cleanup{Kind: eval.CleanupNone}, diag.Span{}); derr != nil {
		t.Fatal(derr)
	}

	s := New(ec)
	if derr := s.Run(); derr != nil {
		t.Fatal(derr)
	}
	if len(ec.Frames()) != 0 {
		t.Fatalf("expected the frame stack to be empty after return, got %d frames", len(ec.Frames()))
	}
	result, derr := ec.Mem.ReadInt(slot, 4, true)
	if derr != nil {
		t.Fatal(derr)
	}
	if result != 3 {
		t.Fatalf("got %d, want 3", result)
	}
}

func TestExecutionTimeLimitReached(t *testing.T) {
	prog := newTestProgram()
	prog.add("i32", &layout.TypeDef{Kind: layout.KindScalar, Prim: prim.KindI32})
	body := &ir.Body{
		DefID: "loop", ReturnType: "i32", LocalTypes: []layout.TypeID{"i32"},
		Blocks: []ir.Block{{
			Statements: []ir.Statement{{
				Dest:   ir.Local(0),
				Rvalue: ir.Rvalue{Kind: ir.RUse, Ty: "i32", Operand: ir.LiteralValue(ir.Literal{Ty: "i32", Int: 1})},
			}},
			Terminator: ir.Terminator{Kind: ir.TermGoto, Target: 0},
		}},
	}
	prog.bodies[ir.FunctionKey{DefID: "loop"}] = body

	ec := eval.New(prog, 0, 256)
	ec.StepLimit = 10
	slot, derr := ec.Mem.Allocate(4, 4)
	if derr != nil {
		t.Fatal(derr)
	}
	if _, derr := ec.PushFrame(ir.FunctionKey{DefID: "loop"}, body, &slot, eval.Cleanup{Kind: eval.CleanupNone}, diag.Span{}); derr != nil {
		t.Fatal(derr)
	}

	s := New(ec)
	derr = s.Run()
	if derr == nil || derr.Category != diag.ExecutionTimeLimitReached {
		t.Fatalf("got %v, want ExecutionTimeLimitReached", derr)
	}
}

// A statement referencing an unmaterialized global constant triggers the
// ConstantExtractor before the statement itself runs (§4.6), and the
// materialized value is cached for subsequent references (§8 property 7).
func TestConstantExtractorMaterializesGlobal(t *testing.T) {
	prog := newTestProgram()
	prog.add("i32", &layout.TypeDef{Kind: layout.KindScalar, Prim: prim.KindI32})

	constBody := &ir.Body{
		DefID: "FORTY_TWO", ReturnType: "i32",
		Blocks: []ir.Block{{
			Statements: []ir.Statement{{
				Dest:   ir.ReturnPlace(),
				Rvalue: ir.Rvalue{Kind: ir.RUse, Ty: "i32", Operand: ir.LiteralValue(ir.Literal{Ty: "i32", Int: 42})},
			}},
			Terminator: ir.Terminator{Kind: ir.TermReturn},
		}},
	}
	prog.bodies[ir.FunctionKey{DefID: "FORTY_TWO"}] = constBody

	main := &ir.Body{
		DefID: "main", ReturnType: "i32", LocalTypes: []layout.TypeID{"i32"},
		Blocks: []ir.Block{{
			Statements: []ir.Statement{{
				Dest: ir.Local(0),
				Rvalue: ir.Rvalue{
					Kind: ir.RUse, Ty: "i32",
					Operand: ir.LiteralItem(ir.ItemRef{DefID: "FORTY_TWO", Ty: "i32"}),
				},
			}, {
				Dest:   ir.ReturnPlace(),
				Rvalue: ir.Rvalue{Kind: ir.RUse, Ty: "i32", Operand: ir.Consume(ir.Local(0))},
			}},
			Terminator: ir.Terminator{Kind: ir.TermReturn},
		}},
	}
	prog.bodies[ir.FunctionKey{DefID: "main"}] = main

	ec := eval.New(prog, 0, 256)
	slot, derr := ec.Mem.Allocate(4, 4)
	if derr != nil {
		t.Fatal(derr)
	}
	if _, derr := ec.PushFrame(ir.FunctionKey{DefID: "main"}, main, &slot, eval.Cleanup{Kind: eval.CleanupNone}, diag.Span{}); derr != nil {
		t.Fatal(derr)
	}

	s := New(ec)
	if derr := s.Run(); derr != nil {
		t.Fatal(derr)
	}
	result, derr := ec.Mem.ReadInt(slot, 4, true)
	if derr != nil {
		t.Fatal(derr)
	}
	if result != 42 {
		t.Fatalf("got %d, want 42", result)
	}

	key := ir.ConstantKey{DefID: "FORTY_TWO", Kind: ir.KeyGlobal}
	entry, ok := ec.Statics[key]
	if !ok {
		t.Fatal("expected FORTY_TWO to be cached in the statics table")
	}
	if !ec.Mem.IsFrozen(entry.Ptr.Alloc) {
		t.Fatal("expected the materialized constant's allocation to be frozen")
	}
}

func TestSwitchIntTakesDefaultArm(t *testing.T) {
	prog := newTestProgram()
	prog.add("i32", &layout.TypeDef{Kind: layout.KindScalar, Prim: prim.KindI32})
	body := &ir.Body{
		DefID: "main", ReturnType: "i32",
		Blocks: []ir.Block{
			{
				Terminator: ir.Terminator{
					Kind:         ir.TermSwitchInt,
					Discriminant: ir.LiteralValue(ir.Literal{Ty: "i32", Int: 99}),
					Values:       []int64{0, 1},
					Targets:      []int{1, 2, 3},
				},
			},
			{
				Statements: []ir.Statement{{Dest: ir.ReturnPlace(), Rvalue: ir.Rvalue{Kind: ir.RUse, Ty: "i32", Operand: ir.LiteralValue(ir.Literal{Ty: "i32", Int: 0})}}},
				Terminator: ir.Terminator{Kind: ir.TermReturn},
			},
			{
				Statements: []ir.Statement{{Dest: ir.ReturnPlace(), Rvalue: ir.Rvalue{Kind: ir.RUse, Ty: "i32", Operand: ir.LiteralValue(ir.Literal{Ty: "i32", Int: 1})}}},
				Terminator: ir.Terminator{Kind: ir.TermReturn},
			},
			{
				Statements: []ir.Statement{{Dest: ir.ReturnPlace(), Rvalue: ir.Rvalue{Kind: ir.RUse, Ty: "i32", Operand: ir.LiteralValue(ir.Literal{Ty: "i32", Int: 999})}}},
				Terminator: ir.Terminator{Kind: ir.TermReturn},
			},
		},
	}
	prog.bodies[ir.FunctionKey{DefID: "main"}] = body

	ec := eval.New(prog, 0, 256)
	slot, derr := ec.Mem.Allocate(4, 4)
	if derr != nil {
		t.Fatal(derr)
	}
	if _, derr := ec.PushFrame(ir.FunctionKey{DefID: "main"}, body, &slot, eval.Cleanup{Kind: eval.CleanupNone}, diag.Span{}); derr != nil {
		t.Fatal(derr)
	}
	if derr := New(ec).Run(); derr != nil {
		t.Fatal(derr)
	}
	result, derr := ec.Mem.ReadInt(slot, 4, true)
	if derr != nil {
		t.Fatal(derr)
	}
	if result != 999 {
		t.Fatalf("got %d, want 999 (the otherwise arm)", result)
	}
}
