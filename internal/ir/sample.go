package ir

import (
	"mirevaluator/internal/layout"
	"mirevaluator/internal/memory"
	"mirevaluator/internal/prim"
)

// A front-end producing real typed IR is an out-of-scope collaborator
// (spec.md §1/§6). SampleProgram is the smallest ir.Program that still
// exercises the full evaluator pipeline end to end: two primitive types and
// a single function that adds two i32 literals and returns the sum. It is
// the program cmd/mirevaluator always runs, and is reused by package tests
// that need a minimal but real Program rather than a mock.
type SampleProgram struct {
	types map[layout.TypeID]*layout.TypeDef
	main  *Body
}

func NewSampleProgram() *SampleProgram {
	p := &SampleProgram{
		types: map[layout.TypeID]*layout.TypeDef{
			"i32":  {Kind: layout.KindScalar, Name: "i32", Prim: prim.KindI32},
			"bool": {Kind: layout.KindScalar, Name: "bool", Prim: prim.KindBool},
		},
	}
	p.main = &Body{
		DefID:      "main",
		NumArgs:    0,
		ReturnType: "i32",
		LocalTypes: nil,
		Blocks: []Block{
			{
				Statements: []Statement{
					{
						Dest: ReturnPlace(),
						Rvalue: Rvalue{
							Kind:     RBinaryOp,
							Ty:       "i32",
							BinOp:    prim.Add,
							Operand:  LiteralValue(Literal{Ty: "i32", Int: 1}),
							Operand2: LiteralValue(Literal{Ty: "i32", Int: 2}),
						},
					},
				},
				Terminator: Terminator{Kind: TermReturn},
			},
		},
	}
	return p
}

func (p *SampleProgram) Lookup(id layout.TypeID) (*layout.TypeDef, bool) {
	d, ok := p.types[id]
	return d, ok
}

func (p *SampleProgram) Normalize(id layout.TypeID) layout.TypeID { return id }
func (p *SampleProgram) PointerSize() int64                       { return 8 }

func (p *SampleProgram) Body(key FunctionKey) (*Body, bool) {
	if key.DefID == "main" {
		return p.main, true
	}
	return nil, false
}

func (p *SampleProgram) FetchItemMIR(id DefID) (*Body, bool) {
	return p.Body(FunctionKey{DefID: id})
}

func (p *SampleProgram) LangItem(name string) (DefID, bool) { return "", false }

func (p *SampleProgram) DataLayout() memory.DataLayout { return memory.DefaultDataLayout() }
