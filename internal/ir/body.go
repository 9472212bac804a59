package ir

import (
	"mirevaluator/internal/layout"
	"mirevaluator/internal/memory"
)

// Statement is the only statement shape spec.md's assignment rvalues need:
// "Dest := Rvalue". A real MIR has StorageLive/Dead and other no-op-for-us
// statement kinds; they are out of this core's scope (drop/unwind
// elaboration is explicitly out of scope per spec.md §1) and simply aren't
// modeled.
type Statement struct {
	Dest   Place
	Rvalue Rvalue
}

type TerminatorKind int

const (
	TermGoto TerminatorKind = iota
	TermSwitchInt
	TermReturn
	TermCall
	TermUnreachable
)

// Terminator ends a block: spec.md §4.7's "returns, branches, calls".
type Terminator struct {
	Kind TerminatorKind

	// TermGoto
	Target int

	// TermSwitchInt: test Discriminant against Values[i]; Targets[i] is
	// taken on a match, Targets[len(Values)] is the otherwise/default arm.
	Discriminant Operand
	Values       []int64
	Targets      []int

	// TermCall
	Call CallTerminator
}

// CallTerminator is one call site, spec.md §4.7's call-resolution input.
type CallTerminator struct {
	Func    Operand // resolves to a function allocation (ItemRef or Consume of a fn-ptr place)
	Args    []Operand
	Dest    Place
	HasDest bool // false for diverging callees (§3: "Diverging callees have no return slot")
	Target  int  // block to jump to after a normal return
}

// Block is one basic block: a straight-line statement list and a terminator.
type Block struct {
	Statements []Statement
	Terminator Terminator
}

// Body is one monomorphized function/static/promoted body: spec.md's
// "typed IR... function bodies". Locals are indexed "arguments ∥ variables
// ∥ temporaries" as §3's Frame describes; LocalTypes carries their types in
// that same order (the return slot is addressed separately via
// ir.ReturnPlace() and is not a Locals entry).
type Body struct {
	DefID      DefID
	NumArgs    int
	ReturnType layout.TypeID
	LocalTypes []layout.TypeID
	Blocks     []Block

	// Promoted holds this body's own promoted-constant sub-bodies, indexed
	// by spec.md's Promoted(index) (§3's ConstantKey.Kind == Promoted).
	Promoted []*Body
}

// Program is the front-end collaborator spec.md §6 specifies only the
// interface of: type descriptors/layouts (embeds layout.TypeContext), MIR
// bodies keyed by def_id+substs, a distinct "fetch MIR for a non-local
// def_id" operation with its own failure mode, language-item identifiers,
// and the target data layout.
type Program interface {
	layout.TypeContext

	// Body resolves an already-known (local or previously fetched)
	// function key to its monomorphized body.
	Body(key FunctionKey) (*Body, bool)

	// FetchItemMIR is spec.md §6's "item MIR for non-local def_id fetch
	// with a clear 'no MIR' failure" — distinct from Body because it may
	// reach across a crate boundary the front-end owns.
	FetchItemMIR(id DefID) (*Body, bool)

	// LangItem resolves a language-item identifier (e.g. the boxed-type
	// marker) to a DefID. The evaluator core does not call it; Rvalue.Box
	// takes the boxed type from the destination's pointer type.
	LangItem(name string) (DefID, bool)

	DataLayout() memory.DataLayout
}
