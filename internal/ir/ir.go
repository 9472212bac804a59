// Package ir is the explicit, front-end-agnostic shape of the typed
// three-address IR spec.md §3/§4.2 describes: basic blocks of statements and
// a terminator, places with projections, operands, and rvalues. The IR
// producer itself (a compiler front-end) is named an out-of-scope
// collaborator by spec.md §1/§6; this package is the interface boundary —
// the node types a front-end would need to emit, and the Program interface
// it must implement (type descriptors, MIR bodies keyed by def_id, language
// items, target data layout).
package ir

import (
	"mirevaluator/internal/layout"
	"mirevaluator/internal/prim"
)

// DefID names a top-level item (function, static, or promoted-constant
// owner) the way spec.md's def_id does.
type DefID string

// Substs is an opaque, front-end-minted monomorphization key. The core
// never inspects its structure — only uses it (with DefID) to key caches.
type Substs string

// FunctionKey identifies one monomorphization of a callable or static body,
// spec.md §3's "(def_id, type substitutions)" pairing.
type FunctionKey struct {
	DefID  DefID
	Substs Substs
}

// ConstKeyKind distinguishes the two constant-key shapes spec.md §3 names.
type ConstKeyKind int

const (
	KeyGlobal ConstKeyKind = iota
	KeyPromoted
)

// ConstantKey is spec.md §3's "(def_id, type substitutions, kind)".
type ConstantKey struct {
	DefID    DefID
	Substs   Substs
	Kind     ConstKeyKind
	Promoted int // meaningful iff Kind == KeyPromoted
}

// --- Places ---------------------------------------------------------------

type PlaceBaseKind int

const (
	BaseReturn PlaceBaseKind = iota
	BaseLocal
	BaseStatic
)

type PlaceBase struct {
	Kind   PlaceBaseKind
	Local  int
	Static DefID
}

type ProjectionKind int

const (
	ProjField ProjectionKind = iota
	ProjDowncast
	ProjDeref
	ProjIndex
)

type Projection struct {
	Kind    ProjectionKind
	Field   int      // ProjField: field index
	Variant int      // ProjDowncast: variant index
	Index   Operand  // ProjIndex: index operand
}

// Place is a base plus zero or more projections, spec.md §4.2's place tree.
type Place struct {
	Base        PlaceBase
	Projections []Projection
}

func Local(i int) Place    { return Place{Base: PlaceBase{Kind: BaseLocal, Local: i}} }
func ReturnPlace() Place   { return Place{Base: PlaceBase{Kind: BaseReturn}} }
func Static(d DefID) Place { return Place{Base: PlaceBase{Kind: BaseStatic, Static: d}} }

func (p Place) Field(i int) Place {
	return Place{Base: p.Base, Projections: append(append([]Projection{}, p.Projections...), Projection{Kind: ProjField, Field: i})}
}

func (p Place) Downcast(variant int) Place {
	return Place{Base: p.Base, Projections: append(append([]Projection{}, p.Projections...), Projection{Kind: ProjDowncast, Variant: variant})}
}

func (p Place) Deref() Place {
	return Place{Base: p.Base, Projections: append(append([]Projection{}, p.Projections...), Projection{Kind: ProjDeref})}
}

func (p Place) Index(idx Operand) Place {
	return Place{Base: p.Base, Projections: append(append([]Projection{}, p.Projections...), Projection{Kind: ProjIndex, Index: idx})}
}

// --- Operands ---------------------------------------------------------------

type OperandKind int

const (
	OpConsume OperandKind = iota
	OpLiteralValue
	OpLiteralItem
	OpLiteralPromoted
)

// Literal is a scalar/aggregate-leaf constant value as spec.md §4.2's
// "Literal value" operand describes: integers, bools, chars, floats, byte
// strings, and UTF-8 strings (the last two as fat data_ptr/len values).
// EvalOperand lowers only scalar literals: a literal whose type is not a
// scalar, including a Bytes or Str literal, is rejected as Unsupported.
type Literal struct {
	Ty      layout.TypeID
	Bool    bool
	Int     int64
	Char    rune
	F32     float32
	F64     float64
	Bytes   []byte
	Str     string
	IsBytes bool
	IsStr   bool
}

type ItemRef struct {
	DefID  DefID
	Substs Substs
	Ty     layout.TypeID
	IsFn   bool // true iff this item has function type (§4.2: allocate 0 bytes)
}

type Operand struct {
	Kind     OperandKind
	Place    Place
	Lit      Literal
	Item     ItemRef
	Promoted int
}

func Consume(p Place) Operand          { return Operand{Kind: OpConsume, Place: p} }
func LiteralValue(l Literal) Operand   { return Operand{Kind: OpLiteralValue, Lit: l} }
func LiteralItem(i ItemRef) Operand    { return Operand{Kind: OpLiteralItem, Item: i} }
func LiteralPromoted(idx int) Operand  { return Operand{Kind: OpLiteralPromoted, Promoted: idx} }

// --- Rvalues ---------------------------------------------------------------

type RvalueKind int

const (
	RUse RvalueKind = iota
	RBinaryOp
	RCheckedBinaryOp
	RUnaryOp
	RAggregate
	RRepeat
	RLen
	RRef
	RBox
	RCast
)

type AggregateKind int

const (
	AggUnivariant AggregateKind = iota
	AggArray
	AggGeneral
	AggRawNullable
	AggStructWrappedNullable
	AggCEnum
)

type CastKind int

const (
	CastUnsize CastKind = iota
	CastMisc
	CastReifyFnPointer
	CastUnsafeFnPointer
)

// Rvalue is the right-hand side of an assignment statement, dispatched on
// Kind exactly as spec.md §4.2 enumerates.
type Rvalue struct {
	Kind RvalueKind
	Ty   layout.TypeID // type of the value being produced (destination's type)

	// RUse, RUnaryOp, RCast (source operand)
	Operand Operand

	// RBinaryOp / RCheckedBinaryOp
	BinOp    prim.BinOp
	Operand2 Operand

	UnOp prim.UnOp

	// RAggregate
	AggKind  AggregateKind
	Variant  int
	Operands []Operand

	// RRepeat
	RepeatCount int64

	// RLen, RRef
	Place Place

	// RBox: the boxed type is the Elem of the destination's pointer type

	// RCast
	CastKind CastKind
	// RCast(Unsize) onto a trait-object pointee: the concrete type's vtable
	// shape (§4.4). Unused (zero value) when unsizing an array to a slice,
	// where no vtable is built.
	Unsize UnsizeInfo
}

// UnsizeInfo is the concrete-to-trait-object coercion input spec.md §4.4
// describes: a drop glue function and the trait's method set, in
// declaration order, each resolved against the concrete type being
// coerced.
type UnsizeInfo struct {
	Drop    ItemRef
	Methods []ItemRef
}
