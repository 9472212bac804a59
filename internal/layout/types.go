// Package layout implements the type/layout adapter of spec.md §4.5: given a
// monomorphized type descriptor from the front-end, it computes size,
// alignment, discriminant layout, per-field offsets, and the fat-pointer
// flag every other subsystem (memory writes, place projection, aggregate
// assembly, vtable construction) consults.
//
// The front-end itself is an out-of-scope collaborator (spec.md §1, §6); this
// package defines only the interface it must satisfy (TypeContext) plus a
// minimal TypeDef shape rich enough to exercise every layout kind §4.2/§4.5
// name. A real compiler front-end would supply far richer type descriptors;
// TypeDef only needs to carry what layout computation reads.
package layout

import "mirevaluator/internal/prim"

// TypeID names a monomorphized type. The front-end mints these; the core
// never interprets their structure.
type TypeID string

// Kind classifies a TypeDef the way spec.md §4.2's Aggregate/Cast cases and
// §4.5's layout kinds require distinguishing.
type Kind int

const (
	KindScalar Kind = iota
	KindFnPointer
	KindRawPointer  // thin pointer, or fat if Elem is unsized
	KindStruct      // struct / tuple / single-variant enum (spec: "Univariant")
	KindArray       // [T; n], sized
	KindSlice       // [T], unsized
	KindStr         // str, unsized
	KindTraitObject // unsized, vtable-bearing pointee
	KindEnumCEnum
	KindEnumGeneral
	KindEnumRawNullable
	KindEnumStructWrappedNullable
)

// Variant describes one arm of an enum TypeDef.
type Variant struct {
	Name     string
	DiscrVal int64   // adt.variants[v].disr_val (§4.2)
	Fields   []TypeID // field types, in declaration order (empty for CEnum)
}

// TypeDef is the front-end's type descriptor. Only the fields relevant to
// TypeDef.Kind are meaningful.
type TypeDef struct {
	Kind Kind
	Name string

	Prim prim.Kind // KindScalar

	Fields []TypeID // KindStruct: field types in declaration order

	Elem     TypeID // KindArray/KindSlice: element type. KindRawPointer: pointee type.
	ArrayLen int64  // KindArray

	Variants       []Variant // enum kinds
	NonNullVariant int       // KindEnumRawNullable/StructWrappedNullable: the non-null variant's index
	DiscrFieldPath []int     // KindEnumStructWrappedNullable: field-index path into the non-null
	                         // variant identifying the word that reads zero for the null variant
}

// TypeContext is the front-end collaborator spec.md §6 names: "a type
// descriptors, layouts, language-item identifiers" provider. The layout
// package only needs the type-descriptor lookup and the target pointer size;
// MIR-body and language-item lookups belong to the broader ir.Program
// interface (internal/ir), which embeds TypeContext.
type TypeContext interface {
	// Lookup resolves a (already-monomorphized) TypeID to its descriptor.
	// Normalize must have already been applied by the caller — see
	// Adapter.LayoutOf, which normalizes id before every Lookup.
	Lookup(id TypeID) (*TypeDef, bool)

	// Normalize resolves associated-type projections in id to a concrete
	// TypeID before any layout query, per spec.md §4.5 ("The adapter
	// normalizes associated types before querying layout"). A front-end
	// with no associated types can return id unchanged.
	Normalize(id TypeID) TypeID

	PointerSize() int64
}
