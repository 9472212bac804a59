// Package vtable builds the method-table allocation a trait-object
// coercion attaches as fat-pointer metadata, spec.md §4.4: a byte
// allocation laid out as [drop_fn, size, align, method_0, method_1, ...],
// each slot pointer-sized. It is grounded on the teacher's
// dependency_graph.go (a small owning builder over a shared backing store,
// keyed and deduplicated) generalized from build-dependency edges to
// vtable slot pointers.
package vtable

import (
	"mirevaluator/internal/diag"
	"mirevaluator/internal/ir"
	"mirevaluator/internal/memory"
)

// Builder constructs and caches vtable allocations, one per (concrete type,
// trait) pair, the way spec.md §4.4 expects repeated coercions of the same
// pair to share a table.
type Builder struct {
	mem   *memory.Memory
	ptr   int64
	cache map[string]memory.Pointer
}

func NewBuilder(mem *memory.Memory, pointerSize int64) *Builder {
	return &Builder{mem: mem, ptr: pointerSize, cache: make(map[string]memory.Pointer)}
}

// Build resolves drop/methods to function-pointer allocations, writes the
// [drop_fn, size, align, method...] table, and returns a pointer to it
// (the unsize cast's vtable metadata word).
func (b *Builder) Build(key string, drop ir.ItemRef, methods []ir.ItemRef, concreteSize, concreteAlign int64) (memory.Pointer, *diag.Error) {
	if p, ok := b.cache[key]; ok {
		return p, nil
	}

	slots := 3 + len(methods)
	p, derr := b.mem.Allocate(int64(slots)*b.ptr, b.ptr)
	if derr != nil {
		return memory.Pointer{}, derr
	}

	dropID := b.fnPtr(drop)
	if derr := b.mem.WritePtr(p, memory.Pointer{Alloc: dropID}); derr != nil {
		return memory.Pointer{}, derr
	}
	if derr := b.mem.WriteInt(p.Add(b.ptr), b.ptr, concreteSize); derr != nil {
		return memory.Pointer{}, derr
	}
	if derr := b.mem.WriteInt(p.Add(2*b.ptr), b.ptr, concreteAlign); derr != nil {
		return memory.Pointer{}, derr
	}
	for i, m := range methods {
		id := b.fnPtr(m)
		if derr := b.mem.WritePtr(p.Add(int64(3+i)*b.ptr), memory.Pointer{Alloc: id}); derr != nil {
			return memory.Pointer{}, derr
		}
	}

	b.cache[key] = p
	return p, nil
}

func (b *Builder) fnPtr(item ir.ItemRef) memory.AllocID {
	return b.mem.CreateFnPtr(memory.FunctionInfo{
		DefID: string(item.DefID), SubstsKey: string(item.Substs), FnTypeKey: string(item.Ty),
	})
}

// MethodAt resolves a vtable pointer's method slot i (0-based, after the
// fixed drop/size/align header) back to a callable function allocation, the
// lookup a virtual-call terminator performs at call time (§4.4).
func (b *Builder) MethodAt(vtable memory.Pointer, i int) (memory.Pointer, *diag.Error) {
	return b.mem.ReadPtr(vtable.Add((3 + int64(i)) * b.ptr))
}

// DropFn resolves a vtable's drop-glue slot.
func (b *Builder) DropFn(vtable memory.Pointer) (memory.Pointer, *diag.Error) {
	return b.mem.ReadPtr(vtable)
}

// Size and Align read back the concrete type's size/align the vtable
// recorded, the way a caller reconstructs allocation parameters from a fat
// pointer alone.
func (b *Builder) Size(vtable memory.Pointer) (int64, *diag.Error) {
	return b.mem.ReadInt(vtable.Add(b.ptr), b.ptr, false)
}

func (b *Builder) Align(vtable memory.Pointer) (int64, *diag.Error) {
	return b.mem.ReadInt(vtable.Add(2*b.ptr), b.ptr, false)
}
