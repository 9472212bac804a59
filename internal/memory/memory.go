// Package memory implements the interpreter's byte-level virtual memory:
// allocations with provenance-tagged relocations and a per-byte
// initialization bitmap, as spec.md §4.1 specifies. It is grounded on the
// teacher's arena.go allocator shape (one owning allocator, pointer-sized
// handles, explicit Allocate/Reallocate/Free with alignment) generalized
// from a native bump allocator to a provenance-tracked virtual one, and on
// the pack's `cznic/memory` reference allocator for the page/budget
// bookkeeping idiom (allocs/bytes counters alongside the free lists).
package memory

import (
	"encoding/binary"
	"math"

	"mirevaluator/internal/diag"
)

// Memory owns every allocation in one evaluator run. There is exactly one
// per EvalContext (spec.md §5: "Global mutable state: there is none at the
// module level. All mutation lives inside EvalContext").
type Memory struct {
	layout DataLayout

	allocs map[AllocID]*allocation
	nextID AllocID

	budget int64 // memory cap, bytes
	used   int64 // bytes currently charged against the budget

	fnCache    map[string]AllocID // keyed by FunctionInfo cache key, dedup per §3
	fnCacheRev map[AllocID]*FunctionInfo
}

// New constructs a Memory with the given layout and budget (bytes). Budget
// <= 0 means unbounded, used by tests that don't exercise OutOfMemory.
func New(layout DataLayout, budget int64) *Memory {
	m := &Memory{
		layout:     layout,
		allocs:     make(map[AllocID]*allocation),
		nextID:     1,
		budget:     budget,
		fnCache:    make(map[string]AllocID),
		fnCacheRev: make(map[AllocID]*FunctionInfo),
	}
	// Id 0 is the canonical ZST allocation: zero bytes, always live, never
	// freed (Deallocate on it is a documented no-op, §8 property 4).
	m.allocs[ZSTAllocID] = &allocation{kind: KindBytes, relocs: newRelocations(), init: newInitMask(0), live: true}
	return m
}

func (m *Memory) Layout() DataLayout { return m.layout }

func (m *Memory) get(id AllocID) (*allocation, *diag.Error) {
	a, ok := m.allocs[id]
	if !ok || !a.live {
		return nil, diag.New(diag.DanglingPointerDeref, "use of freed or unknown allocation")
	}
	return a, nil
}

// Allocate returns a pointer into a fresh allocation of size bytes declared
// with alignment align (§4.1). size == 0 returns the canonical ZST pointer.
func (m *Memory) Allocate(size, align int64) (Pointer, *diag.Error) {
	if size == 0 {
		return ZSTPointer, nil
	}
	if align <= 0 {
		align = 1
	}
	total := size + align
	if m.budget > 0 && m.used+total > m.budget {
		return Pointer{}, &diag.Error{
			Category:  diag.OutOfMemory,
			AllocSize: size,
			MemSize:   m.budget,
			MemUsage:  m.used,
		}
	}
	id := m.nextID
	m.nextID++
	m.allocs[id] = newBytesAllocation(size, align)
	m.used += total
	return Pointer{Alloc: id, Offset: align}, nil
}

// checkBase validates the "ptr was returned by allocate and points to its
// base" invariant Reallocate/Deallocate require. Per spec.md §9 open
// question (c), this brittle offset==align check is what the source
// prescribes; a dedicated "is this the allocator's own handle" flag would
// be more robust, but the specification defines the check this way and we
// do not silently strengthen it.
func (m *Memory) checkBase(p Pointer) (*allocation, *diag.Error) {
	if p.Alloc == ZSTAllocID {
		return nil, diag.New(diag.DanglingPointerDeref, "cannot reallocate/deallocate the zero-sized allocation")
	}
	a, derr := m.get(p.Alloc)
	if derr != nil {
		return nil, derr
	}
	if a.kind != KindBytes {
		return nil, diag.New(diag.ExecuteMemory, "reallocate/deallocate on a function allocation")
	}
	if p.Offset != a.align {
		return nil, diag.New(diag.PointerOutOfBounds, "pointer does not address its allocation's base")
	}
	return a, nil
}

// Reallocate grows or shrinks the allocation ptr addresses to newSize bytes
// with newAlign alignment (§4.1). New bytes are undefined; truncation
// clears fully-dropped relocations and marks the tail of any partially
// clipped relocation undefined.
func (m *Memory) Reallocate(p Pointer, newSize, newAlign int64) (Pointer, *diag.Error) {
	a, derr := m.checkBase(p)
	if derr != nil {
		return Pointer{}, derr
	}
	if newAlign <= 0 {
		newAlign = 1
	}
	oldLive := a.liveLen()
	oldTotal := int64(len(a.bytes))
	newTotal := newSize + newAlign
	if m.budget > 0 && m.used-oldTotal+newTotal > m.budget {
		return Pointer{}, &diag.Error{
			Category:  diag.OutOfMemory,
			AllocSize: newSize,
			MemSize:   m.budget,
			MemUsage:  m.used,
		}
	}

	// Clip relocations/init bits that fall outside the new live region
	// before we resize, while offsets still refer to the old layout.
	if newSize < oldLive {
		ptrSize := int64(m.layout.PointerSize)
		liveStart := a.align
		liveEnd := liveStart + oldLive
		newEnd := liveStart + newSize
		for _, off := range a.relocs.inRange(liveStart, liveEnd, ptrSize) {
			if off >= newEnd {
				a.relocs.remove(off)
			} else if off+ptrSize > newEnd {
				// Partially clipped: drop the relocation, its remaining
				// bytes become undefined (never a valid pointer fragment).
				a.relocs.remove(off)
				a.init.set(int(off), int(liveEnd), false)
			}
		}
	}

	newBytes := make([]byte, newTotal)
	newInit := newInitMask(int(newTotal))
	newRelocs := newRelocations()

	copyLen := oldLive
	if newSize < copyLen {
		copyLen = newSize
	}
	copy(newBytes[newAlign:newAlign+copyLen], a.bytes[a.align:a.align+copyLen])
	newInit.copyFrom(a.init, int(a.align), int(newAlign), int(copyLen))
	for _, off := range a.relocs.inRange(a.align, a.align+copyLen, int64(m.layout.PointerSize)) {
		if target, ok := a.relocs.at(off); ok {
			newRelocs.insert(off-a.align+newAlign, target)
		}
	}

	m.used += newTotal - oldTotal
	a.bytes = newBytes
	a.init = newInit
	a.relocs = newRelocs
	a.align = newAlign
	return Pointer{Alloc: p.Alloc, Offset: newAlign}, nil
}

// Deallocate returns p's allocation's bytes to the budget. Double-free is
// classified DanglingPointerDeref (spec.md §9 open question (a), decided in
// DESIGN.md) rather than downgraded to a log line.
func (m *Memory) Deallocate(p Pointer) *diag.Error {
	if p.Alloc == ZSTAllocID {
		return nil // §8 property 4: a no-op on the canonical ZST pointer.
	}
	a, ok := m.allocs[p.Alloc]
	if !ok {
		return diag.New(diag.DanglingPointerDeref, "deallocate of unknown allocation")
	}
	if !a.live {
		return diag.New(diag.DanglingPointerDeref, "double free")
	}
	if a.kind != KindBytes {
		return diag.New(diag.ExecuteMemory, "deallocate on a function allocation")
	}
	if p.Offset != a.align {
		return diag.New(diag.PointerOutOfBounds, "pointer does not address its allocation's base")
	}
	m.used -= int64(len(a.bytes))
	a.live = false
	a.bytes = nil
	a.relocs = nil
	a.init = nil
	return nil
}

func (m *Memory) bounds(p Pointer, size int64) (*allocation, *diag.Error) {
	a, derr := m.get(p.Alloc)
	if derr != nil {
		return nil, derr
	}
	if a.kind != KindBytes {
		return nil, diag.New(diag.ExecuteMemory, "byte access to a function allocation")
	}
	if p.Offset < 0 || p.Offset+size > int64(len(a.bytes)) {
		return nil, &diag.Error{Category: diag.PointerOutOfBounds, AllocSize: size, MemSize: int64(len(a.bytes))}
	}
	return a, nil
}

// CheckAlign succeeds iff ptr.Offset % n == 0, else reports the largest
// power-of-two divisor of the offset as "has" (§4.1).
func (m *Memory) CheckAlign(p Pointer, n int64) *diag.Error {
	if n <= 0 {
		return nil
	}
	if p.Offset%n == 0 {
		return nil
	}
	has := int64(1)
	for d := int64(1); d <= n && p.Offset%d == 0; d <<= 1 {
		has = d
	}
	return &diag.Error{Category: diag.AlignmentCheckFailed, Required: int(n), Has: int(has)}
}

// ReadBytes reads size raw bytes at p. Fails ReadUndefBytes if any byte is
// undefined, ReadPointerAsBytes if any relocation is present in range.
func (m *Memory) ReadBytes(p Pointer, size int64) ([]byte, *diag.Error) {
	a, derr := m.bounds(p, size)
	if derr != nil {
		return nil, derr
	}
	if len(a.relocs.inRange(p.Offset, p.Offset+size, int64(m.layout.PointerSize))) > 0 {
		return nil, diag.New(diag.ReadPointerAsBytes, "")
	}
	if u := a.init.firstUndefined(int(p.Offset), int(p.Offset+size)); u >= 0 {
		return nil, diag.New(diag.ReadUndefBytes, "")
	}
	out := make([]byte, size)
	copy(out, a.bytes[p.Offset:p.Offset+size])
	return out, nil
}

// WriteBytes writes b at p, clearing any relocations in range and marking
// the range defined (§4.1).
func (m *Memory) WriteBytes(p Pointer, b []byte) *diag.Error {
	a, derr := m.bounds(p, int64(len(b)))
	if derr != nil {
		return derr
	}
	if a.frozen {
		return diag.New(diag.ErrFrozenWrite, "write to a frozen (static) allocation")
	}
	a.relocs.clear(p.Offset, p.Offset+int64(len(b)))
	copy(a.bytes[p.Offset:], b)
	a.init.set(int(p.Offset), int(p.Offset)+len(b), true)
	return nil
}

// WriteRepeat writes the single byte b, repeated n times, at p.
func (m *Memory) WriteRepeat(p Pointer, b byte, n int64) *diag.Error {
	a, derr := m.bounds(p, n)
	if derr != nil {
		return derr
	}
	if a.frozen {
		return diag.New(diag.ErrFrozenWrite, "write to a frozen (static) allocation")
	}
	a.relocs.clear(p.Offset, p.Offset+n)
	for i := int64(0); i < n; i++ {
		a.bytes[p.Offset+i] = b
	}
	a.init.set(int(p.Offset), int(p.Offset+n), true)
	return nil
}

// Copy copies size bytes (plus init bits and relocations) from src to dest.
// Overlap-safe when src and dest share an allocation; distinct allocations
// are distinct buffers and never overlap. Fails ReadPointerAsBytes if the source range
// partially straddles a relocation at either edge (§4.1).
func (m *Memory) Copy(src, dest Pointer, size int64) *diag.Error {
	if size == 0 {
		return nil
	}
	srcA, derr := m.bounds(src, size)
	if derr != nil {
		return derr
	}
	destA, derr := m.bounds(dest, size)
	if derr != nil {
		return derr
	}
	if destA.frozen {
		return diag.New(diag.ErrFrozenWrite, "write to a frozen (static) allocation")
	}
	ptrSize := int64(m.layout.PointerSize)
	if srcA.relocs.straddles(src.Offset, src.Offset+size, ptrSize) {
		return diag.New(diag.ReadPointerAsBytes, "copy source straddles a relocation")
	}

	// Snapshot source bytes/init/relocations before mutating dest, so an
	// overlapping same-allocation copy reads the pre-copy state throughout
	// (spec.md §8 property 5).
	srcBytes := make([]byte, size)
	copy(srcBytes, srcA.bytes[src.Offset:src.Offset+size])
	srcRelocs := srcA.relocs.inRange(src.Offset, src.Offset+size, ptrSize)
	relocTargets := make(map[int64]AllocID, len(srcRelocs))
	for _, off := range srcRelocs {
		relocTargets[off], _ = srcA.relocs.at(off)
	}

	destA.relocs.clear(dest.Offset, dest.Offset+size)
	copy(destA.bytes[dest.Offset:dest.Offset+size], srcBytes)
	destA.init.copyFrom(srcA.init, int(src.Offset), int(dest.Offset), int(size))
	for off, target := range relocTargets {
		destA.relocs.insert(off-src.Offset+dest.Offset, target)
	}
	return nil
}

func overlaps(aOff, aLen, bOff, bLen int64) bool {
	return aOff < bOff+bLen && bOff < aOff+aLen
}

// ReadPtr requires pointer-size defined bytes at addr and a relocation
// entry keyed exactly at addr.Offset; returns the tagged pointer it names
// (§4.1). Fails ReadBytesAsPointer if no relocation entry is present there.
func (m *Memory) ReadPtr(addr Pointer) (Pointer, *diag.Error) {
	ptrSize := int64(m.layout.PointerSize)
	a, derr := m.bounds(addr, ptrSize)
	if derr != nil {
		return Pointer{}, derr
	}
	target, ok := a.relocs.at(addr.Offset)
	if !ok {
		return Pointer{}, diag.New(diag.ReadBytesAsPointer, "")
	}
	if u := a.init.firstUndefined(int(addr.Offset), int(addr.Offset+ptrSize)); u >= 0 {
		return Pointer{}, diag.New(diag.ReadUndefBytes, "")
	}
	var off uint64
	if ptrSize == 4 {
		off = uint64(m.byteOrder().Uint32(a.bytes[addr.Offset : addr.Offset+ptrSize]))
	} else {
		off = m.byteOrder().Uint64(a.bytes[addr.Offset : addr.Offset+ptrSize])
	}
	return Pointer{Alloc: target, Offset: int64(off)}, nil
}

// WritePtr writes ptr.Offset as the pointer-sized numeric payload at dest
// and inserts a relocation (dest.Offset -> ptr.Alloc), per §4.1.
func (m *Memory) WritePtr(dest Pointer, ptr Pointer) *diag.Error {
	ptrSize := int64(m.layout.PointerSize)
	a, derr := m.bounds(dest, ptrSize)
	if derr != nil {
		return derr
	}
	if a.frozen {
		return diag.New(diag.ErrFrozenWrite, "write to a frozen (static) allocation")
	}
	buf := make([]byte, ptrSize)
	if ptrSize == 4 {
		m.byteOrder().PutUint32(buf, uint32(ptr.Offset))
	} else {
		m.byteOrder().PutUint64(buf, uint64(ptr.Offset))
	}
	a.relocs.clear(dest.Offset, dest.Offset+ptrSize)
	copy(a.bytes[dest.Offset:dest.Offset+ptrSize], buf)
	a.init.set(int(dest.Offset), int(dest.Offset+ptrSize), true)
	a.relocs.insert(dest.Offset, ptr.Alloc)
	return nil
}

func (m *Memory) byteOrder() binary.ByteOrder {
	if m.layout.Endian == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// ReadInt reads a size-byte (1,2,4,8) integer at p, sign-extended if signed,
// after checking alignment against the layout's integer alignment table.
func (m *Memory) ReadInt(p Pointer, size int64, signed bool) (int64, *diag.Error) {
	align := int64(m.layout.alignFor(int(size), false))
	if derr := m.CheckAlign(p, align); derr != nil {
		return 0, derr
	}
	a, derr := m.bounds(p, size)
	if derr != nil {
		return 0, derr
	}
	if len(a.relocs.inRange(p.Offset, p.Offset+size, int64(m.layout.PointerSize))) > 0 {
		return 0, diag.New(diag.ReadPointerAsBytes, "")
	}
	if u := a.init.firstUndefined(int(p.Offset), int(p.Offset+size)); u >= 0 {
		return 0, diag.New(diag.ReadUndefBytes, "")
	}
	buf := a.bytes[p.Offset : p.Offset+size]
	var u uint64
	switch size {
	case 1:
		u = uint64(buf[0])
	case 2:
		u = uint64(m.byteOrder().Uint16(buf))
	case 4:
		u = uint64(m.byteOrder().Uint32(buf))
	case 8:
		u = m.byteOrder().Uint64(buf)
	default:
		panic("memory: ReadInt: unsupported integer width")
	}
	if !signed {
		return int64(u), nil
	}
	bits := uint(size * 8)
	shift := 64 - bits
	return int64(u<<shift) >> shift, nil
}

// WriteInt writes v as a size-byte little/big-endian integer at p.
func (m *Memory) WriteInt(p Pointer, size int64, v int64) *diag.Error {
	align := int64(m.layout.alignFor(int(size), false))
	if derr := m.CheckAlign(p, align); derr != nil {
		return derr
	}
	buf := make([]byte, size)
	u := uint64(v)
	switch size {
	case 1:
		buf[0] = byte(u)
	case 2:
		m.byteOrder().PutUint16(buf, uint16(u))
	case 4:
		m.byteOrder().PutUint32(buf, uint32(u))
	case 8:
		m.byteOrder().PutUint64(buf, u)
	default:
		panic("memory: WriteInt: unsupported integer width")
	}
	return m.WriteBytes(p, buf)
}

// ReadF32/ReadF64/WriteF32/WriteF64 mirror ReadInt/WriteInt for floats.
func (m *Memory) ReadF32(p Pointer) (float32, *diag.Error) {
	if derr := m.CheckAlign(p, int64(m.layout.alignFor(4, true))); derr != nil {
		return 0, derr
	}
	b, derr := m.ReadBytes(p, 4)
	if derr != nil {
		return 0, derr
	}
	return math.Float32frombits(m.byteOrder().Uint32(b)), nil
}

func (m *Memory) WriteF32(p Pointer, f float32) *diag.Error {
	if derr := m.CheckAlign(p, int64(m.layout.alignFor(4, true))); derr != nil {
		return derr
	}
	buf := make([]byte, 4)
	m.byteOrder().PutUint32(buf, math.Float32bits(f))
	return m.WriteBytes(p, buf)
}

func (m *Memory) ReadF64(p Pointer) (float64, *diag.Error) {
	if derr := m.CheckAlign(p, int64(m.layout.alignFor(8, true))); derr != nil {
		return 0, derr
	}
	b, derr := m.ReadBytes(p, 8)
	if derr != nil {
		return 0, derr
	}
	return math.Float64frombits(m.byteOrder().Uint64(b)), nil
}

func (m *Memory) WriteF64(p Pointer, f float64) *diag.Error {
	if derr := m.CheckAlign(p, int64(m.layout.alignFor(8, true))); derr != nil {
		return derr
	}
	buf := make([]byte, 8)
	m.byteOrder().PutUint64(buf, math.Float64bits(f))
	return m.WriteBytes(p, buf)
}

// Freeze seals allocation id as read-only, the return-cleanup action §3/§4.7
// apply once a static's initializer frame returns.
func (m *Memory) Freeze(id AllocID) *diag.Error {
	a, derr := m.get(id)
	if derr != nil {
		return derr
	}
	a.frozen = true
	return nil
}

// IsFrozen reports whether id has been sealed by Freeze.
func (m *Memory) IsFrozen(id AllocID) bool {
	a, ok := m.allocs[id]
	return ok && a.live && a.frozen
}

// AllocationSize reports the live (requested) size of id, used by bounds
// diagnostics and by Len/Ref metadata computation.
func (m *Memory) AllocationSize(id AllocID) (int64, *diag.Error) {
	a, derr := m.get(id)
	if derr != nil {
		return 0, derr
	}
	if a.kind != KindBytes {
		return 0, diag.New(diag.ExecuteMemory, "size of a function allocation")
	}
	return a.liveLen(), nil
}

// CreateFnPtr mints (or returns the cached) allocation id for a function
// value, deduplicated by key (§3: "a bidirectional cache deduplicates").
func (m *Memory) CreateFnPtr(info FunctionInfo) AllocID {
	key := info.DefID + "\x00" + info.SubstsKey + "\x00" + info.FnTypeKey
	if id, ok := m.fnCache[key]; ok {
		return id
	}
	id := m.nextID
	m.nextID++
	infoCopy := info
	m.allocs[id] = &allocation{kind: KindFunction, live: true, fn: &infoCopy}
	m.fnCache[key] = id
	m.fnCacheRev[id] = &infoCopy
	return id
}

// GetFn resolves id to its FunctionInfo. Returns ExecuteMemory if id names a
// byte allocation, InvalidFunctionPointer if it names no live allocation.
func (m *Memory) GetFn(id AllocID) (*FunctionInfo, *diag.Error) {
	a, ok := m.allocs[id]
	if !ok || !a.live {
		return nil, diag.New(diag.InvalidFunctionPointer, "")
	}
	if a.kind != KindFunction {
		return nil, diag.New(diag.ExecuteMemory, "call through a pointer to byte memory")
	}
	return a.fn, nil
}

// Stats summarizes current budget usage, the host-facing accessor analogous
// to the teacher arena's Stats (arena.go).
type Stats struct {
	Budget int64
	Used   int64
	Allocs int
}

func (m *Memory) Stats() Stats {
	n := 0
	for id, a := range m.allocs {
		if id != ZSTAllocID && a.live && a.kind == KindBytes {
			n++
		}
	}
	return Stats{Budget: m.budget, Used: m.used, Allocs: n}
}
