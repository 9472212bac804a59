package memory

import "sort"

// relocations records, for an allocation, which pointer-sized byte ranges
// hold a tagged pointer into another allocation (spec.md §4.1's "relocation
// map"). Keyed by the offset of the first byte of the pointer-sized slot.
type relocations struct {
	byOffset map[int64]AllocID
}

func newRelocations() *relocations {
	return &relocations{byOffset: make(map[int64]AllocID)}
}

func (r *relocations) insert(offset int64, target AllocID) {
	r.byOffset[offset] = target
}

func (r *relocations) remove(offset int64) {
	delete(r.byOffset, offset)
}

func (r *relocations) at(offset int64) (AllocID, bool) {
	id, ok := r.byOffset[offset]
	return id, ok
}

// inRange returns the relocation keys touching [lo, hi), using the widened
// lower bound §4.1 specifies: "[max(0, offset - (pointer_size - 1)),
// offset + size)" so a relocation whose pointer straddles the range's start
// is still caught.
func (r *relocations) inRange(lo, hi int64, ptrSize int64) []int64 {
	widenedLo := lo - (ptrSize - 1)
	if widenedLo < 0 {
		widenedLo = 0
	}
	var keys []int64
	for off := range r.byOffset {
		if off >= widenedLo && off < hi {
			keys = append(keys, off)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// clear removes every relocation key in [lo, hi).
func (r *relocations) clear(lo, hi int64) {
	for _, off := range r.inRange(lo, hi, 1) {
		if off >= lo && off < hi {
			delete(r.byOffset, off)
		}
	}
}

// straddles reports whether any relocation in the allocation has bytes
// inside [lo, hi) without being fully contained in it — the "partially
// straddles a relocation at either edge" check §4.1 requires before copy.
func (r *relocations) straddles(lo, hi, ptrSize int64) bool {
	for _, off := range r.inRange(lo, hi, ptrSize) {
		if off < lo || off+ptrSize > hi {
			return true
		}
	}
	return false
}

func (r *relocations) clone() *relocations {
	out := newRelocations()
	for k, v := range r.byOffset {
		out.byOffset[k] = v
	}
	return out
}
