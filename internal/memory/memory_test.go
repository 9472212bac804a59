package memory

import (
	"testing"

	"mirevaluator/internal/diag"
)

func newTestMemory(budget int64) *Memory {
	return New(DefaultDataLayout(), budget)
}

// Property: a pointer written then read back through ReadPtr recovers both
// the allocation id and the byte offset exactly (spec.md §8 property 1).
func TestPointerRoundTrip(t *testing.T) {
	m := newTestMemory(0)
	target, derr := m.Allocate(8, 8)
	if derr != nil {
		t.Fatal(derr)
	}
	holder, derr := m.Allocate(8, 8)
	if derr != nil {
		t.Fatal(derr)
	}
	want := target.Add(3)
	if derr := m.WritePtr(holder, want); derr != nil {
		t.Fatal(derr)
	}
	got, derr := m.ReadPtr(holder)
	if derr != nil {
		t.Fatal(derr)
	}
	if got != want {
		t.Fatalf("ReadPtr: got %+v, want %+v", got, want)
	}
}

// Property: reading a never-written byte fails ReadUndefBytes, and after a
// write the same range reads back as defined (§8 property 2).
func TestInitMaskDiscipline(t *testing.T) {
	m := newTestMemory(0)
	p, derr := m.Allocate(4, 4)
	if derr != nil {
		t.Fatal(derr)
	}
	if _, derr := m.ReadBytes(p, 4); derr == nil || derr.Category != diag.ReadUndefBytes {
		t.Fatalf("expected ReadUndefBytes on uninitialized read, got %v", derr)
	}
	if derr := m.WriteBytes(p, []byte{1, 2, 3, 4}); derr != nil {
		t.Fatal(derr)
	}
	got, derr := m.ReadBytes(p, 4)
	if derr != nil {
		t.Fatal(derr)
	}
	if string(got) != "\x01\x02\x03\x04" {
		t.Fatalf("got %v", got)
	}
}

// Property: CheckAlign succeeds exactly when the offset is a multiple of n,
// and reports the largest power-of-two divisor otherwise (§8 property 3).
func TestAlignmentSymmetry(t *testing.T) {
	m := newTestMemory(0)
	p, derr := m.Allocate(16, 8)
	if derr != nil {
		t.Fatal(derr)
	}
	if derr := m.CheckAlign(p, 8); derr != nil {
		t.Fatalf("expected aligned pointer to pass, got %v", derr)
	}
	misaligned := p.Add(1)
	derr = m.CheckAlign(misaligned, 8)
	if derr == nil || derr.Category != diag.AlignmentCheckFailed {
		t.Fatalf("expected AlignmentCheckFailed, got %v", derr)
	}
	if derr.Required != 8 || derr.Has != 1 {
		t.Fatalf("got required=%d has=%d, want required=8 has=1", derr.Required, derr.Has)
	}
}

// Property: every size-0 allocation is the same canonical ZST pointer and
// deallocating it is a no-op (§8 property 4).
func TestZSTIdentity(t *testing.T) {
	m := newTestMemory(0)
	a, derr := m.Allocate(0, 1)
	if derr != nil {
		t.Fatal(derr)
	}
	b, derr := m.Allocate(0, 8)
	if derr != nil {
		t.Fatal(derr)
	}
	if a != ZSTPointer || b != ZSTPointer {
		t.Fatalf("expected both zero-size allocations to equal ZSTPointer, got %+v and %+v", a, b)
	}
	if derr := m.Deallocate(a); derr != nil {
		t.Fatalf("deallocating the ZST pointer must be a no-op, got %v", derr)
	}
}

// Property: Copy within a single allocation with overlapping ranges reads
// the pre-copy source state throughout, not a partially-overwritten one
// (§8 property 5).
func TestCopyOverlapSnapshot(t *testing.T) {
	m := newTestMemory(0)
	p, derr := m.Allocate(8, 1)
	if derr != nil {
		t.Fatal(derr)
	}
	if derr := m.WriteBytes(p, []byte{1, 2, 3, 4, 5, 6, 7, 8}); derr != nil {
		t.Fatal(derr)
	}
	// Shift [0:6) to [2:8), overlapping by 4 bytes.
	src := p
	dst := p.Add(2)
	if derr := m.Copy(src, dst, 6); derr != nil {
		t.Fatal(derr)
	}
	got, derr := m.ReadBytes(p, 8)
	if derr != nil {
		t.Fatal(derr)
	}
	want := []byte{1, 2, 1, 2, 3, 4, 5, 6}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: got %d want %d (full %v)", i, got[i], want[i], got)
		}
	}
}

func TestDeallocateThenUseIsDangling(t *testing.T) {
	m := newTestMemory(0)
	p, derr := m.Allocate(4, 4)
	if derr != nil {
		t.Fatal(derr)
	}
	if derr := m.Deallocate(p); derr != nil {
		t.Fatal(derr)
	}
	if derr := m.Deallocate(p); derr == nil || derr.Category != diag.DanglingPointerDeref {
		t.Fatalf("double free: got %v, want DanglingPointerDeref", derr)
	}
	if _, derr := m.ReadBytes(p, 4); derr == nil || derr.Category != diag.DanglingPointerDeref {
		t.Fatalf("read after free: got %v, want DanglingPointerDeref", derr)
	}
}

// Scenario S3: reallocating smaller then larger preserves the surviving
// prefix and leaves the grown tail undefined.
func TestReallocatePreservesThenUndefines(t *testing.T) {
	m := newTestMemory(0)
	p, derr := m.Allocate(8, 4)
	if derr != nil {
		t.Fatal(derr)
	}
	if derr := m.WriteBytes(p, []byte{1, 2, 3, 4, 5, 6, 7, 8}); derr != nil {
		t.Fatal(derr)
	}
	shrunk, derr := m.Reallocate(p, 4, 4)
	if derr != nil {
		t.Fatal(derr)
	}
	got, derr := m.ReadBytes(shrunk, 4)
	if derr != nil {
		t.Fatal(derr)
	}
	for i, b := range []byte{1, 2, 3, 4} {
		if got[i] != b {
			t.Fatalf("shrink: byte %d got %d want %d", i, got[i], b)
		}
	}
	grown, derr := m.Reallocate(shrunk, 8, 4)
	if derr != nil {
		t.Fatal(derr)
	}
	if _, derr := m.ReadBytes(grown, 8); derr == nil || derr.Category != diag.ReadUndefBytes {
		t.Fatalf("expected grown tail to read as undefined, got %v", derr)
	}
	got, derr = m.ReadBytes(grown, 4)
	if derr != nil {
		t.Fatal(derr)
	}
	for i, b := range []byte{1, 2, 3, 4} {
		if got[i] != b {
			t.Fatalf("regrow: byte %d got %d want %d", i, got[i], b)
		}
	}
}

func TestOutOfMemory(t *testing.T) {
	m := newTestMemory(8)
	if _, derr := m.Allocate(64, 8); derr == nil || derr.Category != diag.OutOfMemory {
		t.Fatalf("got %v, want OutOfMemory", derr)
	}
}

func TestFreezeRejectsWrites(t *testing.T) {
	m := newTestMemory(0)
	p, derr := m.Allocate(4, 4)
	if derr != nil {
		t.Fatal(derr)
	}
	if derr := m.WriteBytes(p, []byte{1, 2, 3, 4}); derr != nil {
		t.Fatal(derr)
	}
	if derr := m.Freeze(p.Alloc); derr != nil {
		t.Fatal(derr)
	}
	if derr := m.WriteBytes(p, []byte{9, 9, 9, 9}); derr == nil {
		t.Fatal("expected write to frozen allocation to fail")
	}
	if !m.IsFrozen(p.Alloc) {
		t.Fatal("expected IsFrozen true after Freeze")
	}
}

func TestCreateFnPtrDeduplicates(t *testing.T) {
	m := newTestMemory(0)
	info := FunctionInfo{DefID: "foo", SubstsKey: "", FnTypeKey: "fn()"}
	a := m.CreateFnPtr(info)
	b := m.CreateFnPtr(info)
	if a != b {
		t.Fatalf("expected same function value to dedupe to the same id, got %v and %v", a, b)
	}
	fi, derr := m.GetFn(a)
	if derr != nil {
		t.Fatal(derr)
	}
	if fi.DefID != "foo" {
		t.Fatalf("got DefID %q", fi.DefID)
	}
}
