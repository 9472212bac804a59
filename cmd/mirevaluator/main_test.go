package main

import (
	"testing"

	"mirevaluator/internal/target"
)

func TestRunSampleProgram(t *testing.T) {
	if err := run(1<<20, 1_000_000, 256, target.ArchX86_64); err != nil {
		t.Fatalf("run() failed: %v", err)
	}
}

func TestRunRespectsStackLimit(t *testing.T) {
	// The sample program never recurses, so even a stack limit of 1 must
	// still succeed — this only guards against the flag wiring itself
	// breaking the single top-level frame the demo pushes.
	if err := run(1<<20, 1_000_000, 1, target.ArchI686); err != nil {
		t.Fatalf("run() failed with a 1-frame stack limit: %v", err)
	}
}

func TestRunRejectsUnparseableTarget(t *testing.T) {
	if _, err := target.ParseArch("not-a-real-arch"); err == nil {
		t.Fatal("expected ParseArch to reject an unknown architecture before run() is ever called")
	}
}
