// Command mirevaluator drives an EvalContext to completion over a fixed
// demonstration program and reports the result, the way the teacher's own
// CLI (main.go) wires flag-driven configuration onto a single compiler
// pipeline run. A real front-end (parser, type checker, MIR builder) is an
// out-of-scope collaborator; this binary exercises the evaluator core
// directly against ir.NewSampleProgram so the full memory/layout/eval/step
// stack has a runnable entry point.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/xyproto/env/v2"

	"mirevaluator/internal/diag"
	"mirevaluator/internal/eval"
	"mirevaluator/internal/ir"
	"mirevaluator/internal/memory"
	"mirevaluator/internal/step"
	"mirevaluator/internal/target"
)

const versionString = "mirevaluator 0.1.0"

func main() {
	memSize := flag.Int64("memory", env.Int64("MIRI_MEMORY_SIZE", 1<<20), "memory budget in bytes (0 = unbounded)")
	stepLimit := flag.Int64("steps", env.Int64("MIRI_STEP_LIMIT", 1_000_000), "maximum steps before aborting (0 = unbounded)")
	stackLimit := flag.Int("stack", env.Int("MIRI_STACK_LIMIT", 256), "maximum live call-stack depth")
	targetArch := flag.String("target", env.Str("MIRI_TARGET", "x86_64"), "guest architecture (amd64, arm64, riscv64, i686)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(versionString)
		return
	}

	arch, err := target.ParseArch(*targetArch)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mirevaluator:", err)
		os.Exit(1)
	}

	if err := run(*memSize, *stepLimit, *stackLimit, arch); err != nil {
		fmt.Fprintln(os.Stderr, "mirevaluator:", err)
		os.Exit(1)
	}
}

// targetProgram overrides SampleProgram's fixed data layout with the one the
// -target flag selected, so the demo program's pointer width tracks the
// chosen guest architecture instead of always assuming a 64-bit host.
type targetProgram struct {
	*ir.SampleProgram
	layout memory.DataLayout
}

func (p *targetProgram) DataLayout() memory.DataLayout { return p.layout }

// PointerSize overrides SampleProgram's hard-coded 8-byte assumption so the
// layout adapter's pointer width agrees with DataLayout() for narrower
// targets (e.g. -target i686).
func (p *targetProgram) PointerSize() int64 { return int64(p.layout.PointerSize) }

func run(memSize, stepLimit int64, stackLimit int, arch target.Arch) error {
	prog := &targetProgram{SampleProgram: ir.NewSampleProgram(), layout: arch.DataLayout()}
	ec := eval.New(prog, memSize, stackLimit)
	ec.StepLimit = stepLimit
	reporter := &diag.CollectingReporter{}
	ec.Report = reporter

	slot, derr := ec.Mem.Allocate(4, 4) // i32 return slot
	if derr != nil {
		return derr
	}
	if _, derr := ec.PushFrame(ir.FunctionKey{DefID: "main"}, mustBody(prog.SampleProgram, "main"), &slot, eval.Cleanup{Kind: eval.CleanupNone}, diag.Span{}); derr != nil {
		return derr
	}

	s := step.New(ec)
	if derr := s.Run(); derr != nil {
		ec.Report.Report(derr)
		return derr
	}

	result, derr := ec.Mem.ReadInt(slot, 4, true)
	if derr != nil {
		return derr
	}
	stats := ec.Mem.Stats()
	fmt.Printf("main() = %d\n", result)
	fmt.Printf("memory: %d/%d bytes used across %d live allocations (target %s, %d-byte pointers)\n",
		stats.Used, stats.Budget, stats.Allocs, arch, prog.layout.PointerSize)
	fmt.Printf("host page granularity: %d bytes\n", memory.DefaultPageGranularity())
	return nil
}

func mustBody(prog *ir.SampleProgram, name ir.DefID) *ir.Body {
	b, ok := prog.Body(ir.FunctionKey{DefID: name})
	if !ok {
		panic("mirevaluator: sample program has no body named " + string(name))
	}
	return b
}
