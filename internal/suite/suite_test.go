package suite

import (
	"bufio"
	"bytes"
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/randomizedcoder/go-bench-engine/internal/engine"
)

// =============================================================================
// Test Helpers
// =============================================================================

// lockedBuffer is written from hook goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) calledLines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(b.buf.Bytes()))
	for sc.Scan() {
		if strings.HasPrefix(sc.Text(), CalledPrefix) {
			lines = append(lines, sc.Text())
		}
	}
	return lines
}

// miniPlan is the monitoring plan with two warmup and three target
// iterations, one invocation each.
var miniPlan = engine.RunPlan{
	WarmupCount:             2,
	TargetCount:             3,
	InvocationsPerIteration: 1,
	UnrollFactor:            1,
	Strategy:                engine.StrategyMonitoring,
}

var expectedLogLines = []string{
	"// ### Called: GlobalSetup",

	"// ### Called: IterationSetup (1)",
	"// ### Called: Benchmark",
	"// ### Called: IterationCleanup (1)",
	"// ### Called: IterationSetup (2)",
	"// ### Called: Benchmark",
	"// ### Called: IterationCleanup (2)",

	"// ### Called: IterationSetup (3)",
	"// ### Called: Benchmark",
	"// ### Called: IterationCleanup (3)",
	"// ### Called: IterationSetup (4)",
	"// ### Called: Benchmark",
	"// ### Called: IterationCleanup (4)",
	"// ### Called: IterationSetup (5)",
	"// ### Called: Benchmark",
	"// ### Called: IterationCleanup (5)",

	"// ### Called: GlobalCleanup",
}

func run(t *testing.T, name string, out *lockedBuffer, plan engine.RunPlan) (engine.Report, error) {
	t.Helper()
	desc, err := Descriptor(name, out)
	if err != nil {
		t.Fatalf("Descriptor(%q) error = %v", name, err)
	}
	e, err := engine.New(engine.Config{Descriptor: desc, Plan: plan})
	if err != nil {
		t.Fatalf("engine.New error = %v", err)
	}
	return e.Run()
}

// =============================================================================
// Tests
// =============================================================================

func TestLifecycleBenchmarks_CallLog(t *testing.T) {
	names := []string{
		"lifecycle-sync",
		"lifecycle-deferred",
		"lifecycle-deferred-value",
		"lifecycle-reusable",
		"lifecycle-reusable-value",
	}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			out := &lockedBuffer{}
			if _, err := run(t, name, out, miniPlan); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if got := out.calledLines(); !reflect.DeepEqual(got, expectedLogLines) {
				t.Errorf("call log:\n got: %q\nwant: %q", got, expectedLogLines)
			}
		})
	}
}

func TestLifecycleFail(t *testing.T) {
	out := &lockedBuffer{}
	report, err := run(t, "lifecycle-fail", out, miniPlan)

	if !errors.Is(err, engine.ErrHookInvocation) || !errors.Is(err, ErrInjectedFailure) {
		t.Fatalf("Run() error = %v, want injected hook failure", err)
	}
	if report.Completed != 1 {
		t.Errorf("Completed = %d, want 1", report.Completed)
	}

	want := append(append([]string{}, expectedLogLines[:7]...), "// ### Called: GlobalCleanup")
	if got := out.calledLines(); !reflect.DeepEqual(got, want) {
		t.Errorf("call log:\n got: %q\nwant: %q", got, want)
	}
}

func TestComputeBenchmarks_Run(t *testing.T) {
	plan := engine.RunPlan{
		WarmupCount:             1,
		TargetCount:             2,
		InvocationsPerIteration: 2,
		UnrollFactor:            2,
		Strategy:                engine.StrategyThroughput,
	}
	for _, name := range []string{"sha256", "sleep", "alloc"} {
		t.Run(name, func(t *testing.T) {
			report, err := run(t, name, &lockedBuffer{}, plan)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if len(report.Results) != 2 || report.Name != name {
				t.Errorf("report = %+v", report)
			}
			for _, r := range report.Results {
				if r.Operations != 4 {
					t.Errorf("Operations = %d, want 4", r.Operations)
				}
			}
		})
	}
}

func TestLookup(t *testing.T) {
	if _, err := Lookup("nope"); err == nil {
		t.Error("Lookup(nope) error = nil")
	}

	names := Names()
	if !sort.StringsAreSorted(names) {
		t.Errorf("Names() not sorted: %v", names)
	}
	seen := map[string]bool{}
	for _, b := range All() {
		if seen[b.Name] {
			t.Errorf("duplicate benchmark %q", b.Name)
		}
		seen[b.Name] = true
		if b.Description == "" || b.New == nil {
			t.Errorf("benchmark %q is incomplete", b.Name)
		}
		if !b.New(&lockedBuffer{}).Benchmark.Present() {
			t.Errorf("benchmark %q has no benchmark hook", b.Name)
		}
	}
	if len(seen) != 9 {
		t.Errorf("len(All()) = %d, want 9", len(seen))
	}
}
