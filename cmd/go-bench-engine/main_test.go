package main

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/randomizedcoder/go-bench-engine/internal/engine"
	"github.com/randomizedcoder/go-bench-engine/internal/metrics"
	"github.com/randomizedcoder/go-bench-engine/internal/protocol"
	"github.com/randomizedcoder/go-bench-engine/internal/suite"
)

// measureChildEnv makes the test binary behave as go-bench-engine, so the
// host can re-execute it as the measurement process.
const measureChildEnv = "GO_BENCH_ENGINE_TEST_CHILD"

func TestMain(m *testing.M) {
	if os.Getenv(measureChildEnv) == "1" {
		os.Exit(run(os.Args[1:]))
	}
	os.Exit(m.Run())
}

// captureStdout runs fn with os.Stdout redirected and returns what it wrote.
func captureStdout(t *testing.T, fn func() int) (int, string) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	orig := os.Stdout
	os.Stdout = w

	done := make(chan string)
	go func() {
		b, _ := io.ReadAll(r)
		done <- string(b)
	}()

	code := fn()
	os.Stdout = orig
	w.Close()
	out := <-done
	r.Close()
	return code, out
}

// =============================================================================
// Tests: CLI
// =============================================================================

func TestRun_Version(t *testing.T) {
	code, out := captureStdout(t, func() int { return run([]string{"-version"}) })
	if code != 0 || out != "go-bench-engine dev\n" {
		t.Errorf("run(-version) = %d, %q", code, out)
	}
}

func TestRun_List(t *testing.T) {
	code, out := captureStdout(t, func() int { return run([]string{"-list", "-log-level", "error"}) })
	if code != 0 {
		t.Fatalf("run(-list) = %d", code)
	}
	for _, name := range suite.Names() {
		if !strings.Contains(out, name) {
			t.Errorf("list missing %q:\n%s", name, out)
		}
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	testCases := []struct {
		name string
		args []string
	}{
		{"zero_target", []string{"-benchmark", "sha256", "-target", "0"}},
		{"bad_strategy", []string{"-benchmark", "sha256", "-strategy", "fastest"}},
		{"unknown_flag", []string{"-clients", "10"}},
		{"unknown_benchmark", []string{"-benchmark", "nope", "-skip-preflight"}},
		{"tui_measure", []string{"-benchmark", "sha256", "-measure", "-tui"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if code := run(tc.args); code != 1 {
				t.Errorf("run(%q) = %d, want 1", tc.args, code)
			}
		})
	}
}

func TestRun_PrintCmd(t *testing.T) {
	code, out := captureStdout(t, func() int {
		return run([]string{"-print-cmd", "-binary", "/usr/bin/go-bench-engine", "-benchmark", "alloc", "-strategy", "coldstart", "-log-level", "error"})
	})
	if code != 0 {
		t.Fatalf("run(-print-cmd) = %d", code)
	}
	for _, want := range []string{"/usr/bin/go-bench-engine -measure", "-benchmark alloc", "-strategy coldstart"} {
		if !strings.Contains(out, want) {
			t.Errorf("print-cmd output missing %q:\n%s", want, out)
		}
	}
}

// =============================================================================
// Tests: Measurement Mode
// =============================================================================

func TestRun_Measure(t *testing.T) {
	textfile := filepath.Join(t.TempDir(), "engine.prom")
	code, out := captureStdout(t, func() int {
		return run([]string{
			"-measure", "-benchmark", "lifecycle-sync",
			"-warmup", "1", "-target", "2",
			"-log-level", "error",
			"-metrics-textfile", textfile,
		})
	})
	if code != 0 {
		t.Fatalf("run(-measure) = %d\n%s", code, out)
	}

	var called []string
	p := protocol.NewParser(protocol.ParserCallbacks{
		OnPassthrough: func(line string) {
			if strings.HasPrefix(line, suite.CalledPrefix) {
				called = append(called, strings.TrimPrefix(line, suite.CalledPrefix))
			}
		},
	})
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		if err := p.Feed(sc.Text()); err != nil {
			t.Fatalf("Feed() error = %v", err)
		}
	}

	if got := len(p.Targets()); got != 2 {
		t.Errorf("target entries = %d, want 2\n%s", got, out)
	}
	if got := len(p.Entries()); got != 2 {
		t.Errorf("entries = %d, want 2 (warmup not emitted)", got)
	}
	if len(called) == 0 || called[0] != "GlobalSetup" || called[len(called)-1] != "GlobalCleanup" {
		t.Errorf("call log = %q", called)
	}
	if !slices.Contains(called, "IterationCleanup (3)") {
		t.Errorf("call log missing the third iteration cleanup: %q", called)
	}

	families, err := metrics.ReadTextfile(textfile)
	if err != nil {
		t.Fatalf("ReadTextfile() error = %v", err)
	}
	if got := metrics.HookCounts(families)["GlobalSetup"]; got != 1 {
		t.Errorf("GlobalSetup invocations = %v, want 1", got)
	}
}

func TestRun_MeasureFailure(t *testing.T) {
	code, out := captureStdout(t, func() int {
		return run([]string{"-measure", "-benchmark", "lifecycle-fail", "-warmup", "2", "-target", "3", "-log-level", "error"})
	})
	if code != 1 {
		t.Errorf("run(-measure lifecycle-fail) = %d, want 1", code)
	}
	if !strings.Contains(out, suite.CalledPrefix+"GlobalCleanup") {
		t.Errorf("global cleanup not attempted after abort:\n%s", out)
	}
}

// =============================================================================
// Tests: Host End to End
// =============================================================================

func TestRun_HostEndToEnd(t *testing.T) {
	t.Setenv(measureChildEnv, "1")

	testCases := []struct {
		name     string
		args     []string
		wantCode int
		want     []string
	}{
		{
			name:     "lifecycle_sync",
			args:     []string{"-benchmark", "lifecycle-sync", "-warmup", "2", "-target", "3"},
			wantCode: 0,
			want:     []string{"Preflight checks:", "Exit Summary", "lifecycle-sync", "Samples:"},
		},
		{
			name:     "monitoring_with_warmup",
			args:     []string{"-benchmark", "sha256", "-strategy", "monitoring", "-warmup", "1", "-target", "2", "-emit-warmup", "-skip-preflight"},
			wantCode: 0,
			want:     []string{"monitoring", "(1 warmup)"},
		},
		{
			name:     "hook_failure",
			args:     []string{"-benchmark", "lifecycle-fail", "-warmup", "2", "-target", "3", "-skip-preflight"},
			wantCode: 1,
			want:     []string{"Failure", "Exit code: 1"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			args := append(tc.args, "-metrics", "", "-log-level", "error")
			code, out := captureStdout(t, func() int { return run(args) })
			if code != tc.wantCode {
				t.Fatalf("run(%q) = %d, want %d\n%s", args, code, tc.wantCode, out)
			}
			for _, want := range tc.want {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
		})
	}
}

// =============================================================================
// Tests: stdoutWriter
// =============================================================================

func TestStdoutWriter_FlushesForEmitter(t *testing.T) {
	var sb strings.Builder
	w := newStdoutWriter(&sb)
	e := protocol.NewEmitter(w, protocol.Nanoseconds)

	if _, err := io.WriteString(w, "// benchmark output\n"); err != nil {
		t.Fatal(err)
	}
	if sb.Len() != 0 {
		t.Error("benchmark output should stay buffered until a flush")
	}
	if err := e.Emit(engine.PhaseTarget, 12.5); err != nil {
		t.Fatal(err)
	}
	want := "// benchmark output\n" + protocol.MarkerFor(engine.PhaseTarget) + " 12.5 ns\n"
	if sb.String() != want {
		t.Errorf("stdout = %q, want %q", sb.String(), want)
	}
}
