package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/randomizedcoder/go-bench-engine/internal/engine"
	"github.com/randomizedcoder/go-bench-engine/internal/hook"
)

// =============================================================================
// Test Helpers
// =============================================================================

type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// flushCounter records Flush calls and the buffered content at each flush.
type flushCounter struct {
	bytes.Buffer
	flushes int
}

func (f *flushCounter) Flush() error {
	f.flushes++
	return nil
}

// =============================================================================
// Tests: Unit
// =============================================================================

func TestParseUnit(t *testing.T) {
	tests := []struct {
		token   string
		nanos   float64
		wantErr bool
	}{
		{"ps", 1e-3, false},
		{"ns", 1, false},
		{"us", 1e3, false},
		{"µs", 1e3, false},
		{"μs", 1e3, false},
		{"ms", 1e6, false},
		{"s", 1e9, false},
		{"ks", 1e12, false},
		{"", 0, true},
		{"ns/op", 0, true},
		{"xs", 0, true},
		{"m", 0, true},
		{"NS", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			u, err := ParseUnit(tt.token)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownUnit) {
					t.Errorf("ParseUnit(%q) error = %v, want ErrUnknownUnit", tt.token, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseUnit(%q) error = %v", tt.token, err)
			}
			if u.Nanos != tt.nanos || u.Symbol != tt.token {
				t.Errorf("ParseUnit(%q) = %+v, want %g ns", tt.token, u, tt.nanos)
			}
		})
	}
}

func TestUnit_Conversions(t *testing.T) {
	if got := Microseconds.FromNanoseconds(2500); got != 2.5 {
		t.Errorf("FromNanoseconds = %v, want 2.5", got)
	}
	if got := Milliseconds.Seconds(250); math.Abs(got-0.25) > 1e-12 {
		t.Errorf("Seconds = %v, want 0.25", got)
	}
	if got := Milliseconds.Duration(1.5); got != 1500*time.Microsecond {
		t.Errorf("Duration = %v, want 1.5ms", got)
	}
	e := Entry{Value: 250, Unit: Nanoseconds}
	if got := e.Nanoseconds(); math.Abs(got-250) > 1e-9 {
		t.Errorf("Entry.Nanoseconds = %v, want 250", got)
	}
}

// =============================================================================
// Tests: Emitter
// =============================================================================

func TestEmitter_FormatAndFlush(t *testing.T) {
	w := &flushCounter{}
	em := NewEmitter(w, Unit{})

	if em.Unit() != Nanoseconds {
		t.Errorf("default unit = %v, want ns", em.Unit())
	}

	results := []engine.IterationResult{
		{Iteration: hook.Iteration{Phase: engine.PhaseTarget, Index: 1, PhaseIndex: 1}, Elapsed: 1500 * time.Nanosecond, Operations: 1},
		{Iteration: hook.Iteration{Phase: engine.PhaseWarmup, Index: 2, PhaseIndex: 1}, Elapsed: time.Microsecond, Operations: 4},
	}
	for _, r := range results {
		if err := em.Record(r); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	want := "#@bench/target 1500 ns\n#@bench/warmup 250 ns\n"
	if w.String() != want {
		t.Errorf("output = %q, want %q", w.String(), want)
	}
	if w.flushes != 2 {
		t.Errorf("flushes = %d, want 2", w.flushes)
	}
	if em.Lines() != 2 {
		t.Errorf("Lines() = %d, want 2", em.Lines())
	}
}

func TestEmitter_BufferedWriterIsFlushed(t *testing.T) {
	var out bytes.Buffer
	bw := bufio.NewWriter(&out)
	em := NewEmitter(bw, Microseconds)

	if err := em.Emit(engine.PhaseTarget, 12.5); err != nil {
		t.Fatal(err)
	}
	if out.String() != "#@bench/target 12.5 us\n" {
		t.Errorf("underlying writer = %q; line not flushed", out.String())
	}
}

// =============================================================================
// Tests: Parser
// =============================================================================

func TestParser_PassthroughAndEntries(t *testing.T) {
	var passed []string
	var entries []Entry
	p := NewParser(ParserCallbacks{
		OnPassthrough: func(l string) { passed = append(passed, l) },
		OnEntry:       func(e Entry) { entries = append(entries, e) },
	})

	lines := []string{
		"// ### Called: GlobalSetup",
		"#@bench/warmup 10 ns",
		"#@bench/target 1.5 us\r",
		"",
		"#@bench/target 2e3 ns",
		"# not a marker",
	}
	for _, l := range lines {
		if err := p.Feed(l); err != nil {
			t.Fatalf("Feed(%q) error = %v", l, err)
		}
	}

	if want := []string{"// ### Called: GlobalSetup", "", "# not a marker"}; !reflect.DeepEqual(passed, want) {
		t.Errorf("passthrough = %q, want %q", passed, want)
	}

	want := []Entry{
		{Index: 1, Phase: engine.PhaseWarmup, Value: 10, Unit: Nanoseconds},
		{Index: 2, Phase: engine.PhaseTarget, Value: 1.5, Unit: Microseconds},
		{Index: 3, Phase: engine.PhaseTarget, Value: 2000, Unit: Nanoseconds},
	}
	if !reflect.DeepEqual(entries, want) {
		t.Errorf("entries:\n got: %+v\nwant: %+v", entries, want)
	}
	if !reflect.DeepEqual(p.Entries(), want) {
		t.Errorf("Entries() = %+v", p.Entries())
	}
	if got := p.Targets(); len(got) != 2 || got[0].Duration() != 1500*time.Nanosecond {
		t.Errorf("Targets() = %+v", got)
	}

	stats := p.Stats()
	if stats.Lines != 6 || stats.Entries != 3 || stats.Passthrough != 3 || stats.Ignored != 0 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestParser_DesyncIsFatal(t *testing.T) {
	tests := []struct {
		line   string
		reason string
	}{
		{"#@bench/target not-a-number ns", "invalid magnitude"},
		{"#@bench/target 12", "expected magnitude and unit"},
		{"#@bench/target", "expected magnitude and unit"},
		{"#@bench/target 12 ns extra", "expected magnitude and unit"},
		{"#@bench/target 12 parsecs", "unknown unit"},
		{"#@bench/target -3 ns", "magnitude out of range"},
		{"#@bench/target NaN ns", "invalid magnitude"},
		{"#@bench/target +Inf ns", "invalid magnitude"},
		{"#@bench/target +5 ns", "invalid magnitude"},
		{"#@bench/target 0x1p4 ns", "invalid magnitude"},
		{"#@bench/target 1_000 ns", "invalid magnitude"},
		{"#@bench/target 1e ns", "invalid magnitude"},
		{"#@bench/target . ns", "invalid magnitude"},
		{"#@bench/target 1e999 ns", "invalid magnitude"},
		{"#@bench/target  12 ns", "expected magnitude and unit"},
		{"#@bench/target 12  ns", "expected magnitude and unit"},
		{"#@bench/target 12\tns", "expected magnitude and unit"},
		{"#@bench/target 12 ns ", "expected magnitude and unit"},
		{"#@bench/pilot 12 ns", "unknown marker"},
		{"#@bench/target12 ns", "unknown marker"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			var desyncs int
			p := NewParser(ParserCallbacks{OnDesync: func(*DesyncError) { desyncs++ }})

			_ = p.Feed("#@bench/target 5 ns")
			err := p.Feed(tt.line)

			if !errors.Is(err, ErrDesync) {
				t.Fatalf("Feed(%q) error = %v, want ErrDesync", tt.line, err)
			}
			var derr *DesyncError
			if !errors.As(err, &derr) {
				t.Fatalf("error is %T, want *DesyncError", err)
			}
			if derr.Line != 2 || derr.Reason != tt.reason || derr.Text != tt.line {
				t.Errorf("DesyncError = %+v, want line 2 reason %q", derr, tt.reason)
			}

			// The parser stays stopped.
			if err := p.Feed("#@bench/target 6 ns"); !errors.Is(err, ErrDesync) {
				t.Errorf("Feed after desync = %v, want sticky ErrDesync", err)
			}
			if len(p.Entries()) != 1 {
				t.Errorf("len(Entries) = %d, want 1", len(p.Entries()))
			}
			if p.Stats().Ignored != 1 {
				t.Errorf("Ignored = %d, want 1", p.Stats().Ignored)
			}
			if desyncs != 1 {
				t.Errorf("OnDesync called %d times, want 1", desyncs)
			}
			if p.Err() == nil {
				t.Error("Err() = nil after desync")
			}
		})
	}
}

func TestParseStream_StopsAtDesync(t *testing.T) {
	input := strings.Join([]string{
		"hello from the benchmark",
		"#@bench/target 1 ns",
		"#@bench/target 2 ns",
		"#@bench/target not-a-number ns",
		"#@bench/target 4 ns",
	}, "\n")

	entries, err := ParseStream(strings.NewReader(input), ParserCallbacks{})
	if !errors.Is(err, ErrDesync) {
		t.Fatalf("ParseStream error = %v, want ErrDesync", err)
	}
	if len(entries) != 2 {
		t.Errorf("len(entries) = %d, want 2", len(entries))
	}
}

func TestReader_LongLines(t *testing.T) {
	long := strings.Repeat("x", 200*1024)
	input := long + "\n#@bench/target 7 ms\n"

	p := NewParser(ParserCallbacks{})
	r := NewReader(strings.NewReader(input), p)
	if err := r.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, lines := r.Stats(); lines != 2 {
		t.Errorf("lines = %d, want 2", lines)
	}
	if got := p.Targets(); len(got) != 1 || got[0].Duration() != 7*time.Millisecond {
		t.Errorf("Targets() = %+v", got)
	}
}

// =============================================================================
// Tests: Round Trip
// =============================================================================

func TestRoundTrip_EmitThenParse(t *testing.T) {
	values := []float64{0, 1, 0.125, 1523.75, 3.0e-5, 123456789.25, math.SmallestNonzeroFloat64}

	for _, unit := range []Unit{Nanoseconds, Microseconds, Milliseconds, Seconds} {
		t.Run(unit.Symbol, func(t *testing.T) {
			var buf bytes.Buffer
			em := NewEmitter(&buf, unit)
			for _, v := range values {
				if err := em.Emit(engine.PhaseTarget, v); err != nil {
					t.Fatal(err)
				}
				// Benchmark output between measurements.
				fmt.Fprintln(&buf, "noise", v)
			}

			entries, err := ParseStream(&buf, ParserCallbacks{})
			if err != nil {
				t.Fatalf("ParseStream error = %v", err)
			}
			if len(entries) != len(values) {
				t.Fatalf("len(entries) = %d, want %d", len(entries), len(values))
			}
			for i, e := range entries {
				if e.Index != i+1 || e.Value != values[i] || e.Unit != unit {
					t.Errorf("entry %d = %+v, want index %d value %v unit %s", i, e, i+1, values[i], unit)
				}
			}
		})
	}
}

func TestRoundTrip_EngineToParser(t *testing.T) {
	var buf bytes.Buffer
	em := NewEmitter(&buf, Nanoseconds)

	desc := engine.Descriptor{
		Name: "roundtrip",
		Benchmark: hook.Action(func() {
			fmt.Fprintln(&buf, "// ### Called: Benchmark")
		}),
	}
	plan := engine.RunPlan{
		WarmupCount:             2,
		TargetCount:             4,
		InvocationsPerIteration: 1,
		UnrollFactor:            1,
		Strategy:                engine.StrategyThroughput,
	}

	e, err := engine.New(engine.Config{
		Descriptor: desc,
		Plan:       plan,
		Recorder:   em,
		Clock:      &stepClock{now: time.Unix(0, 0), step: 3 * time.Microsecond},
	})
	if err != nil {
		t.Fatal(err)
	}
	report, err := e.Run()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var passthrough int
	entries, err := ParseStream(&buf, ParserCallbacks{OnPassthrough: func(string) { passthrough++ }})
	if err != nil {
		t.Fatalf("ParseStream error = %v", err)
	}

	if len(entries) != len(report.Targets()) {
		t.Fatalf("parsed %d entries, engine emitted %d", len(entries), len(report.Targets()))
	}
	for i, entry := range entries {
		if entry.Phase != engine.PhaseTarget || entry.Index != i+1 {
			t.Errorf("entry %d = %+v", i, entry)
		}
		if entry.Duration() != report.Targets()[i].Elapsed {
			t.Errorf("entry %d duration = %v, want %v", i, entry.Duration(), report.Targets()[i].Elapsed)
		}
	}
	if passthrough != 6 {
		t.Errorf("passthrough lines = %d, want 6", passthrough)
	}
}

func TestRoundTrip_EmittedWarmupKeepsIterationIndex(t *testing.T) {
	var buf bytes.Buffer
	plan := engine.RunPlan{
		WarmupCount:             2,
		TargetCount:             3,
		InvocationsPerIteration: 1,
		UnrollFactor:            1,
		Strategy:                engine.StrategyMonitoring,
		EmitWarmup:              true,
	}
	e, err := engine.New(engine.Config{
		Descriptor: engine.Descriptor{Name: "indexed", Benchmark: hook.Action(func() {})},
		Plan:       plan,
		Recorder:   NewEmitter(&buf, Nanoseconds),
		Clock:      &stepClock{now: time.Unix(0, 0), step: time.Microsecond},
	})
	if err != nil {
		t.Fatal(err)
	}
	report, err := e.Run()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	entries, err := ParseStream(&buf, ParserCallbacks{})
	if err != nil {
		t.Fatalf("ParseStream error = %v", err)
	}
	if len(entries) != len(report.Results) {
		t.Fatalf("parsed %d entries, engine emitted %d", len(entries), len(report.Results))
	}
	for i, entry := range entries {
		res := report.Results[i]
		if entry.Index != res.Iteration.Index || entry.Phase != res.Iteration.Phase {
			t.Errorf("entry %d = index %d %s, want index %d %s",
				i, entry.Index, entry.Phase, res.Iteration.Index, res.Iteration.Phase)
		}
	}
}

func TestIsDecimal(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0", true},
		{"12", true},
		{"1.5", true},
		{"7.", true},
		{".25", true},
		{"-3", true},
		{"5e-324", true},
		{"1.5e+21", true},
		{"3E9", true},
		{"", false},
		{"-", false},
		{".", false},
		{"+5", false},
		{"1e", false},
		{"1e+", false},
		{"0x1p4", false},
		{"1_000", false},
		{"NaN", false},
		{"Inf", false},
		{"1.2.3", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := isDecimal(tt.in); got != tt.want {
				t.Errorf("isDecimal(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
