package protocol

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/randomizedcoder/go-bench-engine/internal/engine"
)

// MarkerPrefix is shared by every marker. A line starting with it is a
// protocol line and must parse.
const MarkerPrefix = "#@bench/"

// Entry is one measurement reconstructed by the parser.
type Entry struct {
	// Index is the 1-based position of the entry among all recognized lines
	// in the stream, across both phases.
	Index int

	Phase engine.Phase

	// Value is the nominal magnitude as written, in Unit.
	Value float64
	Unit  Unit
}

// Seconds returns the value in seconds.
func (e Entry) Seconds() float64 {
	return e.Unit.Seconds(e.Value)
}

// Nanoseconds returns the value in nanoseconds, keeping fractions.
func (e Entry) Nanoseconds() float64 {
	return e.Value * e.Unit.Nanos
}

// Duration returns the value as a time.Duration.
func (e Entry) Duration() time.Duration {
	return e.Unit.Duration(e.Value)
}

// ParserCallbacks contains optional observers of parsed lines. They run on
// the goroutine calling ParseLine.
type ParserCallbacks struct {
	// OnEntry is called for every marker line parsed.
	OnEntry func(Entry)

	// OnPassthrough is called for every line that is not a protocol line.
	OnPassthrough func(line string)

	// OnDesync is called once, for the first malformed marker line.
	OnDesync func(*DesyncError)
}

// ParserStats counts lines seen by a Parser.
type ParserStats struct {
	Lines       int64
	Entries     int64
	Passthrough int64
	Ignored     int64
}

// Parser reconstructs entries from protocol lines.
//
// Lines not starting with MarkerPrefix are passed through. A malformed
// marker line stops the parser: the error is sticky and every later line is
// counted as ignored. Parser is safe for concurrent use, although lines are
// expected from a single reader.
type Parser struct {
	callbacks ParserCallbacks

	mu      sync.Mutex
	entries []Entry
	counts  map[engine.Phase]int
	stats   ParserStats
	err     *DesyncError
}

// NewParser creates a parser.
func NewParser(cb ParserCallbacks) *Parser {
	return &Parser{
		callbacks: cb,
		counts:    make(map[engine.Phase]int),
	}
}

// ParseLine processes one line without its trailing newline.
func (p *Parser) ParseLine(line string) {
	_ = p.Feed(line)
}

// Feed processes one line and returns the parser's error, if any.
func (p *Parser) Feed(line string) error {
	p.mu.Lock()
	p.stats.Lines++
	lineNo := int(p.stats.Lines)

	if p.err != nil {
		p.stats.Ignored++
		err := p.err
		p.mu.Unlock()
		return err
	}

	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, MarkerPrefix) {
		p.stats.Passthrough++
		p.mu.Unlock()
		if p.callbacks.OnPassthrough != nil {
			p.callbacks.OnPassthrough(line)
		}
		return nil
	}

	phase, value, unit, reason := parseMarkerLine(line)
	if reason != "" {
		derr := &DesyncError{Line: lineNo, Text: line, Reason: reason}
		p.err = derr
		p.mu.Unlock()
		if p.callbacks.OnDesync != nil {
			p.callbacks.OnDesync(derr)
		}
		return derr
	}

	p.counts[phase]++
	p.stats.Entries++
	entry := Entry{Index: int(p.stats.Entries), Phase: phase, Value: value, Unit: unit}
	p.entries = append(p.entries, entry)
	p.mu.Unlock()

	if p.callbacks.OnEntry != nil {
		p.callbacks.OnEntry(entry)
	}
	return nil
}

// parseMarkerLine splits "<marker> <magnitude> <unit>". A non-empty reason
// means the line is malformed.
func parseMarkerLine(line string) (engine.Phase, float64, Unit, string) {
	marker, payload, _ := strings.Cut(line, " ")

	var phase engine.Phase
	switch marker {
	case TargetMarker:
		phase = engine.PhaseTarget
	case WarmupMarker:
		phase = engine.PhaseWarmup
	default:
		return 0, 0, Unit{}, "unknown marker"
	}

	// Fields are separated by exactly one space.
	fields := strings.Split(payload, " ")
	if len(fields) != 2 || fields[0] == "" || fields[1] == "" {
		return 0, 0, Unit{}, "expected magnitude and unit"
	}

	if !isDecimal(fields[0]) {
		return 0, 0, Unit{}, "invalid magnitude"
	}
	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, Unit{}, "invalid magnitude"
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0, 0, Unit{}, "magnitude out of range"
	}

	unit, err := ParseUnit(fields[1])
	if err != nil {
		return 0, 0, Unit{}, "unknown unit"
	}
	return phase, value, unit, ""
}

// isDecimal reports whether s is a plain decimal number: an optional minus
// sign, digits with an optional fraction and an optional exponent. Hex
// floats, underscores, NaN and Inf are rejected.
func isDecimal(s string) bool {
	i := 0
	if i < len(s) && s[i] == '-' {
		i++
	}
	digits := 0
	for ; i < len(s) && isDigit(s[i]); i++ {
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for ; i < len(s) && isDigit(s[i]); i++ {
			digits++
		}
	}
	if digits == 0 {
		return false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		exp := 0
		for ; i < len(s) && isDigit(s[i]); i++ {
			exp++
		}
		if exp == 0 {
			return false
		}
	}
	return i == len(s)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// Entries returns a copy of all entries in stream order.
func (p *Parser) Entries() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Entry(nil), p.entries...)
}

// Targets returns the target-phase entries in stream order.
func (p *Parser) Targets() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Entry, 0, p.counts[engine.PhaseTarget])
	for _, e := range p.entries {
		if e.Phase == engine.PhaseTarget {
			out = append(out, e)
		}
	}
	return out
}

// Err returns the desync error that stopped the parser, or nil.
func (p *Parser) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		return nil
	}
	return p.err
}

// Stats returns line counters.
func (p *Parser) Stats() ParserStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
