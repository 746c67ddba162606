// Package protocol carries measurements from the measurement process to the
// host over a line-oriented text stream.
//
// Each emitted iteration is one line:
//
//	#@bench/target 1523.5 ns
//
// The marker names the phase, the magnitude is the time per benchmark call
// and the unit is a time unit with an optional metric prefix. Any other line
// on the stream belongs to the benchmark itself and is passed through by the
// parser untouched.
package protocol

import (
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/randomizedcoder/go-bench-engine/internal/engine"
)

const (
	// TargetMarker prefixes target-phase measurements.
	TargetMarker = "#@bench/target"

	// WarmupMarker prefixes warmup measurements, emitted only on request.
	WarmupMarker = "#@bench/warmup"
)

// MarkerFor returns the marker for phase. Warmup has its own marker so the
// host can never mistake it for a target sample.
func MarkerFor(phase engine.Phase) string {
	if phase == engine.PhaseWarmup {
		return WarmupMarker
	}
	return TargetMarker
}

// FormatLine formats one protocol line without the trailing newline.
func FormatLine(phase engine.Phase, value float64, unit Unit) string {
	return MarkerFor(phase) + " " + strconv.FormatFloat(value, 'g', -1, 64) + " " + unit.Symbol
}

type flusher interface {
	Flush() error
}

// Emitter writes one protocol line per recorded iteration. It implements
// engine.Recorder.
//
// Record returns only after the line has been written and, if the writer
// supports it, flushed.
type Emitter struct {
	mu   sync.Mutex
	w    io.Writer
	unit Unit

	lines int64
}

// NewEmitter returns an Emitter writing magnitudes in unit. A zero unit
// selects nanoseconds.
func NewEmitter(w io.Writer, unit Unit) *Emitter {
	if unit.Nanos == 0 {
		unit = Nanoseconds
	}
	return &Emitter{w: w, unit: unit}
}

// Record writes the time per benchmark call of res.
func (e *Emitter) Record(res engine.IterationResult) error {
	ns := float64(res.Elapsed)
	if res.Operations > 0 {
		ns /= float64(res.Operations)
	}
	return e.Emit(res.Iteration.Phase, e.unit.FromNanoseconds(ns))
}

// Emit writes one line carrying value, already expressed in the emitter's
// unit.
func (e *Emitter) Emit(phase engine.Phase, value float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := io.WriteString(e.w, FormatLine(phase, value, e.unit)+"\n"); err != nil {
		return fmt.Errorf("write measurement: %w", err)
	}
	if f, ok := e.w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flush measurement: %w", err)
		}
	}
	e.lines++
	return nil
}

// Lines returns the number of lines written.
func (e *Emitter) Lines() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lines
}

// Unit returns the emitter's unit.
func (e *Emitter) Unit() Unit {
	return e.unit
}
