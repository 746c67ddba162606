package protocol

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownUnit is returned by ParseUnit for unrecognized unit tokens.
var ErrUnknownUnit = errors.New("unknown unit")

// Unit is a time unit: a symbol and its size in nanoseconds. Sizes are kept
// in nanoseconds so that whole-nanosecond measurements convert exactly.
type Unit struct {
	Symbol string
	Nanos  float64
}

var (
	Picoseconds  = Unit{Symbol: "ps", Nanos: 1e-3}
	Nanoseconds  = Unit{Symbol: "ns", Nanos: 1}
	Microseconds = Unit{Symbol: "us", Nanos: 1e3}
	Milliseconds = Unit{Symbol: "ms", Nanos: 1e6}
	Seconds      = Unit{Symbol: "s", Nanos: 1e9}
)

// metricPrefixes maps a metric prefix to nanoseconds per prefixed second.
// Both the micro sign (U+00B5) and the Greek mu (U+03BC) are accepted
// alongside "u".
var metricPrefixes = map[string]float64{
	"p": 1e-3,
	"n": 1,
	"u": 1e3,
	"µ": 1e3,
	"μ": 1e3,
	"m": 1e6,
	"":  1e9,
	"k": 1e12,
}

// ParseUnit resolves a unit token such as "ns", "µs" or "s".
func ParseUnit(token string) (Unit, error) {
	prefix, ok := strings.CutSuffix(token, "s")
	if !ok {
		return Unit{}, fmt.Errorf("%w %q", ErrUnknownUnit, token)
	}
	nanos, ok := metricPrefixes[prefix]
	if !ok {
		return Unit{}, fmt.Errorf("%w %q", ErrUnknownUnit, token)
	}
	return Unit{Symbol: token, Nanos: nanos}, nil
}

// String returns the unit symbol.
func (u Unit) String() string {
	return u.Symbol
}

// FromNanoseconds converts nanoseconds into a magnitude of u.
func (u Unit) FromNanoseconds(ns float64) float64 {
	return ns / u.Nanos
}

// Seconds converts a magnitude of u into seconds.
func (u Unit) Seconds(v float64) float64 {
	return v * u.Nanos / 1e9
}

// Duration converts a magnitude of u into a time.Duration, truncating below
// one nanosecond.
func (u Unit) Duration(v float64) time.Duration {
	return time.Duration(v * u.Nanos)
}
