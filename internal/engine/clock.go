package engine

import "time"

// Clock times benchmark invocations. Tests substitute a deterministic clock.
type Clock interface {
	Now() time.Time
}

// realClock uses time.Now, which carries a monotonic reading.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock returns the wall clock used by default.
func RealClock() Clock { return realClock{} }
