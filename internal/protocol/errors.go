package protocol

import (
	"errors"
	"fmt"
)

// ErrDesync matches every *DesyncError.
var ErrDesync = errors.New("protocol desync")

// DesyncError reports a marker line that could not be parsed. Emitter and
// parser have drifted apart, so no further line is trusted.
type DesyncError struct {
	// Line is the 1-based line number in the stream.
	Line int

	// Text is the offending line.
	Text string

	Reason string
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf("protocol desync at line %d: %s: %q", e.Line, e.Reason, e.Text)
}

// Is makes errors.Is(err, ErrDesync) true for any DesyncError.
func (e *DesyncError) Is(target error) bool { return target == ErrDesync }
