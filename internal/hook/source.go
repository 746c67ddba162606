package hook

import (
	"errors"
	"sync"
)

var (
	// ErrStaleToken is returned when a Source is completed or awaited with a
	// token from an earlier cycle.
	ErrStaleToken = errors.New("hook: stale completion token")

	// ErrAlreadyCompleted is returned when a Source cycle is completed twice.
	ErrAlreadyCompleted = errors.New("hook: completion already signaled")
)

// Token identifies one reset cycle of a Source.
type Token uint64

// Source is a reusable completion primitive. Each cycle starts with Reset,
// is completed exactly once with SetResult or SetError, and is consumed by
// Wait.
//
// A Source must not be reset while a previous cycle is still being awaited.
// The engine never overlaps invocations, so a Source bound to a single hook
// satisfies this without further coordination.
type Source[T any] struct {
	mu        sync.Mutex
	token     Token
	done      chan struct{}
	completed bool
	value     T
	err       error
}

// NewSource creates a Source ready for its first Reset.
func NewSource[T any]() *Source[T] {
	return &Source[T]{}
}

// NewSignal creates a valueless Source.
func NewSignal() *Source[struct{}] {
	return NewSource[struct{}]()
}

// Reset starts a new cycle and returns its token. Completions carrying an
// older token are rejected.
func (s *Source[T]) Reset() Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	s.token++
	s.done = make(chan struct{})
	s.completed = false
	s.value = zero
	s.err = nil
	return s.token
}

// Token returns the token of the current cycle.
func (s *Source[T]) Token() Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SetResult completes the cycle identified by tok with v.
func (s *Source[T]) SetResult(tok Token, v T) error {
	return s.complete(tok, v, nil)
}

// SetError completes the cycle identified by tok with err.
func (s *Source[T]) SetError(tok Token, err error) error {
	var zero T
	return s.complete(tok, zero, err)
}

func (s *Source[T]) complete(tok Token, v T, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done == nil || tok != s.token {
		return ErrStaleToken
	}
	if s.completed {
		return ErrAlreadyCompleted
	}
	s.completed = true
	s.value = v
	s.err = err
	close(s.done)
	return nil
}

// Wait blocks until the cycle identified by tok is completed and returns its
// outcome.
func (s *Source[T]) Wait(tok Token) (T, error) {
	s.mu.Lock()
	if s.done == nil || tok != s.token {
		s.mu.Unlock()
		var zero T
		return zero, ErrStaleToken
	}
	done := s.done
	s.mu.Unlock()

	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok != s.token {
		var zero T
		return zero, ErrStaleToken
	}
	return s.value, s.err
}

// IsCompleted reports whether the current cycle has been signaled.
func (s *Source[T]) IsCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}
