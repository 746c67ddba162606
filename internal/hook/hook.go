// Package hook normalizes benchmark lifecycle callbacks into one blocking
// operation.
//
// A lifecycle callback may be written in any of several call shapes:
//
//	None                  absent hook, Invoke is a no-op
//	Sync                  plain call, returns when the call returns
//	Deferred              returns a completion channel without a value
//	DeferredValue         returns a completion channel carrying a value
//	Reusable              completes a resettable Source[struct{}]
//	ReusableValue         completes a resettable Source[T]
//
// Whatever the shape, Hook.Invoke returns only after the callback and all of
// its asynchronous continuation have finished. The scheduler relies on this
// to keep global ordering across iterations.
package hook

import (
	"fmt"
	"runtime/debug"
)

// Kind identifies the call shape a Hook was bound with.
type Kind int

const (
	// KindNone is the zero value: no callback bound.
	KindNone Kind = iota

	// KindSync is a plain synchronous call.
	KindSync

	// KindDeferred returns a single-use completion without a value.
	KindDeferred

	// KindDeferredValue returns a single-use completion carrying a value.
	KindDeferredValue

	// KindReusable completes a resettable Source without a value.
	KindReusable

	// KindReusableValue completes a resettable Source carrying a value.
	KindReusableValue
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindSync:
		return "sync"
	case KindDeferred:
		return "deferred"
	case KindDeferredValue:
		return "deferred_value"
	case KindReusable:
		return "reusable"
	case KindReusableValue:
		return "reusable_value"
	default:
		return "unknown"
	}
}

// IsAsync reports whether the kind completes through a deferred handle.
func (k Kind) IsAsync() bool {
	return k >= KindDeferred
}

// Hook is one bound lifecycle callback. The zero value is an absent hook.
//
// Hook values are immutable and cheap to copy.
type Hook struct {
	kind Kind
	call func(Iteration) error
}

// None returns an absent hook.
func None() Hook {
	return Hook{}
}

// Sync binds a plain synchronous callback. A nil fn yields an absent hook.
func Sync(fn func(Iteration) error) Hook {
	if fn == nil {
		return Hook{}
	}
	return Hook{kind: KindSync, call: fn}
}

// Action binds a synchronous callback that cannot fail and ignores the
// iteration.
func Action(fn func()) Hook {
	if fn == nil {
		return Hook{}
	}
	return Hook{kind: KindSync, call: func(Iteration) error {
		fn()
		return nil
	}}
}

// Deferred binds a callback that starts work and returns a channel signaling
// its completion.
//
// The channel delivers at most one error (nil on success). Closing the
// channel without a value also signals success, as does returning a nil
// channel.
func Deferred(fn func(Iteration) <-chan error) Hook {
	if fn == nil {
		return Hook{}
	}
	return Hook{kind: KindDeferred, call: func(it Iteration) error {
		return awaitErr(fn(it))
	}}
}

// DeferredValue binds a callback whose completion carries a value. The value
// is discarded once the completion has been observed.
func DeferredValue[T any](fn func(Iteration) <-chan Result[T]) Hook {
	if fn == nil {
		return Hook{}
	}
	return Hook{kind: KindDeferredValue, call: func(it Iteration) error {
		done := fn(it)
		if done == nil {
			return nil
		}
		res, ok := <-done
		if !ok {
			return nil
		}
		return res.Err
	}}
}

// Reusable binds a trigger that starts work completing src later.
//
// On every Invoke the hook resets src, calls trigger with the token of the
// new cycle and blocks until src is signaled for that token. An error
// returned by trigger itself aborts the wait.
func Reusable(src *Source[struct{}], trigger func(Iteration, Token) error) Hook {
	if src == nil || trigger == nil {
		return Hook{}
	}
	return Hook{kind: KindReusable, call: reusableCall(src, trigger)}
}

// ReusableValue is Reusable for a source carrying a value. The value is
// discarded.
func ReusableValue[T any](src *Source[T], trigger func(Iteration, Token) error) Hook {
	if src == nil || trigger == nil {
		return Hook{}
	}
	return Hook{kind: KindReusableValue, call: reusableCall(src, trigger)}
}

func reusableCall[T any](src *Source[T], trigger func(Iteration, Token) error) func(Iteration) error {
	return func(it Iteration) error {
		tok := src.Reset()
		if err := trigger(it, tok); err != nil {
			return err
		}
		_, err := src.Wait(tok)
		return err
	}
}

// Kind returns the call shape this hook was bound with.
func (h Hook) Kind() Kind {
	return h.kind
}

// Present reports whether a callback is bound.
func (h Hook) Present() bool {
	return h.call != nil
}

// Invoke runs the callback once and blocks until it has fully completed.
//
// Errors returned or signaled by the callback are returned unchanged. A panic
// inside the synchronous part of the callback is recovered and returned as a
// *PanicError. Invoke on an absent hook is a no-op.
func (h Hook) Invoke(it Iteration) (err error) {
	if h.call == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return h.call(it)
}

func awaitErr(done <-chan error) error {
	if done == nil {
		return nil
	}
	err, ok := <-done
	if !ok {
		return nil
	}
	return err
}

// PanicError is returned by Invoke when the callback panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("hook panicked: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
