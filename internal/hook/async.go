package hook

import (
	"runtime/debug"
)

// Result is the outcome of a deferred completion carrying a value.
type Result[T any] struct {
	Value T
	Err   error
}

// Go runs fn on a new goroutine and returns a channel that receives its
// error exactly once. It is a convenience for writing Deferred hooks.
//
// A panic in fn is delivered as a *PanicError.
func Go(fn func() error) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
		done <- fn()
	}()
	return done
}

// GoValue is Go for functions producing a value.
func GoValue[T any](fn func() (T, error)) <-chan Result[T] {
	done := make(chan Result[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Result[T]{Err: &PanicError{Value: r, Stack: debug.Stack()}}
			}
		}()
		v, err := fn()
		done <- Result[T]{Value: v, Err: err}
	}()
	return done
}

// Completed returns an already-signaled completion channel holding err.
func Completed(err error) <-chan error {
	done := make(chan error, 1)
	done <- err
	return done
}
