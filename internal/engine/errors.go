package engine

import (
	"errors"
	"fmt"

	"github.com/randomizedcoder/go-bench-engine/internal/hook"
)

var (
	// ErrHookInvocation matches every *HookError.
	ErrHookInvocation = errors.New("hook invocation failed")

	// ErrConfiguration matches every *ConfigError.
	ErrConfiguration = errors.New("invalid run configuration")

	// ErrAlreadyRun is returned when Run is called on a used Engine.
	ErrAlreadyRun = errors.New("engine already run")
)

// HookError reports a lifecycle hook that failed. It aborts the run.
type HookError struct {
	Role      Role
	Kind      hook.Kind
	Iteration hook.Iteration
	Err       error
}

func (e *HookError) Error() string {
	if e.Iteration.IsZero() {
		return fmt.Sprintf("%s (%s) failed: %v", e.Role, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%s) failed at iteration %s: %v", e.Role, e.Kind, e.Iteration, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrHookInvocation) true for any HookError.
func (e *HookError) Is(target error) bool { return target == ErrHookInvocation }

// FieldError describes one invalid RunPlan or Descriptor field.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConfigError is returned before any hook runs when the plan or descriptor
// is unusable.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %v", ErrConfiguration, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrConfiguration) true for any ConfigError.
func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

// RecordError reports a recorder that could not accept a result. It aborts
// the run like a hook failure.
type RecordError struct {
	Iteration hook.Iteration
	Err       error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record iteration %s: %v", e.Iteration, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }
