package suite

import (
	"errors"
	"fmt"
	"io"

	"github.com/randomizedcoder/go-bench-engine/internal/engine"
	"github.com/randomizedcoder/go-bench-engine/internal/hook"
)

// CalledPrefix starts every line printed by the lifecycle benchmarks.
const CalledPrefix = "// ### Called: "

// ErrInjectedFailure is returned by the lifecycle-fail benchmark.
var ErrInjectedFailure = errors.New("injected iteration cleanup failure")

// tracer prints one line per hook call. The iteration hooks keep their own
// counters so the printed numbers are independent of the engine's.
type tracer struct {
	out      io.Writer
	setups   int
	cleanups int

	signal *hook.Source[struct{}]
	valued *hook.Source[int]
}

func (tr *tracer) say(what string) error {
	_, err := fmt.Fprintln(tr.out, CalledPrefix+what)
	return err
}

// globalShape binds a printing global hook in one call shape.
type globalShape func(tr *tracer, name string) hook.Hook

func syncGlobal(tr *tracer, name string) hook.Hook {
	return hook.Sync(func(hook.Iteration) error { return tr.say(name) })
}

func deferredGlobal(tr *tracer, name string) hook.Hook {
	return hook.Deferred(func(hook.Iteration) <-chan error {
		return hook.Go(func() error { return tr.say(name) })
	})
}

func deferredValueGlobal(tr *tracer, name string) hook.Hook {
	return hook.DeferredValue(func(hook.Iteration) <-chan hook.Result[int] {
		return hook.GoValue(func() (int, error) { return 42, tr.say(name) })
	})
}

// Setup and cleanup share one source per descriptor, reset on each use.
func reusableGlobal(tr *tracer, name string) hook.Hook {
	return hook.Reusable(tr.signal, func(_ hook.Iteration, tok hook.Token) error {
		go func() {
			if err := tr.say(name); err != nil {
				_ = tr.signal.SetError(tok, err)
				return
			}
			_ = tr.signal.SetResult(tok, struct{}{})
		}()
		return nil
	})
}

func reusableValueGlobal(tr *tracer, name string) hook.Hook {
	return hook.ReusableValue(tr.valued, func(_ hook.Iteration, tok hook.Token) error {
		go func() {
			if err := tr.say(name); err != nil {
				_ = tr.valued.SetError(tok, err)
				return
			}
			_ = tr.valued.SetResult(tok, 42)
		}()
		return nil
	})
}

func tracedDescriptor(out io.Writer, global globalShape) engine.Descriptor {
	tr := &tracer{
		out:    out,
		signal: hook.NewSignal(),
		valued: hook.NewSource[int](),
	}
	return engine.Descriptor{
		GlobalSetup:   global(tr, "GlobalSetup"),
		GlobalCleanup: global(tr, "GlobalCleanup"),
		IterationSetup: hook.Sync(func(hook.Iteration) error {
			tr.setups++
			return tr.say(fmt.Sprintf("IterationSetup (%d)", tr.setups))
		}),
		IterationCleanup: hook.Sync(func(hook.Iteration) error {
			tr.cleanups++
			return tr.say(fmt.Sprintf("IterationCleanup (%d)", tr.cleanups))
		}),
		Benchmark: hook.Sync(func(hook.Iteration) error { return tr.say("Benchmark") }),
	}
}

func lifecycleBenchmarks() []Benchmark {
	shaped := func(name, desc string, global globalShape) Benchmark {
		return Benchmark{
			Name:        name,
			Description: desc,
			New:         func(out io.Writer) engine.Descriptor { return tracedDescriptor(out, global) },
		}
	}

	return []Benchmark{
		shaped("lifecycle-sync", "prints every hook call, synchronous global hooks", syncGlobal),
		shaped("lifecycle-deferred", "prints every hook call, deferred global hooks", deferredGlobal),
		shaped("lifecycle-deferred-value", "prints every hook call, deferred global hooks with a value", deferredValueGlobal),
		shaped("lifecycle-reusable", "prints every hook call, global hooks completing a reusable source", reusableGlobal),
		shaped("lifecycle-reusable-value", "prints every hook call, global hooks completing a reusable source with a value", reusableValueGlobal),
		{
			Name:        "lifecycle-fail",
			Description: "prints every hook call, iteration cleanup fails on iteration 2",
			New: func(out io.Writer) engine.Descriptor {
				d := tracedDescriptor(out, syncGlobal)
				cleanup := d.IterationCleanup
				d.IterationCleanup = hook.Sync(func(it hook.Iteration) error {
					if err := cleanup.Invoke(it); err != nil {
						return err
					}
					if it.Index == 2 {
						return ErrInjectedFailure
					}
					return nil
				})
				return d
			},
		},
	}
}
