package suite

import (
	"crypto/sha256"
	"io"
	"time"

	"github.com/randomizedcoder/go-bench-engine/internal/engine"
	"github.com/randomizedcoder/go-bench-engine/internal/hook"
)

const (
	sha256PayloadSize = 64 * 1024
	allocBatch        = 1024
	sleepInterval     = time.Millisecond
)

func computeBenchmarks() []Benchmark {
	return []Benchmark{
		{Name: "sha256", Description: "SHA-256 of a 64 KiB buffer", New: newSHA256},
		{Name: "sleep", Description: "1ms sleep on another goroutine (deferred benchmark)", New: newSleep},
		{Name: "alloc", Description: "1024 small allocations, released by iteration cleanup", New: newAlloc},
	}
}

func newSHA256(io.Writer) engine.Descriptor {
	var payload []byte

	return engine.Descriptor{
		GlobalSetup: hook.Action(func() {
			payload = make([]byte, sha256PayloadSize)
			for i := range payload {
				payload[i] = byte(i * 31)
			}
		}),
		Benchmark: hook.Action(func() {
			digestSink = sha256.Sum256(payload)
		}),
		GlobalCleanup: hook.Action(func() {
			payload = nil
		}),
	}
}

func newSleep(io.Writer) engine.Descriptor {
	return engine.Descriptor{
		Benchmark: hook.Deferred(func(hook.Iteration) <-chan error {
			return hook.Go(func() error {
				time.Sleep(sleepInterval)
				return nil
			})
		}),
	}
}

// digestSink keeps the hash result live.
var digestSink [sha256.Size]byte

type node struct {
	id   int
	next *node
}

func newAlloc(io.Writer) engine.Descriptor {
	var nodes []*node

	return engine.Descriptor{
		IterationSetup: hook.Action(func() {
			nodes = make([]*node, 0, allocBatch)
		}),
		Benchmark: hook.Sync(func(it hook.Iteration) error {
			var prev *node
			for i := 0; i < allocBatch; i++ {
				n := &node{id: it.Index*allocBatch + i, next: prev}
				nodes = append(nodes, n)
				prev = n
			}
			return nil
		}),
		IterationCleanup: hook.Action(func() {
			nodes = nil
		}),
	}
}
