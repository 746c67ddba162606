// Package suite holds the benchmarks built into the binary.
//
// Each benchmark is a factory producing a fresh engine.Descriptor bound to
// an output stream. The measurement process looks a benchmark up by name,
// builds its descriptor with os.Stdout and hands it to the engine.
package suite

import (
	"fmt"
	"io"
	"sort"

	"github.com/randomizedcoder/go-bench-engine/internal/engine"
)

// Factory builds a fresh descriptor. Hooks that print write to out.
type Factory func(out io.Writer) engine.Descriptor

// Benchmark is one registered benchmark.
type Benchmark struct {
	Name        string
	Description string
	New         Factory
}

// All returns every built-in benchmark sorted by name.
func All() []Benchmark {
	all := append(lifecycleBenchmarks(), computeBenchmarks()...)
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// Names returns the names of all built-in benchmarks, sorted.
func Names() []string {
	all := All()
	names := make([]string, len(all))
	for i, b := range all {
		names[i] = b.Name
	}
	return names
}

// Lookup returns the benchmark called name.
func Lookup(name string) (Benchmark, error) {
	for _, b := range All() {
		if b.Name == name {
			return b, nil
		}
	}
	return Benchmark{}, fmt.Errorf("unknown benchmark %q", name)
}

// Descriptor builds the descriptor of the benchmark called name.
func Descriptor(name string, out io.Writer) (engine.Descriptor, error) {
	b, err := Lookup(name)
	if err != nil {
		return engine.Descriptor{}, err
	}
	d := b.New(out)
	d.Name = b.Name
	return d, nil
}
