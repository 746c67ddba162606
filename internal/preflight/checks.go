// Package preflight provides startup validation checks for the host.
package preflight

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-bench-engine/internal/engine"
)

// LargePlanIterations is the total iteration count above which the plan
// check warns.
const LargePlanIterations = 1_000_000

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Options selects what RunAll checks.
type Options struct {
	// BinaryPath is the measurement binary.
	BinaryPath string

	Plan engine.RunPlan

	// MetricsAddr is checked for bindability when set.
	MetricsAddr string
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks.
func RunAll(opts Options) *Result {
	result := &Result{
		Checks: make([]Check, 0, 5),
		Passed: true,
	}
	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkBinary(opts.BinaryPath))
	add(checkFileDescriptors())
	add(checkCPU())
	add(checkPlan(opts.Plan))
	if opts.MetricsAddr != "" {
		add(checkMetricsAddr(opts.MetricsAddr))
	}

	return result
}

// checkBinary verifies the measurement binary is executable and answers
// -version.
func checkBinary(path string) Check {
	info, err := os.Stat(path)
	if err != nil {
		return Check{
			Name:    "measure_binary",
			Passed:  false,
			Message: fmt.Sprintf("not found at %s: %v", path, err),
		}
	}
	if !info.Mode().IsRegular() || info.Mode().Perm()&0o111 == 0 {
		return Check{
			Name:    "measure_binary",
			Passed:  false,
			Message: fmt.Sprintf("%s is not an executable file", path),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return Check{
			Name:    "measure_binary",
			Passed:  false,
			Message: fmt.Sprintf("%s -version failed: %v", path, err),
		}
	}

	// "go-bench-engine v1.2.3"
	version := "unknown"
	first, _, _ := strings.Cut(string(output), "\n")
	if parts := strings.Fields(first); len(parts) >= 2 {
		version = parts[1]
	}

	return Check{
		Name:    "measure_binary",
		Passed:  true,
		Message: fmt.Sprintf("found at %s (version %s)", path, version),
	}
}

// checkFileDescriptors verifies the host can open the pipes, the metrics
// listener and a few files.
func checkFileDescriptors() Check {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: "unable to check (getrlimit failed)",
		}
	}

	const required = 64
	actual := int(min(limit.Cur, uint64(1<<31-1)))

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d)", actual, required),
	}
}

// checkCPU reports CPU and GOMAXPROCS. A single CPU is a warning: the host
// and the measurement process share it.
func checkCPU() Check {
	cpus := runtime.NumCPU()
	procs := runtime.GOMAXPROCS(0)
	return Check{
		Name:    "cpu",
		Passed:  true,
		Warning: cpus < 2,
		Message: fmt.Sprintf("%d CPUs, GOMAXPROCS=%d", cpus, procs),
	}
}

// checkPlan warns about plans that will take very long.
func checkPlan(plan engine.RunPlan) Check {
	total := plan.TotalIterations()
	calls := int64(total) * plan.OperationsPerIteration()
	return Check{
		Name:    "run_plan",
		Passed:  true,
		Warning: total > LargePlanIterations,
		Message: fmt.Sprintf("%d iterations, %d benchmark calls (%s)", total, calls, plan.Strategy),
	}
}

// checkMetricsAddr verifies the metrics address can be bound.
func checkMetricsAddr(addr string) Check {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return Check{
			Name:    "metrics_addr",
			Passed:  false,
			Message: fmt.Sprintf("cannot listen on %s: %v", addr, err),
		}
	}
	ln.Close()
	return Check{
		Name:    "metrics_addr",
		Passed:  true,
		Message: fmt.Sprintf("%s available", addr),
	}
}

// PrintResults prints the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 1024 (or edit /etc/security/limits.conf)"
	case "measure_binary":
		return "pass -binary with the path to a go-bench-engine build"
	case "metrics_addr":
		return `choose another -metrics address or disable it with -metrics ""`
	default:
		return "see documentation"
	}
}
