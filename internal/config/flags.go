package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// ParseFlags parses command-line arguments (without the program name) and
// returns a Config. When -plan is given, the YAML file is applied first and
// flags set explicitly on the command line take precedence.
func ParseFlags(args []string) (*Config, error) {
	return parseFlags(args, os.Stderr)
}

func parseFlags(args []string, output io.Writer) (*Config, error) {
	cfg := DefaultConfig()
	fs := flag.NewFlagSet("go-bench-engine", flag.ContinueOnError)
	fs.SetOutput(output)

	// Custom usage message
	fs.Usage = func() {
		fmt.Fprintf(output, `go-bench-engine - benchmark lifecycle engine with out-of-process measurement

Usage:
  go-bench-engine [flags] [BENCHMARK]

Benchmark Flags:
`)
		// Print flags by category
		printFlagCategory(fs, output, []string{"benchmark", "list", "plan"})

		fmt.Fprintf(output, "\nRun Plan:\n")
		printFlagCategory(fs, output, []string{"warmup", "target", "invocations", "unroll", "strategy", "emit-warmup", "unit"})

		fmt.Fprintf(output, "\nMeasurement Process:\n")
		printFlagCategory(fs, output, []string{"measure", "binary", "timeout"})

		fmt.Fprintf(output, "\nSafety & Diagnostics:\n")
		printFlagCategory(fs, output, []string{"print-cmd", "skip-preflight"})

		fmt.Fprintf(output, "\nObservability:\n")
		printFlagCategory(fs, output, []string{"metrics", "metrics-textfile", "tui", "v", "log-format", "log-level"})

		fmt.Fprintf(output, `
Examples:
  # Run the lifecycle trace with a short plan
  go-bench-engine -warmup 2 -target 3 lifecycle-sync

  # Per-invocation setup/cleanup, warmup samples reported
  go-bench-engine -strategy monitoring -emit-warmup sha256

  # Load the plan from a file; -target overrides the file
  go-bench-engine -plan plan.yaml -target 50

  # Show the measurement command without running it
  go-bench-engine -print-cmd alloc
`)
	}

	// Benchmark selection
	fs.StringVar(&cfg.Benchmark, "benchmark", cfg.Benchmark, "Built-in benchmark to run (see -list)")
	fs.BoolVar(&cfg.ListBenchmarks, "list", cfg.ListBenchmarks, "List built-in benchmarks and exit")
	fs.StringVar(&cfg.PlanFile, "plan", cfg.PlanFile, "YAML run-plan file; explicit flags override its values")

	// Run plan
	fs.IntVar(&cfg.WarmupCount, "warmup", cfg.WarmupCount, "Warmup iterations")
	fs.IntVar(&cfg.TargetCount, "target", cfg.TargetCount, "Target (measured) iterations")
	fs.IntVar(&cfg.InvocationsPerIteration, "invocations", cfg.InvocationsPerIteration, "Invocations per iteration")
	fs.IntVar(&cfg.UnrollFactor, "unroll", cfg.UnrollFactor, "Benchmark calls per invocation")
	fs.StringVar(&cfg.Strategy, "strategy", cfg.Strategy, `Run strategy: "throughput", "coldstart" or "monitoring"`)
	fs.BoolVar(&cfg.EmitWarmup, "emit-warmup", cfg.EmitWarmup, "Also report warmup measurements (own marker)")
	fs.StringVar(&cfg.Unit, "unit", cfg.Unit, "Unit for emitted measurements: ps, ns, us, ms, s")

	// Measurement process
	fs.BoolVar(&cfg.Measure, "measure", cfg.Measure, "Run as the measurement process (protocol on stdout)")
	fs.StringVar(&cfg.BinaryPath, "binary", cfg.BinaryPath, "Measurement binary (default: this executable)")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Kill the measurement process after this long (0 = no limit)")

	// Diagnostics
	fs.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print the measurement command and exit")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, `Prometheus metrics address ("" disables)`)
	fs.StringVar(&cfg.MetricsTextfile, "metrics-textfile", cfg.MetricsTextfile, "Write engine metrics to this file on exit (measurement process)")
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging (debug level)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn" or "error"`)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		explicit[f.Name] = true
	})

	// Positional argument: benchmark name
	if rest := fs.Args(); len(rest) >= 1 {
		cfg.Benchmark = rest[0]
		explicit["benchmark"] = true
	}

	if cfg.PlanFile != "" {
		pf, err := LoadPlanFile(cfg.PlanFile)
		if err != nil {
			return nil, err
		}
		pf.Apply(cfg, explicit)
	}

	return cfg, nil
}

// MeasureArgs returns the arguments that make a measurement process run the
// same benchmark and plan as cfg.
func (c *Config) MeasureArgs() []string {
	args := []string{
		"-measure",
		"-benchmark", c.Benchmark,
		"-warmup", fmt.Sprint(c.WarmupCount),
		"-target", fmt.Sprint(c.TargetCount),
		"-invocations", fmt.Sprint(c.InvocationsPerIteration),
		"-unroll", fmt.Sprint(c.UnrollFactor),
		"-strategy", c.Strategy,
		"-unit", c.Unit,
		"-log-format", c.LogFormat,
		"-log-level", c.LogLevel,
	}
	if c.EmitWarmup {
		args = append(args, "-emit-warmup")
	}
	if c.Verbose {
		args = append(args, "-v")
	}
	if c.MetricsTextfile != "" {
		args = append(args, "-metrics-textfile", c.MetricsTextfile)
	}
	return args
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, w io.Writer, names []string) {
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
					fmt.Fprintf(w, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(w)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	// Infer type from default value format
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	// Check if it looks like a duration
	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
			return "duration"
		}
	}

	// Check if numeric
	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
