package config

import (
	"errors"
	"fmt"
	"net"

	"github.com/randomizedcoder/go-bench-engine/internal/engine"
	"github.com/randomizedcoder/go-bench-engine/internal/protocol"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	// Benchmark is required unless only listing
	if cfg.Benchmark == "" && !cfg.ListBenchmarks {
		errs = append(errs, ValidationError{
			Field:   "benchmark",
			Message: "benchmark name is required",
		})
	}

	// Strategy must parse
	if _, err := engine.ParseStrategy(cfg.Strategy); err != nil {
		errs = append(errs, ValidationError{
			Field:   "strategy",
			Message: fmt.Sprintf("must be one of: throughput, coldstart, monitoring (got %q)", cfg.Strategy),
		})
	}

	// Plan counts, reported with the engine's field names
	if err := cfg.RunPlan().Validate(); err != nil {
		var cerr *engine.ConfigError
		if errors.As(err, &cerr) {
			errs = append(errs, fieldErrors(cerr.Err)...)
		} else {
			errs = append(errs, err)
		}
	}

	// Unit must be known
	if _, err := protocol.ParseUnit(cfg.Unit); err != nil {
		errs = append(errs, ValidationError{
			Field:   "unit",
			Message: fmt.Sprintf("must be one of: ps, ns, us, ms, s (got %q)", cfg.Unit),
		})
	}

	// Timeout must not be negative
	if cfg.Timeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "timeout",
			Message: "must not be negative",
		})
	}

	// Metrics address must be host:port when set
	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "metrics_addr",
				Message: err.Error(),
			})
		}
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	// Log level must be valid
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.LogLevel] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be one of: debug, info, warn, error (got %q)", cfg.LogLevel),
		})
	}

	// The TUI owns the terminal; the measurement process owns stdout.
	if cfg.Measure && cfg.TUIEnabled {
		errs = append(errs, ValidationError{
			Field:   "tui",
			Message: "-tui cannot be combined with -measure",
		})
	}

	// Return combined errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// fieldErrors converts joined engine field errors to ValidationErrors,
// skipping the strategy field which is reported above.
func fieldErrors(err error) []error {
	var out []error
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []error{err}
	}
	for _, e := range joined.Unwrap() {
		var fe engine.FieldError
		if errors.As(e, &fe) {
			if fe.Field == "strategy" {
				continue
			}
			out = append(out, ValidationError{Field: fe.Field, Message: fe.Message})
			continue
		}
		out = append(out, e)
	}
	return out
}
