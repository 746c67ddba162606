package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// PlanFile is the YAML form of a run plan. Absent keys leave the
// corresponding Config field untouched.
type PlanFile struct {
	Benchmark               *string `yaml:"benchmark"`
	WarmupCount             *int    `yaml:"warmup_count"`
	TargetCount             *int    `yaml:"target_count"`
	InvocationsPerIteration *int    `yaml:"invocations_per_iteration"`
	UnrollFactor            *int    `yaml:"unroll_factor"`
	Strategy                *string `yaml:"strategy"`
	EmitWarmup              *bool   `yaml:"emit_warmup"`
	Unit                    *string `yaml:"unit"`
}

// LoadPlanFile reads and decodes a YAML plan file.
func LoadPlanFile(path string) (*PlanFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	pf, err := DecodePlanFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("plan file %s: %w", path, err)
	}
	return pf, nil
}

// DecodePlanFile decodes a YAML plan. Unknown keys are rejected.
func DecodePlanFile(r io.Reader) (*PlanFile, error) {
	var pf PlanFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil {
		if errors.Is(err, io.EOF) {
			return &pf, nil
		}
		return nil, err
	}
	return &pf, nil
}

// Apply copies the keys present in the file into cfg, skipping any field
// whose flag name is in explicit.
func (pf *PlanFile) Apply(cfg *Config, explicit map[string]bool) {
	setString(&cfg.Benchmark, pf.Benchmark, explicit["benchmark"])
	setInt(&cfg.WarmupCount, pf.WarmupCount, explicit["warmup"])
	setInt(&cfg.TargetCount, pf.TargetCount, explicit["target"])
	setInt(&cfg.InvocationsPerIteration, pf.InvocationsPerIteration, explicit["invocations"])
	setInt(&cfg.UnrollFactor, pf.UnrollFactor, explicit["unroll"])
	setString(&cfg.Strategy, pf.Strategy, explicit["strategy"])
	setString(&cfg.Unit, pf.Unit, explicit["unit"])
	if pf.EmitWarmup != nil && !explicit["emit-warmup"] {
		cfg.EmitWarmup = *pf.EmitWarmup
	}
}

func setString(dst *string, v *string, skip bool) {
	if v != nil && !skip {
		*dst = *v
	}
}

func setInt(dst *int, v *int, skip bool) {
	if v != nil && !skip {
		*dst = *v
	}
}
