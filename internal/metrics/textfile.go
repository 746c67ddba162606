package metrics

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// WriteTextfile gathers g and writes it to path in the Prometheus text
// format. The file is replaced atomically so a reader never sees a partial
// exposition.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create textfile: %w", err)
	}
	defer os.Remove(tmp.Name())

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(tmp, mf); err != nil {
			tmp.Close()
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close textfile: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename textfile: %w", err)
	}
	return nil
}

// ReadTextfile parses a Prometheus text exposition into metric families
// keyed by name.
func ReadTextfile(path string) (map[string]*dto.MetricFamily, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeText(f)
}

func decodeText(r io.Reader) (map[string]*dto.MetricFamily, error) {
	decoder := expfmt.NewDecoder(r, expfmt.FmtText)
	families := make(map[string]*dto.MetricFamily)

	for {
		var mf dto.MetricFamily
		if err := decoder.Decode(&mf); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode error: %w", err)
		}
		families[mf.GetName()] = &mf
	}
	return families, nil
}

// HookCounts extracts bench_engine_hook_invocations_total by hook label.
func HookCounts(families map[string]*dto.MetricFamily) map[string]float64 {
	return counterByLabel(families, namespace+"_hook_invocations_total", "hook")
}

// HookFailures extracts bench_engine_hook_failures_total by hook label.
func HookFailures(families map[string]*dto.MetricFamily) map[string]float64 {
	return counterByLabel(families, namespace+"_hook_failures_total", "hook")
}

// IterationCounts extracts bench_engine_iterations_total by phase label.
func IterationCounts(families map[string]*dto.MetricFamily) map[string]float64 {
	return counterByLabel(families, namespace+"_iterations_total", "phase")
}

func counterByLabel(families map[string]*dto.MetricFamily, name, label string) map[string]float64 {
	out := make(map[string]float64)
	mf, ok := families[name]
	if !ok {
		return out
	}
	for _, metric := range mf.GetMetric() {
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == label {
				out[lp.GetValue()] += metric.GetCounter().GetValue()
			}
		}
	}
	return out
}
