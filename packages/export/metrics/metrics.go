// Package metrics summarizes case results: counts per status, pass rate and
// response time percentiles.
package metrics

import (
	"slices"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/abdul-hamid-achik/caserun/packages/core/runner"
)

// CaseMetrics is one case's contribution to a summary.
type CaseMetrics struct {
	Module         string        `json:"module"`
	CaseID         string        `json:"case_id"`
	Method         string        `json:"method,omitempty"`
	URL            string        `json:"url,omitempty"`
	StatusCode     int           `json:"status_code,omitempty"`
	Status         runner.Status `json:"status"`
	ErrorKind      string        `json:"error_kind,omitempty"`
	DurationMs     float64       `json:"duration_ms"`
	ElapsedMs      float64       `json:"elapsed_ms"`
	AssertionCount int           `json:"assertion_count"`
	FailedCount    int           `json:"failed_count"`
}

// Summary aggregates a run. Percentiles are over the main request's
// elapsed time and only include cases that got a response.
type Summary struct {
	Total       int64                     `json:"total"`
	Passed      int64                     `json:"passed"`
	Failed      int64                     `json:"failed"`
	Errored     int64                     `json:"errored"`
	Skipped     int64                     `json:"skipped"`
	LoadErrors  int64                     `json:"load_errors"`
	PassRate    float64                   `json:"pass_rate"`
	MinMs       float64                   `json:"min_ms"`
	MaxMs       float64                   `json:"max_ms"`
	AvgMs       float64                   `json:"avg_ms"`
	P50Ms       float64                   `json:"p50_ms"`
	P95Ms       float64                   `json:"p95_ms"`
	P99Ms       float64                   `json:"p99_ms"`
	StatusCodes map[int]int64             `json:"status_codes"`
	ErrorKinds  map[string]int64          `json:"error_kinds,omitempty"`
	ByModule    map[string]*ModuleSummary `json:"by_module"`
	DurationMs  float64                   `json:"duration_ms"`
}

type ModuleSummary struct {
	Module  string `json:"module"`
	Passed  int64  `json:"passed"`
	Failed  int64  `json:"failed"`
	Errored int64  `json:"errored"`
	Skipped int64  `json:"skipped"`
}

// Exporter writes a finished summary somewhere.
type Exporter interface {
	Export(summary *Summary, cases []*CaseMetrics) error
}

// Collector accumulates case results.
type Collector struct {
	cases     []*CaseMetrics
	summary   *Summary
	histogram *hdrhistogram.Histogram
	exporters []Exporter
}

func NewCollector(exporters ...Exporter) *Collector {
	return &Collector{
		summary: &Summary{
			StatusCodes: make(map[int]int64),
			ErrorKinds:  make(map[string]int64),
			ByModule:    make(map[string]*ModuleSummary),
		},
		// 1us to 60s, 3 significant digits
		histogram: hdrhistogram.New(1, 60_000_000, 3),
		exporters: exporters,
	}
}

// RecordModule adds every result of m.
func (c *Collector) RecordModule(m *runner.ModuleResult) {
	c.summary.LoadErrors += int64(len(m.LoadErrors))
	c.summary.DurationMs += ms(m.Duration)
	if _, ok := c.summary.ByModule[m.Module]; !ok {
		c.summary.ByModule[m.Module] = &ModuleSummary{Module: m.Module}
	}
	for _, r := range m.Results {
		c.Record(r)
	}
}

// Record adds one case result.
func (c *Collector) Record(r *runner.CaseResult) {
	cm := &CaseMetrics{
		Module:     r.Module,
		CaseID:     r.ID,
		Status:     r.Status,
		ErrorKind:  r.ErrorKind,
		DurationMs: ms(r.Duration),
	}
	if r.Execution != nil {
		cm.Method = r.Execution.Method
		cm.URL = r.Execution.URL
		cm.StatusCode = r.Execution.StatusCode
		cm.ElapsedMs = ms(r.Execution.Elapsed)
	}
	if r.Outcome != nil {
		cm.AssertionCount = len(r.Outcome.Units)
		cm.FailedCount = len(r.Outcome.Failures())
	}
	c.cases = append(c.cases, cm)

	s := c.summary
	mod, ok := s.ByModule[r.Module]
	if !ok {
		mod = &ModuleSummary{Module: r.Module}
		s.ByModule[r.Module] = mod
	}
	s.Total++
	switch r.Status {
	case runner.StatusPassed:
		s.Passed++
		mod.Passed++
	case runner.StatusFailed:
		s.Failed++
		mod.Failed++
	case runner.StatusError:
		s.Errored++
		mod.Errored++
	case runner.StatusSkipped:
		s.Skipped++
		mod.Skipped++
	}
	if r.ErrorKind != "" {
		s.ErrorKinds[r.ErrorKind]++
	}
	if cm.StatusCode != 0 {
		s.StatusCodes[cm.StatusCode]++
		_ = c.histogram.RecordValue(max(r.Execution.Elapsed.Microseconds(), 1))
	}
}

// Summary computes the derived figures and returns the aggregate.
func (c *Collector) Summary() *Summary {
	s := c.summary
	if ran := s.Total - s.Skipped; ran > 0 {
		s.PassRate = float64(s.Passed) / float64(ran) * 100
	}
	if c.histogram.TotalCount() > 0 {
		s.MinMs = us(c.histogram.Min())
		s.MaxMs = us(c.histogram.Max())
		s.AvgMs = c.histogram.Mean() / 1000
		s.P50Ms = us(c.histogram.ValueAtQuantile(50))
		s.P95Ms = us(c.histogram.ValueAtQuantile(95))
		s.P99Ms = us(c.histogram.ValueAtQuantile(99))
	}
	return s
}

// Cases returns the recorded per-case metrics, slowest first.
func (c *Collector) Cases() []*CaseMetrics {
	out := slices.Clone(c.cases)
	slices.SortStableFunc(out, func(a, b *CaseMetrics) int {
		switch {
		case a.ElapsedMs > b.ElapsedMs:
			return -1
		case a.ElapsedMs < b.ElapsedMs:
			return 1
		}
		return 0
	})
	return out
}

// Flush hands the summary to every exporter.
func (c *Collector) Flush() error {
	s := c.Summary()
	for _, exp := range c.exporters {
		if err := exp.Export(s, c.cases); err != nil {
			return err
		}
	}
	return nil
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func us(v int64) float64 {
	return float64(v) / 1000
}
