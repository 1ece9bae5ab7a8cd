package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// JSONExporter writes the summary as a JSON document.
type JSONExporter struct {
	writer    io.Writer
	filePath  string
	pretty    bool
	runID     string
	startTime time.Time
}

type JSONOption func(*JSONExporter)

func WithJSONWriter(w io.Writer) JSONOption {
	return func(j *JSONExporter) {
		j.writer = w
	}
}

// WithJSONFile writes the document to path, creating parent directories.
func WithJSONFile(path string) JSONOption {
	return func(j *JSONExporter) {
		j.filePath = path
	}
}

// WithRunID tags the document with the run's id.
func WithRunID(id string) JSONOption {
	return func(j *JSONExporter) {
		j.runID = id
	}
}

func WithJSONPretty(pretty bool) JSONOption {
	return func(j *JSONExporter) {
		j.pretty = pretty
	}
}

func NewJSONExporter(opts ...JSONOption) *JSONExporter {
	j := &JSONExporter{
		startTime: time.Now(),
		pretty:    true,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

type JSONMetricsOutput struct {
	Metadata JSONMetadata   `json:"metadata"`
	Summary  *Summary       `json:"summary"`
	Cases    []*CaseMetrics `json:"cases"`
}

type JSONMetadata struct {
	GeneratedAt string `json:"generated_at"`
	StartTime   string `json:"start_time"`
	Duration    string `json:"duration"`
	RunID       string `json:"run_id,omitempty"`
}

func (j *JSONExporter) Export(summary *Summary, cases []*CaseMetrics) error {
	end := time.Now()
	out := JSONMetricsOutput{
		Metadata: JSONMetadata{
			GeneratedAt: end.Format(time.RFC3339),
			StartTime:   j.startTime.Format(time.RFC3339),
			Duration:    end.Sub(j.startTime).String(),
			RunID:       j.runID,
		},
		Summary: summary,
		Cases:   cases,
	}

	var (
		data []byte
		err  error
	)
	if j.pretty {
		data, err = json.MarshalIndent(out, "", "  ")
	} else {
		data, err = json.Marshal(out)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	if j.filePath != "" {
		if err := os.MkdirAll(filepath.Dir(j.filePath), 0o755); err != nil {
			return fmt.Errorf("failed to create summary directory: %w", err)
		}
		if err := os.WriteFile(j.filePath, data, 0o644); err != nil {
			return fmt.Errorf("failed to write summary file: %w", err)
		}
	}
	if j.writer != nil {
		if _, err := j.writer.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	}
	return nil
}
