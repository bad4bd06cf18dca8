package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// JSONExporter writes the snapshot as one JSON document.
type JSONExporter struct {
	writer   io.Writer
	filePath string
	pretty   bool
}

// JSONOption is a functional option for JSONExporter
type JSONOption func(*JSONExporter)

// WithJSONWriter sets the output writer for JSON metrics
func WithJSONWriter(w io.Writer) JSONOption {
	return func(j *JSONExporter) {
		j.writer = w
	}
}

// WithJSONFile sets the output file for JSON metrics
func WithJSONFile(path string) JSONOption {
	return func(j *JSONExporter) {
		j.filePath = path
	}
}

// WithJSONPretty enables pretty-printed JSON output
func WithJSONPretty(pretty bool) JSONOption {
	return func(j *JSONExporter) {
		j.pretty = pretty
	}
}

func NewJSONExporter(opts ...JSONOption) *JSONExporter {
	j := &JSONExporter{pretty: true}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *JSONExporter) Name() string {
	return "json"
}

func (j *JSONExporter) Export(_ context.Context, s *Snapshot) error {
	w := j.writer
	if j.filePath != "" {
		f, err := os.Create(j.filePath)
		if err != nil {
			return fmt.Errorf("failed to create metrics file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if w == nil {
		return fmt.Errorf("no json output configured")
	}

	enc := json.NewEncoder(w)
	if j.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(s)
}
