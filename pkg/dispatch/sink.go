package dispatch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Sink appends one JSON line per result record to a model's output file.
// The file is truncated when the sink opens and every record goes straight
// to the file descriptor, so partial progress survives a crash. The sink
// never retries and never deduplicates.
type Sink struct {
	f *os.File
}

// NewSink opens (and truncates) the output file for one dispatch run,
// creating parent directories as needed.
func NewSink(path string) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return &Sink{f: f}, nil
}

// Write appends one record as a JSON line.
func (s *Sink) Write(record map[string]any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal result record: %w", err)
	}
	if _, err := s.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write result record: %w", err)
	}
	return nil
}

// Close closes the output file.
func (s *Sink) Close() error {
	return s.f.Close()
}
