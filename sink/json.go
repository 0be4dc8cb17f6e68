package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/evdnx/trendsweep/backtest"
)

// JSONFile writes the summary as indented JSON to a single file.
type JSONFile struct {
	path string
}

// NewJSONFile writes to path, creating parent directories on Save.
func NewJSONFile(path string) *JSONFile { return &JSONFile{path: path} }

// Save replaces the file atomically: readers see the old or the new
// summary, never a partial one.
func (j *JSONFile) Save(_ context.Context, s Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(j.path), ".best-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), j.path)
}

// SaveTrades is a no-op; the file only carries the winning parameters.
func (j *JSONFile) SaveTrades(context.Context, string, []backtest.Trade) error { return nil }

// Close implements Sink.
func (j *JSONFile) Close() error { return nil }

// LoadSummary reads a summary written by JSONFile.
func LoadSummary(path string) (Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, err
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return Summary{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if s.Symbol == "" {
		s.Symbol, s.BestParams = s.Instrument, s.BestParameters
	}
	return s, nil
}
