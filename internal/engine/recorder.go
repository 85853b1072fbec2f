package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/changmen007/ethsim/internal/ledger"
)

// JSONLRecorder appends portfolio snapshots as JSON lines for later analysis.
type JSONLRecorder struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJSONLRecorder creates/opens the target file and returns a recorder.
func NewJSONLRecorder(path string) (*JSONLRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLRecorder{
		file: file,
		enc:  json.NewEncoder(file),
	}, nil
}

// RecordSnapshot writes a single snapshot to the underlying JSONL file.
func (r *JSONLRecorder) RecordSnapshot(snap ledger.PortfolioSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enc.Encode(snap)
}

// Close flushes and closes the file handle.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// ExportTradeHistory writes the full lot log to a JSON file, mirroring the
// snapshot export format used at session shutdown.
func ExportTradeHistory(path string, records []ledger.TradeRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
