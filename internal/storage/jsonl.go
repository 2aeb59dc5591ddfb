package storage

import (
	"fmt"
	"sync"

	"escrowScope/internal/model"
)

// RawLogFile appends exported log records to a JSONL file, the input of the
// decode command. Every batch is opened, written and closed on its own so a
// checkpoint is only saved after its lines reached the file.
type RawLogFile struct {
	path string
	mu   sync.Mutex
}

func NewRawLogFile(path string) *RawLogFile {
	return &RawLogFile{path: path}
}

// PutLogBatch appends logs as JSON lines.
func (s *RawLogFile) PutLogBatch(logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := NewJSONLWriter(s.path, true)
	if err != nil {
		return fmt.Errorf("open raw log file: %w", err)
	}
	for _, record := range logs {
		if err := w.Write(record); err != nil {
			w.Close()
			return fmt.Errorf("write log %d:%d: %w", record.BlockNumber, record.LogIndex, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close raw log file: %w", err)
	}
	return nil
}
