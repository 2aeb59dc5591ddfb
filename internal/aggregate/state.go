package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Progress maps a contract key ("chainID:address", see ContractKey) to the
// last block folded for that contract.
type Progress map[string]uint64

// StateStore persists per-contract fold progress.
type StateStore interface {
	Load(ctx context.Context) (Progress, error)
	Save(ctx context.Context, progress Progress) error
}

// FileStateStore stores progress in a local JSON file.
type FileStateStore struct {
	Path string
}

type stateRecord struct {
	Contracts Progress `json:"contracts"`
	UpdatedAt string   `json:"updated_at"`
}

func (s *FileStateStore) Load(ctx context.Context) (Progress, error) {
	progress := Progress{}
	if s == nil || s.Path == "" {
		return progress, nil
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return progress, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}

	var rec stateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	for key, block := range rec.Contracts {
		progress[key] = block
	}
	return progress, nil
}

func (s *FileStateStore) Save(ctx context.Context, progress Progress) error {
	if s == nil || s.Path == "" {
		return nil
	}
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	data, err := json.Marshal(stateRecord{
		Contracts: progress,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	// Write then rename so a crash never leaves a half-written file.
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}
