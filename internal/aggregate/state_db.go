package aggregate

import (
	"context"

	"escrowScope/internal/storage/postgres"
)

// DBStateStore keeps progress in indexer_state, one row per contract under
// Name.
type DBStateStore struct {
	Store *postgres.Store
	Name  string
}

func (s *DBStateStore) Load(ctx context.Context) (Progress, error) {
	if s == nil || s.Store == nil {
		return Progress{}, nil
	}
	rows, err := s.Store.LoadState(ctx, s.Name)
	if err != nil {
		return nil, err
	}
	return Progress(rows), nil
}

func (s *DBStateStore) Save(ctx context.Context, progress Progress) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.SaveState(ctx, s.Name, progress)
}
