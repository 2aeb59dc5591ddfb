package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"escrowScope/internal/model"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS escrow_events (
	chain_id      BIGINT      NOT NULL,
	block_number  BIGINT      NOT NULL,
	tx_hash       TEXT        NOT NULL,
	log_index     BIGINT      NOT NULL,
	block_hash    TEXT        NOT NULL,
	address       TEXT        NOT NULL,
	event_name    TEXT        NOT NULL,
	signature     TEXT        NOT NULL,
	block_ts      BIGINT      NOT NULL,
	decoded       JSONB       NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, block_number, tx_hash, log_index)
);
CREATE INDEX IF NOT EXISTS escrow_events_address_name_idx ON escrow_events (chain_id, address, event_name, block_number);

CREATE TABLE IF NOT EXISTS decode_errors (
	chain_id      BIGINT      NOT NULL,
	block_number  BIGINT      NOT NULL,
	tx_hash       TEXT        NOT NULL,
	log_index     BIGINT      NOT NULL,
	address       TEXT        NOT NULL,
	topic0        TEXT        NOT NULL,
	kind          TEXT        NOT NULL,
	error         TEXT        NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, block_number, tx_hash, log_index)
);

CREATE TABLE IF NOT EXISTS token_allow_list (
	chain_id     BIGINT      NOT NULL,
	contract     TEXT        NOT NULL,
	from_block   BIGINT      NOT NULL,
	to_block     BIGINT      NOT NULL,
	tokens       TEXT[]      NOT NULL,
	computed_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, contract, to_block)
);

CREATE TABLE IF NOT EXISTS indexer_state (
	name            TEXT        NOT NULL,
	contract        TEXT        NOT NULL,
	last_processed  BIGINT      NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (name, contract)
);
`

// Store provides Postgres persistence for decoded events and derived state.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tables the store writes to.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// PutEvents inserts or updates decoded events keyed by log position.
func (s *Store) PutEvents(ctx context.Context, events []model.TypedEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		payload, err := json.Marshal(ev.Decoded)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", ev.EventName, err)
		}
		batch.Queue(`
			INSERT INTO escrow_events (
				chain_id, block_number, tx_hash, log_index, block_hash, address,
				event_name, signature, block_ts, decoded, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
			ON CONFLICT (chain_id, block_number, tx_hash, log_index)
			DO UPDATE SET
				block_hash = EXCLUDED.block_hash,
				address = EXCLUDED.address,
				event_name = EXCLUDED.event_name,
				signature = EXCLUDED.signature,
				block_ts = EXCLUDED.block_ts,
				decoded = EXCLUDED.decoded,
				updated_at = now()
		`,
			int64(ev.ChainID),
			int64(ev.BlockNumber),
			ev.TxHash,
			int64(ev.LogIndex),
			ev.BlockHash,
			ev.Address,
			ev.EventName,
			ev.Signature,
			int64(ev.Timestamp),
			payload,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// PutDecodeErrors records logs that could not be decoded.
func (s *Store) PutDecodeErrors(ctx context.Context, errs []model.DecodeError) error {
	if len(errs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range errs {
		batch.Queue(`
			INSERT INTO decode_errors (
				chain_id, block_number, tx_hash, log_index, address, topic0, kind, error, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
			ON CONFLICT (chain_id, block_number, tx_hash, log_index)
			DO UPDATE SET kind = EXCLUDED.kind, error = EXCLUDED.error
		`,
			int64(rec.ChainID),
			int64(rec.BlockNumber),
			rec.TxHash,
			int64(rec.LogIndex),
			rec.Address,
			rec.Topic0,
			rec.Kind,
			rec.Error,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range errs {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// InsertAllowListSnapshots stores folded allow-lists. A snapshot for the same
// contract and end block replaces the earlier one.
func (s *Store) InsertAllowListSnapshots(ctx context.Context, snapshots []model.AllowListSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		tokens := snap.Tokens
		if tokens == nil {
			tokens = []string{}
		}
		batch.Queue(`
			INSERT INTO token_allow_list (chain_id, contract, from_block, to_block, tokens, computed_at)
			VALUES ($1, lower($2), $3, $4, $5, $6)
			ON CONFLICT (chain_id, contract, to_block)
			DO UPDATE SET
				from_block = EXCLUDED.from_block,
				tokens = EXCLUDED.tokens,
				computed_at = EXCLUDED.computed_at
		`,
			int64(snap.ChainID),
			snap.Contract,
			int64(snap.FromBlock),
			int64(snap.ToBlock),
			tokens,
			snap.ComputedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range snapshots {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LatestAllowList returns the newest snapshot for contract ending at or
// before atOrBefore, or nil when there is none.
func (s *Store) LatestAllowList(ctx context.Context, chainID uint64, contract string, atOrBefore uint64) (*model.AllowListSnapshot, error) {
	var (
		snap      model.AllowListSnapshot
		fromBlock int64
		toBlock   int64
	)
	row := s.pool.QueryRow(ctx, `
		SELECT contract, from_block, to_block, tokens, computed_at
		FROM token_allow_list
		WHERE chain_id = $1 AND contract = lower($2) AND to_block <= $3
		ORDER BY to_block DESC
		LIMIT 1
	`, int64(chainID), contract, int64(atOrBefore))
	if err := row.Scan(&snap.Contract, &fromBlock, &toBlock, &snap.Tokens, &snap.ComputedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	snap.ChainID = chainID
	snap.FromBlock = uint64(fromBlock)
	snap.ToBlock = uint64(toBlock)
	return &snap, nil
}

// LoadState returns the last processed block of every contract tracked
// under name.
func (s *Store) LoadState(ctx context.Context, name string) (map[string]uint64, error) {
	if name == "" {
		return nil, fmt.Errorf("state name required")
	}
	rows, err := s.pool.Query(ctx, `SELECT contract, last_processed FROM indexer_state WHERE name=$1`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	progress := make(map[string]uint64)
	for rows.Next() {
		var (
			contract string
			last     int64
		)
		if err := rows.Scan(&contract, &last); err != nil {
			return nil, err
		}
		progress[contract] = uint64(last)
	}
	return progress, rows.Err()
}

// SaveState upserts the last processed block per contract under name.
func (s *Store) SaveState(ctx context.Context, name string, progress map[string]uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	if len(progress) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for contract, last := range progress {
		batch.Queue(`
			INSERT INTO indexer_state (name, contract, last_processed, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (name, contract) DO UPDATE
			SET last_processed = EXCLUDED.last_processed, updated_at = now()
		`, name, contract, int64(last))
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range progress {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
