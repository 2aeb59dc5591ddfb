package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"escrowScope/internal/chain"
	"escrowScope/internal/model"
	"escrowScope/internal/storage"
)

// LogSource is the chain access the runner needs.
type LogSource interface {
	ChainID(ctx context.Context) (uint64, error)
	LatestBlock(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FetchLogs(ctx context.Context, q model.LogQuery) ([]model.RawLog, error)
}

// RunConfig holds runtime settings for the indexer.
type RunConfig struct {
	FromBlock         uint64
	ToBlock           uint64
	Addresses         []common.Address
	Topic0            []common.Hash
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
}

// Runner streams logs from the chain and writes them to storage.
type Runner struct {
	cfg        RunConfig
	source     LogSource
	storage    storage.Storage
	logger     *zap.Logger
	now        func() time.Time
	seen       map[string]struct{}
	checkpoint *CheckpointStore
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, source LogSource, storageSink storage.Storage, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		source:     source,
		storage:    storageSink,
		logger:     logger,
		now:        time.Now,
		seen:       make(map[string]struct{}),
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// Run executes the indexing loop.
func (r *Runner) Run(ctx context.Context) error {
	if r.source == nil {
		return fmt.Errorf("log source is nil")
	}
	if r.storage == nil {
		return fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if len(r.cfg.Addresses) == 0 {
		return fmt.Errorf("at least one address is required")
	}

	chainID, err := r.source.ChainID(ctx)
	if err != nil {
		return err
	}

	from := r.cfg.FromBlock
	to := r.cfg.ToBlock
	if to == 0 {
		latest, err := r.source.LatestBlock(ctx)
		if err != nil {
			return err
		}
		to = latest
	}

	scope := QueryScope(chainID, r.cfg.Addresses, r.cfg.Topic0)
	if r.checkpoint != nil {
		cp, ok, err := r.checkpoint.Load()
		if err != nil {
			return err
		}
		switch {
		case ok && cp.Scope != scope:
			r.logger.Warn("checkpoint belongs to another query, ignoring it",
				zap.String("checkpoint_scope", cp.Scope),
				zap.String("scope", scope),
				zap.Uint64("last_processed", cp.LastProcessedBlock),
			)
		case ok && cp.LastProcessedBlock >= from:
			from = cp.LastProcessedBlock + 1
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cp.LastProcessedBlock), zap.Uint64("from", from))
		}
	}

	if from > to {
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	var topics [][]common.Hash
	if len(r.cfg.Topic0) > 0 {
		topics = [][]common.Hash{r.cfg.Topic0}
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.logger.Info("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

		logs, err := r.fetchRange(ctx, blockRange, topics)
		if err != nil {
			return err
		}

		ingestedAt := r.now().UTC().Format(time.RFC3339Nano)
		records := make([]model.LogRecord, 0, len(logs))
		for _, log := range logs {
			if r.isDuplicate(log) {
				continue
			}

			ts, err := r.source.BlockTimestamp(ctx, log.BlockNumber)
			if err != nil {
				return err
			}
			records = append(records, model.NewLogRecord(chainID, log, ts, ingestedAt))
		}

		if err := r.storage.PutLogBatch(records); err != nil {
			return fmt.Errorf("store logs: %w", err)
		}

		if r.checkpoint != nil {
			if err := r.checkpoint.Save(scope, blockRange.To); err != nil {
				return err
			}
		}

		r.logger.Info("batch complete", zap.Int("logs", len(records)), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	}

	return nil
}

// fetchRange fetches rng, halving it while the node rejects it as too large.
func (r *Runner) fetchRange(ctx context.Context, rng BlockRange, topics [][]common.Hash) ([]model.RawLog, error) {
	logs, err := r.source.FetchLogs(ctx, model.LogQuery{
		Addresses: r.cfg.Addresses,
		Topics:    topics,
		FromBlock: rng.From,
		ToBlock:   rng.To,
	})
	if err == nil || !errors.Is(err, chain.ErrRangeTooLarge) {
		return logs, err
	}

	left, right, ok := rng.Halve()
	if !ok {
		return nil, err
	}
	r.logger.Warn("log range too large, splitting",
		zap.Uint64("from", rng.From),
		zap.Uint64("to", rng.To),
		zap.Uint64("split_at", left.To),
	)

	logs, err = r.fetchRange(ctx, left, topics)
	if err != nil {
		return nil, err
	}
	more, err := r.fetchRange(ctx, right, topics)
	if err != nil {
		return nil, err
	}
	return append(logs, more...), nil
}

func (r *Runner) isDuplicate(log model.RawLog) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.LogIndex)
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	return false
}
