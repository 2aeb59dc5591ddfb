package aggregate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"escrowScope/internal/model"
)

// Config controls aggregation behavior.
type Config struct {
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
}

// SnapshotStore persists folded allow-list snapshots.
type SnapshotStore interface {
	LatestAllowList(ctx context.Context, chainID uint64, contract string, atOrBefore uint64) (*model.AllowListSnapshot, error)
	InsertAllowListSnapshots(ctx context.Context, snapshots []model.AllowListSnapshot) error
}

// Aggregator folds typed allow-list events into per-contract snapshots.
type Aggregator struct {
	cfg          Config
	store        SnapshotStore
	logger       *zap.Logger
	now          func() time.Time
	accumulators map[string]*Accumulator
}

func NewAggregator(cfg Config, store SnapshotStore, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		now:          time.Now,
		accumulators: make(map[string]*Accumulator),
	}
}

// Run folds the allow-list events of a typed events JSONL file.
//
// Each contract resumes from its latest stored snapshot at or before its
// start block (saved progress, or RecomputeFrom-1 when set) and replays every
// input event after that snapshot's end block. Without such a snapshot the
// contract is folded from an empty set over the whole input.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	if a.store == nil {
		return fmt.Errorf("store is nil")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 100
	}

	progress, err := a.loadProgress(ctx)
	if err != nil {
		return err
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var total, applied, skipped, failed int

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			failed++
			a.logger.Warn("decode typed event", zap.Error(err))
			continue
		}

		if record.EventName != model.EventAllowListUpdated {
			skipped++
			continue
		}

		acc, err := a.accumulator(ctx, record, a.startBlock(progress, record))
		if err != nil {
			return err
		}
		if acc.Covers(record.BlockNumber) {
			skipped++
			continue
		}
		if err := acc.AddEvent(record); err != nil {
			failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.String("contract", record.Address), zap.Uint64("block", record.BlockNumber))
			continue
		}
		applied++
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}

	snapshots := a.flushAll()
	for start := 0; start < len(snapshots); start += a.cfg.BatchSize {
		end := start + a.cfg.BatchSize
		if end > len(snapshots) {
			end = len(snapshots)
		}
		if err := a.store.InsertAllowListSnapshots(ctx, snapshots[start:end]); err != nil {
			return fmt.Errorf("insert snapshots: %w", err)
		}
	}

	for _, snap := range snapshots {
		progress[ContractKey(snap.ChainID, snap.Contract)] = snap.ToBlock
	}
	if err := a.saveProgress(ctx, progress); err != nil {
		return err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", total),
		zap.Int("applied", applied),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
		zap.Int("snapshots", len(snapshots)),
		zap.Int("contracts", len(progress)),
	)

	return nil
}

// startBlock is the block through which record's contract counts as folded.
func (a *Aggregator) startBlock(progress Progress, record model.TypedEventRecord) uint64 {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1
	}
	return progress[ContractKey(record.ChainID, record.Address)]
}

func (a *Aggregator) accumulator(ctx context.Context, record model.TypedEventRecord, startBlock uint64) (*Accumulator, error) {
	key := ContractKey(record.ChainID, record.Address)
	if acc := a.accumulators[key]; acc != nil {
		return acc, nil
	}

	var (
		base      []common.Address
		baseBlock uint64
	)
	if startBlock > 0 {
		prev, err := a.store.LatestAllowList(ctx, record.ChainID, record.Address, startBlock)
		if err != nil {
			return nil, fmt.Errorf("load snapshot for %s: %w", record.Address, err)
		}
		if prev != nil {
			for _, token := range prev.Tokens {
				if !common.IsHexAddress(token) {
					return nil, fmt.Errorf("invalid token in snapshot for %s: %s", record.Address, token)
				}
				base = append(base, common.HexToAddress(token))
			}
			baseBlock = prev.ToBlock
		}
	}

	acc := NewAccumulator(record.ChainID, record.Address, base, baseBlock)
	a.accumulators[key] = acc
	return acc, nil
}

// flushAll snapshots every contract that received changes this run.
func (a *Aggregator) flushAll() []model.AllowListSnapshot {
	keys := make([]string, 0, len(a.accumulators))
	for key, acc := range a.accumulators {
		if len(acc.Changes) > 0 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	computedAt := a.now().UTC()
	snapshots := make([]model.AllowListSnapshot, 0, len(keys))
	for _, key := range keys {
		snapshot := a.accumulators[key].Snapshot()
		snapshot.ComputedAt = computedAt
		snapshots = append(snapshots, snapshot)
	}
	a.accumulators = make(map[string]*Accumulator)
	return snapshots
}

func (a *Aggregator) loadProgress(ctx context.Context) (Progress, error) {
	if a.cfg.StateStore == nil {
		return Progress{}, nil
	}
	progress, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		progress = Progress{}
	}
	return progress, nil
}

func (a *Aggregator) saveProgress(ctx context.Context, progress Progress) error {
	if a.cfg.StateStore == nil {
		return nil
	}
	return a.cfg.StateStore.Save(ctx, progress)
}

// ContractKey identifies a contract in Progress.
func ContractKey(chainID uint64, address string) string {
	return fmt.Sprintf("%d:%s", chainID, strings.ToLower(address))
}
