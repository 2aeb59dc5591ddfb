package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"escrowScope/internal/model"
)

// Backend is the part of Client the log source needs.
type Backend interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
}

// SourceConfig holds retry settings for RPC calls.
type SourceConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// Source is the raw log source: RPC reads with retry and conversion to
// model.RawLog.
type Source struct {
	cfg     SourceConfig
	backend Backend
	logger  *zap.Logger
}

// NewSource builds a Source over backend.
func NewSource(cfg SourceConfig, backend Backend, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{cfg: cfg, backend: backend, logger: logger}
}

// ChainID returns the chain ID as a uint64.
func (s *Source) ChainID(ctx context.Context) (uint64, error) {
	var id *big.Int
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		id, err = s.backend.GetChainID(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get chain id: %w", err)
	}
	if !id.IsUint64() {
		return 0, fmt.Errorf("chain id does not fit in uint64: %s", id)
	}
	return id.Uint64(), nil
}

// LatestBlock returns the current head block number.
func (s *Source) LatestBlock(ctx context.Context) (uint64, error) {
	var latest uint64
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		latest, err = s.backend.LatestBlockNumber(ctx)
		if err != nil {
			s.logger.Warn("latest block fetch failed", zap.Error(err))
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get latest block: %w", err)
	}
	return latest, nil
}

// BlockTimestamp returns the timestamp of block number.
func (s *Source) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	var ts uint64
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = s.backend.BlockTimestamp(ctx, number)
		if err != nil {
			s.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", number))
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("block timestamp %d: %w", number, err)
	}
	return ts, nil
}

// FetchLogs returns the logs matching q in chain order. A range the node
// refuses as too large fails with ErrRangeTooLarge without retrying.
func (s *Source) FetchLogs(ctx context.Context, q model.LogQuery) ([]model.RawLog, error) {
	if q.FromBlock > q.ToBlock {
		return nil, fmt.Errorf("invalid range: from %d > to %d", q.FromBlock, q.ToBlock)
	}
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(q.FromBlock),
		ToBlock:   new(big.Int).SetUint64(q.ToBlock),
		Addresses: q.Addresses,
		Topics:    q.Topics,
	}

	var logs []types.Log
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = s.backend.FilterLogs(ctx, query)
		if err != nil {
			s.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", q.FromBlock), zap.Uint64("to", q.ToBlock))
		}
		return classifyLogsError(err)
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs: %w", err)
	}

	out := make([]model.RawLog, 0, len(logs))
	for _, log := range logs {
		out = append(out, ToRawLog(log))
	}
	return out, nil
}

// ToRawLog converts a go-ethereum log.
func ToRawLog(log types.Log) model.RawLog {
	data := log.Data
	if data == nil {
		data = []byte{}
	}
	return model.RawLog{
		Address:     log.Address,
		Topics:      log.Topics,
		Data:        data,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    uint64(log.Index),
		Removed:     log.Removed,
	}
}
