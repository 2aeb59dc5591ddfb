package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"escrowScope/internal/aggregate"
	"escrowScope/internal/chain"
	"escrowScope/internal/config"
	"escrowScope/internal/query"
	"escrowScope/internal/storage/postgres"
)

func newAllowListCmd() *cobra.Command {
	allowListCmd := &cobra.Command{
		Use:   "allowlist",
		Short: "Fold TokenAllowListUpdated events into the current allow-list",
		Long: "With --in, folds typed events from a decode run into Postgres snapshots.\n" +
			"Otherwise queries the trailing --window blocks of --contract over RPC and prints the result.",
		RunE: runAllowList,
	}

	allowListCmd.Flags().String("in", "", "input typed events JSONL")
	allowListCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	allowListCmd.Flags().Int("batch-size", 100, "snapshots per DB write")
	allowListCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	allowListCmd.Flags().String("state-name", "allowlist", "indexer_state row used when no state file is given")
	allowListCmd.Flags().Uint64("recompute-from", 0, "refold from this block, ignoring saved progress")
	allowListCmd.Flags().String("rpc", "", "RPC URL")
	allowListCmd.Flags().String("contract", "", "contract emitting TokenAllowListUpdated")
	allowListCmd.Flags().Uint64("window", query.DefaultAllowListWindow, "blocks back from head to scan")
	allowListCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	allowListCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	allowListCmd.Flags().String("out", "", "output JSON path, empty means stdout")
	allowListCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return allowListCmd
}

func runAllowList(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadAllowList(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Input != "" {
		return foldAllowListFile(ctx, cfg, logger)
	}
	return queryAllowList(ctx, cfg, logger)
}

func foldAllowListFile(ctx context.Context, cfg config.AllowListConfig, logger *zap.Logger) error {
	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	var stateStore aggregate.StateStore
	if cfg.StateFile != "" {
		stateStore = &aggregate.FileStateStore{Path: cfg.StateFile}
	} else {
		stateStore = &aggregate.DBStateStore{Store: store, Name: cfg.StateName}
	}

	aggregator := aggregate.NewAggregator(aggregate.Config{
		BatchSize:     cfg.BatchSize,
		RecomputeFrom: cfg.RecomputeFrom,
		StateStore:    stateStore,
	}, store, logger)

	logger.Info("allowlist fold start",
		zap.String("in", cfg.Input),
		zap.Int("batch_size", cfg.BatchSize),
		zap.String("state_file", cfg.StateFile),
		zap.Uint64("recompute_from", cfg.RecomputeFrom),
	)

	return aggregator.Run(ctx, cfg.Input)
}

func queryAllowList(ctx context.Context, cfg config.AllowListConfig, logger *zap.Logger) error {
	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.Contract) {
		return fmt.Errorf("invalid contract address: %s", cfg.Contract)
	}

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	source := chain.NewSource(chain.SourceConfig{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, chainClient, logger)
	chainID, err := source.ChainID(ctx)
	if err != nil {
		return err
	}

	snapshot, err := query.NewService(source, logger).TokenAllowList(ctx, common.HexToAddress(cfg.Contract), cfg.Window)
	if err != nil {
		return err
	}
	snapshot.ChainID = chainID
	snapshot.ComputedAt = time.Now().UTC()

	logger.Info("allowlist computed",
		zap.String("contract", snapshot.Contract),
		zap.Uint64("from", snapshot.FromBlock),
		zap.Uint64("to", snapshot.ToBlock),
		zap.Int("tokens", len(snapshot.Tokens)),
	)
	return writeJSON(cfg.Out, snapshot)
}
