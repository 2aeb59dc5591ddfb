package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"escrowScope/internal/chain"
	"escrowScope/internal/config"
	"escrowScope/internal/escrow"
	"escrowScope/internal/indexer"
	"escrowScope/internal/query"
)

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "RPC URL")
	cmd.Flags().String("contract", "", "contract address")
	cmd.Flags().Uint64("from", 0, "start block (inclusive)")
	cmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("out", "", "output JSON path, empty means stdout")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func newBridgeCmd() *cobra.Command {
	bridgeCmd := &cobra.Command{
		Use:   "bridge",
		Short: "List bridge deposits, optionally from given origin addresses",
		RunE:  runBridge,
	}
	addQueryFlags(bridgeCmd)
	bridgeCmd.Flags().StringSlice("origin", nil, "origin addresses (comma-separated)")
	return bridgeCmd
}

func newOffersCmd() *cobra.Command {
	offersCmd := &cobra.Command{
		Use:   "offers",
		Short: "List offer registrations",
		RunE:  runOffers,
	}
	addQueryFlags(offersCmd)
	offersCmd.Flags().String("schema", escrow.KeyRegister, "offer event schema key (register, register-legacy, lock)")
	offersCmd.Flags().StringSlice("offer-id", nil, "offer ids (comma-separated)")
	offersCmd.Flags().StringSlice("maker", nil, "maker addresses (comma-separated)")
	offersCmd.Flags().StringSlice("counterparty", nil, "counterparty addresses (comma-separated)")
	return offersCmd
}

func runBridge(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadBridge(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	origins, err := indexer.ParseAddresses(cfg.Origins)
	if err != nil {
		return err
	}

	return withQueryService(cfg.QueryConfig, func(ctx context.Context, svc *query.Service, contract common.Address, from, to uint64) (interface{}, error) {
		return svc.BridgeDeposits(ctx, query.BridgeQuery{
			Contract:        contract,
			OriginAddresses: origins,
			FromBlock:       from,
			ToBlock:         to,
		})
	})
}

func runOffers(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadOffers(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	makers, err := indexer.ParseAddresses(cfg.Makers)
	if err != nil {
		return err
	}
	counterparties, err := indexer.ParseAddresses(cfg.Counterparties)
	if err != nil {
		return err
	}
	offerIDs := make([]*big.Int, 0, len(cfg.OfferIDs))
	for _, raw := range cfg.OfferIDs {
		id, ok := new(big.Int).SetString(raw, 0)
		if !ok || id.Sign() < 0 {
			return fmt.Errorf("invalid offer id: %s", raw)
		}
		offerIDs = append(offerIDs, id)
	}

	return withQueryService(cfg.QueryConfig, func(ctx context.Context, svc *query.Service, contract common.Address, from, to uint64) (interface{}, error) {
		return svc.Offers(ctx, query.OfferQuery{
			Contract:       contract,
			SchemaKey:      cfg.SchemaKey,
			OfferIDs:       offerIDs,
			Makers:         makers,
			Counterparties: counterparties,
			FromBlock:      from,
			ToBlock:        to,
		})
	})
}

type queryFunc func(ctx context.Context, svc *query.Service, contract common.Address, from, to uint64) (interface{}, error)

// withQueryService wires the RPC source into a query service, resolves the
// block range and writes the result as JSON.
func withQueryService(cfg config.QueryConfig, run queryFunc) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.Contract) {
		return fmt.Errorf("invalid contract address: %s", cfg.Contract)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	source := chain.NewSource(chain.SourceConfig{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, chainClient, logger)

	to := cfg.ToBlock
	if to == 0 {
		to, err = source.LatestBlock(ctx)
		if err != nil {
			return err
		}
	}
	if cfg.FromBlock > to {
		return fmt.Errorf("from block %d is after to block %d", cfg.FromBlock, to)
	}

	logger.Info("query start",
		zap.String("contract", cfg.Contract),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", to),
	)

	result, err := run(ctx, query.NewService(source, logger), common.HexToAddress(cfg.Contract), cfg.FromBlock, to)
	if err != nil {
		return err
	}
	return writeJSON(cfg.Out, result)
}

func writeJSON(path string, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
