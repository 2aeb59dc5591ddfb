package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"escrowScope/internal/config"
	"escrowScope/internal/model"
)

func newProofCmd() *cobra.Command {
	proofCmd := &cobra.Command{
		Use:   "proof",
		Short: "Validate a bridge Merkle proof file and print it normalized",
		RunE:  runProof,
	}

	proofCmd.Flags().String("in", "", "proof JSON file")
	proofCmd.Flags().String("out", "", "output JSON path, empty means stdout")
	proofCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return proofCmd
}

func runProof(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadProof(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}

	resp, err := loadProof(cfg.In)
	if err != nil {
		return err
	}

	logger.Info("proof loaded",
		zap.String("in", cfg.In),
		zap.String("main_exit_root", resp.Proof.MainExitRoot.Hex()),
		zap.String("rollup_exit_root", resp.Proof.RollupExitRoot.Hex()),
	)
	return writeJSON(cfg.Out, resp)
}

func loadProof(path string) (model.MerkleProofResponse, error) {
	var resp model.MerkleProofResponse
	data, err := os.ReadFile(path)
	if err != nil {
		return resp, fmt.Errorf("read proof: %w", err)
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return resp, fmt.Errorf("parse proof %s: %w", path, err)
	}
	return resp, nil
}
