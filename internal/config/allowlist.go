package config

import (
	"time"

	"github.com/spf13/pflag"
)

// AllowListConfig holds configuration for the allowlist command. With Input
// set, typed events from a JSONL file are folded into Postgres snapshots;
// otherwise the trailing Window blocks are queried live over RPC.
type AllowListConfig struct {
	Input         string
	PGDSN         string
	BatchSize     int
	StateFile     string
	StateName     string
	RecomputeFrom uint64

	RPCURL       string
	Contract     string
	Window       uint64
	MaxRetries   int
	RetryBackoff time.Duration
	Out          string

	LogLevel string
}

// LoadAllowList merges config file, environment variables, and flags into AllowListConfig.
func LoadAllowList(cfgFile string, flags *pflag.FlagSet) (AllowListConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"batch-size":    100,
		"state-name":    "allowlist",
		"window":        uint64(9900),
		"max-retries":   5,
		"retry-backoff": 500 * time.Millisecond,
		"log-level":     "info",
	})
	if err != nil {
		return AllowListConfig{}, err
	}

	cfg := AllowListConfig{
		Input:         v.GetString("in"),
		PGDSN:         v.GetString("pg-dsn"),
		BatchSize:     v.GetInt("batch-size"),
		StateFile:     v.GetString("state-file"),
		StateName:     v.GetString("state-name"),
		RecomputeFrom: v.GetUint64("recompute-from"),
		RPCURL:        v.GetString("rpc"),
		Contract:      v.GetString("contract"),
		Window:        v.GetUint64("window"),
		MaxRetries:    v.GetInt("max-retries"),
		RetryBackoff:  v.GetDuration("retry-backoff"),
		Out:           v.GetString("out"),
		LogLevel:      v.GetString("log-level"),
	}

	return cfg, nil
}
