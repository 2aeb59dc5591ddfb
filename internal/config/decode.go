package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"escrowScope/internal/escrow"
)

// DecodeConfig holds configuration for the decode command.
type DecodeConfig struct {
	In        string
	Out       string
	Errors    string
	Events    []string
	Policy    string
	Workers   int
	BatchSize int
	PGDSN     string
	LogLevel  string
}

// LoadDecode merges config file, environment variables, and flags into DecodeConfig.
func LoadDecode(cfgFile string, flags *pflag.FlagSet) (DecodeConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"out":        "./data/typed_events.jsonl",
		"errors":     "./data/decode_errors.jsonl",
		"policy":     "fail-fast",
		"batch-size": 1000,
		"log-level":  "info",
	})
	if err != nil {
		return DecodeConfig{}, err
	}

	cfg := DecodeConfig{
		In:        v.GetString("in"),
		Out:       v.GetString("out"),
		Errors:    v.GetString("errors"),
		Events:    getStringSlice(v, "event"),
		Policy:    v.GetString("policy"),
		Workers:   v.GetInt("workers"),
		BatchSize: v.GetInt("batch-size"),
		PGDSN:     v.GetString("pg-dsn"),
		LogLevel:  v.GetString("log-level"),
	}

	return cfg, nil
}

// ParsePolicy maps a policy name to a batch decode policy.
func ParsePolicy(name string) (escrow.BatchPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "fail-fast", "failfast":
		return escrow.FailFast, nil
	case "skip", "skip-invalid":
		return escrow.SkipInvalid, nil
	default:
		return 0, fmt.Errorf("unknown decode policy: %s", name)
	}
}
