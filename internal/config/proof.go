package config

import "github.com/spf13/pflag"

// ProofConfig holds configuration for the proof command.
type ProofConfig struct {
	In       string
	Out      string
	LogLevel string
}

// LoadProof merges config file, environment variables, and flags into ProofConfig.
func LoadProof(cfgFile string, flags *pflag.FlagSet) (ProofConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"log-level": "info",
	})
	if err != nil {
		return ProofConfig{}, err
	}

	return ProofConfig{
		In:       v.GetString("in"),
		Out:      v.GetString("out"),
		LogLevel: v.GetString("log-level"),
	}, nil
}
