package config

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// QueryConfig holds the settings shared by the live query commands.
type QueryConfig struct {
	RPCURL       string
	Contract     string
	FromBlock    uint64
	ToBlock      uint64
	MaxRetries   int
	RetryBackoff time.Duration
	Out          string
	LogLevel     string
}

// BridgeConfig holds configuration for the bridge command.
type BridgeConfig struct {
	QueryConfig
	Origins []string
}

// OffersConfig holds configuration for the offers command.
type OffersConfig struct {
	QueryConfig
	SchemaKey      string
	OfferIDs       []string
	Makers         []string
	Counterparties []string
}

var queryDefaults = map[string]interface{}{
	"max-retries":   5,
	"retry-backoff": 500 * time.Millisecond,
	"log-level":     "info",
}

// LoadBridge merges config file, environment variables, and flags into BridgeConfig.
func LoadBridge(cfgFile string, flags *pflag.FlagSet) (BridgeConfig, error) {
	v, err := newViper(cfgFile, flags, queryDefaults)
	if err != nil {
		return BridgeConfig{}, err
	}
	return BridgeConfig{
		QueryConfig: loadQuery(v),
		Origins:     getStringSlice(v, "origin"),
	}, nil
}

// LoadOffers merges config file, environment variables, and flags into OffersConfig.
func LoadOffers(cfgFile string, flags *pflag.FlagSet) (OffersConfig, error) {
	v, err := newViper(cfgFile, flags, queryDefaults)
	if err != nil {
		return OffersConfig{}, err
	}
	return OffersConfig{
		QueryConfig:    loadQuery(v),
		SchemaKey:      v.GetString("schema"),
		OfferIDs:       getStringSlice(v, "offer-id"),
		Makers:         getStringSlice(v, "maker"),
		Counterparties: getStringSlice(v, "counterparty"),
	}, nil
}

func loadQuery(v *viper.Viper) QueryConfig {
	return QueryConfig{
		RPCURL:       v.GetString("rpc"),
		Contract:     v.GetString("contract"),
		FromBlock:    v.GetUint64("from"),
		ToBlock:      v.GetUint64("to"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		Out:          v.GetString("out"),
		LogLevel:     v.GetString("log-level"),
	}
}
