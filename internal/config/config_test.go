package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escrowScope/internal/escrow"
)

func TestLoadFlagsAndEnv(t *testing.T) {
	t.Setenv("INDEXER_RPC", "http://env-rpc")
	t.Setenv("INDEXER_BATCH_SIZE", "500")

	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	flags.StringSlice("address", nil, "")
	flags.StringSlice("event", nil, "")
	flags.Uint64("from", 0, "")
	require.NoError(t, flags.Parse([]string{
		"--address", "0x1111111111111111111111111111111111111111, ,0x2222222222222222222222222222222222222222",
		"--event", "register,activate",
		"--from", "100",
	}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "http://env-rpc", cfg.RPCURL)
	assert.Equal(t, uint64(500), cfg.BatchSize)
	assert.Equal(t, uint64(100), cfg.FromBlock)
	assert.Len(t, cfg.Addresses, 2)
	assert.Equal(t, []string{"register", "activate"}, cfg.Events)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)
	assert.True(t, cfg.CheckpointEnabled)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indexer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("contract: \"0xabc\"\nwindow: 500\norigin:\n  - \"0x01\"\n  - \"0x02\"\n"), 0o644))

	allow, err := LoadAllowList(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", allow.Contract)
	assert.Equal(t, uint64(500), allow.Window)
	assert.Equal(t, "allowlist", allow.StateName)

	bridge, err := LoadBridge(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"0x01", "0x02"}, bridge.Origins)
	assert.Equal(t, 5, bridge.MaxRetries)

	_, err = LoadBridge(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestLoadAllowListDefaultWindow(t *testing.T) {
	cfg, err := LoadAllowList("", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(9900), cfg.Window)
}

func TestLoadOffers(t *testing.T) {
	t.Setenv("INDEXER_MAKER", "0xaa,0xbb")

	flags := pflag.NewFlagSet("offers", pflag.ContinueOnError)
	flags.String("schema", "register", "")
	flags.StringSlice("offer-id", nil, "")
	require.NoError(t, flags.Parse([]string{"--schema", "register-legacy", "--offer-id", "7"}))

	cfg, err := LoadOffers("", flags)
	require.NoError(t, err)
	assert.Equal(t, "register-legacy", cfg.SchemaKey)
	assert.Equal(t, []string{"7"}, cfg.OfferIDs)
	assert.Equal(t, []string{"0xaa", "0xbb"}, cfg.Makers)
}

func TestParsePolicy(t *testing.T) {
	policy, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, escrow.FailFast, policy)

	policy, err = ParsePolicy("Skip-Invalid")
	require.NoError(t, err)
	assert.Equal(t, escrow.SkipInvalid, policy)

	_, err = ParsePolicy("best-effort")
	assert.Error(t, err)
}

func TestLoadProofFromEnv(t *testing.T) {
	t.Setenv("INDEXER_IN", "/tmp/claim.json")

	flags := pflag.NewFlagSet("proof", pflag.ContinueOnError)
	flags.String("in", "", "")
	flags.String("out", "", "")
	require.NoError(t, flags.Parse([]string{"--out", "normalized.json"}))

	cfg, err := LoadProof("", flags)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/claim.json", cfg.In)
	assert.Equal(t, "normalized.json", cfg.Out)
	assert.Equal(t, "info", cfg.LogLevel)
}
