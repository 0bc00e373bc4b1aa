package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validVaultEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ESCROW_CHAIN_MAIN_VAULT", "vault-address")
	t.Setenv("ESCROW_CHAIN_FEE_RECIPIENT", "fee-address")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	validVaultEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 30*time.Second, cfg.Reconcile.Interval)
}

func TestLoadFile(t *testing.T) {
	validVaultEnv(t)

	path := filepath.Join(t.TempDir(), "escrowd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
chain:
  rpc_url: "http://node:8899"
dispatch:
  interval: 5s
  max_attempts: 3
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "http://node:8899", cfg.Chain.RPCURL)
	assert.Equal(t, 5*time.Second, cfg.Dispatch.Interval)
	assert.Equal(t, 3, cfg.Dispatch.MaxAttempts)
}

func TestEnvOverridesFile(t *testing.T) {
	validVaultEnv(t)
	t.Setenv("ESCROW_SERVER_ADDR", ":7070")
	t.Setenv("ESCROW_RECONCILE_INTERVAL", "90s")

	path := filepath.Join(t.TempDir(), "escrowd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9090\"\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 90*time.Second, cfg.Reconcile.Interval)
}

func TestValidateRejectsMissingVault(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "main_vault")
}
