package kademlia

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigMatchesReferenceParameters(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 20, cfg.K)
	assert.Equal(t, 3, cfg.Alpha)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, MaxMessageLen, cfg.MaxMsg)
	assert.Zero(t, cfg.RepublishInterval)
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	yaml := "net_id: testnet\nbind_addr: 127.0.0.1:9001\nk: 8\nalpha: 2\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "testnet", cfg.NetID)
	assert.Equal(t, "127.0.0.1:9001", cfg.BindAddr)
	assert.Equal(t, 8, cfg.K)
	assert.Equal(t, 2, cfg.Alpha)
	// Unset fields still fall back to the reference defaults.
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, MaxMessageLen, cfg.MaxMsg)
}

func TestLoadConfigFileMissingFile(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
