package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.NotEmpty(t, c.DataDir)
	assert.Equal(t, "sqlite", c.Storage)
	assert.Equal(t, 10*time.Second, c.QuotePollInterval)
	assert.Equal(t, 30*time.Second, c.TokenPollInterval)
	assert.Equal(t, 200, c.RestoreBatch)
	assert.Equal(t, 2, c.RestoreMaxEmpty)
	assert.True(t, c.AutoAddRestored)
	assert.False(t, c.Price.Enabled)
	assert.False(t, c.Backup.Enabled())
}

func TestLoadConfig_Precedence(t *testing.T) {
	path := writeTempJSON(t, "", "", map[string]any{
		"data_dir": "/from/json",
		"storage":  "badger",
		"mints":    []string{"https://a.example"},
	})

	cfg, err := LoadConfig([]string{"-c", path, "-d", "/from/flag", "balance"})
	require.NoError(t, err)

	assert.Equal(t, "/from/flag", cfg.DataDir)
	assert.Equal(t, "badger", cfg.Storage)
	assert.Equal(t, []string{"https://a.example"}, cfg.Mints)
	assert.Equal(t, 10*time.Second, cfg.QuotePollInterval)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig([]string{"-c", "/does/not/exist.json"})
	assert.Error(t, err)
}
