package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Mode)
	assert.Equal(t, "local", cfg.Quest.LockMode)
	assert.Equal(t, 10*time.Second, cfg.Quest.LockTTL)
	assert.Equal(t, "dice", cfg.Quest.RollMode)
	assert.Zero(t, cfg.Quest.ReloadInterval)
	assert.Equal(t, "quest:events", cfg.Quest.EventChannel)
	assert.Equal(t, 512, cfg.Quest.TemplateCacheSize)
	assert.Equal(t, 100.0, cfg.Security.RateLimitRPS)
}

func TestLoad_SampleFile(t *testing.T) {
	cfg, err := Load("config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "./content/quests", cfg.Quest.ContentDir)
	assert.Equal(t, time.Minute, cfg.Quest.ReloadInterval)
	assert.Equal(t, time.Hour, cfg.Database.MySQLMaxLife)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
