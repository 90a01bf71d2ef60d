package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
[log]
output = "file"
path = "/var/log/guild"
level = "DEBUG"

[database]
host = "127.0.0.1"
dbname = "guild"

[redis]
mode = "single"
address = "127.0.0.1:6379"

[engine]
maxDepth = 8

[engine.watch]
user = ["email"]

[metrics]
enable = true
`

func TestLoadConfigFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(file, []byte(sample), 0o600))

	cfg, err := LoadConfigFile(file)
	require.NoError(t, err)

	assert.Equal(t, "file", cfg.Log.Output)
	assert.Equal(t, "guild.log", cfg.Log.Filename, "unset fields take defaults")
	assert.Equal(t, "guild", cfg.Database.DBName)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 10, cfg.Redis.PoolSize)
	assert.Equal(t, 8, cfg.Engine.MaxDepth)
	assert.Equal(t, 8, cfg.Engine.ListConcurrency)
	assert.Equal(t, []string{"email"}, cfg.Engine.Watch["user"])
	assert.True(t, cfg.Metrics.Enable)
	assert.Equal(t, "guild", cfg.Metrics.Namespace)
}

func TestLoadConfigFileMissing(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.toml"))
	assert.ErrorContains(t, err, "failed to read configuration file")
}

func TestEngineDefaults(t *testing.T) {
	e := Engine{}
	e.SetDefaults()
	assert.Equal(t, 16, e.MaxDepth)
	assert.Equal(t, 8, e.ListConcurrency)
}
