package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "toml",
			file: "sheetd.toml",
			content: `
listen_addr = ":6000"
admin_addr = ""
queue_size = 16

[log]
level = "debug"
json = true

[rate_limit]
per_second = 50.0
burst = 10
`,
		},
		{
			name: "yaml",
			file: "sheetd.yaml",
			content: `
listen_addr: ":6000"
admin_addr: ""
queue_size: 16
log:
  level: debug
  json: true
rate_limit:
  per_second: 50
  burst: 10
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)

			assert.Equal(t, ":6000", cfg.ListenAddr)
			assert.Equal(t, "", cfg.AdminAddr)
			assert.Equal(t, 16, cfg.QueueSize)
			assert.Equal(t, LogConfig{Level: "debug", JSON: true}, cfg.Log)
			assert.Equal(t, RateLimitConfig{PerSecond: 50, Burst: 10}, cfg.RateLimit)
		})
	}
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := Load(writeFile(t, "partial.yml", "queue_size: 8\n"))
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.QueueSize)
	assert.Equal(t, Default().ListenAddr, cfg.ListenAddr)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		target  error
	}{
		{"unknown extension", "sheetd.ini", "x=1", ErrUnknownFormat},
		{"bad toml", "bad.toml", "listen_addr = ", nil},
		{"bad yaml", "bad.yaml", "listen_addr: [", nil},
		{"invalid address", "addr.toml", `listen_addr = "nowhere"`, nil},
		{"invalid level", "level.yaml", "log:\n  level: loud\n", nil},
		{"zero queue", "queue.toml", "queue_size = 0", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SHEETD_LISTEN_ADDR", "0.0.0.0:7000")
	t.Setenv("SHEETD_ADMIN_ADDR", "")
	t.Setenv("SHEETD_QUEUE_SIZE", "32")
	t.Setenv("SHEETD_LOG_LEVEL", "warn")
	t.Setenv("SHEETD_LOG_JSON", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:7000", cfg.ListenAddr)
	assert.Equal(t, "", cfg.AdminAddr)
	assert.Equal(t, 32, cfg.QueueSize)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
}

func TestValidateListenAddr(t *testing.T) {
	for addr, ok := range map[string]bool{
		":5050":           true,
		"127.0.0.1:0":     true,
		"localhost:80":    true,
		"[::1]:5050":      true,
		"5050":            false,
		"host:port":       false,
		"127.0.0.1:9999":  true,
		"127.0.0.1:70000": false,
	} {
		t.Run(addr, func(t *testing.T) {
			cfg := Default()
			cfg.ListenAddr = addr
			assert.Equal(t, ok, cfg.Validate() == nil)
		})
	}
}
