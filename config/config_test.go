package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "oxypipe.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileThenEnv(t *testing.T) {
	p := writeConfig(t, `
log:
  level: debug
  format: json
storage:
  driver: sqlite
  sqlite_path: /tmp/cache.db
  ttl: 1h
importer:
  allowed_extensions: [glb, gltf]
  workers: 2
metrics:
  enabled: true
`)
	t.Setenv("OXYPIPE_STORAGE_TTL", "90m")
	t.Setenv("OXYPIPE_IMPORTER_ALLOWED_EXTENSIONS", "glb,hdr")

	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "/tmp/cache.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 90*time.Minute, cfg.Storage.TTL)
	assert.Equal(t, []string{"glb", "hdr"}, cfg.Importer.AllowedExtensions)
	assert.Equal(t, 2, cfg.Importer.Workers)
	assert.True(t, cfg.Importer.CacheImportedAssets)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "level", body: "log:\n  level: loud\n"},
		{name: "format", body: "log:\n  format: xml\n"},
		{name: "driver", body: "storage:\n  driver: s3\n"},
		{name: "workers", body: "importer:\n  workers: -1\n"},
		{name: "metrics addr", body: "metrics:\n  enabled: true\n  addr: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfig_NewLoggerAndStorage(t *testing.T) {
	cfg := Default()
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "cache.db")

	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(0))

	s, err := cfg.NewStorage(logger)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}
