package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	return cfg
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_PartialFileGetsDefaults(t *testing.T) {
	cfg := loadFromString(t, `
server:
  port: 9000
data:
  root: /srv/manhattan
cache:
  redis_addr: "localhost:6379"
render:
  format: webp
`)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/srv/manhattan", cfg.Data.Root)
	assert.Equal(t, "png", cfg.Data.ImageryExt)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, "webp", cfg.Render.Format)
	assert.Equal(t, 512, cfg.Render.TileSize)
	assert.Equal(t, 8, cfg.Render.Concurrency)
	assert.Equal(t, 2, cfg.Jobs.MaxConcurrent)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NotEmpty(t, cfg.Server.CORSOrigins)
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")

	require.NoError(t, os.WriteFile(path, []byte("server: [not, a, map"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("render:\n  format: gif\n"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "render.format")

	require.NoError(t, os.WriteFile(path, []byte("data:\n  imagery_ext: tiff\n"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "imagery_ext")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("TIMELINE_DATA_ROOT", "/env/data")
	t.Setenv("TIMELINE_PORT", "7000")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_PASS", "secret")
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	cfg.Cache.RedisDB = 3
	ApplyEnv(cfg)

	assert.Equal(t, "/env/data", cfg.Data.Root)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "redis:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, "secret", cfg.Cache.RedisPassword)
	assert.Equal(t, 3, cfg.Cache.RedisDB)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestInitLogger(t *testing.T) {
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))

	assert.Error(t, InitLogger(LogConfig{Level: "chatty"}))
}

func TestLoadWithEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data:\n  root: /from/file\nrender:\n  tile_size: 256\n"), 0o644))

	t.Setenv("TILECTL_RENDER_FORMAT", "webp")
	t.Setenv("TILECTL_DATA_ROOT", "/from/env")

	cfg, err := LoadWithEnv(path, "TILECTL")
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.Data.Root)
	assert.Equal(t, 256, cfg.Render.TileSize)
	assert.Equal(t, "webp", cfg.Render.Format)
	assert.Equal(t, 85, cfg.Render.WebPQuality)
}

func TestLoadWithEnv_MissingFile(t *testing.T) {
	cfg, err := LoadWithEnv(filepath.Join(t.TempDir(), "none.yaml"), "TILECTL_TEST")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Data.Root, cfg.Data.Root)

	t.Setenv("TILECTL_TEST_RENDER_FORMAT", "gif")
	_, err = LoadWithEnv("", "TILECTL_TEST")
	assert.ErrorContains(t, err, "render.format")
}
