// Package config handles configuration loading for the sidewalk timeline
// tile server.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Data   DataConfig   `yaml:"data" mapstructure:"data"`
	Cache  CacheConfig  `yaml:"cache" mapstructure:"cache"`
	Render RenderConfig `yaml:"render" mapstructure:"render"`
	Jobs   JobsConfig   `yaml:"jobs" mapstructure:"jobs"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	Title       string   `yaml:"title" mapstructure:"title"`
}

// DataConfig points at the tile data directory.
type DataConfig struct {
	Root       string `yaml:"root" mapstructure:"root"`
	ImageryExt string `yaml:"imagery_ext" mapstructure:"imagery_ext"`
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	ImageSizeMB     int    `yaml:"image_size_mb" mapstructure:"image_size_mb"`
	// Negative keeps stitched images until evicted for space.
	ImageTTLMinutes int    `yaml:"image_ttl_minutes" mapstructure:"image_ttl_minutes"`
	NetworkTiles    int    `yaml:"network_tiles" mapstructure:"network_tiles"`
	QueryEntries    int    `yaml:"query_entries" mapstructure:"query_entries"`
	RedisAddr       string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword   string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB         int    `yaml:"redis_db" mapstructure:"redis_db"`
}

// RenderConfig contains rendering settings.
type RenderConfig struct {
	TileSize    int     `yaml:"tile_size" mapstructure:"tile_size"`
	Format      string  `yaml:"format" mapstructure:"format"`
	WebPQuality int     `yaml:"webp_quality" mapstructure:"webp_quality"`
	LineWidth   float64 `yaml:"line_width" mapstructure:"line_width"`
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency"`
}

// JobsConfig configures the prefetch job manager.
type JobsConfig struct {
	MaxConcurrent int    `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	SQLitePath    string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	RetentionDays int    `yaml:"retention_days" mapstructure:"retention_days"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, eris.Wrapf(err, "config: parse %s", path)
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			Title:       "Sidewalk Timeline",
		},
		Data: DataConfig{
			Root:       "./public/data",
			ImageryExt: "png",
		},
		Cache: CacheConfig{
			ImageSizeMB:     256,
			ImageTTLMinutes: 24 * 60,
			NetworkTiles:    256,
			QueryEntries:    512,
		},
		Render: RenderConfig{
			TileSize:    512,
			Format:      "png",
			WebPQuality: 85,
			LineWidth:   2,
			Concurrency: 8,
		},
		Jobs: JobsConfig{
			MaxConcurrent: 2,
			SQLitePath:    "./data/jobs/prefetch.db",
			RetentionDays: 7,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Server.Title == "" {
		cfg.Server.Title = defaults.Server.Title
	}
	if cfg.Data.Root == "" {
		cfg.Data.Root = defaults.Data.Root
	}
	if cfg.Data.ImageryExt == "" {
		cfg.Data.ImageryExt = defaults.Data.ImageryExt
	}
	if cfg.Cache.ImageSizeMB == 0 {
		cfg.Cache.ImageSizeMB = defaults.Cache.ImageSizeMB
	}
	if cfg.Cache.ImageTTLMinutes == 0 {
		cfg.Cache.ImageTTLMinutes = defaults.Cache.ImageTTLMinutes
	}
	if cfg.Cache.NetworkTiles == 0 {
		cfg.Cache.NetworkTiles = defaults.Cache.NetworkTiles
	}
	if cfg.Cache.QueryEntries == 0 {
		cfg.Cache.QueryEntries = defaults.Cache.QueryEntries
	}
	if cfg.Render.TileSize == 0 {
		cfg.Render.TileSize = defaults.Render.TileSize
	}
	if cfg.Render.Format == "" {
		cfg.Render.Format = defaults.Render.Format
	}
	if cfg.Render.WebPQuality == 0 {
		cfg.Render.WebPQuality = defaults.Render.WebPQuality
	}
	if cfg.Render.LineWidth == 0 {
		cfg.Render.LineWidth = defaults.Render.LineWidth
	}
	if cfg.Render.Concurrency == 0 {
		cfg.Render.Concurrency = defaults.Render.Concurrency
	}
	if cfg.Jobs.MaxConcurrent == 0 {
		cfg.Jobs.MaxConcurrent = defaults.Jobs.MaxConcurrent
	}
	if cfg.Jobs.SQLitePath == "" {
		cfg.Jobs.SQLitePath = defaults.Jobs.SQLitePath
	}
	if cfg.Jobs.RetentionDays == 0 {
		cfg.Jobs.RetentionDays = defaults.Jobs.RetentionDays
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaults.Log.Format
	}
}

// Validate checks values that have no usable fallback.
func (c *Config) Validate() error {
	switch c.Render.Format {
	case "png", "webp":
	default:
		return eris.Errorf("config: render.format must be png or webp, got %q", c.Render.Format)
	}
	switch strings.ToLower(c.Data.ImageryExt) {
	case "png", "jpg", "jpeg", "webp":
	default:
		return eris.Errorf("config: unsupported data.imagery_ext %q", c.Data.ImageryExt)
	}
	if c.Render.TileSize < 0 || c.Render.Concurrency < 0 {
		return eris.New("config: render sizes must be positive")
	}
	return nil
}

// ApplyEnv overrides settings from the environment (after .env loading).
// Recognised: TIMELINE_DATA_ROOT, TIMELINE_PORT, REDIS_ADDR, REDIS_PASS,
// REDIS_DB, LOG_LEVEL.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("TIMELINE_DATA_ROOT"); v != "" {
		cfg.Data.Root = v
	}
	if v := os.Getenv("TIMELINE_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASS"); v != "" {
		cfg.Cache.RedisPassword = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		// ignore parse error silently, keep configured DB
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Cache.RedisDB = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
