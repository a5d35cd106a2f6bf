package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// LoadWithEnv reads the YAML file at path (optional) and lets
// <prefix>_<SECTION>_<KEY> environment variables override it, e.g.
// TILECTL_DATA_ROOT or TILECTL_RENDER_FORMAT.
func LoadWithEnv(path, prefix string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.title", d.Server.Title)
	v.SetDefault("data.root", d.Data.Root)
	v.SetDefault("data.imagery_ext", d.Data.ImageryExt)
	v.SetDefault("cache.image_size_mb", d.Cache.ImageSizeMB)
	v.SetDefault("cache.image_ttl_minutes", d.Cache.ImageTTLMinutes)
	v.SetDefault("cache.network_tiles", d.Cache.NetworkTiles)
	v.SetDefault("cache.query_entries", d.Cache.QueryEntries)
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("render.tile_size", d.Render.TileSize)
	v.SetDefault("render.format", d.Render.Format)
	v.SetDefault("render.webp_quality", d.Render.WebPQuality)
	v.SetDefault("render.line_width", d.Render.LineWidth)
	v.SetDefault("render.concurrency", d.Render.Concurrency)
	v.SetDefault("jobs.max_concurrent", d.Jobs.MaxConcurrent)
	v.SetDefault("jobs.sqlite_path", d.Jobs.SQLitePath)
	v.SetDefault("jobs.retention_days", d.Jobs.RetentionDays)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, eris.Wrapf(err, "config: read %s", path)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
