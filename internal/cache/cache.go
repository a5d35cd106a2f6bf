// Package cache provides caching for stitched images, per-tile networks and
// encoded query results.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sidewalk-timeline/server/internal/metrics"
	"github.com/sidewalk-timeline/server/internal/network"
)

// Config contains cache configuration.
type Config struct {
	ImageCacheSizeMB int
	// ImageTTL bounds how long a stitched image stays cached. Zero means
	// 24h; a negative value keeps images until they are evicted for space.
	ImageTTL         time.Duration
	NetworkTiles     int
	QueryEntries     int

	// Optional shared L2 for stitched images. Empty RedisAddr disables it.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

const imageShards = 16

// bigcache stores a timestamp, a hash and the key length next to each entry.
const entryHeaderSize = 18

// ErrEntryTooLarge is returned by SetImage when an image cannot fit into a
// single cache shard. The image is still written to redis when configured.
var ErrEntryTooLarge = eris.New("cache: entry larger than image cache shard")

// Manager manages the image, network and query caches. Entries are written
// once per key and never invalidated explicitly.
type Manager struct {
	images   *bigcache.BigCache
	redis    *redis.Client
	redisTTL time.Duration
	maxShard int
	networks *lru.Cache[string, *network.TileNetworks]
	queries  *lru.Cache[string, []byte]
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	ttl, clean, redisTTL := cfg.ImageTTL, cfg.ImageTTL/2, cfg.ImageTTL
	switch {
	case ttl == 0:
		ttl, clean, redisTTL = 24*time.Hour, 12*time.Hour, 24*time.Hour
	case ttl < 0:
		// bigcache has no "forever"; a century is long enough.
		ttl, clean, redisTTL = 100*365*24*time.Hour, 0, 0
	}

	imageCacheConfig := bigcache.Config{
		Shards:             imageShards, // an entry must fit in HardMaxCacheSize/Shards
		LifeWindow:         ttl,
		CleanWindow:        clean,
		MaxEntriesInWindow: 128,
		MaxEntrySize:       512 * 1024,
		HardMaxCacheSize:   cfg.ImageCacheSizeMB,
		Verbose:            false,
	}
	images, err := bigcache.New(context.Background(), imageCacheConfig)
	if err != nil {
		return nil, eris.Wrap(err, "cache: create image cache")
	}

	networks, err := lru.New[string, *network.TileNetworks](max(cfg.NetworkTiles, 1))
	if err != nil {
		return nil, eris.Wrap(err, "cache: create network cache")
	}
	queries, err := lru.New[string, []byte](max(cfg.QueryEntries, 1))
	if err != nil {
		return nil, eris.Wrap(err, "cache: create query cache")
	}

	m := &Manager{
		images:   images,
		redisTTL: redisTTL,
		maxShard: max(cfg.ImageCacheSizeMB, 0) * 1024 * 1024 / imageShards,
		networks: networks,
		queries:  queries,
	}
	if cfg.RedisAddr != "" {
		m.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := m.redis.Ping(ctx).Err(); err != nil {
			zap.L().Warn("redis unreachable, continuing with local image cache only",
				zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
	}
	return m, nil
}

// GetImage retrieves an encoded stitched image, consulting redis when the
// local cache misses.
func (m *Manager) GetImage(ctx context.Context, key string) ([]byte, bool) {
	if data, err := m.images.Get(key); err == nil {
		metrics.Hit("image", true)
		return data, true
	}
	metrics.Hit("image", false)

	if m.redis == nil {
		return nil, false
	}
	data, err := m.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			zap.L().Debug("redis get failed", zap.String("key", key), zap.Error(err))
		}
		metrics.Hit("image_redis", false)
		return nil, false
	}
	metrics.Hit("image_redis", true)
	_ = m.images.Set(key, data)
	return data, true
}

// SetImage stores an encoded stitched image.
// Images larger than a shard skip the local cache and return
// ErrEntryTooLarge.
func (m *Manager) SetImage(ctx context.Context, key string, data []byte) error {
	if m.redis != nil {
		if err := m.redis.Set(ctx, key, data, m.redisTTL).Err(); err != nil {
			zap.L().Debug("redis set failed", zap.String("key", key), zap.Error(err))
		}
	}
	if m.maxShard > 0 && len(data)+len(key)+entryHeaderSize > m.maxShard {
		return eris.Wrapf(ErrEntryTooLarge, "image %s is %d bytes, shard holds %d", key, len(data), m.maxShard)
	}
	if err := m.images.Set(key, data); err != nil {
		return eris.Wrapf(err, "cache: set image %s", key)
	}
	return nil
}


// GetNetworks retrieves the loaded networks of a tile.
func (m *Manager) GetNetworks(tileID string) (*network.TileNetworks, bool) {
	tn, ok := m.networks.Get(NetworkKey(tileID))
	metrics.Hit("network", ok)
	return tn, ok
}

// SetNetworks stores the loaded networks of a tile.
func (m *Manager) SetNetworks(tn *network.TileNetworks) {
	m.networks.Add(NetworkKey(tn.TileID), tn)
}

// GetQuery retrieves an encoded query result.
func (m *Manager) GetQuery(key string) ([]byte, bool) {
	data, ok := m.queries.Get(key)
	metrics.Hit("query", ok)
	return data, ok
}

// SetQuery stores an encoded query result.
func (m *Manager) SetQuery(key string, data []byte) {
	m.queries.Add(key, data)
}

// selectionHash identifies a tile set independent of order.
func selectionHash(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	h := sha256.Sum256([]byte(strings.Join(sorted, "\x00")))
	return hex.EncodeToString(h[:])[:16]
}

// StitchKey generates a cache key for a stitched image.
func StitchKey(ids []string, year int, format string) string {
	return fmt.Sprintf("stitch:%d:%s:%s", year, format, selectionHash(ids))
}

// NetworkKey generates a cache key for a tile's networks.
func NetworkKey(tileID string) string {
	return "net:" + tileID
}

// QueryKey generates a cache key for an encoded query result over a tile
// set. parts distinguish variants such as year or layer filter.
func QueryKey(kind string, ids []string, parts ...string) string {
	key := "q:" + kind + ":" + selectionHash(ids)
	if len(parts) > 0 {
		key += ":" + strings.Join(parts, ":")
	}
	return key
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"image_cache_len":   m.images.Len(),
		"image_cache_cap":   m.images.Capacity(),
		"image_max_entry":   m.maxShard,
		"network_cache_len": m.networks.Len(),
		"query_cache_len":   m.queries.Len(),
		"redis_enabled":     m.redis != nil,
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	err := m.images.Close()
	if m.redis != nil {
		if rerr := m.redis.Close(); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}
