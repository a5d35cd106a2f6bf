// Command tilectl runs the selection, stitching and merge operations of the
// tile server offline against a data directory.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sidewalk-timeline/server/internal/cache"
	"github.com/sidewalk-timeline/server/internal/config"
	"github.com/sidewalk-timeline/server/internal/data/tiles"
	"github.com/sidewalk-timeline/server/internal/render"
	"github.com/sidewalk-timeline/server/internal/service"
)

var (
	cfg    *config.Config
	reader *tiles.Reader
	svc    *service.TimelineService
	caches *cache.Manager
)

var rootCmd = &cobra.Command{
	Use:           "tilectl",
	Short:         "Offline tools for the sidewalk timeline tile data",
	Long:          "Validates selections, stitches imagery, merges and remaps networks and computes statistics directly from a tile data directory.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		closeTimeline()
		path, _ := cmd.Flags().GetString("config")
		c, err := config.LoadWithEnv(path, "TILECTL")
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if root, _ := cmd.Flags().GetString("data"); root != "" {
			c.Data.Root = root
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeTimeline()
		_ = zap.L().Sync()
	},
}

func closeTimeline() {
	if caches != nil {
		_ = caches.Close()
		caches = nil
	}
	if reader != nil {
		reader.Close()
		reader = nil
	}
	svc = nil
}

func init() {
	rootCmd.PersistentFlags().String("config", "config/server.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().String("data", "", "Tile data directory (overrides data.root)")
}

// timeline opens the data directory and builds a service over it. Caches
// are sized for a single command run.
func timeline() (*service.TimelineService, error) {
	if svc != nil {
		return svc, nil
	}
	r, err := tiles.NewReader(cfg.Data.Root, cfg.Data.ImageryExt)
	if err != nil {
		return nil, err
	}
	cm, err := cache.NewManager(cache.Config{
		ImageCacheSizeMB: min(cfg.Cache.ImageSizeMB, 64),
		ImageTTL:         time.Hour,
		NetworkTiles:     cfg.Cache.NetworkTiles,
		QueryEntries:     cfg.Cache.QueryEntries,
	})
	if err != nil {
		r.Close()
		return nil, err
	}

	rc := render.Config{
		TileSize:    cfg.Render.TileSize,
		Format:      cfg.Render.Format,
		WebPQuality: cfg.Render.WebPQuality,
		LineWidth:   cfg.Render.LineWidth,
		Concurrency: cfg.Render.Concurrency,
	}
	reader, caches = r, cm
	svc = service.NewTimelineService(service.TimelineServiceConfig{
		Reader:      r,
		Cache:       cm,
		Stitcher:    render.NewStitcher(rc, r),
		Overlay:     render.NewOverlayRenderer(rc),
		Concurrency: cfg.Render.Concurrency,
	})
	return svc, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeOutput writes data to path, or to w when path is "" or "-".
func writeOutput(w io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := w.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "write %s", path)
	}
	zap.L().Info("wrote output", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
