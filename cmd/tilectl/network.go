package main

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sidewalk-timeline/server/internal/geo"
	"github.com/sidewalk-timeline/server/internal/network"
	"github.com/sidewalk-timeline/server/internal/service"
)

var mergeCmd = &cobra.Command{
	Use:   "merge TILE_ID...",
	Short: "Merge the networks of a rectangular selection for one year",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		year, _ := cmd.Flags().GetInt("year")
		out, _ := cmd.Flags().GetString("out")
		layers, _ := cmd.Flags().GetStringSlice("layers")

		s, err := timeline()
		if err != nil {
			return err
		}
		data, available, err := s.SelectionNetworkJSON(cmd.Context(), args, year, network.ParseTypes(layers))
		if err != nil {
			return err
		}
		if !available {
			zap.L().Warn("no network data for year", zap.Int("year", year))
		}
		return writeOutput(cmd.OutOrStdout(), out, data)
	},
}

var remapCmd = &cobra.Command{
	Use:   "remap [TILE_ID]",
	Short: "Align network coordinates with imagery bounds",
	Long: `With a tile ID, prints that tile's network for --year aligned to its imagery bounds.
With --in, remaps a GeoJSON file from the --from bounds to the --to bounds
(both given as north,south,east,west).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		in, _ := cmd.Flags().GetString("in")

		if in != "" {
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			data, err := remapFile(in, from, to)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), out, data)
		}
		if len(args) != 1 {
			return eris.New("remap: need a tile ID or --in")
		}

		year, _ := cmd.Flags().GetInt("year")
		s, err := timeline()
		if err != nil {
			return err
		}
		fc, available, err := s.TileNetwork(cmd.Context(), args[0], year, nil)
		if err != nil {
			return err
		}
		if !available {
			zap.L().Warn("no network data for year", zap.String("tile", args[0]), zap.Int("year", year))
		}
		data, err := json.Marshal(fc)
		if err != nil {
			return eris.Wrap(err, "remap: encode")
		}
		return writeOutput(cmd.OutOrStdout(), out, data)
	},
}

func remapFile(path, from, to string) ([]byte, error) {
	src, err := parseBounds(from)
	if err != nil {
		return nil, eris.Wrap(err, "remap: --from")
	}
	dst, err := parseBounds(to)
	if err != nil {
		return nil, eris.Wrap(err, "remap: --to")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "remap: read %s", path)
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, eris.Wrapf(err, "remap: parse %s", path)
	}
	data, err := json.Marshal(network.RemapCollection(fc, src, dst))
	return data, eris.Wrap(err, "remap: encode")
}

// parseBounds reads "north,south,east,west".
func parseBounds(s string) (geo.Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geo.Bounds{}, eris.Errorf("bounds %q: want north,south,east,west", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geo.Bounds{}, eris.Wrapf(err, "bounds %q", s)
		}
		v[i] = f
	}
	b := geo.Bounds{North: v[0], South: v[1], East: v[2], West: v[3]}
	if !b.Valid() {
		return geo.Bounds{}, eris.Errorf("bounds %q: empty or inverted", s)
	}
	return b, nil
}

var statsCmd = &cobra.Command{
	Use:   "stats TILE_ID...",
	Short: "Summarize the selection network for every survey year",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := timeline()
		if err != nil {
			return err
		}
		st, err := s.Statistics(cmd.Context(), args)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), st)
	},
}

var prefetchCmd = &cobra.Command{
	Use:   "prefetch [TILE_ID...]",
	Short: "Load every network and render every tile image once, reporting failures",
	RunE: func(cmd *cobra.Command, args []string) error {
		years, _ := cmd.Flags().GetIntSlice("years")
		s, err := timeline()
		if err != nil {
			return err
		}
		p, err := s.Prefetch(cmd.Context(), service.PrefetchRequest{Tiles: args, Years: years}, func(p service.PrefetchProgress) {
			if p.Done%50 == 0 || p.Done == p.Total {
				zap.L().Info("prefetch progress", zap.String("phase", p.Phase), zap.Int("done", p.Done), zap.Int("total", p.Total))
			}
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), p)
	},
}

func init() {
	mergeCmd.Flags().Int("year", 2024, "Survey year")
	mergeCmd.Flags().StringP("out", "o", "-", "Output file")
	mergeCmd.Flags().StringSlice("layers", nil, "Network layers to keep (sidewalk,road,crosswalk)")

	remapCmd.Flags().Int("year", 2024, "Survey year")
	remapCmd.Flags().StringP("out", "o", "-", "Output file")
	remapCmd.Flags().String("in", "", "GeoJSON file to remap")
	remapCmd.Flags().String("from", "", "Source bounds: north,south,east,west")
	remapCmd.Flags().String("to", "", "Target bounds: north,south,east,west")

	prefetchCmd.Flags().IntSlice("years", nil, "Years to warm (default all)")

	rootCmd.AddCommand(mergeCmd, remapCmd, statsCmd, prefetchCmd)
}
