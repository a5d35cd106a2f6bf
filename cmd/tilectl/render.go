package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sidewalk-timeline/server/internal/network"
	"github.com/sidewalk-timeline/server/internal/service"
)

var stitchCmd = &cobra.Command{
	Use:   "stitch TILE_ID...",
	Short: "Stitch the imagery of a rectangular selection into one image",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		year, _ := cmd.Flags().GetInt("year")
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")
		overlay, _ := cmd.Flags().GetBool("overlay")
		layers, _ := cmd.Flags().GetStringSlice("layers")
		opacity, _ := cmd.Flags().GetFloat64("opacity")

		s, err := timeline()
		if err != nil {
			return err
		}

		var (
			data      []byte
			available bool
		)
		if overlay {
			data, available, err = s.Overlay(cmd.Context(), args, year, service.OverlayOptions{
				Layers:         network.ParseTypes(layers),
				NetworkOpacity: &opacity,
			})
		} else {
			data, available, err = s.StitchedImagery(cmd.Context(), args, year, format)
		}
		if err != nil {
			return err
		}
		if !available {
			zap.L().Warn("no data for year; output is blank", zap.Int("year", year))
		}
		return writeOutput(cmd.OutOrStdout(), out, data)
	},
}

func init() {
	stitchCmd.Flags().Int("year", 2024, "Survey year")
	stitchCmd.Flags().String("format", "", "Output format: png or webp (default from config)")
	stitchCmd.Flags().StringP("out", "o", "-", "Output file")
	stitchCmd.Flags().Bool("overlay", false, "Draw the merged network over the imagery (png only)")
	stitchCmd.Flags().StringSlice("layers", nil, "Network layers to draw (sidewalk,road,crosswalk)")
	stitchCmd.Flags().Float64("opacity", 1, "Network opacity for --overlay, 0 to 1")
	rootCmd.AddCommand(stitchCmd)
}
