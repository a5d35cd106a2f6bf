package main

import (
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate TILE_ID...",
	Short: "Check that tiles form a complete rectangle",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := timeline()
		if err != nil {
			return err
		}
		layout, err := s.Validate(args)
		if err != nil {
			_ = printJSON(cmd.OutOrStdout(), map[string]interface{}{"valid": false, "error": err.Error()})
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{"valid": true, "layout": layout})
	},
}

var expandCmd = &cobra.Command{
	Use:   "expand START END",
	Short: "List the tiles of the rectangle spanned by two tiles",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := timeline()
		if err != nil {
			return err
		}
		ids, err := s.Expand(args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), ids)
	},
}

var boundsCmd = &cobra.Command{
	Use:   "bounds TILE_ID...",
	Short: "Print the combined network bounds of tiles",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := timeline()
		if err != nil {
			return err
		}
		b, err := s.CombinedBounds(args)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), b)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd, expandCmd, boundsCmd)
}
