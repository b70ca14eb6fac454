package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the extraction result cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry count, size and age range",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := initCache()
		if err != nil {
			return err
		}
		stats, err := c.Stats(cmd.Context())
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), stats)
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached result",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := initCache()
		if err != nil {
			return err
		}
		n, err := c.Clear(cmd.Context())
		if err != nil {
			return err
		}
		zap.L().Info("cache cleared", zap.Int("removed", n))
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", n)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
