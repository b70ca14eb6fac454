package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/reconcile-cli/internal/monitoring"
	"github.com/sells-group/reconcile-cli/internal/store"
)

var metricsHours int

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print extraction and AI provider metrics for a lookback window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store, cfg.Pipeline.StoreRetryAttempts)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		hours := metricsHours
		if hours <= 0 {
			hours = cfg.Monitoring.LookbackWindowHours
		}

		snap, err := monitoring.NewCollector(st).Collect(ctx, hours)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), snap)
	},
}

func init() {
	metricsCmd.Flags().IntVar(&metricsHours, "hours", 0, "lookback window in hours (default from config)")
	rootCmd.AddCommand(metricsCmd)
}
