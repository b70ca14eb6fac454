package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/config"
)

var cfg *config.Config

var rootFlags struct {
	configFile string
	logLevel   string
	logFormat  string
}

var rootCmd = &cobra.Command{
	Use:   "reconcile-cli",
	Short: "Extract, structure and reconcile uploaded financial documents",
	Long: `reconcile-cli reads payment receipts, invoices and boletos (PDF or image),
pulls their text through a prioritized chain of extractors, asks the configured
AI providers for amount, dates, supplier and tax ID, and cross-checks those
values against the filename and the upload form. Each document ends with a
confidence score and its next status (PAGO_A_CONCILIAR, AGENDAR, PENDENTE_REVISAO, ...).

Configuration comes from ./config.yaml (or --config) and RECONCILE_* variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadFrom(rootFlags.configFile)
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if rootFlags.logLevel != "" {
			c.Log.Level = rootFlags.logLevel
		}
		if rootFlags.logFormat != "" {
			c.Log.Format = rootFlags.logFormat
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configFile, "config", "", "config file (default ./config.yaml)")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	pf.StringVar(&rootFlags.logFormat, "log-format", "", "override log.format (json, console)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
