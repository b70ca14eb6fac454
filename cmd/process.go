package main

import (
	"encoding/json"
	"io"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/ai"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/pipeline"
)

var (
	processType     string
	processName     string
	processID       string
	processAmount   string
	processDate     string
	processSupplier string
	processTaxID    string
)

var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Run the full pipeline on one document and print the outcome",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		doc := pipeline.Document{
			ID:           processID,
			Path:         args[0],
			OriginalName: processName,
			Type:         model.ParseDocumentType(processType),
			Form: model.FormFacts{
				Amount:   processAmount,
				Date:     processDate,
				Supplier: processSupplier,
				TaxID:    processTaxID,
			},
		}

		out, err := env.Coordinator.Process(ctx, doc)
		if out != nil {
			if werr := writeJSON(cmd.OutOrStdout(), out); werr != nil {
				return werr
			}
		}
		return err
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Run the extraction cascade only",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		out := env.Engine.ProcessDocument(ctx, args[0])
		return writeJSON(cmd.OutOrStdout(), out)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Run extraction and AI analysis without reconciliation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		text := env.Engine.ProcessDocument(ctx, args[0])
		name := processName
		if name == "" {
			name = filepath.Base(args[0])
		}

		res, err := env.Extractor.AnalyzeDocument(ctx, ai.AnalyzeRequest{
			Text:        text.Text,
			Filename:    name,
			OCRStrategy: text.StrategyUsed,
		})
		if err != nil {
			return eris.Wrap(err, "analyze")
		}
		zap.L().Info("analysis complete",
			zap.String("provider", res.Provider),
			zap.Int("confidence", res.Confidence),
			zap.Float64("cost_usd", res.ProcessingCost),
		)
		return writeJSON(cmd.OutOrStdout(), res)
	},
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}

func init() {
	processCmd.Flags().StringVar(&processType, "type", "", "document type (PAGO, AGENDADO, EMITIR_BOLETO, EMITIR_NF)")
	processCmd.Flags().StringVar(&processName, "name", "", "original filename (default: file base name)")
	processCmd.Flags().StringVar(&processID, "id", "", "document ID (default: new UUID)")
	processCmd.Flags().StringVar(&processAmount, "amount", "", "amount declared on the upload form")
	processCmd.Flags().StringVar(&processDate, "date", "", "date declared on the upload form")
	processCmd.Flags().StringVar(&processSupplier, "supplier", "", "supplier declared on the upload form")
	processCmd.Flags().StringVar(&processTaxID, "tax-id", "", "CPF/CNPJ declared on the upload form")
	_ = processCmd.MarkFlagRequired("type")

	analyzeCmd.Flags().StringVar(&processName, "name", "", "original filename (default: file base name)")

	rootCmd.AddCommand(processCmd, extractCmd, analyzeCmd)
}
