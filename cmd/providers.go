package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/reconcile-cli/internal/ai"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Manage the AI provider roster",
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers in priority order",
	RunE: func(cmd *cobra.Command, args []string) error {
		roster, err := initRoster(initCalculator())
		if err != nil {
			return err
		}
		return printRoster(cmd.OutOrStdout(), roster)
	},
}

var providersToggleCmd = &cobra.Command{
	Use:   "toggle <name>",
	Short: "Enable or disable a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateRoster(cmd.OutOrStdout(), func(r *ai.Roster) error {
			enabled, err := r.Toggle(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s enabled=%t\n", args[0], enabled)
			return nil
		})
	},
}

var providersSwapCmd = &cobra.Command{
	Use:   "swap <a> <b>",
	Short: "Swap the priorities of two providers",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateRoster(cmd.OutOrStdout(), func(r *ai.Roster) error {
			return r.SwapPriorities(args[0], args[1])
		})
	},
}

var providersModelCmd = &cobra.Command{
	Use:   "model <name> <model-id>",
	Short: "Switch a provider to another catalog model",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateRoster(cmd.OutOrStdout(), func(r *ai.Roster) error {
			return r.SetModel(args[0], args[1])
		})
	},
}

var providersEmergencyCmd = &cobra.Command{
	Use:   "emergency <primary|off>",
	Short: "Route everything to one provider, or restore the saved roster with \"off\"",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateRoster(cmd.OutOrStdout(), func(r *ai.Roster) error {
			if args[0] == "off" {
				r.DisableEmergencyMode()
				return nil
			}
			return r.EnableEmergencyMode(args[0])
		})
	},
}

var providersExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the roster as YAML to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		roster, err := initRoster(initCalculator())
		if err != nil {
			return err
		}
		return roster.Export(cmd.OutOrStdout())
	},
}

var providersImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the roster from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "open import file")
		}
		defer f.Close() //nolint:errcheck

		return mutateRoster(cmd.OutOrStdout(), func(r *ai.Roster) error {
			return r.Import(f)
		})
	},
}

var providersRecommendCmd = &cobra.Command{
	Use:   "recommendations",
	Short: "Print tuning suggestions from accumulated provider stats",
	RunE: func(cmd *cobra.Command, args []string) error {
		roster, err := initRoster(initCalculator())
		if err != nil {
			return err
		}
		for _, rec := range roster.Recommendations() {
			fmt.Fprintln(cmd.OutOrStdout(), rec)
		}
		return nil
	},
}

// mutateRoster loads the roster, applies fn, persists the result and prints it.
func mutateRoster(w io.Writer, fn func(*ai.Roster) error) error {
	roster, err := initRoster(initCalculator())
	if err != nil {
		return err
	}
	if err := fn(roster); err != nil {
		return err
	}
	if err := saveRoster(roster); err != nil {
		return err
	}
	return printRoster(w, roster)
}

func printRoster(w io.Writer, roster *ai.Roster) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRIORITY\tNAME\tKIND\tMODEL\tENABLED\tSTATUS\tCOST/1K")
	for _, p := range roster.Snapshot() {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\t%s\t%.5f\n",
			p.Priority, p.Name, p.Kind, p.Model, p.Enabled, p.Status, p.CostPerKTokens)
	}
	if primary, ok := roster.Emergency(); ok {
		fmt.Fprintf(tw, "\nemergency mode: %s\n", primary)
	}
	return eris.Wrap(tw.Flush(), "flush roster table")
}

func init() {
	providersCmd.AddCommand(
		providersListCmd,
		providersToggleCmd,
		providersSwapCmd,
		providersModelCmd,
		providersEmergencyCmd,
		providersExportCmd,
		providersImportCmd,
		providersRecommendCmd,
	)
	rootCmd.AddCommand(providersCmd)
}
