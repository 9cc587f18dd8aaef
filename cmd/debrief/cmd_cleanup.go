package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"debrief/internal/pending"
)

// cleanupCmd reports and clears operations left by an interrupted load
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Report and clear loads that were interrupted",
	Long: `Reads the pending operations journal, prints every load that did not
finish (with the phase it reached and any plot it created), and empties the
journal. Partially written plots are left in place for manual review.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	journal, err := pending.OpenJournal()
	if err != nil {
		return err
	}
	ops, err := journal.CheckAndCleanup(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(ops) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No interrupted operations."))
		return nil
	}

	rows := make([][]string, 0, len(ops))
	for _, op := range ops {
		plot := op.PlotID
		if plot == "" {
			plot = "-"
		}
		rows = append(rows, []string{op.ID, string(op.Phase), op.StorePath, plot, op.StartTime})
	}
	fmt.Fprint(out, renderTable([]string{"ID", "PHASE", "STORE", "PLOT", "STARTED"}, rows))
	fmt.Fprintf(out, "Cleared %d interrupted operation(s).\n", len(ops))
	return nil
}
