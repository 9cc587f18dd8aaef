package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"debrief/internal/recent"
)

// recentCmd manages the recently opened plots list
var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show and manage recently loaded plots",
	Args:  cobra.NoArgs,
	RunE:  runRecentList,
}

var recentClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every recent plot",
	Args:  cobra.NoArgs,
	RunE:  runRecentClear,
}

var recentRemoveCmd = &cobra.Command{
	Use:   "remove <plot-id>",
	Short: "Forget one recent plot",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecentRemove,
}

func init() {
	recentCmd.AddCommand(recentClearCmd)
	recentCmd.AddCommand(recentRemoveCmd)
}

func openHistory() (*recent.History, error) {
	return recent.Open(currentConfig().GetRecentMax())
}

func runRecentList(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	history, err := openHistory()
	if err != nil {
		return err
	}
	defer history.Close()

	plots, err := history.List(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(plots) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No recent plots."))
		return nil
	}

	now := time.Now()
	rows := make([][]string, 0, len(plots))
	for _, p := range plots {
		rows = append(rows, []string{p.PlotID, p.Title, p.StoreID, recent.RelativeTime(now, p.LastOpened)})
	}
	fmt.Fprint(out, renderTable([]string{"PLOT", "TITLE", "STORE", "OPENED"}, rows))
	return nil
}

func runRecentClear(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	history, err := openHistory()
	if err != nil {
		return err
	}
	defer history.Close()

	if err := history.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Cleared recent plots.")
	return nil
}

func runRecentRemove(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	history, err := openHistory()
	if err != nil {
		return err
	}
	defer history.Close()

	if err := history.Remove(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from recent plots.\n", args[0])
	return nil
}
