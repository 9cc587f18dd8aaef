package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"debrief/internal/catalog"
	"debrief/internal/logging"
	"debrief/internal/prefs"
	"debrief/internal/services"
)

var (
	storeNotes          string
	storeSkipValidation bool
	storeWithPlots      bool
	storeOffline        bool
)

// storeCmd groups STAC store registration commands
var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Register, list and remove STAC stores",
}

var storeAddCmd = &cobra.Command{
	Use:   "add [path] [name]",
	Short: "Register an existing STAC catalog",
	Long: `Registers the catalog at path under a display name. The directory must
contain a valid catalog.json unless --skip-validation is given.`,
	Args: cobra.ExactArgs(2),
	RunE: runStoreAdd,
}

var storeInitCmd = &cobra.Command{
	Use:   "init [path] [name]",
	Short: "Create a new STAC catalog with debrief-stac and register it",
	Long: `Creates an empty catalog at path, registers it, and tells the running
debrief-stac service about it. With --offline the catalog is written
directly and debrief-stac is not started.`,
	Args: cobra.ExactArgs(2),
	RunE:  runStoreInit,
}

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered stores and whether they are reachable",
	Args:  cobra.NoArgs,
	RunE:  runStoreList,
}

var storeShowCmd = &cobra.Command{
	Use:   "show [path]",
	Short: "Show one registered store",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreShow,
}

var storeRemoveCmd = &cobra.Command{
	Use:   "remove [path]",
	Short: "Unregister a store (the catalog on disk is kept)",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreRemove,
}

func init() {
	storeAddCmd.Flags().StringVar(&storeNotes, "notes", "", "Free-text notes for the store")
	storeAddCmd.Flags().BoolVar(&storeSkipValidation, "skip-validation", false, "Register without checking catalog.json")
	storeInitCmd.Flags().StringVar(&storeNotes, "notes", "", "Free-text notes for the store")
	storeInitCmd.Flags().BoolVar(&storeOffline, "offline", false, "Write catalog.json directly without debrief-stac")
	storeListCmd.Flags().BoolVar(&storeWithPlots, "plots", false, "Count plots via debrief-stac")

	storeCmd.AddCommand(storeAddCmd)
	storeCmd.AddCommand(storeInitCmd)
	storeCmd.AddCommand(storeListCmd)
	storeCmd.AddCommand(storeShowCmd)
	storeCmd.AddCommand(storeRemoveCmd)
}

func registerOptions() []prefs.RegisterOption {
	var opts []prefs.RegisterOption
	if storeNotes != "" {
		opts = append(opts, prefs.WithNotes(storeNotes))
	}
	if storeSkipValidation {
		opts = append(opts, prefs.SkipValidation())
	}
	return opts
}

func runStoreAdd(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	store, err := openStore()
	if err != nil {
		return err
	}
	reg, err := store.RegisterStore(ctx, args[0], args[1], registerOptions()...)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Registered %s at %s\n", reg.Name, reg.Path)
	return nil
}

func runStoreInit(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	store, err := openStore()
	if err != nil {
		return err
	}
	path, err := prefs.ResolvePath(args[0])
	if err != nil {
		return err
	}

	name := args[1]

	if storeOffline {
		if err := catalog.WriteMinimal(path, filepath.Base(path), name); err != nil {
			return err
		}
		reg, err := store.RegisterStore(ctx, path, name, registerOptions()...)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created and registered %s at %s\n", reg.Name, reg.Path)
		return nil
	}

	stac := services.NewSTAC(currentConfig().Services.STAC, store)
	defer stac.Close()

	var reg *prefs.StoreRegistration
	err = stac.InitStore(ctx, path, name, func(ctx context.Context) error {
		var err error
		reg, err = store.RegisterStore(ctx, path, name, registerOptions()...)
		return err
	})
	if err != nil {
		if reg == nil {
			return reportFailure(cmd, err)
		}
		// Registered, but the running service could not be told.
		logging.Get(logging.CategoryService).Warn("Store registered but debrief-stac was not reconfigured: %v", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created and registered %s at %s\n", reg.Name, reg.Path)
	return nil
}

func runStoreList(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	store, err := openStore()
	if err != nil {
		return err
	}

	var plots services.PlotLister
	if storeWithPlots {
		stac := services.NewSTAC(currentConfig().Services.STAC, store)
		defer stac.Close()
		if err := stac.Reconfigure(ctx); err != nil {
			return err
		}
		plots = stac
	}

	statuses, err := services.StoreStatuses(ctx, store, plots)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(statuses) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No stores registered. Add one with: debrief store add <path> <name>"))
		return nil
	}

	headers := []string{"NAME", "PATH", "STATUS", "LAST ACCESSED"}
	if storeWithPlots {
		headers = append(headers, "PLOTS")
	}
	rows := make([][]string, 0, len(statuses))
	for _, st := range statuses {
		row := []string{st.Name, st.Path, statusMark(st.Accessible), formatTimestamp(st.LastAccessed)}
		if storeWithPlots {
			row = append(row, strconv.Itoa(st.PlotCount))
		}
		rows = append(rows, row)
	}
	fmt.Fprint(out, renderTable(headers, rows))

	for _, st := range statuses {
		if st.AccessError != "" {
			fmt.Fprintf(out, "%s %s\n", errorStyle.Render(st.Name+":"), st.AccessError)
		}
	}
	return nil
}

func runStoreShow(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	reg, err := store.GetStore(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Name:          %s\n", reg.Name)
	fmt.Fprintf(out, "Path:          %s\n", reg.Path)
	fmt.Fprintf(out, "Last accessed: %s\n", formatTimestamp(reg.LastAccessed))
	if reg.Notes != "" {
		fmt.Fprintf(out, "Notes:         %s\n", reg.Notes)
	}
	return nil
}

func runStoreRemove(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	store, err := openStore()
	if err != nil {
		return err
	}
	if err := store.RemoveStore(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
	return nil
}

// formatTimestamp renders an RFC 3339 timestamp in local time, or returns
// it unchanged if it does not parse.
func formatTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04")
}
