package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"debrief/internal/pending"
	"debrief/internal/prefs"
	"debrief/internal/recent"
	"debrief/internal/services"
)

var (
	plotDescription string
	loadStore       string
	loadPlotID      string
	loadPlotName    string
)

// parseCmd runs debrief-io on one file
var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Parse a file with debrief-io and summarise the result",
	Args:  cobra.ExactArgs(1),
	RunE:  runParse,
}

// stacCmd groups direct debrief-stac operations
var stacCmd = &cobra.Command{
	Use:   "stac",
	Short: "Query and modify plots through debrief-stac",
}

var stacPlotsCmd = &cobra.Command{
	Use:   "plots <store>",
	Short: "List the plots in a registered store",
	Args:  cobra.ExactArgs(1),
	RunE:  runStacPlots,
}

var stacCreateCmd = &cobra.Command{
	Use:   "create <store> <name>",
	Short: "Create an empty plot in a registered store",
	Args:  cobra.ExactArgs(2),
	RunE:  runStacCreate,
}

// loadCmd parses a file and writes it into a plot
var loadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Parse a file and load its features into a plot",
	Long: `Parses the file with debrief-io, then creates a plot (or appends to the one
given by --plot), adds the features with provenance, and copies the source
file into the plot as a source-data asset.

The load is recorded in the pending operations journal while it runs, so an
interrupted load is reported by the next "debrief cleanup".`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	stacCreateCmd.Flags().StringVar(&plotDescription, "description", "", "Plot description")
	stacCmd.AddCommand(stacPlotsCmd)
	stacCmd.AddCommand(stacCreateCmd)

	loadCmd.Flags().StringVar(&loadStore, "store", "", "Target store path or name (default: the only registered store)")
	loadCmd.Flags().StringVar(&loadPlotID, "plot", "", "Append to this existing plot ID instead of creating one")
	loadCmd.Flags().StringVar(&loadPlotName, "name", "", "Name for the new plot (default: the file name)")
	loadCmd.Flags().StringVar(&plotDescription, "description", "", "Description for the new plot")
}

func runParse(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	parser := services.NewIO(nil, currentConfig().Services.IO)
	result, err := parser.ParseFile(ctx, args[0])
	if err != nil {
		return reportFailure(cmd, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %d feature(s)\n", successStyle.Render("Parsed"), len(result.Features))
	fmt.Fprint(out, renderTable([]string{"FIELD", "VALUE"}, [][]string{
		{"parser", result.Metadata.Parser},
		{"version", result.Metadata.Version},
		{"source hash", result.Metadata.SourceHash},
	}))
	return nil
}

func runStacPlots(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	store, err := openStore()
	if err != nil {
		return err
	}
	reg, err := findStore(store, args[0])
	if err != nil {
		return err
	}

	stac := services.NewSTAC(currentConfig().Services.STAC, store)
	defer stac.Close()
	stac.Initialize(ctx)

	plots, err := stac.ListPlots(ctx, reg.Path)
	if err != nil {
		return reportFailure(cmd, err)
	}
	out := cmd.OutOrStdout()
	if len(plots) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No plots in "+reg.Name))
		return nil
	}
	rows := make([][]string, 0, len(plots))
	for _, p := range plots {
		rows = append(rows, []string{p.ID, p.Name, strconv.Itoa(p.FeatureCount), p.Modified})
	}
	fmt.Fprint(out, renderTable([]string{"ID", "NAME", "FEATURES", "MODIFIED"}, rows))
	return nil
}

func runStacCreate(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	store, err := openStore()
	if err != nil {
		return err
	}
	reg, err := findStore(store, args[0])
	if err != nil {
		return err
	}

	stac := services.NewSTAC(currentConfig().Services.STAC, store)
	defer stac.Close()
	stac.Initialize(ctx)

	created, err := stac.CreatePlot(ctx, reg.Path, args[1], plotDescription)
	if err != nil {
		return reportFailure(cmd, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created plot %s (%s)\n", created.Name, created.PlotID)
	return nil
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	store, err := openStore()
	if err != nil {
		return err
	}
	reg, err := findStore(store, loadStore)
	if err != nil {
		return err
	}

	conf := currentConfig()
	journal, err := pending.OpenJournal()
	if err != nil {
		return err
	}
	history, err := recent.Open(conf.GetRecentMax())
	if err != nil {
		return err
	}
	defer history.Close()

	stac := services.NewSTAC(conf.Services.STAC, store)
	defer stac.Close()
	stac.Initialize(ctx)

	out := cmd.OutOrStdout()
	req := services.LoadRequest{
		SourcePath:      args[0],
		StorePath:       reg.Path,
		StoreName:       reg.Name,
		Mode:            services.ModeCreate,
		PlotName:        loadPlotName,
		PlotDescription: plotDescription,
		Progress: func(percent int, message string) {
			fmt.Fprintf(out, "%s %s\n", mutedStyle.Render(fmt.Sprintf("[%3d%%]", percent)), message)
		},
	}
	if loadPlotID != "" {
		req.Mode = services.ModeExisting
		req.PlotID = loadPlotID
	}

	loader := &services.Loader{
		IO:      services.NewIO(nil, conf.Services.IO),
		STAC:    stac,
		Journal: journal,
		History: history,
		Stores:  store,
	}
	result, err := loader.Load(ctx, req)
	if err != nil {
		return reportFailure(cmd, err)
	}

	fmt.Fprintf(out, "%s %d feature(s) into %s (%s) in %s\n",
		successStyle.Render("Loaded"), result.FeaturesLoaded, result.PlotName, result.PlotID, result.StoreName)
	fmt.Fprintf(out, "Source copied to %s\n", result.AssetPath)
	return nil
}

// findStore resolves a store by path or name. An empty ref selects the
// only registered store.
func findStore(store *prefs.Store, ref string) (*prefs.StoreRegistration, error) {
	stores, err := store.ListStores()
	if err != nil {
		return nil, err
	}
	if ref == "" {
		switch len(stores) {
		case 0:
			return nil, errors.New("no stores registered; add one with: debrief store add <path> <name>")
		case 1:
			return &stores[0], nil
		default:
			return nil, errors.New("several stores are registered; choose one with --store")
		}
	}

	for i := range stores {
		if stores[i].Name == ref {
			return &stores[i], nil
		}
	}
	path, err := prefs.ResolvePath(ref)
	if err != nil {
		return nil, err
	}
	return store.GetStore(path)
}

// reportFailure prints the classified error with its suggested resolution
// and returns err for the exit status.
func reportFailure(cmd *cobra.Command, err error) error {
	f := services.Classify(err)
	w := cmd.ErrOrStderr()
	fmt.Fprintf(w, "%s %s\n", errorStyle.Render(string(f.Code)+":"), f.Message)
	if f.Details != "" && f.Details != f.Message {
		fmt.Fprintf(w, "  %s\n", f.Details)
	}
	if f.Resolution != "" {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render("resolution:"), f.Resolution)
	}
	if f.Retryable {
		fmt.Fprintln(w, mutedStyle.Render("  This operation can be retried."))
	}
	return err
}
