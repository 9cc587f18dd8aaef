package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"debrief/internal/config"
	"debrief/internal/paths"
	"debrief/internal/prefs"
)

var configForce bool

// configCmd groups commands about debrief's own files
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and watch debrief's configuration files",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print where debrief keeps its files",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write services.yaml with the default service settings",
	Long: `Writes the default service settings to services.yaml (or the file given by
--config) so they can be edited. An existing file is kept unless --force
is given.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print a summary whenever another tool changes config.json",
	Long: `Watches config.json and prints the registered stores and preference count
after every change, until interrupted. --timeout does not apply.`,
	Args: cobra.NoArgs,
	RunE: runConfigWatch,
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing services.yaml")
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configWatchCmd)
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	services, err := servicesFile()
	if err != nil {
		return err
	}
	pendingFile, err := paths.PendingOpsFile()
	if err != nil {
		return err
	}
	recentDB, err := paths.RecentDB()
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"FILE", "PATH"}, [][]string{
		{"config", store.Path()},
		{"services", services},
		{"pending", pendingFile},
		{"recent", recentDB},
	}))
	return nil
}

// servicesFile returns the services.yaml in use, honouring --config.
func servicesFile() (string, error) {
	if servicesPath != "" {
		return servicesPath, nil
	}
	return config.DefaultPath()
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := servicesFile()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists; use --force to overwrite", path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to check %s: %w", path, err)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote default service settings to %s\n", path)
	return nil
}

// runConfigWatch runs until interrupted, so it ignores --timeout.
func runConfigWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	store, err := openStore()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Watching %s\n", store.Path())

	err = store.Watch(ctx, func(doc *prefs.Document) {
		fmt.Fprintf(out, "%s stores=%d preferences=%d\n",
			mutedStyle.Render("changed:"), len(doc.Stores), len(doc.Preferences))
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
