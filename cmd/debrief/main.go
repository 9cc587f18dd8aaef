// Command debrief manages the shared debrief configuration (registered STAC
// stores and preferences) and drives the debrief-io and debrief-stac
// services from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"debrief/internal/config"
	"debrief/internal/logging"
	"debrief/internal/prefs"
)

var (
	// Global flags
	verbose      bool
	servicesPath string
	configFile   string
	timeout      time.Duration

	// Loaded in PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "debrief",
	Short: "Manage debrief stores and preferences and load data into plots",
	Long: `debrief reads and updates the configuration shared by every debrief tool
(registered STAC stores and user preferences) and talks to the debrief-io
parser and debrief-stac store services.

Service executables are found on PATH unless services.yaml or the
DEBRIEF_IO_PATH / DEBRIEF_STAC_PATH environment variables say otherwise.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, err := servicesFile()
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid %s: %w", path, err)
		}

		if _, err := logging.Configure(cfg.Logging.Options()); err != nil {
			return err
		}
		logging.BootDebug("Loaded service settings from %s", path)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&servicesPath, "config", "", "Service settings file (default: services.yaml in the config directory)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config-file", "", "Override the shared config.json location")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(prefCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(stacCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(recentCmd)
}

func main() {
	err := rootCmd.Execute()
	logging.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT/SIGTERM only.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// commandContext returns a context bounded by --timeout and cancelled on
// SIGINT/SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, stop := signalContext(cmd)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// openStore returns the shared config store, honouring --config-file.
func openStore() (*prefs.Store, error) {
	if configFile != "" {
		return prefs.New(configFile), nil
	}
	return prefs.Open()
}

// currentConfig returns the loaded settings, or defaults when a command runs
// without the root pre-run (as in tests).
func currentConfig() *config.Config {
	if cfg == nil {
		return config.DefaultConfig()
	}
	return cfg
}
