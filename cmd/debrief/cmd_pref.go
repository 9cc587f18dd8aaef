package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var prefDefault string

// prefCmd groups user preference commands
var prefCmd = &cobra.Command{
	Use:   "pref",
	Short: "Read and change user preferences",
}

var prefGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print a preference as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrefGet,
}

var prefSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a preference",
	Long: `Sets a preference. The value is read as a JSON scalar when it parses as
one (42, 1.5, true, null, "quoted"); anything else is stored as a string.

Example:
  debrief pref set theme dark
  debrief pref set autoSave true
  debrief pref set recentLimit 20`,
	Args: cobra.ExactArgs(2),
	RunE: runPrefSet,
}

var prefDeleteCmd = &cobra.Command{
	Use:   "delete [key]",
	Short: "Remove a preference",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrefDelete,
}

var prefListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all preferences",
	Args:  cobra.NoArgs,
	RunE:  runPrefList,
}

func init() {
	prefGetCmd.Flags().StringVar(&prefDefault, "default", "", "Value to print when the key is absent (parsed like set)")

	prefCmd.AddCommand(prefGetCmd)
	prefCmd.AddCommand(prefSetCmd)
	prefCmd.AddCommand(prefDeleteCmd)
	prefCmd.AddCommand(prefListCmd)
}

// parsePreferenceValue reads s as a JSON scalar, falling back to the raw
// string.
func parsePreferenceValue(s string) any {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return s
	}
	switch v.(type) {
	case nil, bool, string, json.Number:
		return v
	default:
		return s
	}
}

func formatPreferenceValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func runPrefGet(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	var def any
	if cmd.Flags().Changed("default") {
		def = parsePreferenceValue(prefDefault)
	}
	v, err := store.GetPreference(args[0], def)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), formatPreferenceValue(v))
	return nil
}

func runPrefSet(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	store, err := openStore()
	if err != nil {
		return err
	}
	value := parsePreferenceValue(args[1])
	if err := store.SetPreference(ctx, args[0], value); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], formatPreferenceValue(value))
	return nil
}

func runPrefDelete(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	store, err := openStore()
	if err != nil {
		return err
	}
	return store.DeletePreference(ctx, args[0])
}

func runPrefList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	all, err := store.Preferences()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, formatPreferenceValue(all[k])})
	}
	fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"KEY", "VALUE"}, rows))
	return nil
}
