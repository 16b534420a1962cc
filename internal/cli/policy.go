package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var resetConfirm bool

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyListCmd)
	policyCmd.AddCommand(policyAllowCmd)
	policyCmd.AddCommand(policyBlockCmd)
	policyCmd.AddCommand(policyResetCmd)
	policyCmd.AddCommand(policyExportCmd)
	policyCmd.AddCommand(policyImportCmd)
	policyResetCmd.Flags().BoolVar(&resetConfirm, "confirm", false, "Actually clear all overrides")
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and modify the command policy",
	Long:  "Commands for listing the effective policy and managing allow/block overrides.",
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the effective allowed/blocked sets and overrides",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()
		return printJSON(eng.ListPolicy())
	},
}

var policyAllowCmd = &cobra.Command{
	Use:   "allow <command>",
	Short: "Add an allow override for a command",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		res, err := eng.AllowCommand(args[0])
		if err != nil {
			return err
		}
		if res.Warning != "" {
			fmt.Fprintf(os.Stderr, "WARNING: %s\n", res.Warning)
		}
		return printJSON(res)
	},
}

var policyBlockCmd = &cobra.Command{
	Use:   "block <command>",
	Short: "Add a block override for a command",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		res, err := eng.BlockCommand(args[0])
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var policyResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear all overrides, restoring the default policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		res, err := eng.ResetConfig(resetConfirm)
		if err != nil {
			return err
		}
		if !res.Confirmed {
			fmt.Fprintf(os.Stderr, "%s\n", res.Message)
			os.Exit(1)
		}
		return printJSON(res)
	},
}

var policyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the override sets as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		data, err := eng.ExportConfig()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var policyImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import an exported override snapshot (all-or-nothing)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}

		eng, _, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		res, err := eng.ImportConfig(data)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
