package cli

import (
	"github.com/spf13/cobra"
)

var historyLimit int

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum matches to return")
}

var historyCmd = &cobra.Command{
	Use:   "history <query>",
	Short: "Search the audit log",
	Long:  "Searches raw audit log lines for a substring and prints the most\nrecent matches in file order.",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	eng, _, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	entries, err := eng.SearchHistory(args[0], historyLimit)
	if err != nil {
		return err
	}
	return printJSON(entries)
}
