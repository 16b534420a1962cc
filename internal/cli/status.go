package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(viewCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine configuration and audit counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()
		return printJSON(eng.GetStatus())
	},
}

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Show the detailed policy breakdown with override provenance",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()
		return printJSON(eng.ViewConfig())
	},
}
