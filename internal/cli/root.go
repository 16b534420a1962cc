package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/shellguard/internal/config"
	"github.com/ppiankov/shellguard/internal/engine"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "shellguard",
	Short: "Policy-gated shell command execution for AI agents",
	Long:  "Executes shell commands under a layered allow/block policy with path containment,\ntimeout bounds, output truncation, and a hash-chained audit log.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to settings YAML (default: ~/.shellguard/config.yaml)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadSettings resolves settings from the --config file and the
// environment.
func loadSettings() (config.Settings, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return config.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return settings, nil
}

// newEngine builds an engine from resolved settings.
func newEngine() (*engine.Engine, config.Settings, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, config.Settings{}, err
	}
	eng, err := engine.New(settings, version)
	if err != nil {
		return nil, config.Settings{}, fmt.Errorf("create engine: %w", err)
	}
	return eng, settings, nil
}
