package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	guardmcp "github.com/ppiankov/shellguard/internal/mcp"
	"github.com/ppiankov/shellguard/internal/watch"
)

var serveNoWatch bool

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Disable the policy file watcher")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP tool server for agent integration",
	Long:  "Runs shellguard as an MCP (Model Context Protocol) server over stdio.\nExposes the execution engine's operations as policy-enforced tools.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	srv, err := guardmcp.New(settings, version)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	if !serveNoWatch {
		watcher, err := watch.New(srv.Engine().Store())
		if err != nil {
			fmt.Fprintf(os.Stderr, "policy watcher disabled: %v\n", err)
		} else {
			go watcher.Run(ctx)
		}
	}

	fmt.Fprintln(os.Stderr, "shellguard MCP server running on stdio")
	fmt.Fprintf(os.Stderr, "Allowed directories: %v\n", settings.AllowedDirs)
	fmt.Fprintln(os.Stderr)

	return srv.Run(ctx)
}
