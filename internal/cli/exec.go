package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/shellguard/internal/engine"
	"github.com/ppiankov/shellguard/internal/runner"
)

// Exit codes: 77 indicates a policy block, 76 a spawn failure.
const (
	exitBlocked    = 77
	exitSpawnError = 76
)

var execDir string

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().StringVar(&execDir, "dir", "", "Working directory (default: current directory)")
}

var execCmd = &cobra.Command{
	Use:   "exec [flags] -- <command> [args...]",
	Short: "Execute a command line through the policy engine",
	Long:  "Validates the command against the effective policy before execution.\nBlocked commands are not executed. Exit code 77 indicates a policy block.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExec,
}

func runExec(cmd *cobra.Command, args []string) error {
	eng, _, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	commandLine := strings.Join(args, " ")
	res, err := eng.Execute(context.Background(), commandLine, execDir)
	if err != nil {
		if engine.IsDenied(err) {
			fmt.Fprintf(os.Stderr, "BLOCKED: %v\n", err)
			os.Exit(exitBlocked)
		}
		if errors.Is(err, runner.ErrSpawn) {
			fmt.Fprintf(os.Stderr, "spawn failed: %v\n", err)
			os.Exit(exitSpawnError)
		}
		return err
	}

	if res.Stdout != "" {
		fmt.Print(res.Stdout)
		if !strings.HasSuffix(res.Stdout, "\n") {
			fmt.Println()
		}
	}
	if res.Stderr != "" {
		fmt.Fprint(os.Stderr, res.Stderr)
		if !strings.HasSuffix(res.Stderr, "\n") {
			fmt.Fprintln(os.Stderr)
		}
	}

	if res.TimedOut {
		fmt.Fprintln(os.Stderr, "TIMEOUT: command terminated")
		os.Exit(1)
	}
	if res.ExitCode != nil && *res.ExitCode != 0 {
		os.Exit(*res.ExitCode)
	}
	return nil
}
