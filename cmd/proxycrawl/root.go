package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	plog "github.com/nao1215/proxycrawl/internal/log"
)

// NewRootCmd creates the root command for proxycrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxycrawl",
		Short: "Regression crawler for rewriting web proxies",
		Long: `proxycrawl drives two browsers over the same seed sites: one through the
proxy under test, one directly. It follows links on each seed page and
compares the rendered height of every page pair, so proxy rewrites that
break a page's layout show up as regressions.

Runs are saved to a local history database; use 'proxycrawl compare' to see
which regressions are new since an earlier run.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(newDefaultLogger(cmd))
		},
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write diagnostic logs as JSON")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// newDefaultLogger builds the process-wide logger from the global flags.
// The run command replaces it with a per-worker logger.
func newDefaultLogger(cmd *cobra.Command) *slog.Logger {
	verbose := getVerboseFlag(cmd)
	if asJSON, _ := cmd.Root().PersistentFlags().GetBool("log-json"); asJSON { //nolint:errcheck // flag is registered on the root
		return plog.NewSecureJSONLogger(cmd.ErrOrStderr(), verbose)
	}
	return plog.NewSecureLogger(cmd.ErrOrStderr(), verbose)
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
