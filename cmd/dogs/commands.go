package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sokinpui/dogs.go/cli"
)

var (
	cfg = cli.Default()

	rootCmd = &cobra.Command{
		Use:   "dogs",
		Short: "Apply DOGS/CATS file bundles to a working tree",
		Long: `dogs parses a bundle of file blocks, lets you review each change,
and writes the accepted ones. With --verify it checkpoints the git tree
first, runs the test command and rolls back on request when it fails.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(cfg.Verbose)
		},
	}

	applyCmd = &cobra.Command{
		Use:   "apply <bundle-path|-> <output-dir>",
		Short: "Review and apply a bundle ('-' reads stdin, or the clipboard on a terminal)",
		Args:  cobra.ExactArgs(2),
		RunE:  runApply, // Defined in cmd_apply.go
	}

	historyCmd = &cobra.Command{
		Use:   "history [output-dir]",
		Short: "List previous apply runs recorded in <output-dir>/.dogs",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistory, // Defined in cmd_history.go
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable debug logging.")
	cli.BindFlags(applyCmd.Flags(), cfg)

	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(historyCmd)
}

// setupLogging installs the default slog handler. Diagnostics stay at Warn
// unless --verbose is given.
func setupLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
