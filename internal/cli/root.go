// Package cli provides the command-line interface for regwatch.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/regwatch/internal/config"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "regwatch",
	Short: "Track changes to regulation web pages",
	Long: "regwatch fetches government regulation pages, diffs each capture against the previous one, " +
		"extracts the regulation text into a knowledge base and summarizes the changes with an LLM.",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("regwatch %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", config.DefaultConfigDir, "configuration directory")
	rootCmd.AddCommand(versionCmd, initCmd, fetchCmd, diffCmd, extractCmd, reportCmd, runCmd, watchCmd, historyCmd, doctorCmd)
}

// Execute runs the root command until it returns or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
