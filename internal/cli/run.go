package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var runEvery string

// Swappable in tests.
var (
	runFetchAction  = fetchAction
	runReportAction = reportAction
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch every target then report on the changes",
	RunE:  runAction,
}

func init() {
	runCmd.Flags().StringVar(&runEvery, "every", "", "repeat on this interval (e.g. 720h) until interrupted")
}

func runAction(cmd *cobra.Command, args []string) error {
	every, err := parseRunEvery(runEvery)
	if err != nil {
		return err
	}

	runOnce := func() error {
		if err := runFetchAction(cmd, args); err != nil {
			return err
		}
		return runReportAction(cmd, args)
	}

	if every == 0 {
		return runOnce()
	}
	return runWatch(cmdContext(cmd), every, runOnce)
}

func parseRunEvery(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse --every: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("--every must be positive, got %s", s)
	}
	return d, nil
}

// runWatch calls runOnce immediately, then on every tick until ctx is done.
// A failed cycle is reported and the loop keeps going.
func runWatch(ctx context.Context, interval time.Duration, runOnce func() error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := runOnce(); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Printf("run failed: %v\n", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
