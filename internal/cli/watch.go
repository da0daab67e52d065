package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/regwatch/internal/tracker"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Diff and extract snapshots as they appear in the documents directory",
	Long: "Watches the documents directory and runs the diff, retention and extraction cycle for every " +
		"snapshot an external crawler drops there. Stops on interrupt.",
	RunE: watchAction,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", tracker.DefaultDebounce, "quiet period before a new file is processed")
}

func watchAction(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	tr, err := a.tracker()
	if err != nil {
		return fmt.Errorf("create tracker: %w", err)
	}
	reg, err := a.extractors()
	if err != nil {
		return fmt.Errorf("create extractors: %w", err)
	}

	fmt.Printf("Watching %s (Ctrl-C to stop)\n", a.cfg.Storage.DocumentsDir)
	return tr.Watch(cmdContext(cmd), watchDebounce, func(res tracker.Result, err error) {
		if err != nil {
			fmt.Printf("  error: %v\n", err)
			return
		}
		fmt.Printf("  %s\n", describeResult(res))
		if res.Outcome == tracker.OutcomeSkipped {
			return
		}
		out, text, err := a.extractSnapshot(reg, res.Snapshot.Path)
		switch {
		case err != nil:
			a.logger.Error("extract failed", slog.String("snapshot", res.Snapshot.Name), slog.Any("error", err))
		case text != "":
			fmt.Printf("  %s: text saved to %s\n", res.Snapshot.Key, out)
		}
	})
}
