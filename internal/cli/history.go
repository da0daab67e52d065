package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/regwatch/internal/snapshot"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <key>",
	Short: "Show recorded snapshots, diffs and reports of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  historyAction,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "entries per section (0 for all)")
}

func historyAction(cmd *cobra.Command, args []string) error {
	key := snapshot.Key(args[0])
	if err := key.Validate(); err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmdContext(cmd)
	snaps, err := a.ledger.Snapshots(ctx, key.String(), historyLimit)
	if err != nil {
		return err
	}
	diffs, err := a.ledger.Diffs(ctx, key.String(), historyLimit)
	if err != nil {
		return err
	}
	reports, err := a.ledger.LatestReports(ctx, key.String(), historyLimit)
	if err != nil {
		return err
	}

	if len(snaps) == 0 && len(diffs) == 0 && len(reports) == 0 {
		fmt.Printf("Nothing recorded for %s. Run 'regwatch fetch' first.\n", key)
		return nil
	}

	fmt.Printf("regwatch history — %s\n\n", key)

	fmt.Printf("--- Snapshots (%d) ---\n", len(snaps))
	for _, s := range snaps {
		fmt.Printf("  %s  %s  %d bytes  %s  %.12s\n",
			s.CapturedAt.Local().Format("2006-01-02 15:04:05"), s.Name, s.Size, s.Encoding, s.SHA256)
	}
	fmt.Println()

	fmt.Printf("--- Diffs (%d) ---\n", len(diffs))
	for _, d := range diffs {
		fmt.Printf("  %s  %s  %d changed lines", d.GeneratedAt.Local().Format("2006-01-02 15:04:05"), d.Name, d.ChangedLines)
		if d.Pruned > 0 {
			fmt.Printf(", %d pruned", d.Pruned)
		}
		fmt.Println()
	}
	fmt.Println()

	fmt.Printf("--- Reports (%d) ---\n", len(reports))
	for _, r := range reports {
		fmt.Printf("  %s  %s  %d tokens  ~$%.4f", r.GeneratedAt.Local().Format("2006-01-02 15:04:05"), r.DiffName, r.TotalTokens, r.Cost)
		if r.Skipped > 0 {
			fmt.Printf("  (%d/%d batches skipped)", r.Skipped, r.Batches)
		}
		fmt.Println()
		fmt.Printf("      %s\n", firstLine(r.GlobalSummary, 100))
	}
	return nil
}

// firstLine returns the first line of s, cut to n runes.
func firstLine(s string, n int) string {
	for i, c := range s {
		if c == '\n' {
			s = s[:i]
			break
		}
	}
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
