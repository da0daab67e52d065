package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/regwatch/internal/store"
)

var (
	statsFormat    string
	statsStaleDays int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-document capture, diff and report counts",
	RunE:  statsAction,
}

func init() {
	statsCmd.Flags().StringVar(&statsFormat, "format", "terminal", "output format: terminal, json")
	statsCmd.Flags().IntVar(&statsStaleDays, "stale", defaultStaleDays, "flag documents not captured for this many days")
	rootCmd.AddCommand(statsCmd)
}

// Regulations are checked monthly; a document unseen for longer is stale.
const defaultStaleDays = 45

func statsAction(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.ledger.Stats(cmdContext(cmd))
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	switch statsFormat {
	case "json":
		return printStatsJSON(os.Stdout, stats)
	case "terminal", "":
		if len(stats) == 0 {
			fmt.Println("Nothing recorded yet. Run 'regwatch fetch' first.")
			return nil
		}
		printStats(os.Stdout, stats, time.Now(), statsStaleDays)
		return nil
	default:
		return fmt.Errorf("unknown format %q (want terminal or json)", statsFormat)
	}
}

type jsonStatsOutput struct {
	Documents []jsonKeyStats `json:"documents"`
	Totals    jsonTotals     `json:"totals"`
}

type jsonKeyStats struct {
	Key          string  `json:"key"`
	Snapshots    int     `json:"snapshots"`
	Diffs        int     `json:"diffs"`
	Reports      int     `json:"reports"`
	LastCaptured string  `json:"last_captured,omitempty"`
	TotalTokens  int     `json:"total_tokens"`
	Cost         float64 `json:"cost_usd"`
}

type jsonTotals struct {
	Reports     int     `json:"reports"`
	TotalTokens int     `json:"total_tokens"`
	Cost        float64 `json:"cost_usd"`
}

func printStatsJSON(w io.Writer, stats []store.KeyStats) error {
	out := jsonStatsOutput{Documents: make([]jsonKeyStats, 0, len(stats))}
	for _, ks := range stats {
		js := jsonKeyStats{
			Key:         ks.Key,
			Snapshots:   ks.Snapshots,
			Diffs:       ks.Diffs,
			Reports:     ks.Reports,
			TotalTokens: ks.TotalTokens,
			Cost:        ks.Cost,
		}
		if !ks.LastCaptured.IsZero() {
			js.LastCaptured = ks.LastCaptured.UTC().Format(time.RFC3339)
		}
		out.Documents = append(out.Documents, js)
		out.Totals.Reports += ks.Reports
		out.Totals.TotalTokens += ks.TotalTokens
		out.Totals.Cost += ks.Cost
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printStats(w io.Writer, stats []store.KeyStats, now time.Time, staleDays int) {
	var tokens int
	var cost float64
	for _, ks := range stats {
		tokens += ks.TotalTokens
		cost += ks.Cost
	}
	fmt.Fprintf(w, "regwatch stats — %d documents, %d tokens, ~$%.4f USD\n\n", len(stats), tokens, cost)

	width := 8 // "Document"
	for _, ks := range stats {
		if len(ks.Key) > width {
			width = len(ks.Key)
		}
	}
	if width > 40 {
		width = 40
	}

	fmt.Fprintf(w, "  %-*s  %9s  %5s  %7s  %-10s\n", width, "Document", "Snapshots", "Diffs", "Reports", "Last seen")
	for _, ks := range stats {
		name := ks.Key
		if len(name) > width {
			name = name[:width-1] + "…"
		}
		last := "-"
		if !ks.LastCaptured.IsZero() {
			last = ks.LastCaptured.Local().Format("2006-01-02")
		}
		fmt.Fprintf(w, "  %-*s  %9d  %5d  %7d  %-10s\n", width, name, ks.Snapshots, ks.Diffs, ks.Reports, last)
	}
	fmt.Fprintln(w)

	threshold := now.AddDate(0, 0, -staleDays)
	var stale []store.KeyStats
	for _, ks := range stats {
		if !ks.LastCaptured.IsZero() && ks.LastCaptured.Before(threshold) {
			stale = append(stale, ks)
		}
	}
	if len(stale) > 0 {
		fmt.Fprintf(w, "--- Stale Documents (not captured in %d+ days) ---\n\n", staleDays)
		for _, ks := range stale {
			days := int(now.Sub(ks.LastCaptured).Hours() / 24)
			fmt.Fprintf(w, "  %s — last capture %d days ago\n", ks.Key, days)
		}
		fmt.Fprintln(w)
	}
}
