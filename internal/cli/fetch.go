package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ppiankov/regwatch/internal/batch"
	"github.com/ppiankov/regwatch/internal/config"
	"github.com/ppiankov/regwatch/internal/source"
	"github.com/ppiankov/regwatch/internal/tracker"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch every target, diff against the previous capture and extract its text",
	RunE:  fetchAction,
}

func fetchAction(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmdContext(cmd)
	cfg := a.cfg

	targets := config.LoadTargets(cfg.TargetsPath(), a.logger)
	if len(targets) == 0 {
		fmt.Printf("No targets to fetch (see %s).\n", cfg.TargetsPath())
		return nil
	}

	snaps, err := a.snapshots()
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	tr, err := a.tracker()
	if err != nil {
		return fmt.Errorf("create tracker: %w", err)
	}
	reg, err := a.extractors()
	if err != nil {
		return fmt.Errorf("create extractors: %w", err)
	}
	fetcher := source.NewHTTPFetcher(cfg.Fetch.Timeout.Duration, cfg.Fetch.UserAgent, cfg.Fetch.MaxBytes)

	fetched, changed := 0, 0
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		log := a.logger.With(slog.String("key", t.Key.String()), slog.String("url", t.URL))

		body, err := fetcher.Fetch(ctx, t.URL)
		if err != nil {
			log.Error("fetch failed", slog.Any("error", err))
			fmt.Printf("  %s: fetch failed: %v\n", t.Key, err)
			continue
		}
		snap, err := snaps.Write(t.Key, now(), body)
		if err != nil {
			return fmt.Errorf("write snapshot %s: %w", t.Key, err)
		}
		fetched++
		log.Info("snapshot written", slog.String("snapshot", snap.Name), slog.Int("bytes", len(body)))

		res, err := tr.Process(ctx, snap.Path)
		if err != nil {
			log.Error("diff failed", slog.Any("error", err))
			fmt.Printf("  %s: diff failed: %v\n", t.Key, err)
			continue
		}
		fmt.Printf("  %s\n", describeResult(res))
		if res.Outcome == tracker.OutcomeDiffed && len(batch.ChangedLines(res.Diff.Lines, true)) > 0 {
			changed++
		}

		out, text, err := a.extractSnapshot(reg, snap.Path)
		switch {
		case err != nil:
			log.Error("extract failed", slog.Any("error", err))
			fmt.Printf("  %s: extract failed: %v\n", t.Key, err)
		case text == "":
			fmt.Printf("  %s: no regulation text found\n", t.Key)
		default:
			fmt.Printf("  %s: text saved to %s\n", t.Key, out)
		}
	}

	fmt.Printf("Fetched %d of %d targets, %d changed", fetched, len(targets), changed)
	pruned, err := a.ledger.PruneOld(ctx, cfg.Storage.RetainDays)
	if err != nil {
		a.logger.Warn("ledger prune failed", slog.Any("error", err))
	}
	if pruned > 0 {
		fmt.Printf(" (%d old ledger rows pruned)", pruned)
	}
	fmt.Println()

	if len(cfg.Fetch.Feeds) > 0 {
		printNotices(ctx, a, fetcher, targets)
	}
	return nil
}

// printNotices lists recent feed items that mention a target.
func printNotices(ctx context.Context, a *app, fetcher *source.HTTPFetcher, targets []config.Target) {
	feeds, err := source.NewFeedSource(a.cfg.Fetch.Feeds, fetcher.Client(), a.logger)
	if err != nil {
		fmt.Printf("warning: feeds: %v\n", err)
		return
	}
	since := now().Add(-a.cfg.Fetch.FeedWindow.Duration)
	notices, err := feeds.Notices(ctx, since)
	if err != nil {
		fmt.Printf("warning: feeds: %v\n", err)
		return
	}

	terms := make([]string, 0, 2*len(targets))
	for _, t := range targets {
		terms = append(terms, t.Key.String())
		if t.Name != "" && t.Name != t.Key.String() {
			terms = append(terms, t.Name)
		}
	}
	matched := source.Mentions(notices, terms)
	if len(matched) == 0 {
		fmt.Printf("No feed notice mentions a target (%d notices read).\n", len(notices))
		return
	}

	fmt.Printf("\n--- Notices (%d) ---\n", len(matched))
	for _, n := range matched {
		fmt.Printf("  %s  %s [%s]\n", n.Published.Format("2006-01-02"), n.Title, n.Terms[0])
		if n.URL != "" {
			fmt.Printf("      %s\n", n.URL)
		}
	}
}

func describeResult(res tracker.Result) string {
	key := res.Snapshot.Key
	switch res.Outcome {
	case tracker.OutcomeFirst:
		return fmt.Sprintf("%s: first snapshot %s", key, res.Snapshot.Name)
	case tracker.OutcomeDiffed:
		s := fmt.Sprintf("%s: %d changed lines -> %s", key, len(batch.ChangedLines(res.Diff.Lines, true)), res.Diff.Name)
		if res.Pruned > 0 {
			s += fmt.Sprintf(" (%d old snapshots pruned)", res.Pruned)
		}
		return s
	default:
		return "skipped: file name does not match {key}_YYYYMMDD_HHMMSS.html"
	}
}

func cmdContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}
