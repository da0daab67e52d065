package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/regwatch/internal/config"
	"github.com/ppiankov/regwatch/internal/report"
	"github.com/ppiankov/regwatch/internal/snapshot"
	"github.com/ppiankov/regwatch/internal/store"
	"github.com/ppiankov/regwatch/internal/summarize"
)

var (
	reportKeys   []string
	reportFormat string
	noColor      bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize the latest diff of each document with the configured LLM",
	RunE:  reportAction,
}

func init() {
	reportCmd.Flags().StringSliceVar(&reportKeys, "key", nil, "document key to report on (repeatable; default from config or targets)")
	reportCmd.Flags().StringVar(&reportFormat, "format", "", "output format: terminal, markdown, json")
	reportCmd.Flags().BoolVar(&noColor, "no-color", false, "disable ANSI colors")
}

func reportAction(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	format := a.cfg.Report.Format
	if reportFormat != "" {
		format = reportFormat
	}
	formatter, err := report.NewFormatter(format, !noColor)
	if err != nil {
		return err
	}

	keys, err := a.keysToReport()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		fmt.Println("No document to report on. Set report.keys or add targets.")
		return nil
	}

	s, err := a.summarizer()
	if err != nil {
		return err
	}

	ctx := cmdContext(cmd)
	var failed []error
	for _, key := range keys {
		rep, err := a.generateReport(ctx, key, s)
		if err != nil {
			a.logger.Error("report failed", slog.String("key", key.String()), slog.Any("error", err))
			fmt.Printf("%s: report failed: %v\n", key, err)
			failed = append(failed, fmt.Errorf("%s: %w", key, err))
			continue
		}
		if err := formatter.Format(os.Stdout, rep); err != nil {
			return fmt.Errorf("format report: %w", err)
		}
	}
	return errors.Join(failed...)
}

// keysToReport returns --key, else report.keys, else every target key.
func (a *app) keysToReport() ([]snapshot.Key, error) {
	names := reportKeys
	if len(names) == 0 {
		names = a.cfg.Report.Keys
	}
	if len(names) == 0 {
		var keys []snapshot.Key
		for _, t := range config.LoadTargets(a.cfg.TargetsPath(), a.logger) {
			keys = append(keys, t.Key)
		}
		return keys, nil
	}

	keys := make([]snapshot.Key, 0, len(names))
	for _, n := range names {
		k := snapshot.Key(n)
		if err := k.Validate(); err != nil {
			return nil, fmt.Errorf("key %q: %w", n, err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// generateReport runs the orchestrator for key and records the result.
func (a *app) generateReport(ctx context.Context, key snapshot.Key, s summarize.Summarizer) (report.Report, error) {
	rc := a.cfg.Report
	o, err := report.New(report.Config{
		DiffDir:        a.cfg.Storage.DiffsDir,
		Key:            key,
		TokenLimit:     rc.TokenLimit,
		KeepRemoved:    rc.KeepRemovedLines(),
		CostPerMillion: rc.CostPerMillion,
		Prompts: report.Prompts{
			Batch:     rc.BatchPrompt,
			Aggregate: rc.AggregatePrompt,
		},
		NoChangeMessage: rc.NoChangeMessage,
	}, s, a.logger)
	if err != nil {
		return report.Report{}, err
	}
	o.OnState = func(st report.State, n int) {
		a.logger.Debug("report state", slog.String("key", key.String()), slog.String("state", st.String()), slog.Int("batch", n))
	}

	rep, err := o.Generate(ctx)
	if err != nil {
		return report.Report{}, err
	}

	_, err = a.ledger.RecordReport(ctx, store.ReportRecord{
		Key:           key.String(),
		DiffName:      rep.DiffName,
		GlobalSummary: rep.GlobalSummary,
		TotalTokens:   rep.TotalTokens,
		Cost:          rep.Cost,
		Batches:       len(rep.Batches),
		Skipped:       rep.Skipped(),
		GeneratedAt:   rep.GeneratedAt,
		RunID:         a.runID,
	})
	if err != nil {
		a.logger.Warn("ledger write failed", slog.String("key", key.String()), slog.Any("error", err))
	}
	return rep, nil
}
