// Package report turns the newest diff artifact of a document into a
// summarized change report.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/ppiankov/regwatch/internal/batch"
	"github.com/ppiankov/regwatch/internal/diff"
	"github.com/ppiankov/regwatch/internal/snapshot"
	"github.com/ppiankov/regwatch/internal/summarize"
)

// DefaultCostPerMillion is the USD rate applied per million tokens.
const DefaultCostPerMillion = 0.35

// ErrNoSummaries is returned when every batch failed to summarize.
var ErrNoSummaries = errors.New("no batch summary to aggregate")

// Config is built once per run and fixed for the Orchestrator's lifetime.
type Config struct {
	DiffDir         string
	Key             snapshot.Key
	Document        string // name used in prompts; defaults to Key
	TokenLimit      int
	KeepRemoved     bool
	CostPerMillion  float64
	Prompts         Prompts
	NoChangeMessage string
}

// BatchSummary is the outcome of one batch call. Err is set when the batch
// was skipped.
type BatchSummary struct {
	Index           int
	Lines           int
	EstimatedTokens int
	Text            string
	Tokens          int
	Err             string
}

// Report is the result of one generation.
type Report struct {
	Key           snapshot.Key
	DiffName      string
	DiffPath      string
	GeneratedAt   time.Time
	Batches       []BatchSummary
	GlobalSummary string
	TotalTokens   int
	Cost          float64
}

// Skipped returns the number of batches that failed to summarize.
func (r Report) Skipped() int {
	n := 0
	for _, b := range r.Batches {
		if b.Err != "" {
			n++
		}
	}
	return n
}

// Orchestrator runs LocatingSource -> Compressing -> Summarizing ->
// Aggregating for one document key.
type Orchestrator struct {
	cfg        Config
	prompts    compiledPrompts
	diffs      *diff.Store
	summarizer summarize.Summarizer
	logger     *slog.Logger

	state State

	// OnState, when set, observes every transition. n is the 1-based batch
	// index while Summarizing and 0 otherwise.
	OnState func(s State, n int)

	now func() time.Time
}

// New validates cfg and returns an idle Orchestrator.
func New(cfg Config, s summarize.Summarizer, logger *slog.Logger) (*Orchestrator, error) {
	if s == nil {
		return nil, errors.New("summarizer is required")
	}
	if err := cfg.Key.Validate(); err != nil {
		return nil, err
	}
	if cfg.TokenLimit == 0 {
		cfg.TokenLimit = batch.DefaultTokenLimit
	}
	if cfg.TokenLimit < 0 {
		return nil, fmt.Errorf("%w: %d", batch.ErrInvalidLimit, cfg.TokenLimit)
	}
	if cfg.CostPerMillion == 0 {
		cfg.CostPerMillion = DefaultCostPerMillion
	}
	if cfg.NoChangeMessage == "" {
		cfg.NoChangeMessage = NoChangeMessage
	}
	if cfg.Document == "" {
		cfg.Document = cfg.Key.String()
	}
	if logger == nil {
		logger = slog.Default()
	}

	prompts, err := compilePrompts(cfg.Prompts)
	if err != nil {
		return nil, err
	}
	diffs, err := diff.NewStore(cfg.DiffDir, logger)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		cfg:        cfg,
		prompts:    prompts,
		diffs:      diffs,
		summarizer: s,
		logger:     logger.With(slog.String("key", cfg.Key.String())),
		state:      Idle,
		now:        time.Now,
	}, nil
}

// State returns the current state.
func (o *Orchestrator) State() State {
	return o.state
}

// Generate summarizes the newest diff artifact of the configured key.
// A missing artifact is fatal. Failed batches are logged and skipped; a
// failed aggregation call is fatal.
func (o *Orchestrator) Generate(ctx context.Context) (Report, error) {
	o.enter(LocatingSource, 0)
	path, err := o.diffs.Latest(o.cfg.Key)
	if err != nil {
		return Report{}, o.fail(err)
	}
	art, err := o.diffs.Read(path)
	if err != nil {
		return Report{}, o.fail(fmt.Errorf("read diff: %w", err))
	}
	o.logger.Info("located diff", slog.String("path", path), slog.Int("lines", len(art.Lines)))

	rep := Report{
		Key:         o.cfg.Key,
		DiffName:    art.Name,
		DiffPath:    path,
		GeneratedAt: o.now(),
	}

	o.enter(Compressing, 0)
	batches, err := batch.Compress(art.Lines, batch.Options{
		TokenLimit:  o.cfg.TokenLimit,
		KeepRemoved: o.cfg.KeepRemoved,
	})
	if err != nil {
		return Report{}, o.fail(err)
	}
	if len(batches) == 0 {
		o.logger.Info("diff has no changed lines")
		rep.GlobalSummary = o.cfg.NoChangeMessage
		o.enter(Done, 0)
		return rep, nil
	}
	o.logger.Info("compressed diff", slog.Int("batches", len(batches)))

	var summaries []string
	for i, b := range batches {
		if err := ctx.Err(); err != nil {
			return Report{}, o.fail(err)
		}
		o.enter(Summarizing, i+1)

		bs := BatchSummary{Index: i + 1, Lines: len(b.Lines), EstimatedTokens: b.Tokens}
		res, err := o.call(ctx, o.prompts.batch, b.Text())
		if err != nil {
			o.logger.Warn("batch summary failed, skipping",
				slog.Int("batch", i+1), slog.String("error", err.Error()))
			bs.Err = err.Error()
			rep.Batches = append(rep.Batches, bs)
			continue
		}
		o.logger.Info("batch summarized", slog.Int("batch", i+1), slog.Int("tokens", res.TotalTokens))
		bs.Text = res.Text
		bs.Tokens = res.TotalTokens
		rep.Batches = append(rep.Batches, bs)
		rep.TotalTokens += res.TotalTokens
		summaries = append(summaries, res.Text)
	}

	if len(summaries) == 0 {
		return Report{}, o.fail(fmt.Errorf("%w: %d batches failed", ErrNoSummaries, len(batches)))
	}

	o.enter(Aggregating, 0)
	res, err := o.call(ctx, o.prompts.aggregate, strings.Join(summaries, "\n\n"))
	if err != nil {
		return Report{}, o.fail(fmt.Errorf("aggregate summaries: %w", err))
	}
	rep.GlobalSummary = res.Text
	rep.TotalTokens += res.TotalTokens
	rep.Cost = Cost(rep.TotalTokens, o.cfg.CostPerMillion)

	o.logger.Info("report generated",
		slog.Int("tokens", rep.TotalTokens),
		slog.String("cost", fmt.Sprintf("%.4f", rep.Cost)),
		slog.Int("skipped", rep.Skipped()))
	o.enter(Done, 0)
	return rep, nil
}

// Cost converts a token count into USD at perMillion.
func Cost(tokens int, perMillion float64) float64 {
	return float64(tokens) / 1e6 * perMillion
}

func (o *Orchestrator) call(ctx context.Context, tmpl *template.Template, blob string) (summarize.Result, error) {
	prompt, err := render(tmpl, PromptData{
		Document: o.cfg.Document,
		Context:  blob,
		NoChange: o.cfg.NoChangeMessage,
	})
	if err != nil {
		return summarize.Result{}, err
	}
	if cs, ok := o.summarizer.(summarize.ContextSummarizer); ok {
		return cs.SummarizeContext(ctx, prompt, blob)
	}
	return o.summarizer.Summarize(ctx, prompt)
}

func (o *Orchestrator) enter(s State, n int) {
	o.state = s
	if o.OnState != nil {
		o.OnState(s, n)
	}
}

func (o *Orchestrator) fail(err error) error {
	o.logger.Error("report failed", slog.String("state", o.state.String()), slog.String("error", err.Error()))
	o.enter(Failed, 0)
	return err
}
