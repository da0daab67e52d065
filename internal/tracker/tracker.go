// Package tracker runs the diff and retention cycle for newly fetched
// snapshots.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/ppiankov/regwatch/internal/batch"
	"github.com/ppiankov/regwatch/internal/diff"
	"github.com/ppiankov/regwatch/internal/snapshot"
	"github.com/ppiankov/regwatch/internal/store"
)

// Outcome is what Process did with one snapshot.
type Outcome int

const (
	// OutcomeSkipped: the file name does not follow the snapshot convention.
	OutcomeSkipped Outcome = iota
	// OutcomeFirst: no earlier snapshot of the key exists.
	OutcomeFirst
	// OutcomeDiffed: a diff artifact was written and older snapshots pruned.
	OutcomeDiffed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFirst:
		return "first"
	case OutcomeDiffed:
		return "diffed"
	default:
		return "unknown"
	}
}

// Result describes one Process call.
type Result struct {
	Outcome  Outcome
	Snapshot snapshot.Snapshot
	Previous snapshot.Snapshot // set when Outcome is OutcomeDiffed
	Diff     diff.Artifact     // set when Outcome is OutcomeDiffed
	Pruned   int
	// PruneErrors holds the deletions that failed. They do not fail Process.
	PruneErrors []error
}

// Ledger records what the tracker observed. *store.Store implements it.
type Ledger interface {
	RecordSnapshot(ctx context.Context, rec store.SnapshotRecord) error
	RecordDiff(ctx context.Context, rec store.DiffRecord) error
}

// Tracker compares each new snapshot with its predecessor.
type Tracker struct {
	snaps  *snapshot.Store
	diffs  *diff.Store
	logger *slog.Logger
	ledger Ledger
	runID  string
	now    func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLedger records every outcome in l under runID.
func WithLedger(l Ledger, runID string) Option {
	return func(t *Tracker) {
		t.ledger = l
		t.runID = runID
	}
}

// WithClock replaces time.Now for diff artifact names.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// New returns a Tracker over the given stores.
func New(snaps *snapshot.Store, diffs *diff.Store, logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		snaps:  snaps,
		diffs:  diffs,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Process runs one diff and retention cycle for the snapshot at path, which
// must live in the snapshot directory. A name that does not follow the
// snapshot convention and a first observation are not errors. A failed
// artifact write aborts before anything is deleted.
func (t *Tracker) Process(ctx context.Context, path string) (Result, error) {
	name := filepath.Base(path)
	cur, err := t.snaps.Open(name)
	if errors.Is(err, snapshot.ErrNameMismatch) {
		t.logger.Warn("file name does not match snapshot pattern, skipping", slog.String("file", name))
		return Result{Outcome: OutcomeSkipped}, nil
	}
	if err != nil {
		return Result{}, err
	}
	log := t.logger.With(slog.String("key", cur.Key.String()))

	prev, old, err := t.snaps.Previous(cur)
	if errors.Is(err, snapshot.ErrNoPrevious) {
		log.Info("no previous snapshot, nothing to compare", slog.String("snapshot", cur.Name))
		cur, _, err = t.snaps.Load(cur)
		if err != nil {
			return Result{}, err
		}
		t.recordSnapshot(ctx, cur)
		return Result{Outcome: OutcomeFirst, Snapshot: cur}, nil
	}
	if err != nil {
		return Result{}, err
	}

	prev, oldLines, err := t.snaps.Load(prev)
	if err != nil {
		return Result{}, err
	}
	cur, newLines, err := t.snaps.Load(cur)
	if err != nil {
		return Result{}, err
	}

	lines := diff.Unified(oldLines, newLines, prev.Name, cur.Name)
	art, err := t.diffs.Write(cur.Key, prev.Name, cur.Name, t.now(), lines)
	if err != nil {
		return Result{}, fmt.Errorf("diff %s: %w", cur.Name, err)
	}
	log.Info("diff written",
		slog.String("from", prev.Name),
		slog.String("to", cur.Name),
		slog.String("artifact", art.Name),
		slog.Int("lines", len(lines)))

	removed, failed := t.snaps.Prune(old)

	t.recordSnapshot(ctx, cur)
	t.recordDiff(ctx, art, removed)

	return Result{
		Outcome:     OutcomeDiffed,
		Snapshot:    cur,
		Previous:    prev,
		Diff:        art,
		Pruned:      removed,
		PruneErrors: failed,
	}, nil
}

func (t *Tracker) recordSnapshot(ctx context.Context, snap snapshot.Snapshot) {
	if t.ledger == nil {
		return
	}
	err := t.ledger.RecordSnapshot(ctx, store.SnapshotRecord{
		Key:        snap.Key.String(),
		Name:       snap.Name,
		CapturedAt: snap.CapturedAt,
		Encoding:   string(snap.Encoding),
		SHA256:     store.ContentHash(snap.Content),
		Size:       int64(len(snap.Content)),
		RunID:      t.runID,
	})
	if err != nil {
		t.logger.Warn("ledger: record snapshot failed", slog.String("error", err.Error()))
	}
}

func (t *Tracker) recordDiff(ctx context.Context, art diff.Artifact, pruned int) {
	if t.ledger == nil {
		return
	}
	err := t.ledger.RecordDiff(ctx, store.DiffRecord{
		Key:          art.Key.String(),
		Name:         art.Name,
		FromName:     art.From,
		ToName:       art.To,
		GeneratedAt:  art.GeneratedAt,
		ChangedLines: len(batch.ChangedLines(art.Lines, true)),
		Pruned:       pruned,
		RunID:        t.runID,
	})
	if err != nil {
		t.logger.Warn("ledger: record diff failed", slog.String("error", err.Error()))
	}
}
