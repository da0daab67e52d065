package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/regwatch/internal/config"
	"github.com/ppiankov/regwatch/internal/diff"
	"github.com/ppiankov/regwatch/internal/extract"
	"github.com/ppiankov/regwatch/internal/logging"
	"github.com/ppiankov/regwatch/internal/snapshot"
	"github.com/ppiankov/regwatch/internal/store"
	"github.com/ppiankov/regwatch/internal/summarize"
	"github.com/ppiankov/regwatch/internal/tracker"
)

// now stamps snapshots and diff artifacts. Swappable in tests.
var now = time.Now

// app holds what every command needs for one invocation.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
	ledger   *store.Store
	runID    string
}

// openApp loads the configuration, sets up logging and opens the ledger.
func openApp() (*app, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, closeLog, err := logging.New(cfg.SlogLevel(), cfg.Log.File, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}

	runID := uuid.NewString()
	logger = logger.With(slog.String("run_id", runID))

	ledger, err := store.Open(cfg.Storage.LedgerPath)
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	return &app{cfg: cfg, logger: logger, closeLog: closeLog, ledger: ledger, runID: runID}, nil
}

func (a *app) Close() {
	_ = a.ledger.Close()
	_ = a.closeLog()
}

func (a *app) snapshots() (*snapshot.Store, error) {
	return snapshot.NewStore(a.cfg.Storage.DocumentsDir, a.logger)
}

func (a *app) tracker() (*tracker.Tracker, error) {
	snaps, err := a.snapshots()
	if err != nil {
		return nil, err
	}
	diffs, err := diff.NewStore(a.cfg.Storage.DiffsDir, a.logger)
	if err != nil {
		return nil, err
	}
	return tracker.New(snaps, diffs, a.logger,
		tracker.WithLedger(a.ledger, a.runID),
		tracker.WithClock(now)), nil
}

// extractors builds one RegulationPage per configured variant.
func (a *app) extractors() (extract.Registry, error) {
	reg := make(extract.Registry, len(a.cfg.Extract.Variants))
	for name, v := range a.cfg.Extract.Variants {
		ex, err := extract.NewRegulationPage(v.Options(), a.logger.With(slog.String("variant", name)))
		if err != nil {
			return nil, fmt.Errorf("variant %s: %w", name, err)
		}
		reg[name] = ex
	}
	return reg, nil
}

// extractSnapshot writes the knowledge-base text of the snapshot at path.
func (a *app) extractSnapshot(reg extract.Registry, path string) (string, string, error) {
	ex, err := reg.Get(a.cfg.Extract.Variant)
	if err != nil {
		return "", "", err
	}
	dst := a.knowledgePath(path)
	text, err := ex.Extract(path, dst)
	if err != nil {
		return "", "", err
	}
	return extract.OutputPath(dst), text, nil
}

func (a *app) knowledgePath(snapshotPath string) string {
	return filepath.Join(a.cfg.Storage.KnowledgeDir, filepath.Base(snapshotPath))
}

// summarizer builds the configured provider.
func (a *app) summarizer() (summarize.Summarizer, error) {
	sc := a.cfg.Summarize
	if err := sc.Ready(); err != nil {
		return nil, err
	}
	switch sc.Provider {
	case "gemini":
		return summarize.NewGemini(sc.APIKey, sc.Endpoint, sc.Model, sc.Timeout.Duration), nil
	case "openai":
		return summarize.NewOpenAI(sc.APIKey, sc.Endpoint, sc.Model, sc.MaxTokens, sc.Timeout.Duration), nil
	case "heuristic":
		return summarize.Heuristic{}, nil
	default:
		return nil, fmt.Errorf("unknown summarize provider %q", sc.Provider)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
