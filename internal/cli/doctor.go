package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/regwatch/internal/config"
	"github.com/ppiankov/regwatch/internal/diff"
	"github.com/ppiankov/regwatch/internal/store"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, storage and credentials",
	RunE:  doctorAction,
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ok := true

	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printCheck(false, "config directory %s", configDir)
		ok = false
	} else {
		printCheck(true, "config directory %s", configDir)
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		printCheck(false, "config.yaml: %v", err)
		return fmt.Errorf("some checks failed")
	}
	printCheck(true, "config.yaml (provider %s, variant %s, %d feeds)",
		cfg.Summarize.Provider, cfg.Extract.Variant, len(cfg.Fetch.Feeds))

	targets := config.LoadTargets(cfg.TargetsPath(), discardLogger())
	if len(targets) == 0 {
		printCheck(false, "targets %s: no usable rows", cfg.TargetsPath())
		ok = false
	} else {
		printCheck(true, "targets %s (%d documents)", cfg.TargetsPath(), len(targets))
	}

	for _, dir := range []struct{ label, path string }{
		{"documents", cfg.Storage.DocumentsDir},
		{"diffs", cfg.Storage.DiffsDir},
		{"knowledge base", cfg.Storage.KnowledgeDir},
	} {
		if err := os.MkdirAll(dir.path, 0o755); err != nil {
			printCheck(false, "%s directory %s: %v", dir.label, dir.path, err)
			ok = false
			continue
		}
		printCheck(true, "%s directory %s", dir.label, dir.path)
	}

	db, err := store.Open(cfg.Storage.LedgerPath)
	if err != nil {
		printCheck(false, "ledger: %v", err)
		ok = false
	} else {
		defer func() { _ = db.Close() }()
		printCheck(true, "ledger %s", cfg.Storage.LedgerPath)
	}

	if err := cfg.Summarize.Ready(); err != nil {
		printCheck(false, "%v", err)
		ok = false
	} else {
		printCheck(true, "summarizer %s (%s)", cfg.Summarize.Provider, cfg.Summarize.Model)
	}

	if db != nil && len(targets) > 0 {
		checkFreshness(cmd, db, cfg, targets)
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

// checkFreshness reports documents never captured, captured long ago, or
// without any diff artifact to report on. Informational only.
func checkFreshness(cmd *cobra.Command, db *store.Store, cfg *config.Config, targets []config.Target) {
	stats, err := db.Stats(cmdContext(cmd))
	if err != nil {
		return
	}
	seen := make(map[string]store.KeyStats, len(stats))
	for _, ks := range stats {
		seen[ks.Key] = ks
	}

	diffs, _ := diff.NewStore(cfg.Storage.DiffsDir, discardLogger())
	stale := time.Now().AddDate(0, 0, -defaultStaleDays)

	fmt.Println()
	for _, t := range targets {
		ks, found := seen[t.Key.String()]
		switch {
		case !found || ks.LastCaptured.IsZero():
			printInfo("%s: never captured", t.Key)
		case ks.LastCaptured.Before(stale):
			printInfo("%s: last capture %d days ago", t.Key, int(time.Since(ks.LastCaptured).Hours()/24))
		}
		if diffs != nil {
			if _, err := diffs.Latest(t.Key); err != nil {
				printInfo("%s: no diff to report on yet", t.Key)
			}
		}
	}
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("[INFO] %s\n", fmt.Sprintf(format, args...))
}
