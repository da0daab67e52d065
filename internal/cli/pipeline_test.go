package cli

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/regwatch/internal/config"
	"github.com/ppiankov/regwatch/internal/diff"
	"github.com/ppiankov/regwatch/internal/snapshot"
)

const pipelinePageV1 = `<html><body>
<div class="DefaultPageSequence BodyPageSequence">
<p>CHAPITRE I</p>
<p>1. Toute activité est soumise à une autorisation préalable.</p>
</div>
</body></html>
`

const pipelinePageV2 = `<html><body>
<div class="DefaultPageSequence BodyPageSequence">
<p>CHAPITRE I</p>
<p>1. Toute activité est soumise à une déclaration de conformité.</p>
</div>
</body></html>
`

type pageServer struct {
	mu   sync.Mutex
	page string
	feed string
}

func (p *pageServer) set(page string) {
	p.mu.Lock()
	p.page = page
	p.mu.Unlock()
}

func (p *pageServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch r.URL.Path {
	case "/reafie":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, p.page)
	case "/gazette.xml":
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = io.WriteString(w, p.feed)
	default:
		http.NotFound(w, r)
	}
}

func TestPipelineFetchReportHistory(t *testing.T) {
	base := time.Now().Add(-48 * time.Hour).Truncate(time.Second)
	second := base.Add(24 * time.Hour)

	pages := &pageServer{
		page: pipelinePageV1,
		feed: `<?xml version="1.0"?><rss version="2.0"><channel><title>Gazette officielle</title>
<item><title>Projet de règlement modifiant le REAFIE</title><link>https://example.org/g/1</link>
<pubDate>` + base.Format(time.RFC1123Z) + `</pubDate><description>Avis</description></item>
<item><title>Nomination</title><link>https://example.org/g/2</link>
<pubDate>` + base.Format(time.RFC1123Z) + `</pubDate></item>
</channel></rss>`,
	}
	srv := httptest.NewServer(pages)
	defer srv.Close()

	tmpDir := t.TempDir()
	docsDir := filepath.Join(tmpDir, "data", "html")
	diffsDir := filepath.Join(tmpDir, "data", "diffs")
	kbDir := filepath.Join(tmpDir, "kb")
	writePipelineConfig(t, tmpDir, srv.URL, docsDir, diffsDir, kbDir)

	clock := base
	swapCLIState(t, tmpDir, func() time.Time { return clock })

	cmd := &cobra.Command{}

	out, err := captureStdout(t, func() error { return fetchAction(cmd, nil) })
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	firstName := snapshot.FileName("REAFIE", base)
	requireContains(t, out, "REAFIE: first snapshot "+firstName)
	requireContains(t, out, "REAFIE: text saved to "+filepath.Join(kbDir, strings.TrimSuffix(firstName, ".html")+".txt"))
	requireContains(t, out, "Fetched 1 of 1 targets, 0 changed")
	requireContains(t, out, "--- Notices (1) ---")
	requireContains(t, out, "Projet de règlement modifiant le REAFIE [REAFIE]")

	pages.set(pipelinePageV2)
	clock = second
	out, err = captureStdout(t, func() error { return fetchAction(cmd, nil) })
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	diffName := diff.FileName("REAFIE", second)
	requireContains(t, out, "REAFIE: 2 changed lines -> "+diffName+" (1 old snapshots pruned)")
	requireContains(t, out, "Fetched 1 of 1 targets, 1 changed")

	entries, err := os.ReadDir(docsDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != snapshot.FileName("REAFIE", second) {
		t.Fatalf("documents dir = %v, want only the newest snapshot", entries)
	}
	kbText, err := os.ReadFile(filepath.Join(kbDir, strings.TrimSuffix(snapshot.FileName("REAFIE", second), ".html")+".txt"))
	if err != nil {
		t.Fatalf("read knowledge text: %v", err)
	}
	if !strings.Contains(string(kbText), "# CHAPITRE I") || !strings.Contains(string(kbText), "déclaration de conformité") {
		t.Errorf("knowledge text = %q", kbText)
	}

	reportFormat = "terminal"
	out, err = captureStdout(t, func() error { return reportAction(cmd, nil) })
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	requireContains(t, out, "regwatch — REAFIE")
	requireContains(t, out, diffName)
	requireContains(t, out, "--- Batches (1) ---")
	requireContains(t, out, "Ajouts: 1, suppressions: 1")
	requireContains(t, out, "Tokens: 0, estimated cost: ~$0.0000 USD")

	reportFormat = "json"
	out, err = captureStdout(t, func() error { return reportAction(cmd, nil) })
	if err != nil {
		t.Fatalf("report json: %v", err)
	}
	var got struct {
		Key           string `json:"key"`
		Diff          string `json:"diff"`
		GlobalSummary string `json:"global_summary"`
		Batches       []any  `json:"batches"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("parse json report: %v\n%s", err, out)
	}
	if got.Key != "REAFIE" || got.Diff != diffName || len(got.Batches) != 1 {
		t.Fatalf("json report = %+v", got)
	}
	if !strings.HasPrefix(got.GlobalSummary, "Ajouts: 1, suppressions: 1") {
		t.Errorf("global summary = %q", got.GlobalSummary)
	}

	out, err = captureStdout(t, func() error { return historyAction(cmd, []string{"REAFIE"}) })
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "--- Snapshots (2) ---")
	requireContains(t, out, "--- Diffs (1) ---")
	requireContains(t, out, "2 changed lines, 1 pruned")
	requireContains(t, out, "--- Reports (2) ---")
}

func TestFetchWithoutTargets(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "config.yaml"), "targets: missing.csv\n"+
		"storage:\n  ledger_path: \""+filepath.Join(tmpDir, "regwatch.db")+"\"\n"+
		"log:\n  file: \""+filepath.Join(tmpDir, "regwatch.log")+"\"\n")
	swapCLIState(t, tmpDir, time.Now)

	out, err := captureStdout(t, func() error { return fetchAction(&cobra.Command{}, nil) })
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	requireContains(t, out, "No targets to fetch")
}

func TestReportWithoutDiffFails(t *testing.T) {
	tmpDir := t.TempDir()
	writePipelineConfig(t, tmpDir, "http://127.0.0.1:1", filepath.Join(tmpDir, "html"), filepath.Join(tmpDir, "diffs"), filepath.Join(tmpDir, "kb"))
	swapCLIState(t, tmpDir, time.Now)
	reportFormat = "terminal"

	out, err := captureStdout(t, func() error { return reportAction(&cobra.Command{}, nil) })
	if err == nil {
		t.Fatal("expected error when no diff exists")
	}
	requireContains(t, out, "REAFIE: report failed")
}

func TestInitCreatesLoadableConfig(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), ".regwatch")
	swapCLIState(t, tmpDir, time.Now)

	out, err := captureStdout(t, func() error { return initAction(nil, nil) })
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	requireContains(t, out, "Initialized "+tmpDir+" with 3 config files.")

	for _, name := range []string{"config.yaml", "targets.csv", ".env.example"} {
		if _, err := os.Stat(filepath.Join(tmpDir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	cfg, err := config.Load(tmpDir)
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
	if targets := config.LoadTargets(cfg.TargetsPath(), discardLogger()); len(targets) != 1 || targets[0].Key != "REAFIE" {
		t.Errorf("generated targets = %+v", targets)
	}

	out, err = captureStdout(t, func() error { return initAction(nil, nil) })
	if err != nil {
		t.Fatalf("second init: %v", err)
	}
	requireContains(t, out, "already initialized")
}

func writePipelineConfig(t *testing.T, dir, serverURL, docsDir, diffsDir, kbDir string) {
	t.Helper()

	content := "targets: targets.csv\n" +
		"storage:\n" +
		"  documents_dir: \"" + docsDir + "\"\n" +
		"  diffs_dir: \"" + diffsDir + "\"\n" +
		"  knowledge_dir: \"" + kbDir + "\"\n" +
		"  ledger_path: \"" + filepath.Join(dir, "regwatch.db") + "\"\n" +
		"fetch:\n" +
		"  timeout: 5s\n" +
		"  feeds:\n" +
		"    - \"" + serverURL + "/gazette.xml\"\n" +
		"report:\n" +
		"  batch_prompt: \"{{.Context}}\"\n" +
		"  aggregate_prompt: \"{{.Context}}\"\n" +
		"summarize:\n" +
		"  provider: heuristic\n" +
		"log:\n" +
		"  level: debug\n" +
		"  file: \"" + filepath.Join(dir, "regwatch.log") + "\"\n"
	writeFile(t, filepath.Join(dir, "config.yaml"), content)
	writeFile(t, filepath.Join(dir, "targets.csv"), "url,name\n"+serverURL+"/reafie,REAFIE\n")
}

// swapCLIState points the commands at dir and restores the package state.
func swapCLIState(t *testing.T, dir string, clock func() time.Time) {
	t.Helper()

	oldConfigDir := configDir
	oldNow := now
	oldKeys := reportKeys
	oldFormat := reportFormat
	oldNoColor := noColor
	t.Cleanup(func() {
		configDir = oldConfigDir
		now = oldNow
		reportKeys = oldKeys
		reportFormat = oldFormat
		noColor = oldNoColor
	})

	configDir = dir
	now = clock
	reportKeys = nil
	noColor = true
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("open stdout pipe: %v", err)
	}

	os.Stdout = writer
	runErr := fn()
	_ = writer.Close()
	os.Stdout = oldStdout

	out, readErr := io.ReadAll(reader)
	_ = reader.Close()
	if readErr != nil {
		t.Fatalf("read stdout pipe: %v", readErr)
	}
	return string(out), runErr
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()

	if !strings.Contains(got, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, got)
	}
}
