package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "regwatch.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st, path
}

func TestOpenAndMigrate(t *testing.T) {
	st, path := openTestStore(t)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("db file not created: %v", err)
	}

	var version string
	if err := st.db.QueryRow("SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&version); err != nil {
		t.Fatalf("read schema version: %v", err)
	}
	if version != "1" {
		t.Fatalf("unexpected schema version: %s", version)
	}
}

func TestOpenTwice(t *testing.T) {
	_, path := openTestStore(t)
	st, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = st.Close()
}

func TestOpenEmptyPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	st, path := openTestStore(t)
	if _, err := st.db.Exec("UPDATE metadata SET value = '99' WHERE key = 'schema_version'"); err != nil {
		t.Fatal(err)
	}
	_ = st.Close()

	if _, err := Open(path); err == nil {
		t.Fatal("expected error for newer schema")
	}
}

func TestRecordSnapshotUpsert(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 7, 4, 10, 13, 28, 0, time.UTC)

	rec := SnapshotRecord{
		Key:        "REAFIE",
		Name:       "REAFIE_20250704_101328.html",
		CapturedAt: at,
		Encoding:   "utf-8",
		SHA256:     ContentHash([]byte("<html></html>")),
		Size:       13,
		RunID:      "run-1",
	}
	if err := st.RecordSnapshot(ctx, rec); err != nil {
		t.Fatalf("record: %v", err)
	}
	rec.Encoding = "iso-8859-1"
	if err := st.RecordSnapshot(ctx, rec); err != nil {
		t.Fatalf("record again: %v", err)
	}

	got, err := st.Snapshots(ctx, "REAFIE", 0)
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(got))
	}
	if got[0].Encoding != "iso-8859-1" || !got[0].CapturedAt.Equal(at) || got[0].Size != 13 {
		t.Errorf("snapshot = %+v", got[0])
	}
}

func TestRecordSnapshotValidation(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()
	tests := []struct {
		name string
		rec  SnapshotRecord
	}{
		{"no key", SnapshotRecord{Name: "a.html", CapturedAt: time.Now()}},
		{"no name", SnapshotRecord{Key: "A", CapturedAt: time.Now()}},
		{"no time", SnapshotRecord{Key: "A", Name: "a.html"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := st.RecordSnapshot(ctx, tt.rec); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSnapshotsOrderAndLimit(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		at := base.AddDate(0, i, 0)
		if err := st.RecordSnapshot(ctx, SnapshotRecord{
			Key: "A", Name: "A_" + at.Format("20060102_150405") + ".html", CapturedAt: at,
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.RecordSnapshot(ctx, SnapshotRecord{Key: "A_2", Name: "A_2_20250101_100000.html", CapturedAt: base}); err != nil {
		t.Fatal(err)
	}

	got, err := st.Snapshots(ctx, "A", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d, want 2", len(got))
	}
	if got[0].Name != "A_20250301_100000.html" || got[1].Name != "A_20250201_100000.html" {
		t.Errorf("order = %s, %s", got[0].Name, got[1].Name)
	}
}

func TestRecordDiff(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 2, 1, 10, 0, 5, 0, time.UTC)

	if err := st.RecordDiff(ctx, DiffRecord{
		Key:          "A",
		Name:         "A_html_diff_20250201_100005.txt",
		FromName:     "A_20250101_100000.html",
		ToName:       "A_20250201_100000.html",
		GeneratedAt:  at,
		ChangedLines: 2,
		Pruned:       1,
		RunID:        "r",
	}); err != nil {
		t.Fatalf("record diff: %v", err)
	}

	got, err := st.Diffs(ctx, "A", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ChangedLines != 2 || got[0].Pruned != 1 || got[0].FromName != "A_20250101_100000.html" {
		t.Fatalf("diffs = %+v", got)
	}

	if err := st.RecordDiff(ctx, DiffRecord{Key: "A", Name: "x"}); err == nil {
		t.Error("expected error without generated_at")
	}
}

func TestRecordReportAndLatest(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 7, 4, 10, 0, 0, 0, time.UTC)

	for i, key := range []string{"A", "B", "A"} {
		id, err := st.RecordReport(ctx, ReportRecord{
			Key:           key,
			DiffName:      key + "_html_diff_20250704_100000.txt",
			GlobalSummary: "summary",
			TotalTokens:   1000,
			Cost:          0.00035,
			Batches:       2,
			Skipped:       i % 2,
			GeneratedAt:   base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("record report: %v", err)
		}
		if id == 0 {
			t.Error("expected non-zero id")
		}
	}

	all, err := st.LatestReports(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("reports = %d, want 3", len(all))
	}
	if !all[0].GeneratedAt.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("newest = %v", all[0].GeneratedAt)
	}

	onlyA, err := st.LatestReports(ctx, "A", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(onlyA) != 1 || onlyA[0].Key != "A" || onlyA[0].Skipped != 0 {
		t.Errorf("latest A = %+v", onlyA)
	}
}

func TestStats(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

	_ = st.RecordSnapshot(ctx, SnapshotRecord{Key: "A", Name: "A_20250101_100000.html", CapturedAt: at.AddDate(0, -1, 0)})
	_ = st.RecordSnapshot(ctx, SnapshotRecord{Key: "A", Name: "A_20250201_100000.html", CapturedAt: at})
	_ = st.RecordDiff(ctx, DiffRecord{Key: "A", Name: "A_html_diff_20250201_100000.txt", GeneratedAt: at})
	if _, err := st.RecordReport(ctx, ReportRecord{Key: "A", GeneratedAt: at, TotalTokens: 500, Cost: 0.5}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.RecordReport(ctx, ReportRecord{Key: "B", GeneratedAt: at, TotalTokens: 100}); err != nil {
		t.Fatal(err)
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	a := stats[0]
	if a.Key != "A" || a.Snapshots != 2 || a.Diffs != 1 || a.Reports != 1 || a.TotalTokens != 500 || a.Cost != 0.5 {
		t.Errorf("A = %+v", a)
	}
	if !a.LastCaptured.Equal(at) {
		t.Errorf("last captured = %v", a.LastCaptured)
	}
	b := stats[1]
	if b.Key != "B" || b.Snapshots != 0 || !b.LastCaptured.IsZero() {
		t.Errorf("B = %+v", b)
	}
}

func TestPruneOld(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()
	old := time.Now().AddDate(0, 0, -40)
	recent := time.Now().Add(-time.Hour)

	_ = st.RecordSnapshot(ctx, SnapshotRecord{Key: "A", Name: "old.html", CapturedAt: old})
	_ = st.RecordSnapshot(ctx, SnapshotRecord{Key: "A", Name: "new.html", CapturedAt: recent})
	if _, err := st.RecordReport(ctx, ReportRecord{Key: "A", GeneratedAt: old}); err != nil {
		t.Fatal(err)
	}

	n, err := st.PruneOld(ctx, 30)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned = %d, want 2", n)
	}
	left, _ := st.Snapshots(ctx, "A", 0)
	if len(left) != 1 || left[0].Name != "new.html" {
		t.Errorf("left = %+v", left)
	}

	if _, err := st.PruneOld(ctx, 0); err == nil {
		t.Error("expected error for zero retention")
	}
}

func TestContentHash(t *testing.T) {
	got := ContentHash([]byte("abc"))
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("hash = %s", got)
	}
}

func TestNilStore(t *testing.T) {
	var st *Store
	if err := st.RecordSnapshot(context.Background(), SnapshotRecord{}); err == nil {
		t.Error("expected error from nil store")
	}
	if err := st.Close(); err != nil {
		t.Errorf("close nil: %v", err)
	}
}
