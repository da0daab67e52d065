package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/regwatch/internal/store"
)

func TestPrintStats(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	stats := []store.KeyStats{
		{Key: "REAFIE", Snapshots: 2, Diffs: 5, Reports: 4, LastCaptured: now.AddDate(0, 0, -3), TotalTokens: 12000, Cost: 0.0042},
		{Key: "RAMHHS", Snapshots: 1, Diffs: 0, Reports: 0, LastCaptured: now.AddDate(0, 0, -90)},
	}

	var buf bytes.Buffer
	printStats(&buf, stats, now, 45)
	output := buf.String()

	for _, want := range []string{
		"regwatch stats — 2 documents, 12000 tokens, ~$0.0042 USD",
		"Document",
		"REAFIE",
		"Stale Documents (not captured in 45+ days)",
		"RAMHHS — last capture 90 days ago",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
	if strings.Contains(output, "REAFIE — last capture") {
		t.Error("REAFIE should not be stale")
	}
}

func TestPrintStats_NoStale(t *testing.T) {
	now := time.Now()
	var buf bytes.Buffer
	printStats(&buf, []store.KeyStats{{Key: "REAFIE", LastCaptured: now}}, now, 45)
	if strings.Contains(buf.String(), "Stale") {
		t.Errorf("unexpected stale section:\n%s", buf.String())
	}
}

func TestPrintStatsJSON(t *testing.T) {
	stats := []store.KeyStats{
		{Key: "REAFIE", Snapshots: 2, Diffs: 1, Reports: 2, LastCaptured: time.Date(2025, 7, 4, 10, 13, 28, 0, time.UTC), TotalTokens: 1000, Cost: 0.00035},
		{Key: "RAMHHS", Reports: 1, TotalTokens: 3000, Cost: 0.00105},
	}

	var buf bytes.Buffer
	if err := printStatsJSON(&buf, stats); err != nil {
		t.Fatalf("json: %v", err)
	}

	var got jsonStatsOutput
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("parse: %v\n%s", err, buf.String())
	}
	if len(got.Documents) != 2 || got.Documents[0].LastCaptured != "2025-07-04T10:13:28Z" {
		t.Errorf("documents = %+v", got.Documents)
	}
	if got.Documents[1].LastCaptured != "" {
		t.Errorf("zero capture time should be omitted, got %q", got.Documents[1].LastCaptured)
	}
	if got.Totals.Reports != 3 || got.Totals.TotalTokens != 4000 {
		t.Errorf("totals = %+v", got.Totals)
	}
}

func TestPrintStatsJSON_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := printStatsJSON(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"documents": []`) {
		t.Errorf("empty documents should be an array:\n%s", buf.String())
	}
}
