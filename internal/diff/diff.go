// Package diff computes unified diffs between snapshots and keeps the
// resulting artifacts, which are the only durable record of past content.
package diff

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// ContextLines is the number of unchanged lines kept around each hunk.
const ContextLines = 3

// Unified returns the unified diff of a and b as lines without terminators,
// headed by ---/+++ labels. Identical inputs produce no lines.
func Unified(a, b []string, fromLabel, toLabel string) []string {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        terminate(a),
		B:        terminate(b),
		FromFile: fromLabel,
		ToFile:   toLabel,
		Context:  ContextLines,
		Eol:      "\n",
	})
	if err != nil || text == "" {
		// Writing into a strings.Builder cannot fail.
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

func terminate(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l + "\n"
	}
	return out
}
