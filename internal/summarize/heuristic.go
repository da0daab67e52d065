package summarize

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxQuoted    = 5
	maxQuoteLen  = 120
	noChangeText = "Aucune ligne modifiée détectée."
)

// Heuristic summarizes the changed lines found in a prompt without any
// network call. It reports zero token usage.
type Heuristic struct{}

// Summarize counts the added and removed lines of prompt and quotes the
// first few of them. Template text around the context is counted too; the
// orchestrator goes through SummarizeContext to avoid that.
func (Heuristic) Summarize(_ context.Context, prompt string) (Result, error) {
	return summarizeLines(prompt), nil
}

// SummarizeContext is Summarize over the embedded context only, so bullet
// lines of the prompt template are not taken for removals.
func (Heuristic) SummarizeContext(_ context.Context, _, contextText string) (Result, error) {
	return summarizeLines(contextText), nil
}

func summarizeLines(text string) Result {
	var added, removed []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "++"), strings.HasPrefix(line, "--"):
			continue
		case strings.HasPrefix(line, "+"):
			if !seen[line] {
				added = append(added, line)
			}
		case strings.HasPrefix(line, "-"):
			if !seen[line] {
				removed = append(removed, line)
			}
		default:
			continue
		}
		seen[line] = true
	}

	if len(added) == 0 && len(removed) == 0 {
		return Result{Text: noChangeText}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Ajouts: %d, suppressions: %d\n", len(added), len(removed))
	quoted := 0
	for _, line := range append(added, removed...) {
		if quoted == maxQuoted {
			break
		}
		b.WriteString(shorten(line, maxQuoteLen))
		b.WriteString("\n")
		quoted++
	}
	return Result{Text: strings.TrimRight(b.String(), "\n")}
}

// shorten caps s at max runes, cutting at the last space when possible.
func shorten(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)[:max]
	cut := string(runes)
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}
