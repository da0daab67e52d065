// Package batch reduces a unified diff to its changed lines and partitions
// them into batches small enough for one summarizer request.
package batch

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// CharsPerToken is the rough characters-per-token ratio used by
	// EstimateTokens. It is not a tokenizer.
	CharsPerToken = 4

	// DefaultTokenLimit bounds the estimated size of one batch.
	DefaultTokenLimit = 10000
)

// ErrInvalidLimit is returned for a non-positive token limit.
var ErrInvalidLimit = errors.New("token limit must be positive")

// Batch is an ordered run of changed lines from one diff.
type Batch struct {
	Lines  []string
	Tokens int // estimated
}

// Text returns the batch lines joined by newlines.
func (b Batch) Text() string {
	return strings.Join(b.Lines, "\n")
}

// Options controls Compress.
type Options struct {
	TokenLimit  int
	KeepRemoved bool
}

// EstimateTokens approximates the token count of s.
func EstimateTokens(s string) int {
	return utf8.RuneCountInString(s) / CharsPerToken
}

// ChangedLines keeps lines that start with a single "+" and, when
// keepRemoved is set, lines that start with a single "-". File headers
// (+++/---) never qualify.
func ChangedLines(lines []string, keepRemoved bool) []string {
	var out []string
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "++"):
			out = append(out, line)
		case keepRemoved && strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "--"):
			out = append(out, line)
		}
	}
	return out
}

// Split partitions lines greedily. A line that would push a non-empty batch
// over limit closes it. A single line larger than limit forms a batch of its
// own and is never cut. Empty batches are never produced.
func Split(lines []string, limit int) ([]Batch, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}

	var batches []Batch
	var cur Batch
	for _, line := range lines {
		cost := EstimateTokens(line)
		if len(cur.Lines) > 0 && cur.Tokens+cost > limit {
			batches = append(batches, cur)
			cur = Batch{}
		}
		cur.Lines = append(cur.Lines, line)
		cur.Tokens += cost
	}
	if len(cur.Lines) > 0 {
		batches = append(batches, cur)
	}
	return batches, nil
}

// Compress filters diffLines down to changed lines and splits them.
func Compress(diffLines []string, opts Options) ([]Batch, error) {
	limit := opts.TokenLimit
	if limit == 0 {
		limit = DefaultTokenLimit
	}
	return Split(ChangedLines(diffLines, opts.KeepRemoved), limit)
}
