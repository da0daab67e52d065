package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Formatter writes a rendered report to w.
type Formatter interface {
	Format(w io.Writer, r Report) error
}

// NewFormatter returns the formatter registered under name.
func NewFormatter(name string, useColor bool) (Formatter, error) {
	switch name {
	case "", "terminal":
		return NewTerminal(useColor), nil
	case "markdown":
		return NewMarkdown(), nil
	case "json":
		return NewJSON(), nil
	default:
		return nil, fmt.Errorf("unknown format %q (use terminal, markdown, or json)", name)
	}
}

// TerminalFormatter formats a report for terminal output.
type TerminalFormatter struct {
	bold, green, yellow, red, dim *color.Color
}

// NewTerminal creates a terminal formatter. Set useColor=true for ANSI colors.
func NewTerminal(useColor bool) *TerminalFormatter {
	f := &TerminalFormatter{
		bold:   color.New(color.Bold),
		green:  color.New(color.FgGreen, color.Bold),
		yellow: color.New(color.FgYellow),
		red:    color.New(color.FgRed),
		dim:    color.New(color.Faint),
	}
	for _, c := range []*color.Color{f.bold, f.green, f.yellow, f.red, f.dim} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return f
}

// Format writes the report to w.
func (f *TerminalFormatter) Format(w io.Writer, r Report) error {
	fmt.Fprintln(w, f.bold.Sprintf("regwatch — %s", r.Key))
	fmt.Fprintln(w, f.dim.Sprint(r.DiffName))
	fmt.Fprintln(w)

	if len(r.Batches) > 0 {
		fmt.Fprintln(w, f.bold.Sprintf("--- Batches (%d) ---", len(r.Batches)))
		fmt.Fprintln(w)
		for _, b := range r.Batches {
			if b.Err != "" {
				fmt.Fprintf(w, "  %s %s\n", f.red.Sprintf("[%d] skipped", b.Index), f.dim.Sprint(b.Err))
				continue
			}
			fmt.Fprintf(w, "  %s %s\n", f.yellow.Sprintf("[%d]", b.Index),
				f.dim.Sprintf("%d lines, ~%d tokens estimated, %d used", b.Lines, b.EstimatedTokens, b.Tokens))
			for _, line := range strings.Split(strings.TrimSpace(b.Text), "\n") {
				fmt.Fprintf(w, "      %s\n", line)
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, f.green.Sprint("--- Summary ---"))
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.TrimSpace(r.GlobalSummary))
	fmt.Fprintln(w)
	fmt.Fprintln(w, f.dim.Sprintf("Tokens: %d, estimated cost: ~$%.4f USD", r.TotalTokens, r.Cost))
	return nil
}

// MarkdownFormatter formats a report as Markdown.
type MarkdownFormatter struct{}

// NewMarkdown creates a Markdown formatter.
func NewMarkdown() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

// Format writes the report as Markdown to w.
func (f *MarkdownFormatter) Format(w io.Writer, r Report) error {
	fmt.Fprintf(w, "# regwatch report: %s\n\n", r.Key)
	fmt.Fprintf(w, "Diff `%s`, generated %s\n\n", r.DiffName, r.GeneratedAt.Format("2006-01-02 15:04:05"))

	fmt.Fprintf(w, "## Summary\n\n%s\n\n", strings.TrimSpace(r.GlobalSummary))

	if len(r.Batches) > 0 {
		fmt.Fprintf(w, "## Batches (%d)\n\n", len(r.Batches))
		for _, b := range r.Batches {
			if b.Err != "" {
				fmt.Fprintf(w, "### Batch %d (skipped)\n\n*%s*\n\n", b.Index, b.Err)
				continue
			}
			fmt.Fprintf(w, "### Batch %d\n\n%s\n\n", b.Index, strings.TrimSpace(b.Text))
		}
	}

	fmt.Fprintf(w, "*Tokens: %d, estimated cost: ~$%.4f USD*\n", r.TotalTokens, r.Cost)
	return nil
}

type jsonReport struct {
	Key           string      `json:"key"`
	Diff          string      `json:"diff"`
	GeneratedAt   string      `json:"generated_at"`
	GlobalSummary string      `json:"global_summary"`
	Batches       []jsonBatch `json:"batches"`
	Skipped       int         `json:"skipped"`
	TotalTokens   int         `json:"total_tokens"`
	CostUSD       float64     `json:"cost_usd"`
}

type jsonBatch struct {
	Index           int    `json:"index"`
	Lines           int    `json:"lines"`
	EstimatedTokens int    `json:"estimated_tokens"`
	Tokens          int    `json:"tokens"`
	Summary         string `json:"summary,omitempty"`
	Error           string `json:"error,omitempty"`
}

// JSONFormatter formats a report as JSON.
type JSONFormatter struct{}

// NewJSON creates a JSON formatter.
func NewJSON() *JSONFormatter {
	return &JSONFormatter{}
}

// Format writes the report as JSON to w.
func (f *JSONFormatter) Format(w io.Writer, r Report) error {
	out := jsonReport{
		Key:           r.Key.String(),
		Diff:          r.DiffName,
		GeneratedAt:   r.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z"),
		GlobalSummary: r.GlobalSummary,
		Batches:       make([]jsonBatch, 0, len(r.Batches)),
		Skipped:       r.Skipped(),
		TotalTokens:   r.TotalTokens,
		CostUSD:       r.Cost,
	}
	for _, b := range r.Batches {
		out.Batches = append(out.Batches, jsonBatch{
			Index:           b.Index,
			Lines:           b.Lines,
			EstimatedTokens: b.EstimatedTokens,
			Tokens:          b.Tokens,
			Summary:         b.Text,
			Error:           b.Err,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
