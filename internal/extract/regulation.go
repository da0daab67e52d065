package extract

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ppiankov/regwatch/internal/redact"
	"github.com/ppiankov/regwatch/internal/snapshot"
)

// Defaults for the Légis Québec regulation page layout.
const (
	DefaultSelector      = "div.DefaultPageSequence.BodyPageSequence"
	DefaultMinLineLength = 50
)

var (
	DefaultHeadingKeywords = []string{"TITRE", "CHAPITRE", "ANNEXE", "SECTION", "PARTIE"}
	DefaultRedactions      = []string{
		redact.Bounded(`D\.\s*871-2020`),
		redact.Bounded(`871-2020`),
		redact.Bounded(`a\.\s*\d+`),
	}
)

var terminalPunctRe = regexp.MustCompile(`[.:;?!]$`)

// RegulationOptions configures a RegulationPage. Zero values take the
// defaults above, except Redactions: nil means no redaction.
type RegulationOptions struct {
	Selector        string
	HeadingKeywords []string
	MinLineLength   int
	Redactions      []string
}

// RegulationPage extracts the body of a government regulation page.
type RegulationPage struct {
	selector      string
	headingRe     *regexp.Regexp
	minLineLength int
	redactions    []*regexp.Regexp
	logger        *slog.Logger
}

// NewRegulationPage compiles opts into an extractor.
func NewRegulationPage(opts RegulationOptions, logger *slog.Logger) (*RegulationPage, error) {
	if opts.Selector == "" {
		opts.Selector = DefaultSelector
	}
	if len(opts.HeadingKeywords) == 0 {
		opts.HeadingKeywords = DefaultHeadingKeywords
	}
	if opts.MinLineLength <= 0 {
		opts.MinLineLength = DefaultMinLineLength
	}
	if logger == nil {
		logger = slog.Default()
	}

	quoted := make([]string, len(opts.HeadingKeywords))
	for i, kw := range opts.HeadingKeywords {
		quoted[i] = regexp.QuoteMeta(kw)
	}
	headingRe, err := regexp.Compile(`(?i)^(?:` + strings.Join(quoted, "|") + `)\s+[\p{L}\p{N}_]+`)
	if err != nil {
		return nil, fmt.Errorf("compile heading pattern: %w", err)
	}

	redactions, err := redact.Compile(opts.Redactions)
	if err != nil {
		return nil, err
	}

	return &RegulationPage{
		selector:      opts.Selector,
		headingRe:     headingRe,
		minLineLength: opts.MinLineLength,
		redactions:    redactions,
		logger:        logger,
	}, nil
}

// Extract reads the page at src and writes its text to OutputPath(dst).
func (p *RegulationPage) Extract(src, dst string) (string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", src, err)
	}
	text, enc := snapshot.Decode(data)
	if enc != snapshot.UTF8 {
		p.logger.Warn("utf-8 decoding failed, using fallback encoding",
			slog.String("path", src), slog.String("encoding", string(enc)))
	}

	content, err := p.ExtractText(strings.NewReader(text))
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", src, err)
	}
	if content == "" {
		p.logger.Info("nothing to extract", slog.String("path", src), slog.String("selector", p.selector))
		return "", nil
	}

	out := OutputPath(dst)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	if err := snapshot.WriteFile(out, []byte(content)); err != nil {
		return "", fmt.Errorf("write %s: %w", out, err)
	}
	p.logger.Info("extracted text", slog.String("path", out), slog.Int("chars", utf8.RuneCountInString(content)))
	return content, nil
}

// ExtractText parses the markup in r and returns the normalized text of the
// content container, or "" when the container is missing.
func (p *RegulationPage) ExtractText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	container := doc.Find(p.selector).First()
	if container.Length() == 0 {
		return "", nil
	}

	var paragraphs []string
	var buf strings.Builder
	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			paragraphs = append(paragraphs, s)
		}
		buf.Reset()
	}

	for _, line := range textLines(container.Nodes[0]) {
		line = strings.TrimSpace(strings.ReplaceAll(line, "\u00a0", " "))
		if line == "" {
			continue
		}

		if p.headingRe.MatchString(line) {
			flush()
			paragraphs = append(paragraphs, "# "+line)
			continue
		}

		buf.WriteString(" ")
		buf.WriteString(line)
		if utf8.RuneCountInString(line) >= p.minLineLength || terminalPunctRe.MatchString(line) {
			flush()
		}
	}
	flush()

	return redact.Apply(strings.Join(paragraphs, "\n\n"), p.redactions), nil
}

var skippedAtoms = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
}

// textLines walks n in document order and returns the stripped, non-empty
// lines of every text node.
func textLines(n *html.Node) []string {
	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			for _, l := range snapshot.SplitLines(n.Data) {
				if l = strings.TrimSpace(l); l != "" {
					lines = append(lines, l)
				}
			}
			return
		case html.CommentNode:
			return
		case html.ElementNode:
			if skippedAtoms[n.DataAtom] {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return lines
}
