// Package redact strips boilerplate patterns, such as recurring decree
// citations, from extracted text.
package redact

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// WordEdge matches one character that cannot be part of a word in any
// script. RE2's \b only knows ASCII word characters, so "ça. 12" has a
// boundary between ç and a; patterns that must not cut accented words use
// WordEdge in "pre" and "post" groups instead of \b.
const WordEdge = `[^\p{L}\p{N}_]`

// Bounded wraps body in Unicode-aware word boundaries.
func Bounded(body string) string {
	return `(?P<pre>^|` + WordEdge + `)` + body + `(?P<post>` + WordEdge + `|$)`
}

// Compile fails on the first invalid pattern, naming its position.
func Compile(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("redaction %d (%q): %w", i+1, p, err)
		}
		out[i] = re
	}
	return out, nil
}

// Apply removes every match of the patterns from text, in pattern order.
func Apply(text string, patterns []*regexp.Regexp) string {
	return Replace(text, patterns, "")
}

// Replace substitutes every match of the patterns with replacement. The
// text of groups named "pre" and "post" is kept around the replacement.
func Replace(text string, patterns []*regexp.Regexp, replacement string) string {
	for _, re := range patterns {
		pre, post := re.SubexpIndex("pre"), re.SubexpIndex("post")
		if pre < 0 && post < 0 {
			text = re.ReplaceAllLiteralString(text, replacement)
			continue
		}
		text = replaceBounded(text, re, pre, post, replacement)
	}
	return text
}

// replaceBounded scans by hand so that a "post" character can also serve
// as the "pre" of the next match.
func replaceBounded(text string, re *regexp.Regexp, pre, post int, replacement string) string {
	var b strings.Builder
	last, pos := 0, 0
	for pos <= len(text) {
		m := re.FindStringSubmatchIndex(text[pos:])
		if m == nil {
			break
		}
		for i := range m {
			if m[i] >= 0 {
				m[i] += pos
			}
		}
		start, end := m[0], m[1]

		// "^" also matches where the search resumed; it only counts as an
		// edge when the character before it is not a word character.
		if pre >= 0 && m[2*pre] == m[2*pre+1] && start > 0 && isWordRune(lastRune(text[:start])) {
			_, size := utf8.DecodeRuneInString(text[start:])
			if size == 0 {
				break
			}
			pos = start + size
			continue
		}

		b.WriteString(text[last:start])
		if pre >= 0 && m[2*pre] >= 0 {
			b.WriteString(text[m[2*pre]:m[2*pre+1]])
		}
		b.WriteString(replacement)
		next := end
		if post >= 0 && m[2*post] >= 0 {
			next = m[2*post]
		}
		if next <= start {
			_, size := utf8.DecodeRuneInString(text[start:])
			if size == 0 {
				last = len(text)
				break
			}
			b.WriteString(text[start : start+size])
			next = start + size
		}
		last, pos = next, next
	}
	b.WriteString(text[last:])
	return b.String()
}

func lastRune(s string) rune {
	r, _ := utf8.DecodeLastRuneInString(s)
	return r
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}
