// Package snapshot stores timestamped captures of monitored documents and
// decides which capture came before which.
package snapshot

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Key is the logical identifier of a monitored document. It is used verbatim
// as the prefix of every snapshot and diff file name.
type Key string

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	separatorRe  = regexp.MustCompile(`[/\\\x00]`)
)

// ErrInvalidKey is returned for keys that cannot be used as a file name prefix.
var ErrInvalidKey = errors.New("invalid document key")

// KeyFromName normalizes a configured target name: surrounding whitespace is
// trimmed, inner whitespace runs become a single underscore and path
// separators are replaced. Returns "" for blank names.
func KeyFromName(name string) Key {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = whitespaceRe.ReplaceAllString(name, "_")
	name = separatorRe.ReplaceAllString(name, "_")
	return Key(name)
}

// KeyFromURL derives a key from the host of rawURL, dots replaced by
// underscores ("www.legisquebec.gouv.qc.ca" -> "www_legisquebec_gouv_qc_ca").
func KeyFromURL(rawURL string) Key {
	host := ""
	if u, err := url.Parse(strings.TrimSpace(rawURL)); err == nil && u.Host != "" {
		host = u.Host
	} else {
		rest := rawURL
		if i := strings.Index(rest, "//"); i >= 0 {
			rest = rest[i+2:]
		}
		host, _, _ = strings.Cut(rest, "/")
	}
	host = strings.ReplaceAll(strings.TrimSpace(host), ".", "_")
	host = strings.ReplaceAll(host, ":", "_")
	return KeyFromName(host)
}

// Validate reports whether k is usable as a file name prefix.
func (k Key) Validate() error {
	s := string(k)
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if separatorRe.MatchString(s) || whitespaceRe.MatchString(s) {
		return fmt.Errorf("%w: %q contains whitespace or path separators", ErrInvalidKey, s)
	}
	if s == "." || s == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	return nil
}

func (k Key) String() string {
	return string(k)
}
