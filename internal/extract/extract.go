// Package extract turns fetched regulation pages into normalized plain text
// for the knowledge base.
package extract

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Extractor converts the document at src into plain text, writes it next to
// dst (extension replaced by .txt) and returns it. An empty result writes no
// file and is not an error.
type Extractor interface {
	Extract(src, dst string) (string, error)
}

// Registry maps a configured variant name to its Extractor.
type Registry map[string]Extractor

// Get returns the extractor registered under name.
func (r Registry) Get(name string) (Extractor, error) {
	ex, ok := r[name]
	if !ok {
		names := make([]string, 0, len(r))
		for n := range r {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown extraction variant %q (have %s)", name, strings.Join(names, ", "))
	}
	return ex, nil
}

// OutputPath returns dst with its extension replaced by .txt.
func OutputPath(dst string) string {
	return strings.TrimSuffix(dst, filepath.Ext(dst)) + ".txt"
}
