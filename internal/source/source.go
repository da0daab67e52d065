// Package source retrieves regulation pages and the official notices that
// announce amendments to them.
package source

import (
	"context"
	"time"
)

// Fetcher retrieves the raw body of a document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Notice is one item of an announcement feed.
type Notice struct {
	Feed      string    // feed title, or its URL when untitled
	Title     string    // item title
	URL       string    // link to the publication
	Published time.Time // publication timestamp
	Text      string    // description with markup removed
	Terms     []string  // watched terms found in the item, set by Mentions
}
