package source

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s{3,}`)
)

// FeedSource reads RSS/Atom announcement feeds, one after the other.
type FeedSource struct {
	feeds  []string
	client *http.Client
	logger *slog.Logger
}

// NewFeedSource creates a feed reader. At least one feed URL is required.
// A nil client uses http.DefaultClient.
func NewFeedSource(feeds []string, client *http.Client, logger *slog.Logger) (*FeedSource, error) {
	if len(feeds) == 0 {
		return nil, errors.New("feed: at least one feed URL is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedSource{feeds: feeds, client: client, logger: logger}, nil
}

// Notices returns the items published at or after since, newest first.
// A failing feed is logged and skipped; an error is returned only when
// every feed failed.
func (s *FeedSource) Notices(ctx context.Context, since time.Time) ([]Notice, error) {
	fp := gofeed.NewParser()
	fp.Client = s.client

	var notices []Notice
	var errs []error
	for _, feedURL := range s.feeds {
		if err := ctx.Err(); err != nil {
			return notices, err
		}
		feed, err := fp.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			s.logger.Warn("feed unavailable", slog.String("url", feedURL), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("feed %s: %w", feedURL, err))
			continue
		}
		items := noticesFromFeed(feed, feedURL, since)
		s.logger.Debug("feed read", slog.String("url", feedURL), slog.Int("items", len(feed.Items)), slog.Int("recent", len(items)))
		notices = append(notices, items...)
	}

	if len(errs) == len(s.feeds) {
		return nil, errors.Join(errs...)
	}
	sort.SliceStable(notices, func(i, j int) bool {
		return notices[i].Published.After(notices[j].Published)
	})
	return notices, nil
}

// Mentions keeps the notices whose title or text contains one of terms,
// case-insensitively. Underscores in a term also match spaces, so a key
// like "Reglement_eaux" finds "Reglement eaux".
func Mentions(notices []Notice, terms []string) []Notice {
	var out []Notice
	for _, n := range notices {
		hay := strings.ToLower(n.Title + "\n" + n.Text)
		var found []string
		for _, term := range terms {
			t := strings.ToLower(strings.TrimSpace(term))
			if t == "" {
				continue
			}
			if strings.Contains(hay, t) || strings.Contains(hay, strings.ReplaceAll(t, "_", " ")) {
				found = append(found, term)
			}
		}
		if len(found) > 0 {
			n.Terms = found
			out = append(out, n)
		}
	}
	return out
}

func noticesFromFeed(feed *gofeed.Feed, feedURL string, since time.Time) []Notice {
	var notices []Notice
	for _, item := range feed.Items {
		published := itemPublishedTime(item)
		if published.IsZero() || published.Before(since) {
			continue
		}
		notices = append(notices, Notice{
			Feed:      feedLabel(feed, feedURL),
			Title:     strings.TrimSpace(item.Title),
			URL:       item.Link,
			Published: published,
			Text:      itemText(item),
		})
	}
	return notices
}

func itemPublishedTime(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Time{}
}

func feedLabel(feed *gofeed.Feed, feedURL string) string {
	if feed.Title != "" {
		return feed.Title
	}
	return feedURL
}

func itemText(item *gofeed.Item) string {
	raw := item.Description
	if raw == "" {
		raw = item.Content
	}
	return stripHTML(raw)
}

func stripHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = whitespaceRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
