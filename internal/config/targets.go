package config

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ppiankov/regwatch/internal/snapshot"
)

// ErrNoURLColumn is returned when the targets table has no url column.
var ErrNoURLColumn = errors.New("targets: missing required column \"url\"")

// Target is one monitored page.
type Target struct {
	URL  string
	Name string
	Key  snapshot.Key
}

// LoadTargets reads the targets CSV at path. Configuration errors (missing
// file, missing url column, unreadable CSV) are logged and yield an empty
// set so the run can finish cleanly.
func LoadTargets(path string, logger *slog.Logger) []Target {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.Open(path)
	if err != nil {
		logger.Error("targets file unavailable, continuing with no targets",
			slog.String("path", path), slog.String("error", err.Error()))
		return nil
	}
	defer func() { _ = f.Close() }()

	targets, err := ReadTargets(f, logger)
	if err != nil {
		logger.Error("invalid targets file, continuing with no targets",
			slog.String("path", path), slog.String("error", err.Error()))
		return nil
	}
	return targets
}

// ReadTargets parses a CSV with a header row holding "url" (required) and
// "name" (optional). Rows without a usable key are skipped with a warning.
// Two URLs that derive the same key are told apart by suffixing the later
// key with the first 8 hex digits of the SHA-256 of its URL.
func ReadTargets(r io.Reader, logger *slog.Logger) ([]Target, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoURLColumn
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	urlCol, nameCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "url":
			urlCol = i
		case "name":
			nameCol = i
		}
	}
	if urlCol < 0 {
		return nil, ErrNoURLColumn
	}

	var targets []Target
	owners := make(map[snapshot.Key]string)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}

		t := Target{URL: strings.TrimSpace(field(rec, urlCol)), Name: strings.TrimSpace(field(rec, nameCol))}
		if t.URL == "" {
			logger.Warn("target row without url, skipping", slog.Int("row", line))
			continue
		}
		if t.Name != "" {
			t.Key = snapshot.KeyFromName(t.Name)
		} else {
			t.Key = snapshot.KeyFromURL(t.URL)
		}
		if err := t.Key.Validate(); err != nil {
			logger.Warn("target has no usable key, skipping",
				slog.Int("row", line), slog.String("url", t.URL), slog.String("error", err.Error()))
			continue
		}

		if owner, taken := owners[t.Key]; taken {
			if owner == t.URL {
				logger.Warn("duplicate target, skipping", slog.Int("row", line), slog.String("url", t.URL))
				continue
			}
			disambiguated := snapshot.Key(fmt.Sprintf("%s_%s", t.Key, urlHash(t.URL)))
			logger.Warn("document key collision, suffixing key",
				slog.String("key", t.Key.String()),
				slog.String("new_key", disambiguated.String()),
				slog.String("url", t.URL),
				slog.String("first_url", owner))
			t.Key = disambiguated
		}
		owners[t.Key] = t.URL
		targets = append(targets, t)
	}
	return targets, nil
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}

func urlHash(u string) string {
	sum := sha256.Sum256([]byte(u))
	return hex.EncodeToString(sum[:])[:8]
}
