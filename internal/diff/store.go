package diff

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/regwatch/internal/snapshot"
)

const (
	nameInfix = "_html_diff_"
	nameExt   = ".txt"
)

// ErrNotFound is returned when a key has no diff artifact yet.
var ErrNotFound = errors.New("no diff artifact found")

var artifactNameRe = regexp.MustCompile(`^(.+)` + nameInfix + `(\d{8}_\d{6})` + regexp.QuoteMeta(nameExt) + `$`)

// Artifact is one persisted unified diff between two snapshots.
type Artifact struct {
	Key         snapshot.Key
	Name        string // {key}_html_diff_{YYYYMMDD}_{HHMMSS}.txt
	Path        string
	From        string // snapshot name diffed against
	To          string // snapshot name diffed
	GeneratedAt time.Time
	Lines       []string
}

// FileName returns the on-disk name of the artifact of key generated at.
func FileName(key snapshot.Key, at time.Time) string {
	return fmt.Sprintf("%s%s%s%s", key, nameInfix, at.Format(snapshot.TimestampLayout), nameExt)
}

// ParseName splits an artifact file name into key and generation time.
func ParseName(name string) (snapshot.Key, time.Time, error) {
	m := artifactNameRe.FindStringSubmatch(name)
	if m == nil {
		return "", time.Time{}, fmt.Errorf("diff name %q does not match {key}%sYYYYMMDD_HHMMSS%s", name, nameInfix, nameExt)
	}
	at, err := time.ParseInLocation(snapshot.TimestampLayout, m[2], time.Local)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("parse diff timestamp %q: %w", name, err)
	}
	return snapshot.Key(m[1]), at, nil
}

// Store keeps diff artifacts in one directory. Artifacts are append-only.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore opens (and creates if needed) the diff directory.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		return nil, errors.New("diff dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create diff dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the diff directory.
func (s *Store) Dir() string {
	return s.dir
}

// maxNameAttempts bounds the search for a free artifact name.
const maxNameAttempts = 3600

// Write persists the diff of from -> to for key. An existing artifact is
// never replaced: when the name for at is taken, the next free second is used.
func (s *Store) Write(key snapshot.Key, from, to string, at time.Time, lines []string) (Artifact, error) {
	if err := key.Validate(); err != nil {
		return Artifact{}, err
	}
	content := []byte(strings.Join(lines, "\n"))
	at = at.Truncate(time.Second)

	for i := 0; i < maxNameAttempts; i++ {
		name := FileName(key, at)
		path := filepath.Join(s.dir, name)
		err := snapshot.WriteNew(path, content)
		if errors.Is(err, fs.ErrExist) {
			s.logger.Debug("diff name taken, trying next second", slog.String("name", name))
			at = at.Add(time.Second)
			continue
		}
		if err != nil {
			return Artifact{}, fmt.Errorf("write diff %s: %w", name, err)
		}
		return Artifact{
			Key:         key,
			Name:        name,
			Path:        path,
			From:        from,
			To:          to,
			GeneratedAt: at,
			Lines:       lines,
		}, nil
	}
	return Artifact{}, fmt.Errorf("write diff for %s: no free name after %d attempts", key, maxNameAttempts)
}

// List returns the artifact names of key, oldest first.
func (s *Store) List(key snapshot.Key) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list diffs: %w", err)
	}
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(string(key)) + nameInfix + `\d{8}_\d{6}` + regexp.QuoteMeta(nameExt) + `$`)
	var names []string
	for _, e := range entries {
		if !e.IsDir() && re.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Latest returns the path of the newest artifact of key.
func (s *Store) Latest(key snapshot.Key) (string, error) {
	names, err := s.List(key)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w for %s in %s", ErrNotFound, key, s.dir)
	}
	return filepath.Join(s.dir, names[len(names)-1]), nil
}

// Read loads an artifact's lines.
func (s *Store) Read(path string) (Artifact, error) {
	lines, _, err := snapshot.ReadLines(path, s.logger)
	if err != nil {
		return Artifact{}, err
	}
	a := Artifact{Name: filepath.Base(path), Path: path, Lines: lines}
	if key, at, err := ParseName(a.Name); err == nil {
		a.Key = key
		a.GeneratedAt = at
	}
	if len(lines) >= 2 && strings.HasPrefix(lines[0], "--- ") && strings.HasPrefix(lines[1], "+++ ") {
		a.From = strings.TrimPrefix(lines[0], "--- ")
		a.To = strings.TrimPrefix(lines[1], "+++ ")
	}
	return a, nil
}
