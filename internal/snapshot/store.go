package snapshot

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ErrNoPrevious signals the first observation of a document: there is no
// earlier snapshot to compare against.
var ErrNoPrevious = errors.New("no previous snapshot")

// Snapshot is one immutable capture of a document.
type Snapshot struct {
	Key        Key
	Name       string // {key}_{YYYYMMDD}_{HHMMSS}.html
	Path       string
	CapturedAt time.Time

	// Populated by Store.Load.
	Content  []byte
	Encoding Encoding
}

// History is the set of snapshots of one key in chronological order.
type History []Snapshot

// Latest returns the newest snapshot of the history.
func (h History) Latest() (Snapshot, bool) {
	if len(h) == 0 {
		return Snapshot{}, false
	}
	return h[len(h)-1], true
}

// Store keeps snapshots as files in a single directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore opens (and creates if needed) the snapshot directory.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		return nil, errors.New("snapshot dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &Store{dir: dir, logger: loggerOrDefault(logger)}, nil
}

// Dir returns the snapshot directory.
func (s *Store) Dir() string {
	return s.dir
}

// Write stores body as the snapshot of key captured at. The file appears
// atomically: readers never see a partial snapshot.
func (s *Store) Write(key Key, at time.Time, body []byte) (Snapshot, error) {
	if err := key.Validate(); err != nil {
		return Snapshot{}, err
	}
	name := FileName(key, at)
	path := filepath.Join(s.dir, name)
	if err := writeAtomic(path, body); err != nil {
		return Snapshot{}, err
	}
	_, enc := Decode(body)
	return Snapshot{
		Key:        key,
		Name:       name,
		Path:       path,
		CapturedAt: at.Truncate(time.Second),
		Content:    body,
		Encoding:   enc,
	}, nil
}

// Open returns the snapshot stored under name.
func (s *Store) Open(name string) (Snapshot, error) {
	key, at, err := ParseName(name)
	if err != nil {
		return Snapshot{}, err
	}
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err != nil {
		return Snapshot{}, fmt.Errorf("stat snapshot: %w", err)
	}
	return Snapshot{Key: key, Name: name, Path: path, CapturedAt: at}, nil
}

// Load reads the snapshot content and returns it split into lines.
func (s *Store) Load(snap Snapshot) (Snapshot, []string, error) {
	data, err := os.ReadFile(snap.Path)
	if err != nil {
		return snap, nil, fmt.Errorf("read snapshot %s: %w", snap.Name, err)
	}
	text, enc := Decode(data)
	if enc != UTF8 {
		s.logger.Warn("utf-8 decoding failed, using fallback encoding",
			slog.String("snapshot", snap.Name), slog.String("encoding", string(enc)))
	}
	snap.Content = data
	snap.Encoding = enc
	return snap, SplitLines(text), nil
}

// History lists every snapshot of key, oldest first.
func (s *Store) History(key Key) (History, error) {
	return s.list(key, "")
}

// Previous finds the snapshots of current's key whose names sort before
// current. prev is the newest of them; old holds all of them (prev
// included), oldest first. Snapshots newer than current are left out, so a
// late-processed capture never diffs against or prunes its successors.
// Returns ErrNoPrevious when nothing older exists.
func (s *Store) Previous(current Snapshot) (prev Snapshot, old []Snapshot, err error) {
	old, err = s.list(current.Key, current.Name)
	if err != nil {
		return Snapshot{}, nil, err
	}
	if len(old) == 0 {
		return Snapshot{}, nil, ErrNoPrevious
	}
	return old[len(old)-1], old, nil
}

// Prune deletes the given snapshots. Every deletion is attempted; failures
// are logged and returned without stopping the others.
func (s *Store) Prune(old []Snapshot) (removed int, failed []error) {
	for _, snap := range old {
		if err := os.Remove(snap.Path); err != nil {
			s.logger.Error("failed to remove old snapshot",
				slog.String("path", snap.Path), slog.String("error", err.Error()))
			failed = append(failed, fmt.Errorf("remove %s: %w", snap.Name, err))
			continue
		}
		s.logger.Info("removed old snapshot", slog.String("path", snap.Path))
		removed++
	}
	return removed, failed
}

// list returns the snapshots of key, oldest first. A non-empty before keeps
// only names that sort strictly before it.
func (s *Store) list(key Key, before string) (History, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	re := keyPattern(key)
	var names []string
	for _, e := range entries {
		if e.IsDir() || !re.MatchString(e.Name()) {
			continue
		}
		if before != "" && e.Name() >= before {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	history := make(History, 0, len(names))
	for _, name := range names {
		_, at, err := ParseName(name)
		if err != nil {
			continue
		}
		history = append(history, Snapshot{
			Key:        key,
			Name:       name,
			Path:       filepath.Join(s.dir, name),
			CapturedAt: at,
		})
	}
	return history, nil
}

// writeTemp writes content to a synced temp file in dir and returns its name.
func writeTemp(dir string, content []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".regwatch-tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp: %w", err)
	}
	return tmp.Name(), nil
}

// writeAtomic writes content through a temp file, fsync and rename.
func writeAtomic(path string, content []byte) error {
	tmpName, err := writeTemp(filepath.Dir(path), content)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// WriteFile atomically writes content to path, replacing any existing file.
func WriteFile(path string, content []byte) error {
	return writeAtomic(path, content)
}

// WriteNew is WriteFile for records that must never be replaced: it fails
// with an error matching fs.ErrExist when path is already taken.
func WriteNew(path string, content []byte) error {
	tmpName, err := writeTemp(filepath.Dir(path), content)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmpName) }()
	if err := os.Link(tmpName, path); err != nil {
		return fmt.Errorf("link: %w", err)
	}
	return nil
}
