package snapshot

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

const (
	// TimestampLayout sorts lexicographically in chronological order.
	TimestampLayout = "20060102_150405"

	// Ext is the extension of every snapshot file.
	Ext = ".html"

	timestampPattern = `\d{8}_\d{6}`
)

// ErrNameMismatch is returned when a file name does not follow
// {key}_{YYYYMMDD}_{HHMMSS}.html.
var ErrNameMismatch = errors.New("snapshot name does not match {key}_YYYYMMDD_HHMMSS.html")

var nameRe = regexp.MustCompile(`^(.+)_(` + timestampPattern + `)` + regexp.QuoteMeta(Ext) + `$`)

// FileName returns the on-disk name of the snapshot of key captured at.
func FileName(key Key, at time.Time) string {
	return fmt.Sprintf("%s_%s%s", key, at.Format(TimestampLayout), Ext)
}

// ParseName splits a snapshot file name into its key and capture time.
func ParseName(name string) (Key, time.Time, error) {
	m := nameRe.FindStringSubmatch(name)
	if m == nil {
		return "", time.Time{}, fmt.Errorf("%w: %s", ErrNameMismatch, name)
	}
	at, err := time.ParseInLocation(TimestampLayout, m[2], time.Local)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %s: %v", ErrNameMismatch, name, err)
	}
	return Key(m[1]), at, nil
}

// keyPattern matches exactly the snapshot names of key. The fixed-width
// timestamp tail keeps "REAFIE" from matching "REAFIE_2_20250101_100000.html".
func keyPattern(key Key) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(string(key)) + `_` + timestampPattern + regexp.QuoteMeta(Ext) + `$`)
}
