package snapshot

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Encoding names the text encoding a document was decoded with.
type Encoding string

const (
	UTF8   Encoding = "utf-8"
	Latin1 Encoding = "iso-8859-1"
)

// Decode interprets data as UTF-8, falling back to ISO-8859-1 when the bytes
// are not valid UTF-8. ISO-8859-1 maps every byte, so decoding never fails.
func Decode(data []byte) (string, Encoding) {
	if utf8.Valid(data) {
		return string(data), UTF8
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "�"), Latin1
	}
	return string(out), Latin1
}

// ReadLines reads path and returns its lines without line terminators.
// Only I/O errors are returned; undecodable UTF-8 falls back to ISO-8859-1
// with a warning.
func ReadLines(path string, logger *slog.Logger) ([]string, Encoding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	text, enc := Decode(data)
	if enc != UTF8 {
		loggerOrDefault(logger).Warn("utf-8 decoding failed, using fallback encoding",
			slog.String("path", path), slog.String("encoding", string(enc)))
	}
	return SplitLines(text), enc, nil
}

// SplitLines splits on \n, \r\n and \r. A trailing terminator does not
// produce an empty final line.
func SplitLines(s string) []string {
	var lines []string
	for len(s) > 0 {
		i := strings.IndexAny(s, "\r\n")
		if i < 0 {
			lines = append(lines, s)
			break
		}
		lines = append(lines, s[:i])
		if s[i] == '\r' && i+1 < len(s) && s[i+1] == '\n' {
			i++
		}
		s = s[i+1:]
	}
	return lines
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
