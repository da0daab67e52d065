package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoPDFLink is returned by PDFLink when the page has no PDF rendition.
var ErrNoPDFLink = errors.New("pdf link not found")

// PDFLink returns the PDF rendition URL that Légis Québec pages publish in
// the hidden input #renditions, whose value is a JSON object like
// {"Pdf": "...", "Html": "..."}.
func PDFLink(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	value, ok := doc.Find("#renditions").First().Attr("value")
	if !ok || strings.TrimSpace(value) == "" {
		return "", ErrNoPDFLink
	}

	var renditions map[string]any
	if err := json.Unmarshal([]byte(value), &renditions); err != nil {
		return "", fmt.Errorf("%w: renditions is not JSON: %v", ErrNoPDFLink, err)
	}
	link, _ := renditions["Pdf"].(string)
	if link == "" {
		return "", ErrNoPDFLink
	}
	return link, nil
}
