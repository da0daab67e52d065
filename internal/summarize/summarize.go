// Package summarize talks to the text-summarization services used to turn
// regulation diffs into change reports.
package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds one summarization request.
const DefaultTimeout = 60 * time.Second

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 4 << 20

// ErrMalformedResponse is returned when a response lacks the expected text field.
var ErrMalformedResponse = errors.New("malformed summarizer response")

// Result is the text payload of one call and the tokens it consumed.
type Result struct {
	Text        string
	TotalTokens int
}

// Summarizer produces a summary for a prompt.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (Result, error)
}

// ContextSummarizer is implemented by summarizers that work on the raw
// context embedded in a prompt rather than on the prompt text.
type ContextSummarizer interface {
	SummarizeContext(ctx context.Context, prompt, contextText string) (Result, error)
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api returned status %d", e.Code)
	}
	return fmt.Sprintf("api returned status %d: %s", e.Code, e.Body)
}

// postJSON sends payload to endpoint and decodes a 2xx JSON body into out.
func postJSON(ctx context.Context, client *http.Client, endpoint string, header http.Header, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: truncate(string(data), 200)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrMalformedResponse, err)
	}
	return nil
}

func newClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
