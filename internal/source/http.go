package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "regwatch/1.0 (+https://github.com/ppiankov/regwatch)"
)

// ErrTooLarge is returned when a response body exceeds the fetcher limit.
var ErrTooLarge = errors.New("response body too large")

// uaTransport injects a User-Agent header into every request.
type uaTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *uaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(req)
}

// HTTPFetcher downloads documents over HTTP(S). It does not retry.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher builds a fetcher. Zero values take the package defaults;
// maxBytes <= 0 disables the size limit.
func NewHTTPFetcher(timeout time.Duration, userAgent string, maxBytes int64) *HTTPFetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: &uaTransport{base: http.DefaultTransport, userAgent: userAgent},
		},
		maxBytes: maxBytes,
	}
}

// Client returns the underlying HTTP client so feed parsing shares its
// timeout and User-Agent.
func (f *HTTPFetcher) Client() *http.Client {
	return f.client
}

// Fetch GETs url and returns the body. Non-2xx statuses are errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("fetch %s: %w (limit %d bytes)", url, ErrTooLarge, f.maxBytes)
	}
	return data, nil
}
