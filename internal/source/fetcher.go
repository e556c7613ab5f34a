package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const maxBodySize = 50 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type fetcher struct {
	client  HTTPClient
	timeout time.Duration
	limit   int64
}

func newFetcher(client HTTPClient, timeout time.Duration) *fetcher {
	return &fetcher{client: client, timeout: timeout, limit: maxBodySize}
}

func (f *fetcher) do(ctx context.Context, method, url string, headers map[string]string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var rd io.Reader
	if len(body) > 0 {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrSourceUnavailable, err)
	}
	req.Header.Set("User-Agent", "JobDistributor/1.0")
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http %s: %w", ErrSourceUnavailable, method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrSourceUnavailable, resp.StatusCode)
	}

	return readLimited(resp.Body, f.limit, "body")
}

func readFile(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty file path", ErrSourceUnavailable)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open file: %w", ErrSourceUnavailable, err)
	}
	defer func() { _ = f.Close() }()

	return readLimited(f, maxBodySize, "file")
}

// readLimited reads r in full. A payload over limit is an error rather than
// a silently truncated source.
func readLimited(r io.Reader, limit int64, what string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrSourceUnavailable, what, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrMalformedSource, what, limit)
	}
	return data, nil
}
