package tle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultSourceURL = "https://celestrak.org/NORAD/elements/gp.php?CATNR=25544&FORMAT=tle"
	userAgent        = "iss-sgp4-json"

	// maxBodyBytes caps a single response body.
	maxBodyBytes = 50 << 20
)

// StatusError reports a non-200 response from a source.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.Code, e.URL)
}

// Fetcher downloads plain-text data: element sets from a primary source
// plus optional extra sources, and the IERS tables through the same client.
type Fetcher struct {
	sourceURL string
	extraURLs []string
	client    *http.Client
	logger    *slog.Logger
}

// NewFetcher returns a Fetcher for sourceURL, or for the CelesTrak ISS
// query when sourceURL is empty. Extra sources are appended after the
// primary; a failing extra source is logged and skipped.
func NewFetcher(sourceURL string, logger *slog.Logger, extraURLs ...string) *Fetcher {
	if sourceURL == "" {
		sourceURL = defaultSourceURL
	}
	return &Fetcher{
		sourceURL: sourceURL,
		extraURLs: extraURLs,
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    logger,
	}
}

// SourceURL returns the primary source.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// Fetch downloads every source and joins the bodies, one per line. Only a
// failure of the primary source is returned.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	primary, err := f.Get(ctx, f.sourceURL)
	if err != nil {
		return nil, err
	}
	if len(f.extraURLs) == 0 {
		return primary, nil
	}

	buf := bytes.NewBuffer(primary)
	for _, u := range f.extraURLs {
		body, err := f.Get(ctx, u)
		if err != nil {
			f.logger.Warn("extra TLE source failed", "url", u, "error", err)
			continue
		}
		if n := buf.Len(); n > 0 && buf.Bytes()[n-1] != '\n' {
			buf.WriteByte('\n')
		}
		buf.Write(body)
	}
	return buf.Bytes(), nil
}

// Get downloads a single URL.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/plain")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	// One byte past the limit tells an oversized body from an exact fit.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response from %s exceeds %d byte limit", url, maxBodyBytes)
	}
	return body, nil
}
