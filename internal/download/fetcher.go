// Package download fetches generated media from provider-issued locators.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/maauso/genstudio-api/internal/credential"
)

// Static errors for download operations.
var (
	// ErrLocatorRequired is returned when the locator is empty.
	ErrLocatorRequired = errors.New("download: locator is required")
	// ErrUnexpectedStatus is returned for non-2xx responses.
	ErrUnexpectedStatus = errors.New("download: unexpected status")
)

// StatusError carries the transport status of a failed download.
type StatusError struct {
	StatusCode int
	// Status is the reason phrase without the code, e.g. "Forbidden".
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", ErrUnexpectedStatus, e.StatusCode, e.Status)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

// Fetcher retrieves the bytes behind a locator.
type Fetcher interface {
	// Fetch returns the response body. The caller closes it.
	Fetch(ctx context.Context, locator string) (io.ReadCloser, error)
}

// HTTPFetcher downloads over HTTP, authorizing with the active key as the
// "key" query parameter.
type HTTPFetcher struct {
	keys       credential.KeySource
	httpClient *http.Client
}

// Compile-time check that HTTPFetcher implements Fetcher.
var _ Fetcher = (*HTTPFetcher)(nil)

// FetcherOption is a function that configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *HTTPFetcher) {
		f.httpClient = c
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		if d > 0 {
			f.httpClient = &http.Client{Timeout: d}
		}
	}
}

// NewHTTPFetcher creates an HTTPFetcher. keys may be nil, in which case no
// key is appended.
func NewHTTPFetcher(keys credential.KeySource, opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		keys:       keys,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads locator. A non-2xx response yields a *StatusError.
func (f *HTTPFetcher) Fetch(ctx context.Context, locator string) (io.ReadCloser, error) {
	if locator == "" {
		return nil, ErrLocatorRequired
	}

	target, err := f.authorize(locator)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("download: create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: statusText(resp)}
	}

	return resp.Body, nil
}

func (f *HTTPFetcher) authorize(locator string) (string, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return "", fmt.Errorf("download: parse locator: %w", err)
	}
	if f.keys == nil {
		return u.String(), nil
	}
	if key := f.keys.APIKey(); key != "" {
		q := u.Query()
		q.Set("key", key)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// statusText returns the reason phrase of resp.
func statusText(resp *http.Response) string {
	if text, ok := strings.CutPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "); ok && text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
