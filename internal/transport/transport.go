// Package transport performs the HTTP requests rv needs: small JSON
// metadata lookups and streaming archive downloads.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/savechina/rv/internal/config"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 10 * time.Minute
	// DefaultRetries is the default number of attempts per request
	DefaultRetries = 3
	// maxRedirects matches what GitHub release downloads need
	maxRedirects = 10
	// maxMetadataSize bounds JSON bodies read into memory
	maxMetadataSize = 1 << 20
)

// HTTPError is returned when the server answers with a non-200 status.
type HTTPError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %s", e.URL, e.Status)
}

// IsNotFound reports whether err is an HTTP 404, meaning the release does
// not exist for this version and platform.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

// Client performs GET requests with retry on transient failures.
type Client struct {
	client    *http.Client
	userAgent string
	retries   uint
	backoff   func() backoff.BackOff
	logger    config.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// WithRetries sets the maximum number of attempts per request.
func WithRetries(n uint) Option {
	return func(cl *Client) {
		if n == 0 {
			n = 1
		}
		cl.retries = n
	}
}

// WithBackOff sets the retry delay policy.
func WithBackOff(b func() backoff.BackOff) Option {
	return func(cl *Client) { cl.backoff = b }
}

// WithLogger sets the logger.
func WithLogger(l config.Logger) Option {
	return func(cl *Client) { cl.logger = config.OrNop(l) }
}

// New creates a Client. userAgent is sent with every request.
func New(userAgent string, opts ...Option) *Client {
	c := &Client{
		client: &http.Client{
			Timeout: DefaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent: userAgent,
		retries:   DefaultRetries,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			return b
		},
		logger: config.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Download streams the body of url into the file at dst, creating or
// truncating it on every attempt. It returns the number of bytes written.
// On error dst may hold partial data; the caller owns its cleanup.
func (c *Client) Download(ctx context.Context, url, dst string) (int64, error) {
	return c.retry(ctx, url, func() (int64, error) {
		return c.downloadOnce(ctx, url, dst)
	})
}

// GetJSON fetches url and decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	_, err := c.retry(ctx, url, func() (int64, error) {
		resp, err := c.get(ctx, url, "application/json")
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		if err := json.NewDecoder(io.LimitReader(resp.Body, maxMetadataSize)).Decode(v); err != nil {
			return 0, backoff.Permanent(fmt.Errorf("decode %s: %w", url, err))
		}
		return 0, nil
	})
	return err
}

// retry runs op until it succeeds, fails permanently or the attempt budget
// is spent. 4xx responses are permanent; 5xx and network errors are not.
func (c *Client) retry(ctx context.Context, url string, op func() (int64, error)) (int64, error) {
	attempt := 0
	n, err := backoff.Retry(ctx, func() (int64, error) {
		attempt++
		n, err := op()
		if err != nil {
			c.logger.Debug("request failed", "url", url, "attempt", attempt, "error", err)
		}
		return n, err
	},
		backoff.WithBackOff(c.backoff()),
		backoff.WithMaxTries(c.retries),
	)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, err
	}
	return n, nil
}

// get issues a single GET and checks the status. Non-retryable failures
// are marked permanent.
func (c *Client) get(ctx context.Context, url, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", c.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		httpErr := &HTTPError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
		if resp.StatusCode >= 500 {
			return nil, httpErr
		}
		return nil, backoff.Permanent(httpErr)
	}
	return resp, nil
}

// downloadOnce performs a single download attempt
func (c *Client) downloadOnce(ctx context.Context, url, dst string) (int64, error) {
	resp, err := c.get(ctx, url, "")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	file, err := os.Create(dst)
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("create %s: %w", dst, err))
	}

	n, copyErr := io.Copy(file, resp.Body)
	if copyErr == nil {
		// Data must be on disk before the caller renames the file into place
		copyErr = file.Sync()
	}
	closeErr := file.Close()
	if copyErr != nil {
		if ctx.Err() != nil {
			return n, backoff.Permanent(ctx.Err())
		}
		return n, fmt.Errorf("read body of %s: %w", url, copyErr)
	}
	if closeErr != nil {
		return n, backoff.Permanent(fmt.Errorf("close %s: %w", dst, closeErr))
	}

	// A body shorter than the advertised length is a truncated transfer
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, fmt.Errorf("read body of %s: got %d of %d bytes: %w", url, n, resp.ContentLength, io.ErrUnexpectedEOF)
	}
	return n, nil
}
