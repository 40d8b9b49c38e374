package drift

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	apierrors "github.com/tdevere/DevOpsApiClients/internal/errors"
)

// Fetcher defaults.
const (
	DefaultUserAgent = "DevOpsApiClients-SyncCheck/1.0"
	DefaultTimeout   = 30 * time.Second
	DefaultRetries   = 3
)

// Fetcher downloads upstream spec documents.
type Fetcher struct {
	client    *http.Client
	userAgent string
	retries   uint64
	// initialInterval is the first retry delay.
	initialInterval time.Duration
	logger          *zap.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the HTTP client. Its Timeout is kept as is.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithRetryInterval sets the first retry delay.
func WithRetryInterval(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.initialInterval = d }
}

// NewFetcher creates a fetcher. Zero values select the defaults.
func NewFetcher(timeout time.Duration, retries int, userAgent string, logger *zap.Logger, opts ...FetcherOption) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if retries < 0 {
		retries = DefaultRetries
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fetcher{
		client:          &http.Client{Timeout: timeout},
		userAgent:       userAgent,
		retries:         uint64(retries),
		initialInterval: 500 * time.Millisecond,
		logger:          logger,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch returns the body of url. Network errors and 5xx responses are
// retried with exponential backoff; any other non-2xx status fails at once.
// Every failure is a KindFetchFailure error.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", f.userAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return backoff.Permanent(fmt.Errorf("HTTP %d", resp.StatusCode))
		}
		body = data
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.initialInterval
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		f.logger.Warn("spec fetch failed, retrying",
			zap.String("url", url),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(bo, f.retries), ctx), notify)
	if err != nil {
		return nil, apierrors.Wrap(err, apierrors.KindFetchFailure, "fetch "+url)
	}
	return body, nil
}
