// Package fetch downloads remote assets with bounded exponential-backoff
// retry and resolves the background clip for a generation.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"quranvideo/apperr"
	"quranvideo/config"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Policy bounds the retry loop. MaxRetries counts retries, not attempts.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	exp.MaxInterval = p.MaxDelay
	exp.Multiplier = p.Multiplier
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxRetries)), ctx)
}

type Client struct {
	http    *http.Client
	policy  Policy
	maxSize int64
	log     logrus.FieldLogger
}

func NewClient(cfg *config.Config, log logrus.FieldLogger) *Client {
	return &Client{
		http: &http.Client{Timeout: cfg.DownloadTimeout},
		policy: Policy{
			MaxRetries: cfg.RetryMax,
			BaseDelay:  cfg.RetryBaseDelay,
			MaxDelay:   cfg.RetryMaxDelay,
			Multiplier: cfg.RetryMultiplier,
		},
		maxSize: cfg.MaxDownloadSize,
		log:     log,
	}
}

// StatusError is a non-2xx answer from the remote end.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

// retryable reports whether a failed attempt is worth another try: transport
// failures and 5xx answers only.
func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

func (c *Client) retry(ctx context.Context, resource string, attempt func() error) error {
	op := func() error {
		err := attempt()
		var perm *backoff.PermanentError
		if err != nil && !errors.As(err, &perm) && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.log.WithFields(logrus.Fields{
			"resource": resource,
			"retry_in": wait.String(),
		}).WithError(err).Warn("download attempt failed, retrying")
	}
	err := backoff.RetryNotify(op, c.policy.backOff(ctx), notify)
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	return apperr.Upstream(resource, err)
}

// Download streams url into destination. A failed attempt never leaves a
// partial file behind.
func (c *Client) Download(ctx context.Context, rawURL, destination string) error {
	return c.retry(ctx, rawURL, func() error {
		err := c.downloadOnce(ctx, rawURL, destination)
		if err != nil {
			os.Remove(destination)
		}
		return err
	})
}

func (c *Client) downloadOnce(ctx context.Context, rawURL, destination string) error {
	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out, err := os.Create(destination)
	if err != nil {
		return backoff.Permanent(apperr.File("create", destination, err))
	}

	var body io.Reader = resp.Body
	if c.maxSize > 0 {
		body = &io.LimitedReader{R: resp.Body, N: c.maxSize + 1}
	}
	written, err := io.Copy(out, body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", destination, err)
	}
	if c.maxSize > 0 && written > c.maxSize {
		return backoff.Permanent(fmt.Errorf("%s exceeds limit of %d bytes", rawURL, c.maxSize))
	}
	return nil
}

// GetJSON fetches url and decodes the body into v under the same retry
// policy as Download.
func (c *Client) GetJSON(ctx context.Context, rawURL string, v any) error {
	return c.retry(ctx, rawURL, func() error {
		resp, err := c.get(ctx, rawURL)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return backoff.Permanent(fmt.Errorf("decode %s: %w", rawURL, err))
		}
		return nil
	})
}

func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}
	return resp, nil
}
