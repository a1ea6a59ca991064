// Package relay delivers heartbeats to a push-style aggregator.
package relay

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/hamed0406/pushrelay/internal/domain"
)

const (
	DefaultTimeout = 60 * time.Second
	DefaultRegion  = "default"
	UserAgent      = "PushRelay/1.0"
	RegionHeader   = "X-Relay-Region"
)

var (
	// ErrTransport means no response was obtained from the aggregator.
	ErrTransport = errors.New("relay transport failure")
	// ErrDestination means the push destination could not be built or parsed.
	ErrDestination = errors.New("invalid push destination")
)

// Pusher sends one heartbeat to a destination.
type Pusher interface {
	Push(ctx context.Context, dest string, hb domain.Heartbeat) error
}

type Options struct {
	Headers map[string]string
	Region  string
	TLS     *tls.Config
	Timeout time.Duration
}

// Client is safe for concurrent use; its connection pool is shared by all
// callers.
type Client struct {
	http    *http.Client
	headers map[string]string
	region  string
	log     *zap.Logger
}

func New(log *zap.Logger, opts Options) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Region == "" {
		opts.Region = DefaultRegion
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if opts.TLS != nil {
		tr.TLSClientConfig = opts.TLS
	}
	return &Client{
		http:    &http.Client{Timeout: opts.Timeout, Transport: tr},
		headers: opts.Headers,
		region:  opts.Region,
		log:     log,
	}
}

// Push encodes hb into dest's query string and sends a GET. An error status
// from the aggregator is logged and swallowed; only transport failures and
// unusable destinations are returned.
func (c *Client) Push(ctx context.Context, dest string, hb domain.Heartbeat) error {
	span := sentry.StartSpan(ctx, "relay.push", sentry.WithDescription(dest))
	defer span.Finish()
	ctx = span.Context()

	u, err := url.Parse(dest)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrDestination, dest)
	}
	q := u.Query()
	for k, v := range hb.ToQuery() {
		q[k] = v
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDestination, err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(RegionHeader, c.region)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.Status = sentry.SpanStatusUnavailable
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warn("relay_rejected",
			zap.String("url", redact(u)),
			zap.Int("status", resp.StatusCode),
			zap.String("status_token", hb.Status.String()),
			zap.ByteString("body", body),
		)
		return nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	c.log.Debug("relay_sent",
		zap.String("url", redact(u)),
		zap.Int("status", resp.StatusCode),
		zap.String("status_token", hb.Status.String()),
		zap.Uint64("ping_ms", hb.Ping),
	)
	return nil
}

// PushURL joins {base}/api/push/{id}, keeping any path already on base.
func PushURL(base, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: empty id", ErrDestination)
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: base %q", ErrDestination, base)
	}
	return u.JoinPath("api", "push", id).String(), nil
}

// redact keeps scheme and host; the push path carries the monitor token.
func redact(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

var _ Pusher = (*Client)(nil)
