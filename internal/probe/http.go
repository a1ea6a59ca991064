package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/hamed0406/pushrelay/internal/domain"
)

const (
	DefaultHTTPTimeout = 30 * time.Second
	UserAgent          = "PushRelay/1.0"
)

// HTTP probes a URL with GET. The two clients are built once and shared by
// every target; targets with skip_tls_verify use the insecure one.
type HTTP struct {
	client   *http.Client
	insecure *http.Client
}

func NewHTTP(timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	base := http.DefaultTransport.(*http.Transport).Clone()
	insecure := base.Clone()
	insecure.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in per target
	return &HTTP{
		client:   &http.Client{Timeout: timeout, Transport: base},
		insecure: &http.Client{Timeout: timeout, Transport: insecure},
	}
}

func (h *HTTP) Probe(ctx context.Context, t domain.Target) (Outcome, error) {
	span := sentry.StartSpan(ctx, "probe.http", sentry.WithDescription(t.Address))
	defer span.Finish()
	ctx = span.Context()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.Address, nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}

	c := h.client
	if t.SkipTLSVerify {
		c = h.insecure
	}

	start := time.Now()
	resp, err := c.Do(req)
	latency := time.Since(start)
	if err != nil {
		span.Status = sentry.SpanStatusUnavailable
		return Outcome{Kind: domain.KindHTTP, Latency: latency}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	out := Outcome{
		Kind:       domain.KindHTTP,
		StatusCode: resp.StatusCode,
		Latency:    latency,
		Protocol:   resp.Proto,
	}
	if cs := resp.TLS; cs != nil {
		out.TLSVersion = tls.VersionName(cs.Version)
		out.TLSCipher = tls.CipherSuiteName(cs.CipherSuite)
		if len(cs.PeerCertificates) > 0 {
			out.TLSExpiry = cs.PeerCertificates[0].NotAfter
		}
	}
	return out, nil
}

var _ Prober = (*HTTP)(nil)
