package report

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

type SentryOptions struct {
	DSN              string
	SampleRate       float64
	TracesSampleRate float64
	Environment      string
	ServerName       string
	Debug            bool
}

// InitSentry configures the global Sentry client. An empty DSN leaves
// Sentry disabled and returns a nil reporter.
func InitSentry(opts SentryOptions) (*Sentry, error) {
	if opts.DSN == "" {
		return nil, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		SampleRate:       opts.SampleRate,
		EnableTracing:    opts.TracesSampleRate > 0,
		TracesSampleRate: opts.TracesSampleRate,
		Environment:      opts.Environment,
		ServerName:       opts.ServerName,
		Debug:            opts.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry init: %w", err)
	}
	return &Sentry{}, nil
}

// Sentry reports through the hub bound to ctx, falling back to the
// current hub.
type Sentry struct{}

func (s *Sentry) CaptureError(ctx context.Context, err error) {
	if s == nil || err == nil {
		return
	}
	hub(ctx).CaptureException(err)
}

func (s *Sentry) CaptureMessage(ctx context.Context, msg string) {
	if s == nil {
		return
	}
	hub(ctx).CaptureMessage(msg)
}

// Flush waits up to timeout for buffered events.
func (s *Sentry) Flush(timeout time.Duration) bool {
	if s == nil {
		return true
	}
	return sentry.Flush(timeout)
}

func hub(ctx context.Context) *sentry.Hub {
	if h := sentry.GetHubFromContext(ctx); h != nil {
		return h
	}
	return sentry.CurrentHub()
}

var _ Reporter = (*Sentry)(nil)
