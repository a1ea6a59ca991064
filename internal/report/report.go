// Package report is the fire-and-forget diagnostic side channel. Nothing
// in here returns an error or influences control flow.
package report

import (
	"context"

	"go.uber.org/zap"
)

// Reporter accepts errors and free-text diagnostics.
type Reporter interface {
	CaptureError(ctx context.Context, err error)
	CaptureMessage(ctx context.Context, msg string)
}

// Multi fans out to every non-nil reporter.
type Multi []Reporter

func (m Multi) CaptureError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	for _, r := range m {
		if r != nil {
			r.CaptureError(ctx, err)
		}
	}
}

func (m Multi) CaptureMessage(ctx context.Context, msg string) {
	for _, r := range m {
		if r != nil {
			r.CaptureMessage(ctx, msg)
		}
	}
}

// Log writes diagnostics to a zap logger.
type Log struct {
	Logger *zap.Logger
}

func (l Log) CaptureError(_ context.Context, err error) {
	l.Logger.Error("reported_error", zap.Error(err))
}

func (l Log) CaptureMessage(_ context.Context, msg string) {
	l.Logger.Warn("reported_message", zap.String("msg", msg))
}

// Nop discards everything.
type Nop struct{}

func (Nop) CaptureError(context.Context, error)    {}
func (Nop) CaptureMessage(context.Context, string) {}

var (
	_ Reporter = Multi(nil)
	_ Reporter = Log{}
	_ Reporter = Nop{}
)
