// Package scheduler runs one independent probe, classify and relay loop per
// target.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/guregu/null/v6"
	"go.uber.org/zap"

	"github.com/hamed0406/pushrelay/internal/domain"
	"github.com/hamed0406/pushrelay/internal/probe"
	"github.com/hamed0406/pushrelay/internal/relay"
	"github.com/hamed0406/pushrelay/internal/report"
)

const DefaultInterval = 60 * time.Second

// Classifier maps a raw outcome to a heartbeat status.
type Classifier interface {
	Classify(o probe.Outcome) domain.Status
}

// Scheduler holds the collaborators shared by every task. None of them is
// mutated after construction.
type Scheduler struct {
	Logger     *zap.Logger
	Prober     probe.Prober
	Classifier Classifier
	Pusher     relay.Pusher
	Reporter   report.Reporter
	Interval   time.Duration
}

func New(
	logger *zap.Logger,
	prober probe.Prober,
	classifier Classifier,
	pusher relay.Pusher,
	reporter report.Reporter,
	interval time.Duration,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reporter == nil {
		reporter = report.Nop{}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		Logger:     logger,
		Prober:     prober,
		Classifier: classifier,
		Pusher:     pusher,
		Reporter:   reporter,
		Interval:   interval,
	}
}

// Task is the handle of one running target loop.
type Task struct {
	Target domain.Target
	done   chan struct{}
}

// Done is closed once the loop has returned.
func (t *Task) Done() <-chan struct{} { return t.done }

// Run starts one loop per target and returns immediately. Loops stop only
// when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, targets []domain.Target) []*Task {
	tasks := make([]*Task, 0, len(targets))
	for _, t := range targets {
		task := &Task{Target: t, done: make(chan struct{})}
		tasks = append(tasks, task)
		go s.loop(ctx, task)
	}
	s.Logger.Info("scheduler_started", zap.Int("targets", len(tasks)), zap.Duration("interval", s.Interval))
	return tasks
}

func (s *Scheduler) loop(ctx context.Context, task *Task) {
	defer close(task.done)
	ctx = sentry.SetHubOnContext(ctx, sentry.CurrentHub().Clone())
	log := s.Logger.With(zap.String("target", task.Target.Name()), zap.String("kind", task.Target.Kind.String()))

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("task_stopped")
			return
		case <-timer.C:
		}

		start := time.Now()
		if err := s.Tick(ctx, task.Target); err != nil && ctx.Err() == nil {
			log.Warn("tick_failed", zap.Error(err))
			s.Reporter.CaptureError(ctx, err)
		}
		timer.Reset(SleepDuration(time.Since(start), s.Interval))
	}
}

// Tick runs probe, classify and relay once for t.
func (s *Scheduler) Tick(ctx context.Context, t domain.Target) error {
	tx := sentry.StartTransaction(ctx, "tick "+t.Name(), sentry.WithOpName("scheduler.tick"))
	defer tx.Finish()
	ctx = tx.Context()

	out, err := s.Prober.Probe(ctx, t)
	if err != nil {
		tx.Status = sentry.SpanStatusUnavailable
		if t.Kind == domain.KindHTTP && errors.Is(err, probe.ErrTransport) {
			d := probe.Diagnose(ctx, t.Address)
			s.Logger.Info("dns_check",
				zap.String("target", t.Name()),
				zap.String("host", d.Host),
				zap.String("class", d.Class),
				zap.Strings("nameservers", d.Nameservers),
				zap.String("cname", d.CNAME),
				zap.String("resolver_error", d.ResolverError),
			)
			return fmt.Errorf("probe %s (dns=%s): %w", t.Name(), d.Class, err)
		}
		return fmt.Errorf("probe %s: %w", t.Name(), err)
	}

	status := s.Classifier.Classify(out)
	hb := heartbeatFor(out, status)
	s.Logger.Debug("tick_probed",
		zap.String("target", t.Name()),
		zap.Int("http_status", out.StatusCode),
		zap.Bool("received", out.Received),
		zap.Uint64("ping_ms", hb.Ping),
		zap.String("status", status.String()),
	)

	if err := s.Pusher.Push(ctx, t.PushURL, hb); err != nil {
		tx.Status = sentry.SpanStatusUnavailable
		return fmt.Errorf("relay %s: %w", t.Name(), err)
	}
	return nil
}

func heartbeatFor(out probe.Outcome, status domain.Status) domain.Heartbeat {
	hb := domain.NewHeartbeat(status, out.Latency)
	hb.Protocol = null.NewString(out.Protocol, out.Protocol != "")
	hb.TLSVersion = null.NewString(out.TLSVersion, out.TLSVersion != "")
	hb.TLSCipher = null.NewString(out.TLSCipher, out.TLSCipher != "")
	hb.TLSExpiry = null.NewTime(out.TLSExpiry, !out.TLSExpiry.IsZero())
	return hb
}

// SleepDuration is interval minus elapsed, floored at zero.
func SleepDuration(elapsed, interval time.Duration) time.Duration {
	if elapsed >= interval {
		return 0
	}
	return interval - elapsed
}

// Wait blocks until every task has stopped or the deadline passes.
func Wait(tasks []*Task, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for _, t := range tasks {
		select {
		case <-t.Done():
		case <-deadline.C:
			return fmt.Errorf("scheduler: %s still running after %s", t.Target.Name(), timeout)
		}
	}
	return nil
}
