package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/pushrelay/internal/classify"
	"github.com/hamed0406/pushrelay/internal/config"
	"github.com/hamed0406/pushrelay/internal/domain"
	"github.com/hamed0406/pushrelay/internal/httpapi"
	"github.com/hamed0406/pushrelay/internal/logging"
	"github.com/hamed0406/pushrelay/internal/probe"
	"github.com/hamed0406/pushrelay/internal/relay"
	"github.com/hamed0406/pushrelay/internal/report"
	"github.com/hamed0406/pushrelay/internal/repo"
	"github.com/hamed0406/pushrelay/internal/repo/memory"
	"github.com/hamed0406/pushrelay/internal/repo/postgres"
	"github.com/hamed0406/pushrelay/internal/scheduler"
)

type mode int

const (
	modeAgent mode = 1 << iota
	modeServer
)

const drainTimeout = 10 * time.Second

// run blocks until ctx is cancelled or the inbound server fails. Shutdown
// cancels every target loop, gives the server drainTimeout to finish
// in-flight requests and waits the same budget for the loops to return.
func run(ctx context.Context, cfgPath string, m mode) (err error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(logging.Options{Dir: cfg.Log.Dir, Level: cfg.Log.Level, Stdout: cfg.Log.Stdout})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	sentryRep, err := report.InitSentry(report.SentryOptions{
		DSN:              cfg.ErrorReporting.SentryDSN,
		SampleRate:       cfg.ErrorReporting.SentrySampleRate,
		TracesSampleRate: cfg.ErrorReporting.SentryTracesSampleRate,
		Environment:      cfg.Environment,
		ServerName:       cfg.Region,
	})
	if err != nil {
		return err
	}
	defer sentryRep.Flush(2 * time.Second)

	slack := report.NewSlack(cfg.ErrorReporting.SlackWebhook, "pushrelay "+cfg.Region, logger)
	defer slack.Close()

	reporter := report.Multi{report.Log{Logger: logger}, sentryRep, slack}

	upstreamTLS, err := cfg.Upstream.TLS.Build()
	if err != nil {
		return fmt.Errorf("%w: upstream tls: %v", config.ErrInvalid, err)
	}
	pusher := relay.New(logger, relay.Options{
		Headers: cfg.Upstream.RequestHeaders,
		Region:  cfg.Region,
		TLS:     upstreamTLS,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		tasks   []*scheduler.Task
		srv     *http.Server
		srvErrs = make(chan error, 1)
	)

	if m&modeAgent != 0 {
		targets, err := loadTargets(ctx, cfg, logger)
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			logger.Warn("no_monitors_configured")
		}
		probers := probe.Set{
			HTTP: probe.NewHTTP(probe.DefaultHTTPTimeout),
			ICMP: probe.NewICMP(cfg.ICMPPrivileged),
		}
		sched := scheduler.New(logger, probers, classify.New(cfg.Policy()), pusher, reporter, scheduler.DefaultInterval)
		tasks = sched.Run(ctx, targets)
	}

	if m&modeServer != 0 {
		serverTLS, err := cfg.Server.TLS.Build()
		if err != nil {
			return fmt.Errorf("%w: server tls: %v", config.ErrInvalid, err)
		}
		api := httpapi.NewServer(logger, cfg.Upstream.BaseURL, pusher, reporter)
		api.RateLimitRPM = cfg.Server.RateLimitRPM
		api.RateLimitBurst = cfg.Server.RateLimitBurst
		srv = api.HTTPServer(cfg.Server.ListenAddress, serverTLS)

		go func() {
			logger.Info("api_listen",
				zap.String("addr", cfg.Server.ListenAddress),
				zap.Bool("tls", cfg.Server.ServesTLS()),
				zap.Bool("federation", cfg.Upstream.BaseURL != ""),
			)
			var err error
			if cfg.Server.ServesTLS() {
				err = srv.ListenAndServeTLS("", "")
			} else {
				err = srv.ListenAndServe()
			}
			if !errors.Is(err, http.ErrServerClosed) {
				srvErrs <- err
			}
			close(srvErrs)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown_requested")
	case e, ok := <-srvErrs:
		if ok {
			logger.Error("api_failed", zap.Error(e))
			err = multierr.Append(err, fmt.Errorf("inbound server: %w", e))
		}
	}

	cancel()
	if srv != nil {
		sctx, done := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
		err = multierr.Append(err, srv.Shutdown(sctx))
		done()
	}
	err = multierr.Append(err, scheduler.Wait(tasks, drainTimeout))
	logger.Info("shutdown_complete", zap.Error(err))
	return err
}

// loadTargets merges the configured monitors with rows from the database,
// when one is configured.
func loadTargets(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]domain.Target, error) {
	fromFile, err := cfg.Targets()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	sources := repo.Multi{memory.New(fromFile...)}

	dsn := cfg.DatabaseURL
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn != "" {
		store, err := postgres.New(ctx, dsn, logger)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		store.UpstreamBase = cfg.Upstream.BaseURL
		sources = append(sources, store)
	}

	targets, err := sources.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	return targets, nil
}
