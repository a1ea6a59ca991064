// Package httpapi is the inbound surface: a liveness route and the
// federation route that relays externally computed heartbeats.
package httpapi

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/pushrelay/internal/domain"
	apimw "github.com/hamed0406/pushrelay/internal/httpapi/middleware"
	"github.com/hamed0406/pushrelay/internal/relay"
	"github.com/hamed0406/pushrelay/internal/report"
)

type Server struct {
	Logger   *zap.Logger
	Upstream string // base URL; empty disables federation
	Pusher   relay.Pusher
	Reporter report.Reporter

	RateLimitRPM   int
	RateLimitBurst int
}

func NewServer(l *zap.Logger, upstream string, p relay.Pusher, r report.Reporter) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	if r == nil {
		r = report.Nop{}
	}
	return &Server{Logger: l, Upstream: upstream, Pusher: p, Reporter: r}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)
	r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	r.Use(apimw.RateLimit(s.RateLimitRPM, s.RateLimitBurst))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/api/push/{id}", s.handlePush)
	r.Post("/api/push/{id}", s.handlePush)

	return r
}

// HTTPServer wraps the router with the listener settings used in
// production. tlsCfg may be nil.
func (s *Server) HTTPServer(addr string, tlsCfg *tls.Config) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		TLSConfig:         tlsCfg,
		ReadTimeout:       time.Minute,
		ReadHeaderTimeout: time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       time.Minute,
	}
}

type pushResponse struct {
	Ok bool `json:"ok"`
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.Upstream == "" {
		s.Reporter.CaptureMessage(r.Context(), "push received for "+id+" but no upstream is configured")
		writeJSON(w, http.StatusPreconditionFailed, pushResponse{Ok: false})
		return
	}

	hb, err := domain.HeartbeatFromQuery(r.URL.Query())
	if err != nil {
		s.Logger.Info("push_rejected", zap.String("id", id), zap.Error(err))
		writeJSON(w, http.StatusBadRequest, pushResponse{Ok: false})
		return
	}

	dest, err := relay.PushURL(s.Upstream, id)
	if err == nil {
		// the relay outlives a caller that hangs up
		err = s.Pusher.Push(context.WithoutCancel(r.Context()), dest, hb)
	}
	if err != nil {
		s.Logger.Warn("push_failed",
			zap.String("id", id),
			zap.Bool("destination", errors.Is(err, relay.ErrDestination)),
			zap.Error(err),
		)
		s.Reporter.CaptureError(r.Context(), err)
		writeJSON(w, http.StatusInternalServerError, pushResponse{Ok: false})
		return
	}

	s.Logger.Debug("push_relayed", zap.String("id", id), zap.String("status", hb.Status.String()))
	writeJSON(w, http.StatusOK, pushResponse{Ok: true})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
