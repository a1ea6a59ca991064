package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hamed0406/pushrelay/internal/domain"
)

// ErrTransport marks a probe that could not reach its target at the
// transport level. An ICMP echo that simply goes unanswered is not one.
var ErrTransport = errors.New("probe transport failure")

// Outcome is the raw result of a single probe, before classification.
type Outcome struct {
	Kind       domain.Kind
	StatusCode int           // HTTP only
	Received   bool          // ICMP: the most recent echo got a reply
	Latency    time.Duration

	Protocol   string
	TLSVersion string
	TLSCipher  string
	TLSExpiry  time.Time
}

// Prober performs one health check against a target.
type Prober interface {
	Probe(ctx context.Context, t domain.Target) (Outcome, error)
}

// Set is the closed set of probers, one per target kind.
type Set struct {
	HTTP Prober
	ICMP Prober
}

// Probe dispatches on the target kind.
func (s Set) Probe(ctx context.Context, t domain.Target) (Outcome, error) {
	var p Prober
	switch t.Kind {
	case domain.KindHTTP:
		p = s.HTTP
	case domain.KindICMP:
		p = s.ICMP
	default:
		return Outcome{}, fmt.Errorf("no prober for kind %s", t.Kind)
	}
	if p == nil {
		return Outcome{}, fmt.Errorf("no prober configured for kind %s", t.Kind)
	}
	return p.Probe(ctx, t)
}

// Stub always reports a reachable target with zero latency. It backs
// disabled wiring and tests, never real monitoring.
type Stub struct{}

func (Stub) Probe(_ context.Context, t domain.Target) (Outcome, error) {
	return Outcome{Kind: t.Kind, StatusCode: 200, Received: true}, nil
}

var (
	_ Prober = Set{}
	_ Prober = Stub{}
)
