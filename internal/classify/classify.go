// Package classify turns raw probe outcomes into heartbeat statuses.
package classify

import (
	"fmt"
	"strings"
	"time"

	"github.com/hamed0406/pushrelay/internal/domain"
	"github.com/hamed0406/pushrelay/internal/probe"
)

// Policy selects the HTTP classification rule set.
type Policy int

const (
	PolicyBasic Policy = iota
	PolicyExtended
)

// SlowThreshold is the latency above which the extended policy reports
// degraded performance.
const SlowThreshold = 30 * time.Second

func (p Policy) String() string {
	switch p {
	case PolicyBasic:
		return "basic"
	case PolicyExtended:
		return "extended"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParsePolicy reads "basic" or "extended"; an empty string means basic.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "basic":
		return PolicyBasic, nil
	case "extended":
		return PolicyExtended, nil
	}
	return PolicyBasic, fmt.Errorf("unknown classification policy %q", s)
}

// Classifier applies one policy to every HTTP outcome.
type Classifier struct {
	Policy Policy
}

func New(p Policy) Classifier { return Classifier{Policy: p} }

// Classify maps an outcome to a status. ICMP outcomes ignore the HTTP policy.
func (c Classifier) Classify(o probe.Outcome) domain.Status {
	if o.Kind != domain.KindHTTP {
		return Reachability(o.Received)
	}
	if c.Policy == PolicyExtended {
		return Extended(o.StatusCode, o.Latency)
	}
	return Basic(o.StatusCode)
}

// Reachability is up when a reply was received.
func Reachability(received bool) domain.Status {
	if received {
		return domain.StatusUp
	}
	return domain.StatusDown
}

// Basic is up for any status code below 400.
func Basic(code int) domain.Status {
	if code < 400 {
		return domain.StatusUp
	}
	return domain.StatusDown
}

// Extended grades status codes and reports slow responses as degraded,
// whatever their code.
func Extended(code int, latency time.Duration) domain.Status {
	if latency > SlowThreshold {
		return domain.StatusDegradedPerformance
	}
	switch {
	case code >= 200 && code <= 308:
		return domain.StatusUp
	case code == 403 || code == 410:
		return domain.StatusLimitedAvailability
	default:
		return domain.StatusDown
	}
}
