package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/guregu/null/v6"
)

// ErrInvalidHeartbeat marks a query that cannot be decoded into a Heartbeat.
var ErrInvalidHeartbeat = errors.New("invalid heartbeat")

// Status is the heartbeat state understood by the aggregator.
type Status int

const (
	StatusUp Status = iota
	StatusDown
	StatusDegradedPerformance
	// StatusUnderMaintenance is part of the wire vocabulary but never
	// produced by a classifier.
	StatusUnderMaintenance
	StatusLimitedAvailability
)

var statusTokens = map[Status]string{
	StatusUp:                  "up",
	StatusDown:                "down",
	StatusDegradedPerformance: "degraded_performance",
	StatusUnderMaintenance:    "under_maintenance",
	StatusLimitedAvailability: "limited_availability",
}

func (s Status) String() string {
	if tok, ok := statusTokens[s]; ok {
		return tok
	}
	return "unknown"
}

// ParseStatus maps a wire token back to a Status.
func ParseStatus(tok string) (Status, error) {
	for s, t := range statusTokens {
		if t == tok {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown status %q", ErrInvalidHeartbeat, tok)
}

const DefaultMessage = "OK"

// Heartbeat is one normalized check result, built fresh for every relay.
// Ping is in milliseconds.
type Heartbeat struct {
	Msg    string
	Status Status
	Ping   uint64

	// Optional transport details, forwarded only when set.
	Protocol   null.String
	TLSVersion null.String
	TLSCipher  null.String
	TLSExpiry  null.Time
}

// NewHeartbeat returns a heartbeat with the default message.
func NewHeartbeat(status Status, ping time.Duration) Heartbeat {
	return Heartbeat{Msg: DefaultMessage, Status: status, Ping: Millis(ping)}
}

// Millis converts a duration to whole milliseconds, clamping negatives to 0.
func Millis(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d / time.Millisecond)
}

// ToQuery encodes the heartbeat as push query parameters.
func (h Heartbeat) ToQuery() url.Values {
	q := url.Values{}
	q.Set("msg", h.Msg)
	q.Set("status", h.Status.String())
	q.Set("ping", strconv.FormatUint(h.Ping, 10))
	if h.Protocol.Valid {
		q.Set("http_protocol", h.Protocol.ValueOrZero())
	}
	if h.TLSVersion.Valid {
		q.Set("tls_version", h.TLSVersion.ValueOrZero())
	}
	if h.TLSCipher.Valid {
		q.Set("tls_cipher", h.TLSCipher.ValueOrZero())
	}
	if h.TLSExpiry.Valid {
		q.Set("tls_expiry", strconv.FormatInt(h.TLSExpiry.Time.Unix(), 10))
	}
	return q
}

// HeartbeatFromQuery decodes push query parameters. A missing msg becomes
// DefaultMessage, a missing status means up and a missing ping means 0.
// Unknown status tokens and pings that are not unsigned 64-bit decimals are
// rejected rather than truncated.
func HeartbeatFromQuery(q url.Values) (Heartbeat, error) {
	h := Heartbeat{Msg: q.Get("msg"), Status: StatusUp}
	if h.Msg == "" {
		h.Msg = DefaultMessage
	}
	if tok := q.Get("status"); tok != "" {
		s, err := ParseStatus(tok)
		if err != nil {
			return Heartbeat{}, err
		}
		h.Status = s
	}
	if p := q.Get("ping"); p != "" {
		v, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return Heartbeat{}, fmt.Errorf("%w: ping %q: %v", ErrInvalidHeartbeat, p, err)
		}
		h.Ping = v
	}
	h.Protocol = optional(q.Get("http_protocol"))
	h.TLSVersion = optional(q.Get("tls_version"))
	h.TLSCipher = optional(q.Get("tls_cipher"))
	if e := q.Get("tls_expiry"); e != "" {
		sec, err := strconv.ParseInt(e, 10, 64)
		if err != nil {
			return Heartbeat{}, fmt.Errorf("%w: tls_expiry %q: %v", ErrInvalidHeartbeat, e, err)
		}
		h.TLSExpiry = null.TimeFrom(time.Unix(sec, 0).UTC())
	}
	return h, nil
}

func optional(s string) null.String {
	return null.NewString(s, s != "")
}
