package probe

import (
	"context"
	"fmt"
	"sync"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/hamed0406/pushrelay/internal/domain"
)

const (
	DefaultEchoCount    = 4
	DefaultEchoInterval = time.Second
	DefaultICMPTimeout  = 5 * time.Second
)

// ICMP sends a fixed number of echo requests per probe. The value holds
// only immutable settings and is shared by every ICMP target.
type ICMP struct {
	Count      int
	Interval   time.Duration
	Timeout    time.Duration
	Privileged bool
}

func NewICMP(privileged bool) *ICMP {
	return &ICMP{
		Count:      DefaultEchoCount,
		Interval:   DefaultEchoInterval,
		Timeout:    DefaultICMPTimeout,
		Privileged: privileged,
	}
}

func (i *ICMP) Probe(ctx context.Context, t domain.Target) (Outcome, error) {
	p, err := probing.NewPinger(t.Address)
	if err != nil {
		return Outcome{Kind: domain.KindICMP}, fmt.Errorf("%w: resolve %s: %v", ErrTransport, t.Address, err)
	}
	p.Count = i.Count
	p.Interval = i.Interval
	p.Timeout = i.Timeout
	p.SetPrivileged(i.Privileged)

	var tr echoTracker
	p.OnSend = func(pkt *probing.Packet) { tr.sent(pkt.Seq) }
	p.OnRecv = func(pkt *probing.Packet) { tr.received(pkt.Seq, pkt.Rtt) }

	if err := p.RunWithContext(ctx); err != nil {
		return Outcome{Kind: domain.KindICMP}, fmt.Errorf("%w: ping %s: %v", ErrTransport, t.Address, err)
	}
	if err := ctx.Err(); err != nil {
		return Outcome{Kind: domain.KindICMP}, err
	}
	return tr.outcome(), nil
}

// echoTracker folds echo events into an Outcome: the latency is that of the
// latest reply and Received reports whether the last echo sent was answered.
type echoTracker struct {
	mu       sync.Mutex
	lastSent int
	anySent  bool
	replied  map[int]bool
	lastRTT  time.Duration
}

func (e *echoTracker) sent(seq int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSent = seq
	e.anySent = true
}

func (e *echoTracker) received(seq int, rtt time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.replied == nil {
		e.replied = make(map[int]bool)
	}
	e.replied[seq] = true
	e.lastRTT = rtt
}

func (e *echoTracker) outcome() Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Outcome{
		Kind:     domain.KindICMP,
		Received: e.anySent && e.replied[e.lastSent],
		Latency:  e.lastRTT,
	}
}

var _ Prober = (*ICMP)(nil)
