package probe

import (
	"context"
	"testing"
	"time"

	"github.com/hamed0406/pushrelay/internal/domain"
)

type recordingProber struct{ calls int }

func (r *recordingProber) Probe(_ context.Context, t domain.Target) (Outcome, error) {
	r.calls++
	return Outcome{Kind: t.Kind}, nil
}

func TestSet_DispatchesByKind(t *testing.T) {
	h, i := &recordingProber{}, &recordingProber{}
	s := Set{HTTP: h, ICMP: i}

	if _, err := s.Probe(context.Background(), domain.Target{Kind: domain.KindHTTP}); err != nil {
		t.Fatalf("http: %v", err)
	}
	if _, err := s.Probe(context.Background(), domain.Target{Kind: domain.KindICMP}); err != nil {
		t.Fatalf("icmp: %v", err)
	}
	if h.calls != 1 || i.calls != 1 {
		t.Fatalf("want one call each, got http=%d icmp=%d", h.calls, i.calls)
	}
	if _, err := s.Probe(context.Background(), domain.Target{}); err == nil {
		t.Fatalf("unknown kind must fail")
	}
	if _, err := (Set{HTTP: h}).Probe(context.Background(), domain.Target{Kind: domain.KindICMP}); err == nil {
		t.Fatalf("missing prober must fail")
	}
}

func TestStub_AlwaysUp(t *testing.T) {
	out, err := Stub{}.Probe(context.Background(), domain.Target{Kind: domain.KindICMP})
	if err != nil || !out.Received || out.StatusCode != 200 || out.Latency != 0 {
		t.Fatalf("unexpected stub outcome %+v, %v", out, err)
	}
}

func TestEchoTracker(t *testing.T) {
	var e echoTracker
	if out := e.outcome(); out.Received {
		t.Fatalf("nothing sent must not count as received")
	}

	// replies to the first three, last one lost
	for seq := 0; seq < 4; seq++ {
		e.sent(seq)
		if seq < 3 {
			e.received(seq, time.Duration(seq+1)*time.Millisecond)
		}
	}
	out := e.outcome()
	if out.Received {
		t.Fatalf("last echo lost, want Received=false")
	}
	if out.Latency != 3*time.Millisecond {
		t.Fatalf("want latency of latest reply, got %v", out.Latency)
	}

	e.received(3, 7*time.Millisecond)
	out = e.outcome()
	if !out.Received || out.Latency != 7*time.Millisecond || out.Kind != domain.KindICMP {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestICMP_UnresolvableIsTransportError(t *testing.T) {
	_, err := NewICMP(false).Probe(context.Background(), domain.Target{Kind: domain.KindICMP, Address: "host.invalid."})
	if err == nil {
		t.Fatalf("expected error for unresolvable host")
	}
}

func TestDiagnose(t *testing.T) {
	ctx := context.Background()
	if s := Diagnose(ctx, "https://127.0.0.1:8443/health"); s.Class != DNSResolves || s.Host != "127.0.0.1" {
		t.Fatalf("ip literal: %+v", s)
	}
	if s := Diagnose(ctx, ""); s.Class != DNSInvalidName {
		t.Fatalf("empty: %+v", s)
	}
	if got := HostOf("http://example.com:8080/x"); got != "example.com" {
		t.Fatalf("HostOf = %q", got)
	}
	if got := HostOf("10.1.1.1"); got != "10.1.1.1" {
		t.Fatalf("HostOf bare = %q", got)
	}
}
