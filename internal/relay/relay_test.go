package relay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pushrelay/internal/domain"
)

func TestPushURL(t *testing.T) {
	cases := map[string]string{
		"https://kuma.example.com":       "https://kuma.example.com/api/push/abc123",
		"https://kuma.example.com/":      "https://kuma.example.com/api/push/abc123",
		"https://kuma.example.com/base":  "https://kuma.example.com/base/api/push/abc123",
		"https://kuma.example.com/base/": "https://kuma.example.com/base/api/push/abc123",
	}
	for base, want := range cases {
		got, err := PushURL(base, "abc123")
		if err != nil {
			t.Fatalf("%s: %v", base, err)
		}
		if got != want {
			t.Fatalf("PushURL(%q) = %q, want %q", base, got, want)
		}
	}
	if _, err := PushURL("https://kuma.example.com", ""); !errors.Is(err, ErrDestination) {
		t.Fatalf("empty id: want ErrDestination, got %v", err)
	}
	if _, err := PushURL("kuma.example.com", "x"); !errors.Is(err, ErrDestination) {
		t.Fatalf("relative base: want ErrDestination, got %v", err)
	}
}

func TestPush_EncodesHeartbeat(t *testing.T) {
	var got *http.Request
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.WriteHeader(200)
	}))
	defer s.Close()

	c := New(zap.NewNop(), Options{Headers: map[string]string{"Authorization": "Bearer t"}, Region: "eu-1"})
	hb := domain.Heartbeat{Msg: "OK", Status: domain.StatusDegradedPerformance, Ping: 31000}
	if err := c.Push(context.Background(), s.URL+"/api/push/abc?keep=1", hb); err != nil {
		t.Fatalf("push: %v", err)
	}
	if got == nil {
		t.Fatalf("upstream not called")
	}
	if got.Method != http.MethodGet || got.URL.Path != "/api/push/abc" {
		t.Fatalf("unexpected request %s %s", got.Method, got.URL.Path)
	}
	q := got.URL.Query()
	if q.Get("msg") != "OK" || q.Get("status") != "degraded_performance" || q.Get("ping") != "31000" || q.Get("keep") != "1" {
		t.Fatalf("unexpected query %s", got.URL.RawQuery)
	}
	if got.Header.Get("User-Agent") != UserAgent || got.Header.Get(RegionHeader) != "eu-1" || got.Header.Get("Authorization") != "Bearer t" {
		t.Fatalf("unexpected headers %v", got.Header)
	}
}

func TestPush_DefaultRegion(t *testing.T) {
	var region string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		region = r.Header.Get(RegionHeader)
	}))
	defer s.Close()

	if err := New(nil, Options{}).Push(context.Background(), s.URL, domain.NewHeartbeat(domain.StatusUp, 0)); err != nil {
		t.Fatalf("push: %v", err)
	}
	if region != DefaultRegion {
		t.Fatalf("want region %q, got %q", DefaultRegion, region)
	}
}

func TestPush_RejectedIsSuccess(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer s.Close()

	err := New(zap.NewNop(), Options{}).Push(context.Background(), s.URL, domain.NewHeartbeat(domain.StatusUp, time.Millisecond))
	if err != nil {
		t.Fatalf("503 from aggregator must not be an error, got %v", err)
	}
}

func TestPush_TransportFailure(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := s.URL
	s.Close()

	err := New(zap.NewNop(), Options{}).Push(context.Background(), addr, domain.NewHeartbeat(domain.StatusUp, 0))
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("want ErrTransport, got %v", err)
	}
}

func TestPush_Timeout(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer s.Close()

	err := New(zap.NewNop(), Options{Timeout: 20 * time.Millisecond}).Push(context.Background(), s.URL, domain.NewHeartbeat(domain.StatusUp, 0))
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("want ErrTransport, got %v", err)
	}
}

func TestPush_BadDestination(t *testing.T) {
	err := New(zap.NewNop(), Options{}).Push(context.Background(), "::not a url", domain.NewHeartbeat(domain.StatusUp, 0))
	if !errors.Is(err, ErrDestination) {
		t.Fatalf("want ErrDestination, got %v", err)
	}
	if _, perr := url.Parse("::not a url"); perr == nil {
		t.Fatalf("test input should not parse")
	}
}
