package memory

import (
	"context"
	"testing"

	"github.com/hamed0406/pushrelay/internal/domain"
)

func TestMemoryStore_AddAndList(t *testing.T) {
	ctx := context.Background()
	s := New(domain.Target{ID: "seed", Kind: domain.KindICMP, Address: "10.0.0.1", PushURL: "http://kuma/api/push/seed"})

	tgt := domain.Target{ID: "web", Kind: domain.KindHTTP, Address: "https://example.com", PushURL: "http://kuma/api/push/web"}
	if err := s.Add(ctx, tgt); err != nil {
		t.Fatalf("Add target: %v", err)
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].ID != "seed" || all[1].ID != "web" {
		t.Fatalf("unexpected targets: %+v", all)
	}

	// callers get a copy
	all[0].ID = "mutated"
	again, _ := s.List(ctx)
	if again[0].ID != "seed" {
		t.Fatalf("store leaked its slice")
	}
}

func TestMemoryStore_AddRejectsInvalid(t *testing.T) {
	s := New()
	err := s.Add(context.Background(), domain.Target{ID: "bad", Kind: domain.KindHTTP, Address: "example.com"})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if all, _ := s.List(context.Background()); len(all) != 0 {
		t.Fatalf("invalid target stored")
	}
}
