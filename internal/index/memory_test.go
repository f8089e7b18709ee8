package index

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/dispatchprobe/internal/domain"
)

const (
	testServer   = "https://gw.example.com"
	testInstance = "sales"
)

func endpoint(path string, priority int, working bool) *domain.DiscoveredEndpoint {
	return &domain.DiscoveredEndpoint{
		ServerURL: testServer,
		Instance:  testInstance,
		Path:      path,
		Method:    "POST",
		Priority:  priority,
		IsWorking: working,
	}
}

func TestNewMemoryIndex(t *testing.T) {
	index := NewMemoryIndex()
	if index == nil {
		t.Fatal("NewMemoryIndex() returned nil")
	}
	if index.Count() != 0 {
		t.Errorf("NewMemoryIndex() count = %v, want 0", index.Count())
	}
}

func TestWorkingOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryIndex()

	for _, ep := range []*domain.DiscoveredEndpoint{
		endpoint("/message/sendText/{instance}", 3, true),
		endpoint("/api/{instance}/send-message", 1, true),
		endpoint("/broken/{instance}", 0, false),
		endpoint("/a/{instance}", 3, true),
		endpoint("/b/{instance}", 5, true),
	} {
		if err := index.Upsert(ctx, ep); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	// other scope, must never leak into the result
	other := endpoint("/other", 0, true)
	other.Instance = "support"
	_ = index.Upsert(ctx, other)

	got, err := index.Working(ctx, testServer+"/", testInstance, 3)
	if err != nil {
		t.Fatalf("Working() error = %v", err)
	}

	want := []string{"/api/{instance}/send-message", "/a/{instance}", "/message/sendText/{instance}"}
	if len(got) != len(want) {
		t.Fatalf("Working() returned %d endpoints, want %d", len(got), len(want))
	}
	for i, ep := range got {
		if ep.Path != want[i] {
			t.Errorf("Working()[%d] = %s, want %s", i, ep.Path, want[i])
		}
	}
}

func TestUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryIndex()

	_ = index.Upsert(ctx, endpoint("/x", 3, true))
	_ = index.Upsert(ctx, endpoint("/x", 1, true))

	if index.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", index.Count())
	}
	got, _ := index.Working(ctx, testServer, testInstance, 0)
	if got[0].Priority != 1 {
		t.Errorf("Priority = %d, want 1", got[0].Priority)
	}
}

func TestReturnedEndpointsAreCopies(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryIndex()
	_ = index.Upsert(ctx, endpoint("/x", 1, true))

	got, _ := index.Working(ctx, testServer, testInstance, 0)
	got[0].IsWorking = false

	again, _ := index.Working(ctx, testServer, testInstance, 0)
	if len(again) != 1 {
		t.Error("mutating a returned endpoint must not affect the index")
	}
}

func TestMarkSuccess(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryIndex()
	ep := endpoint("/x", 1, true)
	_ = index.Upsert(ctx, ep)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := index.MarkSuccess(ctx, testServer, testInstance, ep.ID(), at); err != nil {
		t.Fatalf("MarkSuccess() error = %v", err)
	}

	all, _ := index.All(ctx)
	if !all[0].LastSuccessAt.Equal(at) {
		t.Errorf("LastSuccessAt = %v, want %v", all[0].LastSuccessAt, at)
	}

	if err := index.MarkSuccess(ctx, testServer, testInstance, "POST /missing", at); err == nil {
		t.Error("MarkSuccess() on unknown endpoint should fail")
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryIndex()
	ep := endpoint("/x", 1, true)
	_ = index.Upsert(ctx, ep)

	if err := index.Delete(ctx, ep); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if index.Count() != 0 {
		t.Errorf("Count() after Delete = %d, want 0", index.Count())
	}
	// deleting twice is a no-op
	if err := index.Delete(ctx, ep); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryIndex()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = index.Upsert(ctx, endpoint(fmt.Sprintf("/p%d", i), i, true))
		}(i)
		go func() {
			defer wg.Done()
			_, _ = index.Working(ctx, testServer, testInstance, 3)
		}()
	}
	wg.Wait()

	if index.Count() != 100 {
		t.Errorf("Count() = %d, want 100", index.Count())
	}
}
