package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/dispatchprobe/internal/domain"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client), mr
}

func ep(path string, priority int, working bool) *domain.DiscoveredEndpoint {
	return &domain.DiscoveredEndpoint{
		ServerURL: "https://gw.example.com",
		Instance:  "sales",
		Path:      path,
		Method:    "POST",
		Priority:  priority,
		IsWorking: working,
	}
}

func TestStore_UpsertAndWorking(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	require.NoError(t, s.Upsert(ctx, ep("/message/sendText/{instance}", 3, true)))
	require.NoError(t, s.Upsert(ctx, ep("/api/{instance}/send-message", 2, true)))
	require.NoError(t, s.Upsert(ctx, ep("/broken", 1, false)))
	require.NoError(t, s.Upsert(ctx, ep("/zz", 9, true)))

	got, err := s.Working(ctx, "https://gw.example.com/", "sales", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "/api/{instance}/send-message", got[0].Path)
	assert.Equal(t, "/message/sendText/{instance}", got[1].Path)

	scope := domain.EndpointScope("https://gw.example.com", "sales")
	assert.True(t, mr.Exists(EndpointKey(scope, "POST /broken")))
	members, err := mr.SMembers(AllScopesKey())
	require.NoError(t, err)
	assert.Equal(t, []string{scope}, members)

	none, err := s.Working(ctx, "https://gw.example.com", "support", 3)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_MarkSuccess(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	e := ep("/x/{instance}", 1, true)
	require.NoError(t, s.Upsert(ctx, e))

	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkSuccess(ctx, e.ServerURL, e.Instance, e.ID(), at))

	got, err := s.Working(ctx, e.ServerURL, e.Instance, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].LastSuccessAt.Equal(at))

	assert.Error(t, s.MarkSuccess(ctx, e.ServerURL, e.Instance, "POST /nope", at))
}

func TestStore_AllAndDelete(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	a := ep("/a", 1, true)
	b := ep("/b", 2, true)
	c := ep("/c", 1, true)
	c.Instance = "support"
	for _, e := range []*domain.DiscoveredEndpoint{a, b, c} {
		require.NoError(t, s.Upsert(ctx, e))
	}

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, s.Delete(ctx, c))
	members, err := mr.SMembers(AllScopesKey())
	require.NoError(t, err)
	assert.Equal(t, []string{a.Scope()}, members)

	require.NoError(t, s.Delete(ctx, a))
	all, err = s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "/b", all[0].Path)
}

func TestSplitEndpointKey(t *testing.T) {
	scope := domain.EndpointScope("https://gw.example.com", "sales")
	gotScope, gotID, err := SplitEndpointKey(EndpointKey(scope, "POST /a"))
	require.NoError(t, err)
	assert.Equal(t, scope, gotScope)
	assert.Equal(t, "POST /a", gotID)

	_, _, err = SplitEndpointKey("other:key")
	assert.Error(t, err)
}
