package cache

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gogotex/docflow/internal/document"
	"github.com/gogotex/docflow/internal/events"
	"github.com/gogotex/docflow/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func exercise(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()

	var d document.Document
	ok, err := c.Get(ctx, DocumentKey("d1"), &d)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, DocumentKey("d1"), &document.Document{ID: "d1", Title: "Plan", Status: document.StatusDraft}))
	ok, err = c.Get(ctx, DocumentKey("d1"), &d)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Plan", d.Title)
	require.Equal(t, document.StatusDraft, d.Status)

	require.NoError(t, c.Set(ctx, AssignedKey("bob"), []string{"d1"}))
	require.NoError(t, c.Set(ctx, AssignedKey("carol"), []string{"d1"}))
	require.NoError(t, c.DeletePrefix(ctx, FamilyAssigned+":"))
	var ids []string
	ok, err = c.Get(ctx, AssignedKey("bob"), &ids)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Delete(ctx, DocumentKey("d1")))
	ok, err = c.Get(ctx, DocumentKey("d1"), &d)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryCache(t *testing.T) {
	exercise(t, NewMemoryCache(time.Minute))
}

func TestMemoryCacheExpires(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", 1))
	now = now.Add(2 * time.Minute)
	var v int
	ok, err := c.Get(ctx, "k", &v)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisCache(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})

	c := NewRedisCache(client, "test", time.Minute)
	exercise(t, c)

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, RevisionsKey("d1"), []int{1}))
	require.True(t, m.Exists("test:revisions:d1"))
	m.FastForward(2 * time.Minute)
	var v []int
	ok, err := c.Get(ctx, RevisionsKey("d1"), &v)
	require.NoError(t, err)
	require.False(t, ok)

	// unreadable values are dropped
	require.NoError(t, m.Set("test:doc:bad", "{not json"))
	var d document.Document
	ok, err = c.Get(ctx, DocumentKey("bad"), &d)
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, m.Exists("test:doc:bad"))
}

func TestKeysForEvents(t *testing.T) {
	keys, prefixes := Keys(events.Event{
		Type:        events.DocumentStatusChanged,
		DocumentID:  "d1",
		AuthorID:    "alice",
		ReviewerIDs: []string{"rita"},
	})
	require.ElementsMatch(t, []string{
		"doc:d1", "my-documents:alice", "archived-documents", "my-reviews:rita", "active-review:d1",
	}, keys)
	require.Equal(t, []string{"assigned-to-me:"}, prefixes)

	keys, prefixes = Keys(events.Event{Type: events.RevisionCreated, DocumentID: "d1"})
	require.ElementsMatch(t, []string{"doc:d1", "revisions:d1"}, keys)
	require.Empty(t, prefixes)

	keys, _ = Keys(events.Event{Type: events.ReviewRequestUpdated, DocumentID: "d1", Review: &document.ReviewRequest{ReviewerID: "sam"}})
	require.ElementsMatch(t, []string{"doc:d1", "active-review:d1", "my-reviews:sam"}, keys)

	keys, _ = Keys(events.Event{Type: events.DocumentCreated, DocumentID: "t1", AuthorID: "alice", IsTemplate: true, ProjectID: "p1"})
	require.Contains(t, keys, "templates:p1")
}

func TestInvalidatorDeletesAffectedKeys(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)
	require.NoError(t, c.Set(ctx, DocumentKey("d1"), 1))
	require.NoError(t, c.Set(ctx, RevisionsKey("d1"), 1))
	require.NoError(t, c.Set(ctx, RevisionsKey("d2"), 1))
	before := testutil.ToFloat64(metrics.CacheInvalidations.WithLabelValues(FamilyRevisions))

	bus := events.NewBus()
	bus.Subscribe(NewInvalidator(c).Handle)
	bus.Publish(events.Event{Type: events.RevisionCreated, DocumentID: "d1"})

	var v int
	ok, _ := c.Get(ctx, DocumentKey("d1"), &v)
	require.False(t, ok)
	ok, _ = c.Get(ctx, RevisionsKey("d1"), &v)
	require.False(t, ok)
	ok, _ = c.Get(ctx, RevisionsKey("d2"), &v)
	require.True(t, ok)
	require.Equal(t, before+1, testutil.ToFloat64(metrics.CacheInvalidations.WithLabelValues(FamilyRevisions)))
}
