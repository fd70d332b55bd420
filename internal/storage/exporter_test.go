package storage

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/adrg/frontmatter"
	"github.com/gogotex/docflow/internal/document"
	"github.com/gogotex/docflow/internal/document/repository"
	"github.com/gogotex/docflow/internal/document/workflow"
	"github.com/gogotex/docflow/internal/events"
	"github.com/gogotex/docflow/internal/identity"
	"github.com/stretchr/testify/require"
)

type upload struct {
	key  string
	body []byte
	meta map[string]string
}

type fakeStore struct {
	mu      sync.Mutex
	fail    error
	uploads chan upload
}

func (f *fakeStore) Put(ctx context.Context, key string, data []byte, meta map[string]string) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail != nil {
		return fail
	}
	f.uploads <- upload{key: key, body: data, meta: meta}
	return nil
}

func TestRenderHasFrontmatter(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b, err := Render(&document.Document{ID: "d1", Title: "Plan", ProjectID: "p1", AuthorID: "alice", Version: 3, Body: "# Plan\n\nShip it.", PublishedAt: &at})
	require.NoError(t, err)

	var fm exportMeta
	rest, err := frontmatter.Parse(bytes.NewReader(b), &fm)
	require.NoError(t, err)
	require.Equal(t, "d1", fm.ID)
	require.Equal(t, "Plan", fm.Title)
	require.Equal(t, 3, fm.Version)
	require.True(t, at.Equal(fm.PublishedAt))
	require.Equal(t, "# Plan\n\nShip it.", string(bytes.TrimSpace(rest)))
}

func TestObjectKey(t *testing.T) {
	require.Equal(t, "published/d1/v4.md", ObjectKey("d1", 4))
}

func as(id string) context.Context {
	return identity.WithActor(context.Background(), identity.Actor{ID: id})
}

func TestExporterUploadsPublishedDocuments(t *testing.T) {
	store := &fakeStore{uploads: make(chan upload, 4)}
	x := NewPublishedExporter(store)
	ctx, cancel := context.WithCancel(context.Background())
	x.Start(ctx)
	defer func() {
		cancel()
		x.Wait()
	}()

	bus := events.NewBus()
	bus.Subscribe(x.Handle)
	eng := workflow.New(repository.NewMemoryRepo(), bus, workflow.SnapshotWarn)

	// templates are born published and are not exported
	_, err := eng.CreateTemplate(as("alice"), workflow.NewDocument{Title: "RFC"})
	require.NoError(t, err)

	d, err := eng.CreateDocument(as("alice"), workflow.NewDocument{Title: "Plan", Body: "final words"})
	require.NoError(t, err)
	_, err = eng.RequestReview(as("alice"), d.ID, workflow.ReviewInput{ReviewerID: "rita"})
	require.NoError(t, err)
	_, err = eng.Approve(as("rita"), d.ID, workflow.Decision{})
	require.NoError(t, err)
	_, err = eng.Publish(as("alice"), d.ID)
	require.NoError(t, err)

	select {
	case u := <-store.uploads:
		require.Equal(t, ObjectKey(d.ID, 1), u.key)
		require.Contains(t, string(u.body), "final words")
		require.Contains(t, string(u.body), "title: Plan")
		require.Equal(t, map[string]string{"document-id": d.ID, "version": "1"}, u.meta)
	case <-time.After(2 * time.Second):
		t.Fatal("published document was not exported")
	}
	select {
	case u := <-store.uploads:
		t.Fatalf("unexpected upload %s", u.key)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestExportReturnsStoreErrors(t *testing.T) {
	store := &fakeStore{uploads: make(chan upload, 1), fail: errors.New("bucket gone")}
	x := NewPublishedExporter(store)
	err := x.Export(context.Background(), &document.Document{ID: "d1", Title: "Plan", Version: 1})
	require.EqualError(t, err, "bucket gone")
}
