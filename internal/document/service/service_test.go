package service

import (
	"context"
	"testing"
	"time"

	"github.com/gogotex/docflow/internal/cache"
	"github.com/gogotex/docflow/internal/document"
	"github.com/gogotex/docflow/internal/document/repository"
	"github.com/gogotex/docflow/internal/document/workflow"
	"github.com/gogotex/docflow/internal/events"
	"github.com/gogotex/docflow/internal/identity"
	"github.com/stretchr/testify/require"
)

type env struct {
	repo     *repository.MemoryRepo
	eng      *workflow.Engine
	svc      *Service
	profiles *identity.Profiles
}

func newEnv() *env {
	repo := repository.NewMemoryRepo()
	c := cache.NewMemoryCache(time.Hour)
	bus := events.NewBus()
	bus.Subscribe(cache.NewInvalidator(c).Handle)
	profiles := identity.NewProfiles(identity.NewMemoryProfiles())
	return &env{
		repo:     repo,
		eng:      workflow.New(repo, bus, workflow.SnapshotWarn),
		svc:      New(repo, c, profiles),
		profiles: profiles,
	}
}

func as(id string) context.Context {
	return identity.WithActor(context.Background(), identity.Actor{ID: id})
}

func str(s string) *string { return &s }

func TestGetDocumentIsServedFromCacheUntilAnEvent(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	d, err := e.eng.CreateDocument(as("alice"), workflow.NewDocument{Title: "Plan", Body: "one"})
	require.NoError(t, err)

	got, err := e.svc.GetDocument(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, "one", got.Body)

	// a write that bypasses the engine is not seen while the entry lives
	raw := got.Clone()
	raw.Body = "sneaky"
	require.NoError(t, e.repo.UpdateDocument(ctx, raw, raw.Version, raw.Status))
	got, err = e.svc.GetDocument(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, "one", got.Body)

	_, err = e.eng.UpdateContent(as("alice"), d.ID, workflow.ContentPatch{Body: str("two")})
	require.NoError(t, err)
	got, err = e.svc.GetDocument(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, "two", got.Body)
	require.Equal(t, 2, got.Version)

	_, err = e.svc.GetDocument(ctx, "missing")
	require.ErrorIs(t, err, document.ErrNotFound)
}

func TestListsFollowTheWorkflow(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	d, err := e.eng.CreateDocument(as("alice"), workflow.NewDocument{ProjectID: "p1", Title: "Plan"})
	require.NoError(t, err)
	_, err = e.eng.CreateTemplate(as("alice"), workflow.NewDocument{ProjectID: "p1", Title: "RFC"})
	require.NoError(t, err)

	mine, err := e.svc.ListMyDocuments(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assigned, err := e.svc.ListAssignedToMe(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	queue, err := e.svc.ListMyReviews(ctx, "rita")
	require.NoError(t, err)
	require.Empty(t, queue)
	tpls, err := e.svc.ListTemplates(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, tpls, 1)

	_, err = e.eng.RequestReview(as("alice"), d.ID, workflow.ReviewInput{ReviewerID: "rita"})
	require.NoError(t, err)
	queue, err = e.svc.ListMyReviews(ctx, "rita")
	require.NoError(t, err)
	require.Len(t, queue, 1)
	require.Equal(t, d.ID, queue[0].Document.ID)
	require.Equal(t, document.StatusInReview, queue[0].Document.Status)

	_, err = e.eng.Archive(as("alice"), d.ID)
	require.NoError(t, err)
	mine, err = e.svc.ListMyDocuments(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, mine)
	assigned, err = e.svc.ListAssignedToMe(ctx, "bob")
	require.NoError(t, err)
	require.Empty(t, assigned)
	archived, err := e.svc.ListArchived(ctx)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	queue, err = e.svc.ListMyReviews(ctx, "rita")
	require.NoError(t, err)
	require.Empty(t, queue)
}

func TestActiveReviewCarriesReviewerProfile(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	_, err := e.profiles.Remember(ctx, identity.Actor{ID: "rita", Name: "Rita Reviewer"})
	require.NoError(t, err)
	d, err := e.eng.CreateDocument(as("alice"), workflow.NewDocument{Title: "Plan"})
	require.NoError(t, err)

	none, err := e.svc.GetActiveReview(ctx, d.ID)
	require.NoError(t, err)
	require.Nil(t, none)

	_, err = e.eng.RequestReview(as("alice"), d.ID, workflow.ReviewInput{ReviewerID: "rita"})
	require.NoError(t, err)
	active, err := e.svc.GetActiveReview(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, "rita", active.Request.ReviewerID)
	require.Equal(t, "Rita Reviewer", active.Reviewer.Name)

	_, err = e.eng.Approve(as("rita"), d.ID, workflow.Decision{})
	require.NoError(t, err)
	active, err = e.svc.GetActiveReview(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, document.ReviewApproved, active.Request.Status)
}

func TestRevisionsAndComments(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	d, err := e.eng.CreateDocument(as("alice"), workflow.NewDocument{Title: "Plan", Body: "one"})
	require.NoError(t, err)

	revs, err := e.svc.ListRevisions(ctx, d.ID)
	require.NoError(t, err)
	require.Empty(t, revs)
	_, err = e.eng.UpdateContent(as("alice"), d.ID, workflow.ContentPatch{Body: str("two")})
	require.NoError(t, err)
	revs, err = e.svc.ListRevisions(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, revs, 1)
	require.Equal(t, "one", revs[0].Body)

	threads, err := e.svc.ListComments(ctx, d.ID)
	require.NoError(t, err)
	require.Empty(t, threads.Threads)
	_, err = e.eng.AddComment(as("bob"), d.ID, "nice", "")
	require.NoError(t, err)
	threads, err = e.svc.ListComments(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, threads.Threads, 1)
	require.Equal(t, 1, threads.ActiveCount)

	_, err = e.svc.ListRevisions(ctx, "missing")
	require.ErrorIs(t, err, document.ErrNotFound)
}

func TestReviewerQueueSeesAuthorEdits(t *testing.T) {
	e := newEnv()
	d, err := e.eng.CreateDocument(as("alice"), workflow.NewDocument{Title: "Plan", Body: "one"})
	require.NoError(t, err)
	_, err = e.eng.RequestReview(as("alice"), d.ID, workflow.ReviewInput{ReviewerID: "rob"})
	require.NoError(t, err)

	queue, err := e.svc.ListMyReviews(as("rob"), "rob")
	require.NoError(t, err)
	require.Len(t, queue, 1)
	require.Equal(t, "one", queue[0].Document.Body)

	_, err = e.eng.UpdateContent(as("alice"), d.ID, workflow.ContentPatch{Body: str("two")})
	require.NoError(t, err)
	queue, err = e.svc.ListMyReviews(as("rob"), "rob")
	require.NoError(t, err)
	require.Len(t, queue, 1)
	require.Equal(t, "two", queue[0].Document.Body)
	require.Equal(t, 2, queue[0].Document.Version)
}

// conflictOnce fails the first document write with a concurrent
// modification, after the revision snapshot was already stored.
type conflictOnce struct {
	repository.Repository
	failed *bool
}

func (c conflictOnce) UpdateDocument(ctx context.Context, d *document.Document, v int, s document.Status) error {
	if !*c.failed {
		*c.failed = true
		return document.ErrConcurrentModification
	}
	return c.Repository.UpdateDocument(ctx, d, v, s)
}

func (c conflictOnce) RunInTx(ctx context.Context, fn func(ctx context.Context, repo repository.Repository) error) error {
	return c.Repository.RunInTx(ctx, func(ctx context.Context, tx repository.Repository) error {
		return fn(ctx, conflictOnce{Repository: tx, failed: c.failed})
	})
}

func TestRevisionHistoryAfterRetriedUpdate(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	d, err := e.eng.CreateDocument(as("alice"), workflow.NewDocument{Title: "Plan", Body: "one"})
	require.NoError(t, err)

	bus := events.NewBus()
	bus.Subscribe(cache.NewInvalidator(e.svc.cache).Handle)
	failed := false
	eng := workflow.New(conflictOnce{Repository: e.repo, failed: &failed}, bus, workflow.SnapshotWarn)

	revs, err := e.svc.ListRevisions(ctx, d.ID)
	require.NoError(t, err)
	require.Empty(t, revs)

	u, err := eng.UpdateContent(as("alice"), d.ID, workflow.ContentPatch{Body: str("two")})
	require.NoError(t, err)
	require.True(t, failed)
	require.Equal(t, 2, u.Version)

	revs, err = e.svc.ListRevisions(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, revs, 1)
	require.Equal(t, "one", revs[0].Body)
}
