package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/docflow/internal/cache"
	"github.com/gogotex/docflow/internal/document"
	"github.com/gogotex/docflow/internal/document/handler"
	"github.com/gogotex/docflow/internal/document/optimistic"
	"github.com/gogotex/docflow/internal/document/repository"
	"github.com/gogotex/docflow/internal/document/service"
	"github.com/gogotex/docflow/internal/document/workflow"
	"github.com/gogotex/docflow/internal/events"
	"github.com/gogotex/docflow/internal/identity"
	"github.com/gogotex/docflow/internal/tokens"
	"github.com/gogotex/docflow/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "client-test-secret-0123456789abcdef"

// newServer runs the real API behind HMAC bearer auth.
func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := repository.NewMemoryRepo()
	bus := events.NewBus()
	c := cache.NewMemoryCache(time.Minute)
	bus.Subscribe(cache.NewInvalidator(c).Handle)
	engine := workflow.New(repo, bus, workflow.SnapshotWarn)

	ver, err := tokens.NewHMACVerifier(secret)
	require.NoError(t, err)
	g := gin.New()
	g.Use(middleware.AuthMiddleware(ver))
	handler.New(engine, service.New(repo, c, nil), bus).Register(g)

	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)
	return srv
}

func login(t *testing.T, srv *httptest.Server, user string) *Client {
	t.Helper()
	tok, err := tokens.Issue(secret, identity.Actor{ID: user}, time.Hour)
	require.NoError(t, err)
	return New(srv.URL+"/", tok)
}

func TestClientReviewRoundTrip(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	alice, rita := login(t, srv, "alice"), login(t, srv, "rita")

	d, err := alice.CreateDocument(ctx, workflow.NewDocument{ProjectID: "p1", Title: "Plan", Body: "v1"})
	require.NoError(t, err)
	require.Equal(t, document.StatusDraft, d.Status)

	res, err := alice.RequestReview(ctx, d.ID, "rita", "please look")
	require.NoError(t, err)
	require.Equal(t, document.StatusInReview, res.Document.Status)
	require.Equal(t, "rita", res.Review.ReviewerID)

	res, err = rita.Decide(ctx, d.ID, "approve", workflow.Decision{ExpectedVersion: 1})
	require.NoError(t, err)
	require.Equal(t, document.StatusApproved, res.Document.Status)

	pub, err := alice.Lifecycle(ctx, d.ID, "publish")
	require.NoError(t, err)
	require.Equal(t, document.StatusPublished, pub.Status)

	body := "v2"
	upd, err := alice.UpdateDocument(ctx, d.ID, workflow.ContentPatch{Body: &body, Summary: "second pass"})
	require.NoError(t, err)
	require.Equal(t, 2, upd.Version)
	require.Equal(t, document.StatusDraft, upd.Status)

	revs, err := alice.ListRevisions(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, revs, 1)
	require.Equal(t, "v1", revs[0].Body)
	require.Equal(t, "second pass", revs[0].ChangeSummary)

	require.NoError(t, alice.DeleteDocument(ctx, d.ID))
	_, err = alice.GetDocument(ctx, d.ID)
	require.ErrorIs(t, err, document.ErrNotFound)
}

func TestClientErrorsUnwrapToDocumentErrors(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	alice, bob := login(t, srv, "alice"), login(t, srv, "bob")

	d, err := alice.CreateDocument(ctx, workflow.NewDocument{Title: "Plan"})
	require.NoError(t, err)

	body := "hijack"
	_, err = bob.UpdateDocument(ctx, d.ID, workflow.ContentPatch{Body: &body})
	require.ErrorIs(t, err, document.ErrPermissionDenied)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.Status)
	require.Equal(t, document.KindPermissionDenied, apiErr.Kind)

	_, err = alice.Lifecycle(ctx, d.ID, "publish")
	require.ErrorIs(t, err, document.ErrInvalidTransition)

	_, err = alice.UpdateDocument(ctx, d.ID, workflow.ContentPatch{Body: &body, ExpectedVersion: 7})
	require.ErrorIs(t, err, document.ErrConcurrentModification)

	anon := New(srv.URL, "garbage")
	_, err = anon.GetDocument(ctx, d.ID)
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
	require.Equal(t, "unauthorized", apiErr.Kind)
}

func TestClientSendsBearerAndPatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/documents/d%201", r.URL.EscapedPath())
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "new", body["body"])
		assert.Equal(t, true, body["resubmitForReview"])
		assert.EqualValues(t, 3, body["expectedVersion"])
		assert.NotContains(t, body, "title")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(document.Document{ID: "d 1", Version: 4, Status: document.StatusInReview})
	}))
	defer srv.Close()

	body := "new"
	d, err := New(srv.URL, "tok").UpdateDocument(context.Background(), "d 1", workflow.ContentPatch{Body: &body, ResubmitForReview: true, ExpectedVersion: 3})
	require.NoError(t, err)
	require.Equal(t, 4, d.Version)
}

func TestOptimisticEditsOverHTTP(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	alice := login(t, srv, "alice")
	d, err := alice.CreateDocument(ctx, workflow.NewDocument{Title: "Plan", Body: "v1"})
	require.NoError(t, err)

	coord := optimistic.New(alice, nil)
	_, err = coord.Get(ctx, d.ID)
	require.NoError(t, err)

	body := "v2"
	u, err := coord.ApplyOptimistic(ctx, d.ID, workflow.ContentPatch{Body: &body})
	require.NoError(t, err)
	require.Equal(t, "v2", u.Optimistic.Body)
	got, err := u.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, got.Version)

	// the server rejects a blank title; the local view goes back
	before := got
	blank := " "
	u, err = coord.ApplyOptimistic(ctx, d.ID, workflow.ContentPatch{Title: &blank, Body: &body})
	require.NoError(t, err)
	_, err = u.Wait(ctx)
	require.ErrorIs(t, err, document.ErrValidation)
	after, err := coord.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, before, after)
}
