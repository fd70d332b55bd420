package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gogotex/docflow/internal/document"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func newDoc(id, author string, status document.Status, updated time.Time) *document.Document {
	return &document.Document{ID: id, Title: id, Body: "body " + id, Status: status, Version: 1, AuthorID: author, ProjectID: "p1", UpdatedAt: updated}
}

func TestMemoryRepoDocumentCRUD(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	d := newDoc("d1", "alice", document.StatusDraft, time.Now())
	require.NoError(t, r.CreateDocument(ctx, d))
	require.ErrorIs(t, r.CreateDocument(ctx, d), document.ErrValidation)

	got, err := r.GetDocument(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, "body d1", got.Body)

	// returned values are copies
	got.Body = "mutated"
	again, err := r.GetDocument(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, "body d1", again.Body)

	got.Version = 2
	require.NoError(t, r.UpdateDocument(ctx, got, 1, document.StatusDraft))
	// stale precondition
	require.ErrorIs(t, r.UpdateDocument(ctx, got, 1, document.StatusDraft), document.ErrConcurrentModification)

	_, err = r.GetDocument(ctx, "missing")
	require.ErrorIs(t, err, document.ErrNotFound)
}

func TestMemoryRepoListDocumentsFilters(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	now := time.Now()
	require.NoError(t, r.CreateDocument(ctx, newDoc("a", "alice", document.StatusDraft, now.Add(-2*time.Minute))))
	require.NoError(t, r.CreateDocument(ctx, newDoc("b", "alice", document.StatusArchived, now.Add(-time.Minute))))
	require.NoError(t, r.CreateDocument(ctx, newDoc("c", "bob", document.StatusInReview, now)))
	tpl := newDoc("t", "alice", document.StatusPublished, now)
	tpl.IsTemplate = true
	tpl.Title = "Quarterly Report"
	require.NoError(t, r.CreateDocument(ctx, tpl))

	no := false
	mine, err := r.ListDocuments(ctx, DocumentFilter{AuthorID: "alice", IsTemplate: &no, ExcludeStatuses: []document.Status{document.StatusArchived}})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, "a", mine[0].ID)

	others, err := r.ListDocuments(ctx, DocumentFilter{ExcludeAuthorID: "alice"})
	require.NoError(t, err)
	require.Len(t, others, 1)
	require.Equal(t, "c", others[0].ID)

	found, err := r.ListDocuments(ctx, DocumentFilter{Search: "quarterly"})
	require.NoError(t, err)
	require.Len(t, found, 1)

	all, err := r.ListDocuments(ctx, DocumentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.False(t, all[0].UpdatedAt.Before(all[1].UpdatedAt), "newest first")
}

func TestMemoryRepoRevisionsAreUniquePerVersion(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	require.NoError(t, r.InsertRevision(ctx, &document.Revision{ID: "r1", DocumentID: "d1", VersionNumber: 1}))
	require.NoError(t, r.InsertRevision(ctx, &document.Revision{ID: "r2", DocumentID: "d1", VersionNumber: 2}))
	require.ErrorIs(t, r.InsertRevision(ctx, &document.Revision{ID: "r3", DocumentID: "d1", VersionNumber: 2}), ErrDuplicateRevision)

	revs, err := r.ListRevisions(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, revs, 2)
	require.Equal(t, 2, revs[0].VersionNumber)
	require.Equal(t, 1, revs[1].VersionNumber)
}

func TestMemoryRepoRunInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	require.NoError(t, r.CreateDocument(ctx, newDoc("d1", "alice", document.StatusInReview, time.Now())))

	boom := errors.New("boom")
	err := r.RunInTx(ctx, func(ctx context.Context, tx Repository) error {
		d, err := tx.GetDocument(ctx, "d1")
		require.NoError(t, err)
		d.Status = document.StatusApproved
		require.NoError(t, tx.UpdateDocument(ctx, d, 1, document.StatusInReview))
		require.NoError(t, tx.UpsertReviewRequest(ctx, &document.ReviewRequest{ID: "rr1", DocumentID: "d1", Status: document.ReviewApproved}))
		require.NoError(t, tx.GrantPermission(ctx, &document.Permission{DocumentID: "d1", UserID: "bob", Role: document.RoleViewer}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	d, err := r.GetDocument(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, document.StatusInReview, d.Status)
	rows, err := r.ListReviewRequests(ctx, ReviewFilter{DocumentID: "d1"})
	require.NoError(t, err)
	require.Empty(t, rows)
	perms, err := r.ListPermissions(ctx, "d1")
	require.NoError(t, err)
	require.Empty(t, perms)

	// committed path
	require.NoError(t, r.RunInTx(ctx, func(ctx context.Context, tx Repository) error {
		d, err := tx.GetDocument(ctx, "d1")
		if err != nil {
			return err
		}
		d.Status = document.StatusApproved
		return tx.UpdateDocument(ctx, d, 1, document.StatusInReview)
	}))
	d, err = r.GetDocument(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, document.StatusApproved, d.Status)
}

func TestMemoryRepoDeleteCascade(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	require.NoError(t, r.CreateDocument(ctx, newDoc("d1", "alice", document.StatusDraft, time.Now())))
	require.NoError(t, r.CreateDocument(ctx, newDoc("d2", "alice", document.StatusDraft, time.Now())))
	require.NoError(t, r.AddComment(ctx, &document.Comment{ID: "c1", DocumentID: "d1"}))
	require.NoError(t, r.AddComment(ctx, &document.Comment{ID: "c2", DocumentID: "d2"}))
	require.NoError(t, r.UpsertReviewRequest(ctx, &document.ReviewRequest{ID: "rr1", DocumentID: "d1", Status: document.ReviewRequested}))
	require.NoError(t, r.GrantPermission(ctx, &document.Permission{DocumentID: "d1", UserID: "alice", Role: document.RoleOwner}))
	require.NoError(t, r.InsertRevision(ctx, &document.Revision{ID: "r1", DocumentID: "d1", VersionNumber: 1}))

	require.NoError(t, r.DeleteDocumentCascade(ctx, "d1"))
	require.ErrorIs(t, r.DeleteDocumentCascade(ctx, "d1"), document.ErrNotFound)

	_, err := r.GetComment(ctx, "c1")
	require.ErrorIs(t, err, document.ErrNotFound)
	_, err = r.GetComment(ctx, "c2")
	require.NoError(t, err)
	rows, _ := r.ListReviewRequests(ctx, ReviewFilter{DocumentID: "d1"})
	require.Empty(t, rows)
	perms, _ := r.ListPermissions(ctx, "d1")
	require.Empty(t, perms)
	revs, _ := r.ListRevisions(ctx, "d1")
	require.Empty(t, revs)
}

func TestDocumentQuery(t *testing.T) {
	yes := true
	q := documentQuery(DocumentFilter{
		AuthorID:        "alice",
		ExcludeStatuses: []document.Status{document.StatusArchived},
		IsTemplate:      &yes,
		Search:          "a.b",
	})
	require.Equal(t, "alice", q["authorId"].(bson.M)["$eq"])
	require.Equal(t, true, q["isTemplate"])
	require.Contains(t, q, "$or")
	require.NotContains(t, q, "projectId")
}
