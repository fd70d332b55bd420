package repository

import (
	"context"
	"errors"

	"github.com/gogotex/docflow/internal/document"
)

// ErrDuplicateRevision is returned when a revision for the same
// (document, version) pair already exists.
var ErrDuplicateRevision = errors.New("revision already exists")

// DocumentFilter narrows ListDocuments. Zero values mean "no constraint".
type DocumentFilter struct {
	AuthorID        string
	ExcludeAuthorID string
	ProjectID       string
	Statuses        []document.Status
	ExcludeStatuses []document.Status
	IsTemplate      *bool
	Search          string
}

// ReviewFilter narrows ListReviewRequests. Results are ordered by UpdatedAt, newest first.
type ReviewFilter struct {
	DocumentID string
	ReviewerID string
	Statuses   []document.ReviewStatus
}

// Repository is the persistence interface the workflow engine consumes.
// Implementations return copies; mutating a returned value never changes
// stored state.
type Repository interface {
	CreateDocument(ctx context.Context, d *document.Document) error
	GetDocument(ctx context.Context, id string) (*document.Document, error)
	ListDocuments(ctx context.Context, f DocumentFilter) ([]*document.Document, error)
	// UpdateDocument overwrites the stored row with d only if the stored row
	// still carries expectedVersion and expectedStatus. Otherwise it returns
	// document.ErrConcurrentModification.
	UpdateDocument(ctx context.Context, d *document.Document, expectedVersion int, expectedStatus document.Status) error
	DeleteDocumentCascade(ctx context.Context, id string) error

	InsertRevision(ctx context.Context, r *document.Revision) error
	ListRevisions(ctx context.Context, documentID string) ([]*document.Revision, error)

	ListReviewRequests(ctx context.Context, f ReviewFilter) ([]*document.ReviewRequest, error)
	UpsertReviewRequest(ctx context.Context, r *document.ReviewRequest) error

	AddComment(ctx context.Context, c *document.Comment) error
	GetComment(ctx context.Context, id string) (*document.Comment, error)
	ListComments(ctx context.Context, documentID string) ([]*document.Comment, error)
	UpdateComment(ctx context.Context, c *document.Comment) error

	GrantPermission(ctx context.Context, p *document.Permission) error
	ListPermissions(ctx context.Context, documentID string) ([]*document.Permission, error)

	// RunInTx runs fn atomically: either every write made through the
	// Repository passed to fn is committed, or none is.
	RunInTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}

func statusIn(s document.Status, set []document.Status) bool {
	return len(set) > 0 && s.In(set...)
}
