// Package revision keeps the append-only content history of documents.
package revision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gogotex/docflow/internal/document"
	"github.com/gogotex/docflow/internal/document/repository"
)

// Store writes and reads revision snapshots.
type Store struct {
	repo repository.Repository
	now  func() time.Time
}

func NewStore(repo repository.Repository) *Store {
	return &Store{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// DefaultSummary is used when the author gives no change summary.
func DefaultSummary(version int) string {
	return fmt.Sprintf("Version %d - Auto-saved before update", version)
}

// Snapshot records the pre-update content of documentID at version. When a
// revision for that version already exists, which happens when an update is
// retried after the snapshot was written, the stored row is returned.
func (s *Store) Snapshot(ctx context.Context, documentID string, version int, title, body, createdBy, summary string) (*document.Revision, error) {
	if documentID == "" || version < 1 {
		return nil, fmt.Errorf("%w: snapshot needs a document and a version", document.ErrValidation)
	}
	if strings.TrimSpace(summary) == "" {
		summary = DefaultSummary(version)
	}
	r := &document.Revision{
		ID:            uuid.NewString(),
		DocumentID:    documentID,
		VersionNumber: version,
		Title:         title,
		Body:          body,
		CreatedBy:     createdBy,
		CreatedAt:     s.now(),
		ChangeSummary: summary,
	}
	if err := s.repo.InsertRevision(ctx, r); err != nil {
		if errors.Is(err, repository.ErrDuplicateRevision) {
			return s.at(ctx, documentID, version)
		}
		return nil, err
	}
	return r, nil
}

func (s *Store) at(ctx context.Context, documentID string, version int) (*document.Revision, error) {
	revs, err := s.repo.ListRevisions(ctx, documentID)
	if err != nil {
		return nil, err
	}
	for _, r := range revs {
		if r.VersionNumber == version {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: revision %d of %s", document.ErrNotFound, version, documentID)
}

// List returns the revisions of documentID, highest version first.
func (s *Store) List(ctx context.Context, documentID string) ([]*document.Revision, error) {
	return s.repo.ListRevisions(ctx, documentID)
}
