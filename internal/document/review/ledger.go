// Package review maintains the review request ledger: at most one active
// request per (document, reviewer), updated in place rather than duplicated.
//
// The ledger never touches the document row. Callers run ledger operations
// and the matching document status update inside one repository transaction.
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gogotex/docflow/internal/document"
	"github.com/gogotex/docflow/internal/document/repository"
)

// LiveStatuses are the statuses of a row that a new request for the same
// (document, reviewer) pair updates in place.
var LiveStatuses = []document.ReviewStatus{
	document.ReviewRequested,
	document.ReviewInReview,
	document.ReviewChangesRequested,
	document.ReviewApproved,
}

type Ledger struct {
	repo repository.Repository
	now  func() time.Time
}

func NewLedger(repo repository.Repository) *Ledger {
	return &Ledger{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// With returns a ledger bound to repo, typically a transaction view.
func (l *Ledger) With(repo repository.Repository) *Ledger {
	return &Ledger{repo: repo, now: l.now}
}

// SetClock replaces the time source.
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

// Active returns the most recently updated active request of documentID, or
// nil when there is none.
func (l *Ledger) Active(ctx context.Context, documentID string) (*document.ReviewRequest, error) {
	rows, err := l.repo.ListReviewRequests(ctx, repository.ReviewFilter{
		DocumentID: documentID,
		Statuses:   document.ActiveReviewStatuses,
	})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// ActiveRows returns every active request of documentID, newest first.
func (l *Ledger) ActiveRows(ctx context.Context, documentID string) ([]*document.ReviewRequest, error) {
	return l.repo.ListReviewRequests(ctx, repository.ReviewFilter{
		DocumentID: documentID,
		Statuses:   document.ActiveReviewStatuses,
	})
}

// ForReviewer returns the most recent row of the pair whose status is in
// statuses (any status when empty), or nil.
func (l *Ledger) ForReviewer(ctx context.Context, documentID, reviewerID string, statuses ...document.ReviewStatus) (*document.ReviewRequest, error) {
	rows, err := l.repo.ListReviewRequests(ctx, repository.ReviewFilter{
		DocumentID: documentID,
		ReviewerID: reviewerID,
		Statuses:   statuses,
	})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// Assigned reports whether reviewerID holds a live assignment on documentID.
func (l *Ledger) Assigned(ctx context.Context, documentID, reviewerID string) (bool, error) {
	rr, err := l.ForReviewer(ctx, documentID, reviewerID, LiveStatuses...)
	return rr != nil, err
}

// Request assigns reviewerID to documentID. An existing live row for the pair
// is reset to requested and stamped as re-requested; otherwise a new row is
// inserted. created reports which happened.
func (l *Ledger) Request(ctx context.Context, documentID, reviewerID, requesterID, message string, dueAt *time.Time) (rr *document.ReviewRequest, created bool, err error) {
	if reviewerID == "" {
		return nil, false, fmt.Errorf("%w: a reviewer is required", document.ErrValidation)
	}
	existing, err := l.ForReviewer(ctx, documentID, reviewerID, LiveStatuses...)
	if err != nil {
		return nil, false, err
	}
	now := l.now()
	if existing != nil {
		existing.Status = document.ReviewRequested
		existing.RequesterID = requesterID
		existing.Message = message
		existing.DueAt = dueAt
		existing.ReRequestedAt = &now
		existing.UpdatedAt = now
		if err := l.repo.UpsertReviewRequest(ctx, existing); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	rr = &document.ReviewRequest{
		ID:          uuid.NewString(),
		DocumentID:  documentID,
		ReviewerID:  reviewerID,
		RequesterID: requesterID,
		Status:      document.ReviewRequested,
		Message:     message,
		DueAt:       dueAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := l.repo.UpsertReviewRequest(ctx, rr); err != nil {
		return nil, false, err
	}
	return rr, true, nil
}

// Move sets rr to status and persists it. reviewedVersion is recorded for
// approve and changes-requested decisions.
func (l *Ledger) Move(ctx context.Context, rr *document.ReviewRequest, status document.ReviewStatus, reviewedVersion int) error {
	if err := document.ValidateReviewStatus(status); err != nil {
		return err
	}
	rr.Status = status
	rr.UpdatedAt = l.now()
	if status == document.ReviewApproved || status == document.ReviewChangesRequested {
		rr.ReviewedVersion = reviewedVersion
	}
	return l.repo.UpsertReviewRequest(ctx, rr)
}

// Reactivate moves every changes_requested row of documentID back to
// in_review and stamps the resubmission.
func (l *Ledger) Reactivate(ctx context.Context, documentID string) ([]*document.ReviewRequest, error) {
	rows, err := l.repo.ListReviewRequests(ctx, repository.ReviewFilter{
		DocumentID: documentID,
		Statuses:   []document.ReviewStatus{document.ReviewChangesRequested},
	})
	if err != nil {
		return nil, err
	}
	now := l.now()
	for _, rr := range rows {
		rr.Status = document.ReviewInReview
		rr.ResubmittedAt = &now
		rr.UpdatedAt = now
		if err := l.repo.UpsertReviewRequest(ctx, rr); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// Cancel moves every row of documentID whose status is in statuses to
// cancelled and returns the changed rows.
func (l *Ledger) Cancel(ctx context.Context, documentID string, statuses ...document.ReviewStatus) ([]*document.ReviewRequest, error) {
	rows, err := l.repo.ListReviewRequests(ctx, repository.ReviewFilter{DocumentID: documentID, Statuses: statuses})
	if err != nil {
		return nil, err
	}
	now := l.now()
	for _, rr := range rows {
		rr.Status = document.ReviewCancelled
		rr.UpdatedAt = now
		if err := l.repo.UpsertReviewRequest(ctx, rr); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// ListForReviewer returns the rows assigned to reviewerID with a status in statuses.
func (l *Ledger) ListForReviewer(ctx context.Context, reviewerID string, statuses ...document.ReviewStatus) ([]*document.ReviewRequest, error) {
	return l.repo.ListReviewRequests(ctx, repository.ReviewFilter{ReviewerID: reviewerID, Statuses: statuses})
}
