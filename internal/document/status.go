package document

import "fmt"

// Status is the document workflow state. The string values are persisted.
type Status string

const (
	StatusDraft            Status = "draft"
	StatusInReview         Status = "in_review"
	StatusChangesRequested Status = "changes_requested"
	StatusApproved         Status = "approved"
	StatusPublished        Status = "published"
	StatusArchived         Status = "archived"
)

var validStatuses = []Status{
	StatusDraft, StatusInReview, StatusChangesRequested,
	StatusApproved, StatusPublished, StatusArchived,
}

func ValidateStatus(s Status) error {
	for _, v := range validStatuses {
		if s == v {
			return nil
		}
	}
	return fmt.Errorf("%w: invalid status %q", ErrValidation, s)
}

// In reports whether s is one of set.
func (s Status) In(set ...Status) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

// ReviewStatus is the ledger row state. The string values are persisted.
type ReviewStatus string

const (
	ReviewRequested        ReviewStatus = "requested"
	ReviewInReview         ReviewStatus = "in_review"
	ReviewChangesRequested ReviewStatus = "changes_requested"
	ReviewApproved         ReviewStatus = "approved"
	ReviewDeclined         ReviewStatus = "declined"
	ReviewCancelled        ReviewStatus = "cancelled"
)

var validReviewStatuses = []ReviewStatus{
	ReviewRequested, ReviewInReview, ReviewChangesRequested,
	ReviewApproved, ReviewDeclined, ReviewCancelled,
}

func ValidateReviewStatus(s ReviewStatus) error {
	for _, v := range validReviewStatuses {
		if s == v {
			return nil
		}
	}
	return fmt.Errorf("%w: invalid review status %q", ErrValidation, s)
}

// ActiveReviewStatuses are the statuses that make a ledger row "active".
var ActiveReviewStatuses = []ReviewStatus{ReviewRequested, ReviewInReview, ReviewApproved}

// PendingReviewStatuses are the non-terminal statuses; at most one row per
// (document, reviewer) may hold one of them.
var PendingReviewStatuses = []ReviewStatus{ReviewRequested, ReviewInReview}

// In reports whether s is one of set.
func (s ReviewStatus) In(set ...ReviewStatus) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

// IsActive reports whether the row counts as an active review request.
func (s ReviewStatus) IsActive() bool { return s.In(ActiveReviewStatuses...) }
