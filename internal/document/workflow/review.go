package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gogotex/docflow/internal/document"
	"github.com/gogotex/docflow/internal/document/repository"
	"github.com/gogotex/docflow/internal/document/review"
	"github.com/gogotex/docflow/internal/events"
)

// ReviewInput is an author's review request.
type ReviewInput struct {
	ReviewerID string
	Message    string
	DueAt      *time.Time
}

// Decision is a reviewer's input on approve, request-changes, revoke and
// decline. A non-empty Message is kept as a comment on the document.
type Decision struct {
	Message string
	// ExpectedVersion, when set, rejects the decision if the author changed
	// the document since the reviewer loaded it.
	ExpectedVersion int
}

// RequestReview assigns a reviewer and moves the document to in_review. An
// existing live request for the same reviewer is reused.
func (e *Engine) RequestReview(ctx context.Context, documentID string, in ReviewInput) (Result, error) {
	o, err := e.inTx(ctx, EventRequestReview, func(ctx context.Context, tx repository.Repository, o *outcome) error {
		d, t, err := e.load(ctx, tx, EventRequestReview, o.actor, documentID)
		if err != nil {
			return err
		}
		reviewer := strings.TrimSpace(in.ReviewerID)
		if reviewer == o.actor {
			return fmt.Errorf("%w: authors cannot review their own document", document.ErrValidation)
		}
		rr, _, err := e.ledger.With(tx).Request(ctx, d.ID, reviewer, o.actor, in.Message, in.DueAt)
		if err != nil {
			return err
		}
		if err := grantAtLeast(ctx, tx, d.ID, reviewer, document.RoleCommenter); err != nil {
			return err
		}
		if _, err := e.setStatus(ctx, tx, o, d, t.to); err != nil {
			return err
		}
		e.reviewsChanged(o, o.Document, rr)
		o.Review = rr
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return o.Result, nil
}

// OpenReview marks the reviewer's first look: requested becomes in_review.
// Opening an already open review changes nothing.
func (e *Engine) OpenReview(ctx context.Context, documentID string) (Result, error) {
	return e.decide(ctx, EventOpenReview, documentID, Decision{}, func(ctx context.Context, tx repository.Repository, o *outcome, d *document.Document, rr *document.ReviewRequest) error {
		switch rr.Status {
		case document.ReviewInReview:
			o.Document, o.Review = d, rr
			return nil
		case document.ReviewRequested:
		default:
			return fmt.Errorf("%w: the review is already %s", document.ErrInvalidTransition, humanReview(rr.Status))
		}
		if err := e.ledger.With(tx).Move(ctx, rr, document.ReviewInReview, d.Version); err != nil {
			return err
		}
		e.reviewsChanged(o, d, rr)
		o.Document, o.Review = d, rr
		return nil
	})
}

// Approve signs the document off. The reviewer's request must be pending.
func (e *Engine) Approve(ctx context.Context, documentID string, in Decision) (Result, error) {
	return e.decide(ctx, EventApprove, documentID, in, e.moveBoth(EventApprove, document.ReviewApproved, document.PendingReviewStatuses...))
}

// RequestChanges sends the document back to the author.
func (e *Engine) RequestChanges(ctx context.Context, documentID string, in Decision) (Result, error) {
	return e.decide(ctx, EventRequestChanges, documentID, in, e.moveBoth(EventRequestChanges, document.ReviewChangesRequested, document.ActiveReviewStatuses...))
}

// Revoke withdraws the reviewer's approval and reopens the review.
func (e *Engine) Revoke(ctx context.Context, documentID string, in Decision) (Result, error) {
	return e.decide(ctx, EventRevoke, documentID, in, e.moveBoth(EventRevoke, document.ReviewInReview, document.ReviewApproved))
}

// Decline removes the reviewer from the document. The document returns to
// draft when no other active request remains.
func (e *Engine) Decline(ctx context.Context, documentID string, in Decision) (Result, error) {
	return e.decide(ctx, EventDecline, documentID, in, func(ctx context.Context, tx repository.Repository, o *outcome, d *document.Document, rr *document.ReviewRequest) error {
		if !rr.Status.In(document.PendingReviewStatuses...) {
			return fmt.Errorf("%w: the review is already %s", document.ErrInvalidTransition, humanReview(rr.Status))
		}
		l := e.ledger.With(tx)
		if err := l.Move(ctx, rr, document.ReviewDeclined, d.Version); err != nil {
			return err
		}
		rest, err := l.ActiveRows(ctx, d.ID)
		if err != nil {
			return err
		}
		to := d.Status
		if len(rest) == 0 {
			to = document.StatusDraft
		}
		next, err := e.setStatus(ctx, tx, o, d, to)
		if err != nil {
			return err
		}
		e.reviewsChanged(o, next, rr)
		o.Review = rr
		return nil
	})
}

type decideFunc func(ctx context.Context, tx repository.Repository, o *outcome, d *document.Document, rr *document.ReviewRequest) error

// moveBoth moves the reviewer's row from one of from to rs and the document
// to the transition target of ev, in the same transaction.
func (e *Engine) moveBoth(ev Event, rs document.ReviewStatus, from ...document.ReviewStatus) decideFunc {
	return func(ctx context.Context, tx repository.Repository, o *outcome, d *document.Document, rr *document.ReviewRequest) error {
		if !rr.Status.In(from...) {
			return fmt.Errorf("%w: cannot %s a review that is %s", document.ErrInvalidTransition, ev.verb(), humanReview(rr.Status))
		}
		if err := e.ledger.With(tx).Move(ctx, rr, rs, d.Version); err != nil {
			return err
		}
		next, err := e.setStatus(ctx, tx, o, d, transitions[ev].to)
		if err != nil {
			return err
		}
		e.reviewsChanged(o, next, rr)
		o.Review = rr
		return nil
	}
}

// decide loads the document and the acting reviewer's request, then runs fn
// in the same transaction.
func (e *Engine) decide(ctx context.Context, ev Event, documentID string, in Decision, fn decideFunc) (Result, error) {
	o, err := e.inTx(ctx, ev, func(ctx context.Context, tx repository.Repository, o *outcome) error {
		d, _, err := e.load(ctx, tx, ev, o.actor, documentID)
		if err != nil {
			return err
		}
		if in.ExpectedVersion > 0 && in.ExpectedVersion != d.Version {
			return staleRead("the author changed the document since you opened version %d", in.ExpectedVersion)
		}
		rr, err := e.ledger.With(tx).ForReviewer(ctx, d.ID, o.actor, review.LiveStatuses...)
		if err != nil {
			return err
		}
		if rr == nil {
			return fmt.Errorf("%w: only an assigned reviewer can %s", document.ErrPermissionDenied, ev.verb())
		}
		if err := fn(ctx, tx, o, d, rr); err != nil {
			return err
		}
		if msg := strings.TrimSpace(in.Message); msg != "" {
			if _, err := e.addComment(ctx, tx, o, d, msg, ""); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return o.Result, nil
}

// Resubmit returns a changes_requested document to its reviewers. The
// content must have changed since the reviewer's decision.
func (e *Engine) Resubmit(ctx context.Context, documentID string) (Result, error) {
	o, err := e.inTx(ctx, EventResubmit, func(ctx context.Context, tx repository.Repository, o *outcome) error {
		d, t, err := e.load(ctx, tx, EventResubmit, o.actor, documentID)
		if err != nil {
			return err
		}
		if err := e.checkResubmit(ctx, tx, d); err != nil {
			return err
		}
		rows, err := e.ledger.With(tx).Reactivate(ctx, d.ID)
		if err != nil {
			return err
		}
		next, err := e.setStatus(ctx, tx, o, d, t.to)
		if err != nil {
			return err
		}
		e.reviewsChanged(o, next, rows...)
		if len(rows) > 0 {
			o.Review = rows[0]
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return o.Result, nil
}

func humanReview(s document.ReviewStatus) string {
	return strings.ReplaceAll(string(s), "_", " ")
}

func (e *Engine) addComment(ctx context.Context, tx repository.Repository, o *outcome, d *document.Document, body, parentID string) (*document.Comment, error) {
	c := &document.Comment{
		ID:         uuid.NewString(),
		DocumentID: d.ID,
		AuthorID:   o.actor,
		Body:       body,
		ParentID:   parentID,
		CreatedAt:  e.now(),
	}
	if err := tx.AddComment(ctx, c); err != nil {
		return nil, err
	}
	o.events = append(o.events, e.event(o, events.CommentsChanged, d))
	return c, nil
}

var roleRank = map[string]int{
	document.RoleViewer:    1,
	document.RoleCommenter: 2,
	document.RoleEditor:    3,
	document.RoleOwner:     4,
}

// grantAtLeast gives user role on documentID. A role the user already holds
// is kept when it is at least as strong.
func grantAtLeast(ctx context.Context, tx repository.Repository, documentID, user, role string) error {
	perms, err := tx.ListPermissions(ctx, documentID)
	if err != nil {
		return err
	}
	for _, p := range perms {
		if p.UserID == user && roleRank[p.Role] >= roleRank[role] {
			return nil
		}
	}
	return tx.GrantPermission(ctx, &document.Permission{DocumentID: documentID, UserID: user, Role: role})
}
