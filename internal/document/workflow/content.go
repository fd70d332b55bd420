package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gogotex/docflow/internal/document"
	"github.com/gogotex/docflow/internal/document/repository"
	"github.com/gogotex/docflow/internal/events"
	"github.com/gogotex/docflow/internal/identity"
	"github.com/gogotex/docflow/pkg/metrics"
)

// NewDocument describes a document or template to create.
type NewDocument struct {
	ProjectID string
	Title     string
	Body      string
}

// ContentPatch is an author's content update. Nil fields are left alone.
type ContentPatch struct {
	Title *string
	Body  *string
	// ResubmitForReview sends a changes_requested document back to its
	// reviewers instead of leaving it with the author.
	ResubmitForReview bool
	// ExpectedVersion, when set, must match the stored version.
	ExpectedVersion int
	Summary         string
}

// Preview returns d as UpdateContent would leave it after p, without
// touching the store. It is what optimistic clients show while the update is
// in flight.
func Preview(d *document.Document, p ContentPatch, now time.Time) *document.Document {
	next := d.Clone()
	if p.Title != nil {
		if t := strings.TrimSpace(*p.Title); t != "" {
			next.Title = t
		}
	}
	if p.Body != nil {
		next.Body = *p.Body
	}
	changed := next.Title != d.Title || next.Body != d.Body
	plan := outcomeOfEdit(d, p.ResubmitForReview)
	if !changed && !plan.resubmit {
		return next
	}
	if changed {
		next.Version = d.Version + 1
	}
	next.Status = plan.to
	next.UpdatedAt = now
	return next
}

// CreateDocument creates a draft owned by the current actor.
func (e *Engine) CreateDocument(ctx context.Context, in NewDocument) (*document.Document, error) {
	return e.create(ctx, in, false, "")
}

// CreateTemplate creates a published template. Templates never enter review.
func (e *Engine) CreateTemplate(ctx context.Context, in NewDocument) (*document.Document, error) {
	return e.create(ctx, in, true, "")
}

// CreateFromTemplate starts a draft from templateID. An empty title or
// project falls back to the template's.
func (e *Engine) CreateFromTemplate(ctx context.Context, templateID string, in NewDocument) (*document.Document, error) {
	tpl, err := e.repo.GetDocument(ctx, templateID)
	if err != nil {
		return nil, e.reject(EventCreate, err)
	}
	if !tpl.IsTemplate {
		return nil, e.reject(EventCreate, fmt.Errorf("%w: %s is not a template", document.ErrValidation, templateID))
	}
	if tpl.Status == document.StatusArchived {
		return nil, e.reject(EventCreate, fmt.Errorf("%w: the template is archived", document.ErrDocumentLocked))
	}
	if strings.TrimSpace(in.Title) == "" {
		in.Title = tpl.Title
	}
	if in.ProjectID == "" {
		in.ProjectID = tpl.ProjectID
	}
	in.Body = tpl.Body
	return e.create(ctx, in, false, tpl.ID)
}

func (e *Engine) create(ctx context.Context, in NewDocument, template bool, templateID string) (*document.Document, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, e.reject(EventCreate, fmt.Errorf("%w: a title is required", document.ErrValidation))
	}
	o, err := e.inTx(ctx, EventCreate, func(ctx context.Context, tx repository.Repository, o *outcome) error {
		now := e.now()
		d := &document.Document{
			ID:         uuid.NewString(),
			Title:      title,
			Body:       in.Body,
			Status:     document.StatusDraft,
			Version:    1,
			IsTemplate: template,
			TemplateID: templateID,
			AuthorID:   o.actor,
			ProjectID:  in.ProjectID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if template {
			d.Status = document.StatusPublished
		}
		if err := tx.CreateDocument(ctx, d); err != nil {
			return err
		}
		if err := tx.GrantPermission(ctx, &document.Permission{DocumentID: d.ID, UserID: o.actor, Role: document.RoleOwner}); err != nil {
			return err
		}
		o.Document = d
		ev := e.event(o, events.DocumentCreated, d)
		ev.To = d.Status
		ev.Document = d.Clone()
		o.events = append(o.events, ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o.Document, nil
}

// UpdateContent applies an author's edit. When title or body change, the
// pre-update content is snapshotted under the current version before the
// document row is overwritten and the version is incremented. The resulting
// status follows the edit table: approved and published documents fall back
// to draft and lose their sign-offs; a changes_requested document may be
// resubmitted in the same step.
func (e *Engine) UpdateContent(ctx context.Context, documentID string, p ContentPatch) (*document.Document, error) {
	actor, err := identity.ActorID(ctx)
	if err != nil {
		return nil, e.reject(EventEdit, err)
	}
	o, err := e.retry(EventEdit, func() (*outcome, error) {
		return e.updateContent(ctx, actor, documentID, p)
	})
	if err != nil {
		return nil, err
	}
	return o.Document, nil
}

func (e *Engine) updateContent(ctx context.Context, actor, id string, p ContentPatch) (*outcome, error) {
	o := e.newOutcome(EventEdit, actor)
	cur, _, err := e.load(ctx, e.repo, EventEdit, actor, id)
	if err != nil {
		return nil, err
	}
	if p.ExpectedVersion > 0 && p.ExpectedVersion != cur.Version {
		return nil, staleRead("you are editing version %d but the document is at version %d", p.ExpectedVersion, cur.Version)
	}

	next := cur.Clone()
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return nil, fmt.Errorf("%w: a title is required", document.ErrValidation)
		}
		next.Title = t
	}
	if p.Body != nil {
		next.Body = *p.Body
	}
	changed := next.Title != cur.Title || next.Body != cur.Body
	plan := outcomeOfEdit(cur, p.ResubmitForReview)
	if !changed && !plan.resubmit {
		o.Document = cur
		return o, nil
	}

	if changed {
		rev, err := e.revisions.Snapshot(ctx, cur.ID, cur.Version, cur.Title, cur.Body, actor, p.Summary)
		if err != nil {
			metrics.SnapshotFailures.Inc()
			e.log.Warnw("revision snapshot failed, continuing with the update",
				"documentId", cur.ID, "version", cur.Version, "error", err)
			next.SnapshotPending = true
		} else {
			next.SnapshotPending = false
			if rev != nil {
				ev := e.event(o, events.RevisionCreated, cur)
				ev.Revision = rev
				o.events = append(o.events, ev)
			}
		}
		next.Version = cur.Version + 1
	}
	next.Status = plan.to
	next.UpdatedAt = e.now()

	err = e.repo.RunInTx(ctx, func(ctx context.Context, tx repository.Repository) error {
		l := e.ledger.With(tx)
		if plan.resubmit {
			if err := e.checkResubmit(ctx, tx, next); err != nil {
				return err
			}
		}
		if err := e.queuedReviewers(ctx, tx, o, cur.ID); err != nil {
			return err
		}
		if err := tx.UpdateDocument(ctx, next, cur.Version, cur.Status); err != nil {
			return err
		}
		e.documentChanged(o, cur, next)
		switch {
		case plan.cancelReviews:
			rows, err := l.Cancel(ctx, cur.ID, document.ActiveReviewStatuses...)
			if err != nil {
				return err
			}
			e.reviewsChanged(o, next, rows...)
		case plan.resubmit:
			rows, err := l.Reactivate(ctx, cur.ID)
			if err != nil {
				return err
			}
			e.reviewsChanged(o, next, rows...)
			if len(rows) > 0 {
				o.Review = rows[0]
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// checkResubmit requires a changes_requested ledger row and new content since
// that decision.
func (e *Engine) checkResubmit(ctx context.Context, tx repository.Repository, d *document.Document) error {
	rows, err := tx.ListReviewRequests(ctx, repository.ReviewFilter{
		DocumentID: d.ID,
		Statuses:   []document.ReviewStatus{document.ReviewChangesRequested},
	})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: there is no review waiting for a resubmission", document.ErrInvalidTransition)
	}
	if d.Version <= rows[0].ReviewedVersion {
		return fmt.Errorf("%w: change the content before resubmitting", document.ErrInvalidTransition)
	}
	return nil
}
