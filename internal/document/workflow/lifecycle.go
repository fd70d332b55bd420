package workflow

import (
	"context"
	"fmt"

	"github.com/gogotex/docflow/internal/document"
	"github.com/gogotex/docflow/internal/document/repository"
	"github.com/gogotex/docflow/internal/events"
)

// Archive locks the document and cancels its active review requests,
// approvals included.
func (e *Engine) Archive(ctx context.Context, documentID string) (*document.Document, error) {
	o, err := e.inTx(ctx, EventArchive, func(ctx context.Context, tx repository.Repository, o *outcome) error {
		d, t, err := e.load(ctx, tx, EventArchive, o.actor, documentID)
		if err != nil {
			return err
		}
		next, err := e.setStatus(ctx, tx, o, d, t.to)
		if err != nil {
			return err
		}
		rows, err := e.ledger.With(tx).Cancel(ctx, d.ID, document.ActiveReviewStatuses...)
		if err != nil {
			return err
		}
		e.reviewsChanged(o, next, rows...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o.Document, nil
}

// Restore brings an archived document back as published.
func (e *Engine) Restore(ctx context.Context, documentID string) (*document.Document, error) {
	return e.simple(ctx, EventRestore, documentID, nil)
}

// Publish moves an approved document to published. Under the block_publish
// snapshot policy a document whose last edit has no revision stays approved.
func (e *Engine) Publish(ctx context.Context, documentID string) (*document.Document, error) {
	return e.simple(ctx, EventPublish, documentID, func(d *document.Document) error {
		if e.policy == SnapshotBlockPublish && d.SnapshotPending {
			return fmt.Errorf("%w: the revision history of this document is incomplete, save it again before publishing", document.ErrPersistence)
		}
		return nil
	})
}

func (e *Engine) simple(ctx context.Context, ev Event, documentID string, guard func(*document.Document) error) (*document.Document, error) {
	o, err := e.inTx(ctx, ev, func(ctx context.Context, tx repository.Repository, o *outcome) error {
		d, t, err := e.load(ctx, tx, ev, o.actor, documentID)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(d); err != nil {
				return err
			}
		}
		_, err = e.setStatus(ctx, tx, o, d, t.to)
		return err
	})
	if err != nil {
		return nil, err
	}
	return o.Document, nil
}

// Delete removes the document with its comments, review requests,
// permissions and revisions. Only the author may delete, in any status.
func (e *Engine) Delete(ctx context.Context, documentID string) error {
	_, err := e.inTx(ctx, EventDelete, func(ctx context.Context, tx repository.Repository, o *outcome) error {
		d, _, err := e.load(ctx, tx, EventDelete, o.actor, documentID)
		if err != nil {
			return err
		}
		rows, err := tx.ListReviewRequests(ctx, repository.ReviewFilter{DocumentID: d.ID})
		if err != nil {
			return err
		}
		if err := tx.DeleteDocumentCascade(ctx, d.ID); err != nil {
			return err
		}
		for _, rr := range rows {
			o.reviewers[rr.ReviewerID] = true
		}
		ev := e.event(o, events.DocumentDeleted, d)
		ev.From = d.Status
		o.events = append(o.events, ev)
		return nil
	})
	return err
}
