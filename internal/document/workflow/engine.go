// Package workflow owns the document status field. Every operation checks the
// transition table, performs its document and ledger writes in one
// repository transaction, and announces the committed result on the event
// bus.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gogotex/docflow/internal/document"
	"github.com/gogotex/docflow/internal/document/repository"
	"github.com/gogotex/docflow/internal/document/review"
	"github.com/gogotex/docflow/internal/document/revision"
	"github.com/gogotex/docflow/internal/events"
	"github.com/gogotex/docflow/internal/identity"
	"github.com/gogotex/docflow/pkg/logger"
	"github.com/gogotex/docflow/pkg/metrics"
	"go.uber.org/zap"
)

// SnapshotPolicy decides what a failed revision snapshot means for publishing.
type SnapshotPolicy string

const (
	// SnapshotWarn logs the failure and never blocks.
	SnapshotWarn SnapshotPolicy = "warn"
	// SnapshotBlockPublish refuses to publish a document whose last content
	// update has no revision.
	SnapshotBlockPublish SnapshotPolicy = "block_publish"
)

// ParseSnapshotPolicy accepts the configuration spelling of a policy.
func ParseSnapshotPolicy(s string) (SnapshotPolicy, error) {
	switch SnapshotPolicy(s) {
	case "", SnapshotWarn:
		return SnapshotWarn, nil
	case SnapshotBlockPublish:
		return SnapshotBlockPublish, nil
	}
	return "", fmt.Errorf("%w: unknown snapshot policy %q", document.ErrValidation, s)
}

// Publisher receives the events of committed operations.
type Publisher interface {
	Publish(evs ...events.Event)
}

type Engine struct {
	repo      repository.Repository
	revisions *revision.Store
	ledger    *review.Ledger
	bus       Publisher
	policy    SnapshotPolicy
	now       func() time.Time
	log       *zap.SugaredLogger
}

func New(repo repository.Repository, bus Publisher, policy SnapshotPolicy) *Engine {
	if policy == "" {
		policy = SnapshotWarn
	}
	return &Engine{
		repo:      repo,
		revisions: revision.NewStore(repo),
		ledger:    review.NewLedger(repo),
		bus:       bus,
		policy:    policy,
		now:       func() time.Time { return time.Now().UTC() },
		log:       logger.With("component", "workflow"),
	}
}

// SetClock replaces the time source of the engine and its ledger.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
	e.ledger.SetClock(now)
}

// Result is the authoritative state after an operation.
type Result struct {
	Document *document.Document
	Review   *document.ReviewRequest
}

// outcome collects what a single attempt changed; its events are published
// only after the attempt committed.
type outcome struct {
	Result
	actor     string
	ev        Event
	events    []events.Event
	reviewers map[string]bool
}

func (e *Engine) newOutcome(ev Event, actor string) *outcome {
	return &outcome{ev: ev, actor: actor, reviewers: map[string]bool{}}
}

func (e *Engine) event(o *outcome, t events.Type, d *document.Document) events.Event {
	return events.Event{
		Type:       t,
		DocumentID: d.ID,
		ActorID:    o.actor,
		OccurredAt: e.now(),
		AuthorID:   d.AuthorID,
		ProjectID:  d.ProjectID,
		IsTemplate: d.IsTemplate,
		Version:    d.Version,
		Workflow:   string(o.ev),
	}
}

// documentChanged records status and content events for before -> after.
func (e *Engine) documentChanged(o *outcome, before, after *document.Document) {
	o.Document = after
	if before.Status != after.Status {
		ev := e.event(o, events.DocumentStatusChanged, after)
		ev.From = before.Status
		ev.To = after.Status
		ev.Document = after.Clone()
		o.events = append(o.events, ev)
	}
	if before.Version != after.Version || before.Title != after.Title || before.Body != after.Body {
		ev := e.event(o, events.DocumentContentUpdated, after)
		ev.Document = after.Clone()
		o.events = append(o.events, ev)
	}
}

func (e *Engine) reviewsChanged(o *outcome, d *document.Document, rows ...*document.ReviewRequest) {
	for _, rr := range rows {
		ev := e.event(o, events.ReviewRequestUpdated, d)
		ev.Review = rr.Clone()
		o.events = append(o.events, ev)
		o.reviewers[rr.ReviewerID] = true
	}
}

// queuedReviewers marks every reviewer whose pending queue lists
// documentID, so their cached queues are dropped with the change.
func (e *Engine) queuedReviewers(ctx context.Context, tx repository.Repository, o *outcome, documentID string) error {
	rows, err := tx.ListReviewRequests(ctx, repository.ReviewFilter{
		DocumentID: documentID,
		Statuses:   document.PendingReviewStatuses,
	})
	if err != nil {
		return err
	}
	for _, rr := range rows {
		o.reviewers[rr.ReviewerID] = true
	}
	return nil
}

func (e *Engine) publish(o *outcome) {
	if len(o.events) == 0 {
		return
	}
	ids := make([]string, 0, len(o.reviewers))
	for id := range o.reviewers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for i := range o.events {
		if o.events[i].Type == events.DocumentStatusChanged {
			metrics.WorkflowTransitions.WithLabelValues(string(o.ev), string(o.events[i].From), string(o.events[i].To)).Inc()
		}
		if len(ids) > 0 {
			o.events[i].ReviewerIDs = ids
		}
	}
	if e.bus != nil {
		e.bus.Publish(o.events...)
	}
}

// staleVersion wraps a concurrent modification the caller announced by
// passing an expected version that no longer matches. Re-reading cannot fix
// it, so it is never retried.
type staleVersion struct{ error }

func (s staleVersion) Unwrap() error { return s.error }

func staleRead(format string, args ...interface{}) error {
	return staleVersion{fmt.Errorf("%w: "+format, append([]interface{}{document.ErrConcurrentModification}, args...)...)}
}

// retry runs attempt and, on a concurrent modification, runs it once more
// against freshly read state.
func (e *Engine) retry(ev Event, attempt func() (*outcome, error)) (*outcome, error) {
	o, err := attempt()
	var stale staleVersion
	if document.Retryable(err) && !errors.As(err, &stale) {
		metrics.WorkflowRetries.WithLabelValues(string(ev)).Inc()
		e.log.Debugw("retrying after concurrent modification", "event", ev, "error", err)
		o, err = attempt()
	}
	if err != nil {
		return nil, e.reject(ev, err)
	}
	e.publish(o)
	return o, nil
}

func (e *Engine) reject(ev Event, err error) error {
	kind := document.KindOf(err)
	metrics.WorkflowRejections.WithLabelValues(string(ev), kind).Inc()
	if kind == document.KindPersistence || kind == document.KindInternal {
		e.log.Errorw("workflow operation failed", "event", ev, "error", err)
	}
	return err
}

// inTx runs fn inside a repository transaction, retrying once on conflict.
func (e *Engine) inTx(ctx context.Context, ev Event, fn func(ctx context.Context, tx repository.Repository, o *outcome) error) (*outcome, error) {
	actor, err := identity.ActorID(ctx)
	if err != nil {
		return nil, e.reject(ev, err)
	}
	return e.retry(ev, func() (*outcome, error) {
		o := e.newOutcome(ev, actor)
		err := e.repo.RunInTx(ctx, func(ctx context.Context, tx repository.Repository) error {
			return fn(ctx, tx, o)
		})
		return o, err
	})
}

// authorize checks the actor's role for ev on d.
func (e *Engine) authorize(ctx context.Context, l *review.Ledger, ev Event, actor string, d *document.Document) error {
	t := transitions[ev]
	switch t.role {
	case roleAuthor:
		return identity.RequireAuthor(actor, d, ev.verb())
	case roleReviewer:
		ok, err := l.Assigned(ctx, d.ID, actor)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: only an assigned reviewer can %s", document.ErrPermissionDenied, ev.verb())
		}
	}
	return nil
}

// load reads d inside tx and runs the lock, role and transition checks in
// that order.
func (e *Engine) load(ctx context.Context, tx repository.Repository, ev Event, actor, id string) (*document.Document, transition, error) {
	d, err := tx.GetDocument(ctx, id)
	if err != nil {
		return nil, transition{}, err
	}
	if err := locked(ev, d); err != nil {
		return nil, transition{}, err
	}
	if err := e.authorize(ctx, e.ledger.With(tx), ev, actor, d); err != nil {
		return nil, transition{}, err
	}
	t, err := allowed(ev, d)
	if err != nil {
		return nil, transition{}, err
	}
	return d, t, nil
}

// setStatus persists d with a new status under the version/status precondition.
func (e *Engine) setStatus(ctx context.Context, tx repository.Repository, o *outcome, d *document.Document, to document.Status) (*document.Document, error) {
	if d.Status == to {
		o.Document = d
		return d, nil
	}
	next := d.Clone()
	next.Status = to
	next.UpdatedAt = e.now()
	if to == document.StatusPublished && !d.IsTemplate && (o.ev == EventPublish || next.PublishedAt == nil) {
		at := next.UpdatedAt
		next.PublishedAt = &at
	}
	if err := e.queuedReviewers(ctx, tx, o, d.ID); err != nil {
		return nil, err
	}
	if err := tx.UpdateDocument(ctx, next, d.Version, d.Status); err != nil {
		return nil, err
	}
	e.documentChanged(o, d, next)
	return next, nil
}
