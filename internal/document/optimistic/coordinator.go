// Package optimistic keeps a local view of documents that shows an edit as
// soon as it is made and reconciles it with the authoritative answer.
package optimistic

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gogotex/docflow/internal/document"
	"github.com/gogotex/docflow/internal/document/workflow"
	"github.com/gogotex/docflow/internal/events"
	"github.com/gogotex/docflow/pkg/logger"
	"github.com/gogotex/docflow/pkg/metrics"
	"go.uber.org/zap"
)

// ErrSuperseded is returned to the caller of an update that was abandoned
// before its answer arrived.
var ErrSuperseded = errors.New("optimistic update superseded")

// Remote is the authoritative side, usually the HTTP client.
type Remote interface {
	GetDocument(ctx context.Context, id string) (*document.Document, error)
	UpdateDocument(ctx context.Context, id string, p workflow.ContentPatch) (*document.Document, error)
}

// Publisher receives the events of a confirmed update so local caches can
// drop what it made stale.
type Publisher interface {
	Publish(evs ...events.Event)
}

type entry struct {
	doc *document.Document
	// gen changes whenever the entry is abandoned or a new update starts;
	// an answer for an older generation is dropped.
	gen     uint64
	pending bool
	// busy holds one token while an update is in flight.
	busy chan struct{}
}

// Coordinator runs at most one update per document at a time.
type Coordinator struct {
	remote Remote
	bus    Publisher
	now    func() time.Time
	log    *zap.SugaredLogger

	mu      sync.Mutex
	entries map[string]*entry
}

// New returns a coordinator. bus may be nil.
func New(remote Remote, bus Publisher) *Coordinator {
	return &Coordinator{
		remote:  remote,
		bus:     bus,
		now:     time.Now,
		log:     logger.With("component", "optimistic"),
		entries: map[string]*entry{},
	}
}

func (c *Coordinator) entry(id string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{busy: make(chan struct{}, 1)}
		c.entries[id] = e
	}
	return e
}

// Get returns the local view of id, loading it on first use.
func (c *Coordinator) Get(ctx context.Context, id string) (*document.Document, error) {
	e := c.entry(id)
	c.mu.Lock()
	if e.doc != nil {
		d := e.doc.Clone()
		c.mu.Unlock()
		return d, nil
	}
	c.mu.Unlock()

	d, err := c.remote.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e.doc == nil {
		e.doc = d.Clone()
	}
	return e.doc.Clone(), nil
}

// Pending reports whether an update of id is in flight.
func (c *Coordinator) Pending(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	return ok && e.pending
}

// Refresh stores a background refetch of d. It is dropped, and false
// returned, while an update of the document is in flight.
func (c *Coordinator) Refresh(d *document.Document) bool {
	e := c.entry(d.ID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if e.pending {
		c.log.Debugw("refresh dropped, update in flight", "document", d.ID)
		return false
	}
	e.doc = d.Clone()
	return true
}

// Abandon forgets the local view of id. The answer of an update in flight
// is not applied and its caller gets ErrSuperseded.
func (c *Coordinator) Abandon(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		e.gen++
		e.pending = false
		e.doc = nil
	}
}

// Update is an optimistic update in flight.
type Update struct {
	// Optimistic is what the local view showed right after the patch.
	Optimistic *document.Document

	done chan struct{}
	doc  *document.Document
	err  error
}

// Done is closed once the update settled.
func (u *Update) Done() <-chan struct{} { return u.done }

// Wait returns the authoritative document, or the error that rolled the
// local view back.
func (u *Update) Wait(ctx context.Context) (*document.Document, error) {
	select {
	case <-u.done:
		return u.doc, u.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ApplyOptimistic overlays p on the local view of id right away and sends it
// to the remote in the background. It waits for an earlier update of the
// same document to settle first.
func (c *Coordinator) ApplyOptimistic(ctx context.Context, id string, p workflow.ContentPatch) (*Update, error) {
	e := c.entry(id)
	select {
	case e.busy <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	base, err := c.Get(ctx, id)
	if err != nil {
		<-e.busy
		return nil, err
	}

	c.mu.Lock()
	if e.doc == nil {
		// abandoned while loading
		e.doc = base
	}
	before := e.doc.Clone()
	if p.ExpectedVersion == 0 {
		p.ExpectedVersion = before.Version
	}
	e.doc = workflow.Preview(before, p, c.now())
	e.gen++
	e.pending = true
	gen := e.gen
	u := &Update{Optimistic: e.doc.Clone(), done: make(chan struct{})}
	c.mu.Unlock()

	go func() {
		defer func() { <-e.busy }()
		res, err := c.remote.UpdateDocument(ctx, id, p)
		u.doc, u.err = c.settle(e, gen, before, res, err)
		close(u.done)
	}()
	return u, nil
}

func (c *Coordinator) settle(e *entry, gen uint64, before, res *document.Document, err error) (*document.Document, error) {
	c.mu.Lock()
	if e.gen != gen {
		c.mu.Unlock()
		c.log.Debugw("dropping answer of abandoned update", "document", before.ID, "error", err)
		return nil, ErrSuperseded
	}
	e.pending = false
	if err != nil {
		e.doc = before
		c.mu.Unlock()
		metrics.OptimisticRollbacks.Inc()
		c.log.Warnw("optimistic update rolled back", "document", before.ID, "error", err)
		return nil, err
	}
	e.doc = res.Clone()
	c.mu.Unlock()

	if c.bus != nil {
		c.bus.Publish(confirmed(before, res, c.now())...)
	}
	return res, nil
}

// confirmed describes a successful update the way the engine announces it,
// which is what local cache invalidation keys off.
func confirmed(before, after *document.Document, at time.Time) []events.Event {
	base := events.Event{
		DocumentID: after.ID,
		ActorID:    after.AuthorID,
		OccurredAt: at,
		AuthorID:   after.AuthorID,
		ProjectID:  after.ProjectID,
		IsTemplate: after.IsTemplate,
		Workflow:   string(workflow.EventEdit),
	}
	var evs []events.Event
	if after.Version != before.Version {
		ev := base
		ev.Type = events.RevisionCreated
		ev.Version = before.Version
		evs = append(evs, ev)
	}
	ev := base
	ev.Type = events.DocumentContentUpdated
	ev.Version = after.Version
	ev.Document = after.Clone()
	evs = append(evs, ev)
	if after.Status != before.Status {
		ev := base
		ev.Type = events.DocumentStatusChanged
		ev.From, ev.To = before.Status, after.Status
		ev.Version = after.Version
		ev.Document = after.Clone()
		evs = append(evs, ev)
	}
	return evs
}
