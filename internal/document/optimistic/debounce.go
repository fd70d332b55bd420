package optimistic

import (
	"context"
	"sync"
	"time"

	"github.com/gogotex/docflow/internal/document"
	"github.com/gogotex/docflow/internal/document/workflow"
)

// DefaultIdle is how long an editor must be quiet before its edits are sent.
const DefaultIdle = 2 * time.Second

// ResultFunc receives the outcome of every flushed batch.
type ResultFunc func(documentID string, d *document.Document, err error)

type batch struct {
	patch workflow.ContentPatch
	timer *time.Timer
	seq   uint64
}

// Debouncer collects rapid edits per document and hands them to the
// coordinator as one update once the document has been idle.
type Debouncer struct {
	coord    *Coordinator
	idle     time.Duration
	onResult ResultFunc

	mu      sync.Mutex
	batches map[string]*batch
	// seq numbers every timer armed by this debouncer; it never restarts.
	seq uint64
	wg      sync.WaitGroup
}

// NewDebouncer returns a debouncer; idle <= 0 means DefaultIdle.
func NewDebouncer(coord *Coordinator, idle time.Duration, onResult ResultFunc) *Debouncer {
	if idle <= 0 {
		idle = DefaultIdle
	}
	if onResult == nil {
		onResult = func(string, *document.Document, error) {}
	}
	return &Debouncer{coord: coord, idle: idle, onResult: onResult, batches: map[string]*batch{}}
}

// Edit merges p into the pending batch of id and restarts its idle timer.
// Later titles and bodies replace earlier ones.
func (d *Debouncer) Edit(id string, p workflow.ContentPatch) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.batches[id]
	if !ok {
		b = &batch{}
		d.batches[id] = b
	} else {
		b.timer.Stop()
	}
	merge(&b.patch, p)
	d.seq++
	b.seq = d.seq
	seq := b.seq
	b.timer = time.AfterFunc(d.idle, func() { d.flush(id, b, seq) })
}

func merge(dst *workflow.ContentPatch, p workflow.ContentPatch) {
	if p.Title != nil {
		dst.Title = p.Title
	}
	if p.Body != nil {
		dst.Body = p.Body
	}
	if p.ResubmitForReview {
		dst.ResubmitForReview = true
	}
	if p.Summary != "" {
		dst.Summary = p.Summary
	}
}

// Flush sends the pending batch of id now, if there is one.
func (d *Debouncer) Flush(id string) { d.flush(id, nil, 0) }

// flush sends the batch of id. A timer passes the batch and seq it was armed
// for and does nothing once that batch was re-armed, flushed or replaced.
func (d *Debouncer) flush(id string, armed *batch, seq uint64) {
	d.mu.Lock()
	b, ok := d.batches[id]
	if ok && armed != nil && (b != armed || b.seq != seq) {
		ok = false
	}
	if ok {
		b.timer.Stop()
		delete(d.batches, id)
		d.wg.Add(1)
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	go func() {
		defer d.wg.Done()
		ctx := context.Background()
		u, err := d.coord.ApplyOptimistic(ctx, id, b.patch)
		if err != nil {
			d.onResult(id, nil, err)
			return
		}
		doc, err := u.Wait(ctx)
		d.onResult(id, doc, err)
	}()
}

// Pending reports whether edits of id are waiting for the idle timer.
func (d *Debouncer) Pending(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.batches[id]
	return ok
}

// Close flushes every pending batch and waits for the results.
func (d *Debouncer) Close() {
	d.mu.Lock()
	ids := make([]string, 0, len(d.batches))
	for id := range d.batches {
		ids = append(ids, id)
	}
	d.mu.Unlock()
	for _, id := range ids {
		d.Flush(id)
	}
	d.wg.Wait()
}
