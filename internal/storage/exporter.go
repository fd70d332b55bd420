// Package storage exports published documents to object storage.
package storage

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gogotex/docflow/internal/document"
	"github.com/gogotex/docflow/internal/events"
	"github.com/gogotex/docflow/internal/templates"
	"github.com/gogotex/docflow/pkg/logger"
	"go.uber.org/zap"
)

// ObjectStore is the part of MinIOStorage the exporter needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, meta map[string]string) error
}

// ObjectKey is where version v of a published document is stored.
func ObjectKey(documentID string, version int) string {
	return fmt.Sprintf("published/%s/v%d.md", documentID, version)
}

type exportMeta struct {
	ID          string    `yaml:"id"`
	Title       string    `yaml:"title"`
	Project     string    `yaml:"project,omitempty"`
	Author      string    `yaml:"author"`
	Version     int       `yaml:"version"`
	PublishedAt time.Time `yaml:"publishedAt"`
}

// Render returns the markdown file of d: YAML frontmatter, then the body.
func Render(d *document.Document) ([]byte, error) {
	fm := exportMeta{ID: d.ID, Title: d.Title, Project: d.ProjectID, Author: d.AuthorID, Version: d.Version, PublishedAt: d.UpdatedAt}
	if d.PublishedAt != nil {
		fm.PublishedAt = *d.PublishedAt
	}
	return templates.Marshal(fm, d.Body)
}

// PublishedExporter uploads every document that becomes published. Handle
// only queues; uploads run on the goroutine started by Start.
type PublishedExporter struct {
	store   ObjectStore
	queue   chan *document.Document
	timeout time.Duration
	log     *zap.SugaredLogger
	wg      sync.WaitGroup
}

func NewPublishedExporter(store ObjectStore) *PublishedExporter {
	return &PublishedExporter{
		store:   store,
		queue:   make(chan *document.Document, 64),
		timeout: 30 * time.Second,
		log:     logger.With("component", "exporter"),
	}
}

// Handle is an events.Handler.
func (x *PublishedExporter) Handle(ev events.Event) {
	if ev.Type != events.DocumentStatusChanged || ev.To != document.StatusPublished || ev.IsTemplate || ev.Document == nil {
		return
	}
	select {
	case x.queue <- ev.Document.Clone():
	default:
		x.log.Warnw("export queue full, skipping", "document", ev.DocumentID, "version", ev.Version)
	}
}

// Start uploads queued documents until ctx is done.
func (x *PublishedExporter) Start(ctx context.Context) {
	x.wg.Add(1)
	go x.run(ctx)
}

func (x *PublishedExporter) run(ctx context.Context) {
	defer x.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-x.queue:
			if err := x.Export(ctx, d); err != nil {
				x.log.Errorw("export failed", "document", d.ID, "version", d.Version, "error", err)
			}
		}
	}
}

// Wait blocks until the worker has stopped.
func (x *PublishedExporter) Wait() { x.wg.Wait() }

// Export uploads d right away.
func (x *PublishedExporter) Export(ctx context.Context, d *document.Document) error {
	b, err := Render(d)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()
	key := ObjectKey(d.ID, d.Version)
	meta := map[string]string{"document-id": d.ID, "version": strconv.Itoa(d.Version)}
	if err := x.store.Put(ctx, key, b, meta); err != nil {
		return err
	}
	x.log.Infow("exported published document", "document", d.ID, "key", key)
	return nil
}
