package cache

import (
	"context"
	"strings"
	"time"

	"github.com/gogotex/docflow/internal/events"
	"github.com/gogotex/docflow/pkg/logger"
	"github.com/gogotex/docflow/pkg/metrics"
)

// Invalidator deletes the cached queries a domain event makes stale.
type Invalidator struct {
	cache   Cache
	timeout time.Duration
}

func NewInvalidator(c Cache) *Invalidator {
	return &Invalidator{cache: c, timeout: 2 * time.Second}
}

// Keys returns the exact keys and the key prefixes ev invalidates.
func Keys(ev events.Event) (keys, prefixes []string) {
	id := ev.DocumentID
	keys = []string{DocumentKey(id)}
	listing := func() {
		if ev.AuthorID != "" {
			keys = append(keys, MyDocumentsKey(ev.AuthorID))
		}
		keys = append(keys, ArchivedKey())
		if ev.IsTemplate && ev.ProjectID != "" {
			keys = append(keys, TemplatesKey(ev.ProjectID))
		}
		for _, r := range ev.ReviewerIDs {
			keys = append(keys, MyReviewsKey(r))
		}
		// every other actor's "assigned to me" view lists this document
		prefixes = append(prefixes, FamilyAssigned+":")
	}
	switch ev.Type {
	case events.DocumentCreated, events.DocumentStatusChanged, events.DocumentContentUpdated:
		listing()
		if ev.Type == events.DocumentStatusChanged {
			keys = append(keys, ActiveReviewKey(id))
		}
	case events.DocumentDeleted:
		listing()
		keys = append(keys, ActiveReviewKey(id), RevisionsKey(id), CommentsKey(id))
	case events.ReviewRequestUpdated:
		keys = append(keys, ActiveReviewKey(id))
		if ev.Review != nil {
			keys = append(keys, MyReviewsKey(ev.Review.ReviewerID))
		}
	case events.RevisionCreated:
		keys = append(keys, RevisionsKey(id))
	case events.CommentsChanged:
		keys = []string{CommentsKey(id)}
	}
	return dedupe(keys), prefixes
}

// Handle is an events.Handler.
func (i *Invalidator) Handle(ev events.Event) {
	keys, prefixes := Keys(ev)
	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()
	if err := i.cache.Delete(ctx, keys...); err != nil {
		logger.Warnf("cache invalidation for %s failed: %v", ev.DocumentID, err)
		return
	}
	for _, p := range prefixes {
		if err := i.cache.DeletePrefix(ctx, p); err != nil {
			logger.Warnf("cache invalidation of %s* failed: %v", p, err)
		}
	}
	for _, k := range keys {
		metrics.CacheInvalidations.WithLabelValues(family(k)).Inc()
	}
	for _, p := range prefixes {
		metrics.CacheInvalidations.WithLabelValues(family(p)).Inc()
	}
}

func family(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}

func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
