package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/gogotex/docflow/internal/document"
	"github.com/gogotex/docflow/internal/document/repository"
	"github.com/gogotex/docflow/internal/events"
	"github.com/gogotex/docflow/internal/identity"
)

// AddComment adds a comment, or a reply when parentID is set. Replies to a
// reply attach to the thread root.
func (e *Engine) AddComment(ctx context.Context, documentID, body, parentID string) (*document.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, e.reject(EventComment, fmt.Errorf("%w: a comment cannot be empty", document.ErrValidation))
	}
	var added *document.Comment
	_, err := e.inTx(ctx, EventComment, func(ctx context.Context, tx repository.Repository, o *outcome) error {
		d, _, err := e.load(ctx, tx, EventComment, o.actor, documentID)
		if err != nil {
			return err
		}
		if parentID != "" {
			parent, err := tx.GetComment(ctx, parentID)
			if err != nil {
				return err
			}
			if parent.DocumentID != d.ID {
				return fmt.Errorf("%w: the comment belongs to another document", document.ErrValidation)
			}
			if parent.ParentID != "" {
				parentID = parent.ParentID
			}
		}
		added, err = e.addComment(ctx, tx, o, d, body, parentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// ListThreads groups the comments of documentID: threads newest first,
// replies oldest first. active counts unresolved threads.
func (e *Engine) ListThreads(ctx context.Context, documentID string) (threads []*document.Thread, active int, err error) {
	if _, err := e.repo.GetDocument(ctx, documentID); err != nil {
		return nil, 0, err
	}
	comments, err := e.repo.ListComments(ctx, documentID)
	if err != nil {
		return nil, 0, err
	}
	threads, active = Threads(comments)
	return threads, active, nil
}

// Threads builds threads from a flat comment list ordered oldest first.
func Threads(comments []*document.Comment) ([]*document.Thread, int) {
	byRoot := map[string]*document.Thread{}
	threads := []*document.Thread{}
	for _, c := range comments {
		if c.ParentID == "" {
			t := &document.Thread{Root: c, Replies: []*document.Comment{}}
			byRoot[c.ID] = t
			threads = append(threads, t)
		}
	}
	for _, c := range comments {
		if c.ParentID == "" {
			continue
		}
		if t, ok := byRoot[c.ParentID]; ok {
			t.Replies = append(t.Replies, c)
		}
	}
	sort.SliceStable(threads, func(i, j int) bool { return threads[i].Root.CreatedAt.After(threads[j].Root.CreatedAt) })
	active := 0
	for _, t := range threads {
		if !t.Root.IsResolved {
			active++
		}
	}
	return threads, active
}

// SetResolved resolves or reopens a thread. The document author and the
// thread author may do so.
func (e *Engine) SetResolved(ctx context.Context, commentID string, resolved bool) (*document.Comment, error) {
	var out *document.Comment
	_, err := e.inTx(ctx, EventComment, func(ctx context.Context, tx repository.Repository, o *outcome) error {
		c, err := tx.GetComment(ctx, commentID)
		if err != nil {
			return err
		}
		if c.ParentID != "" {
			return fmt.Errorf("%w: only a thread can be resolved", document.ErrValidation)
		}
		d, _, err := e.load(ctx, tx, EventComment, o.actor, c.DocumentID)
		if err != nil {
			return err
		}
		if c.AuthorID != o.actor && !identity.IsAuthor(o.actor, d) {
			return fmt.Errorf("%w: only the document or thread author can resolve it", document.ErrPermissionDenied)
		}
		if c.IsResolved == resolved {
			out = c
			return nil
		}
		c.IsResolved = resolved
		c.ResolvedAt = nil
		if resolved {
			now := e.now()
			c.ResolvedAt = &now
		}
		if err := tx.UpdateComment(ctx, c); err != nil {
			return err
		}
		o.events = append(o.events, e.event(o, events.CommentsChanged, d))
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
