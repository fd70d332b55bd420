// Package service is the read side of the document API. Queries go through
// the cache; the cache is emptied by domain events, never by callers.
package service

import (
	"context"

	"github.com/gogotex/docflow/internal/cache"
	"github.com/gogotex/docflow/internal/document"
	"github.com/gogotex/docflow/internal/document/repository"
	"github.com/gogotex/docflow/internal/document/review"
	"github.com/gogotex/docflow/internal/document/revision"
	"github.com/gogotex/docflow/internal/document/workflow"
	"github.com/gogotex/docflow/internal/identity"
	"github.com/gogotex/docflow/pkg/logger"
)

// ActiveReview is the active request of a document with its reviewer.
type ActiveReview struct {
	Request  *document.ReviewRequest `json:"request"`
	Reviewer *identity.Profile       `json:"reviewer,omitempty"`
}

// ReviewItem is one entry of a reviewer's queue.
type ReviewItem struct {
	Request  *document.ReviewRequest `json:"request"`
	Document *document.Document      `json:"document"`
}

// CommentThreads is the comment view of a document.
type CommentThreads struct {
	Threads     []*document.Thread `json:"threads"`
	ActiveCount int                `json:"activeCount"`
}

type Service struct {
	repo      repository.Repository
	ledger    *review.Ledger
	revisions *revision.Store
	profiles  *identity.Profiles
	cache     cache.Cache
}

// New returns the query service. profiles may be nil.
func New(repo repository.Repository, c cache.Cache, profiles *identity.Profiles) *Service {
	if c == nil {
		c = cache.NewMemoryCache(0)
	}
	return &Service{
		repo:      repo,
		ledger:    review.NewLedger(repo),
		revisions: revision.NewStore(repo),
		profiles:  profiles,
		cache:     c,
	}
}

// cached returns the value under key, loading and storing it on a miss.
// Cache failures degrade to a direct load.
func cached[T any](ctx context.Context, c cache.Cache, key string, load func() (T, error)) (T, error) {
	var v T
	ok, err := c.Get(ctx, key, &v)
	if err != nil {
		logger.Debugf("cache read %s: %v", key, err)
	}
	if ok && err == nil {
		return v, nil
	}
	v, err = load()
	if err != nil {
		return v, err
	}
	if err := c.Set(ctx, key, v); err != nil {
		logger.Debugf("cache write %s: %v", key, err)
	}
	return v, nil
}

var notTemplate = func() *bool { b := false; return &b }()

func (s *Service) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	return cached(ctx, s.cache, cache.DocumentKey(id), func() (*document.Document, error) {
		return s.repo.GetDocument(ctx, id)
	})
}

// ListMyDocuments lists the author's own documents, archived ones and
// templates excluded.
func (s *Service) ListMyDocuments(ctx context.Context, author string) ([]*document.Document, error) {
	return cached(ctx, s.cache, cache.MyDocumentsKey(author), func() ([]*document.Document, error) {
		return s.repo.ListDocuments(ctx, repository.DocumentFilter{
			AuthorID:        author,
			IsTemplate:      notTemplate,
			ExcludeStatuses: []document.Status{document.StatusArchived},
		})
	})
}

// ListAssignedToMe lists the documents of other authors the actor can work on.
func (s *Service) ListAssignedToMe(ctx context.Context, actor string) ([]*document.Document, error) {
	return cached(ctx, s.cache, cache.AssignedKey(actor), func() ([]*document.Document, error) {
		return s.repo.ListDocuments(ctx, repository.DocumentFilter{
			ExcludeAuthorID: actor,
			IsTemplate:      notTemplate,
			ExcludeStatuses: []document.Status{document.StatusArchived},
		})
	})
}

// ListMyReviews lists the reviewer's pending requests with their documents.
func (s *Service) ListMyReviews(ctx context.Context, reviewer string) ([]ReviewItem, error) {
	return cached(ctx, s.cache, cache.MyReviewsKey(reviewer), func() ([]ReviewItem, error) {
		rows, err := s.ledger.ListForReviewer(ctx, reviewer, document.PendingReviewStatuses...)
		if err != nil {
			return nil, err
		}
		out := make([]ReviewItem, 0, len(rows))
		for _, rr := range rows {
			d, err := s.repo.GetDocument(ctx, rr.DocumentID)
			if err != nil {
				return nil, err
			}
			out = append(out, ReviewItem{Request: rr, Document: d})
		}
		return out, nil
	})
}

func (s *Service) ListArchived(ctx context.Context) ([]*document.Document, error) {
	return cached(ctx, s.cache, cache.ArchivedKey(), func() ([]*document.Document, error) {
		return s.repo.ListDocuments(ctx, repository.DocumentFilter{Statuses: []document.Status{document.StatusArchived}})
	})
}

func (s *Service) ListTemplates(ctx context.Context, projectID string) ([]*document.Document, error) {
	yes := true
	return cached(ctx, s.cache, cache.TemplatesKey(projectID), func() ([]*document.Document, error) {
		return s.repo.ListDocuments(ctx, repository.DocumentFilter{
			ProjectID:       projectID,
			IsTemplate:      &yes,
			ExcludeStatuses: []document.Status{document.StatusArchived},
		})
	})
}

// GetActiveReview returns the active request of documentID, or nil.
func (s *Service) GetActiveReview(ctx context.Context, documentID string) (*ActiveReview, error) {
	return cached(ctx, s.cache, cache.ActiveReviewKey(documentID), func() (*ActiveReview, error) {
		if _, err := s.repo.GetDocument(ctx, documentID); err != nil {
			return nil, err
		}
		rr, err := s.ledger.Active(ctx, documentID)
		if err != nil || rr == nil {
			return nil, err
		}
		out := &ActiveReview{Request: rr}
		if s.profiles != nil {
			p, err := s.profiles.Lookup(ctx, rr.ReviewerID)
			if err != nil {
				logger.Warnf("reviewer profile %s: %v", rr.ReviewerID, err)
			} else {
				out.Reviewer = p
			}
		}
		return out, nil
	})
}

func (s *Service) ListRevisions(ctx context.Context, documentID string) ([]*document.Revision, error) {
	return cached(ctx, s.cache, cache.RevisionsKey(documentID), func() ([]*document.Revision, error) {
		if _, err := s.repo.GetDocument(ctx, documentID); err != nil {
			return nil, err
		}
		return s.revisions.List(ctx, documentID)
	})
}

func (s *Service) ListComments(ctx context.Context, documentID string) (*CommentThreads, error) {
	return cached(ctx, s.cache, cache.CommentsKey(documentID), func() (*CommentThreads, error) {
		if _, err := s.repo.GetDocument(ctx, documentID); err != nil {
			return nil, err
		}
		comments, err := s.repo.ListComments(ctx, documentID)
		if err != nil {
			return nil, err
		}
		threads, active := workflow.Threads(comments)
		return &CommentThreads{Threads: threads, ActiveCount: active}, nil
	})
}
