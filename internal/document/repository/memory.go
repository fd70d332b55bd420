package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gogotex/docflow/internal/document"
)

// MemoryRepo is an in-memory Repository used for local development and unit
// tests. Transactions take the write lock for their whole duration and work
// on a copy of the state that is swapped in on success.
type MemoryRepo struct {
	mu   sync.RWMutex
	st   *memState
	inTx bool // set on the view handed to RunInTx callbacks; the lock is already held
}

type memState struct {
	docs        map[string]*document.Document
	revisions   map[string][]*document.Revision
	reviews     map[string]*document.ReviewRequest
	comments    map[string]*document.Comment
	permissions []*document.Permission
}

func newMemState() *memState {
	return &memState{
		docs:      make(map[string]*document.Document),
		revisions: make(map[string][]*document.Revision),
		reviews:   make(map[string]*document.ReviewRequest),
		comments:  make(map[string]*document.Comment),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.docs {
		c.docs[k] = v.Clone()
	}
	for k, v := range s.revisions {
		c.revisions[k] = append([]*document.Revision(nil), v...)
	}
	for k, v := range s.reviews {
		c.reviews[k] = v.Clone()
	}
	for k, v := range s.comments {
		cc := *v
		c.comments[k] = &cc
	}
	c.permissions = append(c.permissions, s.permissions...)
	return c
}

var _ Repository = (*MemoryRepo)(nil)

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{st: newMemState()}
}

func (m *MemoryRepo) rlock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.RLock()
	return m.mu.RUnlock
}

func (m *MemoryRepo) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *MemoryRepo) RunInTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	if m.inTx {
		return fn(ctx, m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	view := &MemoryRepo{st: m.st.clone(), inTx: true}
	if err := fn(ctx, view); err != nil {
		return err
	}
	m.st = view.st
	return nil
}

func (m *MemoryRepo) CreateDocument(ctx context.Context, d *document.Document) error {
	defer m.lock()()
	if d.ID == "" {
		return fmt.Errorf("%w: document id is required", document.ErrValidation)
	}
	if _, ok := m.st.docs[d.ID]; ok {
		return fmt.Errorf("%w: document %s already exists", document.ErrValidation, d.ID)
	}
	m.st.docs[d.ID] = d.Clone()
	return nil
}

func (m *MemoryRepo) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	defer m.rlock()()
	if d, ok := m.st.docs[id]; ok {
		return d.Clone(), nil
	}
	return nil, document.ErrNotFound
}

func (m *MemoryRepo) ListDocuments(ctx context.Context, f DocumentFilter) ([]*document.Document, error) {
	defer m.rlock()()
	out := make([]*document.Document, 0, len(m.st.docs))
	for _, d := range m.st.docs {
		if matchDocument(d, f) {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func matchDocument(d *document.Document, f DocumentFilter) bool {
	if f.AuthorID != "" && d.AuthorID != f.AuthorID {
		return false
	}
	if f.ExcludeAuthorID != "" && d.AuthorID == f.ExcludeAuthorID {
		return false
	}
	if f.ProjectID != "" && d.ProjectID != f.ProjectID {
		return false
	}
	if len(f.Statuses) > 0 && !statusIn(d.Status, f.Statuses) {
		return false
	}
	if statusIn(d.Status, f.ExcludeStatuses) {
		return false
	}
	if f.IsTemplate != nil && d.IsTemplate != *f.IsTemplate {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !strings.Contains(strings.ToLower(d.Title), q) && !strings.Contains(strings.ToLower(d.Body), q) {
			return false
		}
	}
	return true
}

func (m *MemoryRepo) UpdateDocument(ctx context.Context, d *document.Document, expectedVersion int, expectedStatus document.Status) error {
	defer m.lock()()
	cur, ok := m.st.docs[d.ID]
	if !ok {
		return document.ErrNotFound
	}
	if cur.Version != expectedVersion || cur.Status != expectedStatus {
		return fmt.Errorf("update document %s: %w", d.ID, document.ErrConcurrentModification)
	}
	m.st.docs[d.ID] = d.Clone()
	return nil
}

func (m *MemoryRepo) DeleteDocumentCascade(ctx context.Context, id string) error {
	defer m.lock()()
	if _, ok := m.st.docs[id]; !ok {
		return document.ErrNotFound
	}
	for cid, c := range m.st.comments {
		if c.DocumentID == id {
			delete(m.st.comments, cid)
		}
	}
	for rid, r := range m.st.reviews {
		if r.DocumentID == id {
			delete(m.st.reviews, rid)
		}
	}
	kept := m.st.permissions[:0:0]
	for _, p := range m.st.permissions {
		if p.DocumentID != id {
			kept = append(kept, p)
		}
	}
	m.st.permissions = kept
	delete(m.st.revisions, id)
	delete(m.st.docs, id)
	return nil
}

func (m *MemoryRepo) InsertRevision(ctx context.Context, r *document.Revision) error {
	defer m.lock()()
	for _, existing := range m.st.revisions[r.DocumentID] {
		if existing.VersionNumber == r.VersionNumber {
			return ErrDuplicateRevision
		}
	}
	c := *r
	m.st.revisions[r.DocumentID] = append(m.st.revisions[r.DocumentID], &c)
	return nil
}

func (m *MemoryRepo) ListRevisions(ctx context.Context, documentID string) ([]*document.Revision, error) {
	defer m.rlock()()
	src := m.st.revisions[documentID]
	out := make([]*document.Revision, 0, len(src))
	for _, r := range src {
		c := *r
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber > out[j].VersionNumber })
	return out, nil
}

func (m *MemoryRepo) ListReviewRequests(ctx context.Context, f ReviewFilter) ([]*document.ReviewRequest, error) {
	defer m.rlock()()
	out := []*document.ReviewRequest{}
	for _, r := range m.st.reviews {
		if f.DocumentID != "" && r.DocumentID != f.DocumentID {
			continue
		}
		if f.ReviewerID != "" && r.ReviewerID != f.ReviewerID {
			continue
		}
		if len(f.Statuses) > 0 && !r.Status.In(f.Statuses...) {
			continue
		}
		out = append(out, r.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *MemoryRepo) UpsertReviewRequest(ctx context.Context, r *document.ReviewRequest) error {
	defer m.lock()()
	if r.ID == "" {
		return fmt.Errorf("%w: review request id is required", document.ErrValidation)
	}
	m.st.reviews[r.ID] = r.Clone()
	return nil
}

func (m *MemoryRepo) AddComment(ctx context.Context, c *document.Comment) error {
	defer m.lock()()
	cc := *c
	m.st.comments[c.ID] = &cc
	return nil
}

func (m *MemoryRepo) GetComment(ctx context.Context, id string) (*document.Comment, error) {
	defer m.rlock()()
	c, ok := m.st.comments[id]
	if !ok {
		return nil, fmt.Errorf("comment %s: %w", id, document.ErrNotFound)
	}
	cc := *c
	return &cc, nil
}

func (m *MemoryRepo) ListComments(ctx context.Context, documentID string) ([]*document.Comment, error) {
	defer m.rlock()()
	out := []*document.Comment{}
	for _, c := range m.st.comments {
		if c.DocumentID == documentID {
			cc := *c
			out = append(out, &cc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepo) UpdateComment(ctx context.Context, c *document.Comment) error {
	defer m.lock()()
	if _, ok := m.st.comments[c.ID]; !ok {
		return fmt.Errorf("comment %s: %w", c.ID, document.ErrNotFound)
	}
	cc := *c
	m.st.comments[c.ID] = &cc
	return nil
}

func (m *MemoryRepo) GrantPermission(ctx context.Context, p *document.Permission) error {
	defer m.lock()()
	c := *p
	for i, existing := range m.st.permissions {
		if existing.DocumentID == p.DocumentID && existing.UserID == p.UserID {
			m.st.permissions[i] = &c
			return nil
		}
	}
	m.st.permissions = append(m.st.permissions, &c)
	return nil
}

func (m *MemoryRepo) ListPermissions(ctx context.Context, documentID string) ([]*document.Permission, error) {
	defer m.rlock()()
	out := []*document.Permission{}
	for _, p := range m.st.permissions {
		if p.DocumentID == documentID {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}
