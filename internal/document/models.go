package document

import "time"

// Document is the persistent document aggregate. Status and Version are owned
// by the workflow engine; nothing else writes them.
type Document struct {
	ID          string     `json:"id" bson:"_id"`
	Title       string     `json:"title" bson:"title"`
	Body        string     `json:"body" bson:"body"`
	Status      Status     `json:"status" bson:"status"`
	Version     int        `json:"version" bson:"version"`
	IsTemplate  bool       `json:"isTemplate" bson:"isTemplate"`
	TemplateID  string     `json:"templateId,omitempty" bson:"templateId,omitempty"`
	AuthorID    string     `json:"authorId" bson:"authorId"`
	ProjectID   string     `json:"projectId" bson:"projectId"`
	CreatedAt   time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt" bson:"updatedAt"`
	PublishedAt *time.Time `json:"publishedAt,omitempty" bson:"publishedAt,omitempty"`
	// SnapshotPending is set when the last content update could not write its
	// revision snapshot.
	SnapshotPending bool `json:"snapshotPending,omitempty" bson:"snapshotPending,omitempty"`
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	if d.PublishedAt != nil {
		t := *d.PublishedAt
		c.PublishedAt = &t
	}
	return &c
}

// Revision is an immutable snapshot of a document's content at VersionNumber.
type Revision struct {
	ID            string    `json:"id" bson:"_id"`
	DocumentID    string    `json:"documentId" bson:"documentId"`
	VersionNumber int       `json:"versionNumber" bson:"versionNumber"`
	Title         string    `json:"title" bson:"title"`
	Body          string    `json:"body" bson:"body"`
	CreatedBy     string    `json:"createdBy" bson:"createdBy"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt"`
	ChangeSummary string    `json:"changeSummary,omitempty" bson:"changeSummary,omitempty"`
}

// ReviewRequest is one ledger row for a (document, reviewer) pair.
type ReviewRequest struct {
	ID            string       `json:"id" bson:"_id"`
	DocumentID    string       `json:"documentId" bson:"documentId"`
	ReviewerID    string       `json:"reviewerId" bson:"reviewerId"`
	RequesterID   string       `json:"requesterId" bson:"requesterId"`
	Status        ReviewStatus `json:"status" bson:"status"`
	Message       string       `json:"message,omitempty" bson:"message,omitempty"`
	DueAt         *time.Time   `json:"dueAt,omitempty" bson:"dueAt,omitempty"`
	CreatedAt     time.Time    `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt" bson:"updatedAt"`
	ReRequestedAt *time.Time   `json:"reRequestedAt,omitempty" bson:"reRequestedAt,omitempty"`
	ResubmittedAt *time.Time   `json:"resubmittedAt,omitempty" bson:"resubmittedAt,omitempty"`
	// ReviewedVersion is the document version at the reviewer's last decision.
	ReviewedVersion int `json:"reviewedVersion" bson:"reviewedVersion"`
}

// Clone returns a deep copy.
func (r *ReviewRequest) Clone() *ReviewRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.DueAt = cloneTime(r.DueAt)
	c.ReRequestedAt = cloneTime(r.ReRequestedAt)
	c.ResubmittedAt = cloneTime(r.ResubmittedAt)
	return &c
}

// Comment is a discussion entry on a document. Replies carry ParentID.
type Comment struct {
	ID         string     `json:"id" bson:"_id"`
	DocumentID string     `json:"documentId" bson:"documentId"`
	AuthorID   string     `json:"authorId" bson:"authorId"`
	Body       string     `json:"body" bson:"body"`
	ParentID   string     `json:"parentId,omitempty" bson:"parentId,omitempty"`
	IsResolved bool       `json:"isResolved" bson:"isResolved"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty" bson:"resolvedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt" bson:"createdAt"`
}

// Thread groups a top-level comment with its replies.
type Thread struct {
	Root    *Comment   `json:"root"`
	Replies []*Comment `json:"replies"`
}

// Permission grants a role on a document to a user.
type Permission struct {
	DocumentID string `json:"documentId" bson:"documentId"`
	UserID     string `json:"userId" bson:"userId"`
	Role       string `json:"role" bson:"role"`
}

// Document roles.
const (
	RoleOwner     = "owner"
	RoleEditor    = "editor"
	RoleCommenter = "commenter"
	RoleViewer    = "viewer"
)

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
