// Package events carries the typed domain events emitted by the workflow
// engine after each committed transition. Caches, live streams, metrics and
// exporters subscribe independently.
package events

import (
	"time"

	"github.com/gogotex/docflow/internal/document"
)

type Type string

const (
	DocumentStatusChanged  Type = "DocumentStatusChanged"
	DocumentContentUpdated Type = "DocumentContentUpdated"
	DocumentCreated        Type = "DocumentCreated"
	DocumentDeleted        Type = "DocumentDeleted"
	ReviewRequestUpdated   Type = "ReviewRequestUpdated"
	RevisionCreated        Type = "RevisionCreated"
	CommentsChanged        Type = "CommentsChanged"
)

// Event is one committed change. Only the fields relevant to Type are set.
type Event struct {
	Type       Type      `json:"type"`
	DocumentID string    `json:"documentId"`
	ActorID    string    `json:"actorId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`

	// who is affected; used to bust per-user views
	AuthorID    string   `json:"authorId,omitempty"`
	ProjectID   string   `json:"projectId,omitempty"`
	ReviewerIDs []string `json:"reviewerIds,omitempty"`
	IsTemplate  bool     `json:"isTemplate,omitempty"`

	From     document.Status `json:"from,omitempty"`
	To       document.Status `json:"to,omitempty"`
	Version  int             `json:"version,omitempty"`
	Workflow string          `json:"workflowEvent,omitempty"`

	Document *document.Document      `json:"document,omitempty"`
	Review   *document.ReviewRequest `json:"review,omitempty"`
	Revision *document.Revision      `json:"revision,omitempty"`
}
