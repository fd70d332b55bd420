package workflow

import (
	"fmt"
	"strings"

	"github.com/gogotex/docflow/internal/document"
)

// Event names a workflow operation. The values appear in metrics and in the
// workflowEvent field of emitted domain events.
type Event string

const (
	EventCreate         Event = "create"
	EventRequestReview  Event = "request_review"
	EventOpenReview     Event = "open_review"
	EventApprove        Event = "approve"
	EventRequestChanges Event = "request_changes"
	EventRevoke         Event = "revoke"
	EventResubmit       Event = "resubmit"
	EventDecline        Event = "decline"
	EventEdit           Event = "edit"
	EventArchive        Event = "archive"
	EventRestore        Event = "restore"
	EventPublish        Event = "publish"
	EventDelete         Event = "delete"
	EventComment        Event = "comment"
)

var verbs = map[Event]string{
	EventRequestReview:  "request a review",
	EventOpenReview:     "open the review",
	EventApprove:        "approve",
	EventRequestChanges: "request changes",
	EventRevoke:         "revoke the approval",
	EventResubmit:       "resubmit",
	EventDecline:        "decline the review",
	EventEdit:           "edit the content",
	EventArchive:        "archive",
	EventRestore:        "restore",
	EventPublish:        "publish",
	EventDelete:         "delete",
	EventComment:        "comment",
}

func (ev Event) verb() string {
	if v, ok := verbs[ev]; ok {
		return v
	}
	return string(ev)
}

type actorRole int

const (
	roleAuthor actorRole = iota
	roleReviewer
	roleAnyone
)

type transition struct {
	from []document.Status
	// to is empty when the operation decides the target itself
	to        document.Status
	role      actorRole
	templates bool
}

var (
	live        = []document.Status{document.StatusDraft, document.StatusInReview, document.StatusChangesRequested, document.StatusApproved, document.StatusPublished}
	allStatuses = append([]document.Status{document.StatusArchived}, live...)
)

var transitions = map[Event]transition{
	EventRequestReview: {
		from: []document.Status{document.StatusDraft, document.StatusChangesRequested, document.StatusInReview},
		to:   document.StatusInReview,
		role: roleAuthor,
	},
	EventOpenReview: {
		from: []document.Status{document.StatusInReview},
		to:   document.StatusInReview,
		role: roleReviewer,
	},
	EventApprove: {
		from: []document.Status{document.StatusInReview},
		to:   document.StatusApproved,
		role: roleReviewer,
	},
	EventRequestChanges: {
		from: []document.Status{document.StatusInReview, document.StatusApproved},
		to:   document.StatusChangesRequested,
		role: roleReviewer,
	},
	EventRevoke: {
		from: []document.Status{document.StatusApproved},
		to:   document.StatusInReview,
		role: roleReviewer,
	},
	EventResubmit: {
		from: []document.Status{document.StatusChangesRequested},
		to:   document.StatusInReview,
		role: roleAuthor,
	},
	EventDecline: {
		from: []document.Status{document.StatusInReview},
		role: roleReviewer,
	},
	EventEdit:    {from: live, role: roleAuthor, templates: true},
	EventArchive: {from: live, to: document.StatusArchived, role: roleAuthor, templates: true},
	EventRestore: {
		from:      []document.Status{document.StatusArchived},
		to:        document.StatusPublished,
		role:      roleAuthor,
		templates: true,
	},
	EventPublish: {
		from: []document.Status{document.StatusApproved},
		to:   document.StatusPublished,
		role: roleAuthor,
	},
	EventDelete:  {from: allStatuses, role: roleAuthor, templates: true},
	EventComment: {from: live, role: roleAnyone, templates: true},
}

// editOutcome is what a content update does to the document status and the
// review ledger, keyed by the status before the update.
type editOutcome struct {
	to            document.Status
	cancelReviews bool
	resubmit      bool
}

var onEdit = map[document.Status]editOutcome{
	document.StatusDraft:            {to: document.StatusDraft},
	document.StatusInReview:         {to: document.StatusInReview},
	document.StatusChangesRequested: {to: document.StatusChangesRequested},
	// an edit invalidates a prior sign-off
	document.StatusApproved:  {to: document.StatusDraft, cancelReviews: true},
	document.StatusPublished: {to: document.StatusDraft, cancelReviews: true},
}

var onEditResubmit = map[document.Status]editOutcome{
	document.StatusChangesRequested: {to: document.StatusInReview, resubmit: true},
}

func outcomeOfEdit(d *document.Document, resubmit bool) editOutcome {
	if d.IsTemplate {
		return editOutcome{to: d.Status}
	}
	if resubmit {
		if o, ok := onEditResubmit[d.Status]; ok {
			return o
		}
	}
	return onEdit[d.Status]
}

// locked rejects every operation on an archived document except the ones
// that leave the archive: restore and delete.
func locked(ev Event, d *document.Document) error {
	if d.Status != document.StatusArchived || ev == EventRestore || ev == EventDelete {
		return nil
	}
	return fmt.Errorf("%w: restore it before you %s", document.ErrDocumentLocked, ev.verb())
}

// allowed checks ev against the transition table for the current status.
func allowed(ev Event, d *document.Document) (transition, error) {
	t, ok := transitions[ev]
	if !ok {
		return t, fmt.Errorf("%w: unknown workflow event %q", document.ErrInvalidTransition, ev)
	}
	if d.IsTemplate && !t.templates {
		return t, fmt.Errorf("%w: templates do not go through review", document.ErrInvalidTransition)
	}
	if !d.Status.In(t.from...) {
		return t, fmt.Errorf("%w: cannot %s while the document is %s", document.ErrInvalidTransition, ev.verb(), humanStatus(d.Status))
	}
	return t, nil
}

func humanStatus(s document.Status) string {
	return strings.ReplaceAll(string(s), "_", " ")
}
