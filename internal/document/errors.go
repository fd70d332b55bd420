package document

import (
	"errors"
	"strings"
)

var (
	ErrNotFound               = errors.New("document not found")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrDocumentLocked         = errors.New("document is archived")
	ErrConcurrentModification = errors.New("document was modified concurrently")
	ErrPersistence            = errors.New("persistence failure")
	ErrValidation             = errors.New("invalid request")
)

// Error kinds as exposed at the API boundary.
const (
	KindNotFound               = "not_found"
	KindPermissionDenied       = "permission_denied"
	KindInvalidTransition      = "invalid_transition"
	KindDocumentLocked         = "document_locked"
	KindConcurrentModification = "concurrent_modification"
	KindPersistence            = "persistence_failure"
	KindValidation             = "validation"
	KindInternal               = "internal"
)

// KindOf classifies err into the workflow error taxonomy.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrDocumentLocked):
		return KindDocumentLocked
	case errors.Is(err, ErrConcurrentModification):
		return KindConcurrentModification
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	}
	return KindInternal
}

// Retryable reports whether the operation may be retried after a re-fetch.
func Retryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// Message returns the single human-readable message shown to the actor.
func Message(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindInternal:
		return "something went wrong, please try again"
	case KindPersistence:
		return "the document store is unavailable, please try again later"
	}
	msg := err.Error()
	// keep the detail that follows the sentinel prefix, e.g.
	// "permission denied: only the author can archive" -> "Only the author can archive"
	if i := strings.LastIndex(msg, ": "); i >= 0 && i+2 < len(msg) {
		msg = msg[i+2:]
	}
	if msg == "" {
		return msg
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}
