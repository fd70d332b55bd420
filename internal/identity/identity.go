// Package identity carries the acting user through request contexts and
// keeps user profiles keyed by their token subject.
package identity

import (
	"context"
	"fmt"

	"github.com/gogotex/docflow/internal/document"
)

// Actor is the authenticated caller.
type Actor struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type ctxKey struct{}

// WithActor returns a context carrying a.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// FromContext returns the actor stored by WithActor.
func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok && a.ID != ""
}

// ActorID returns the current actor id or a permission error when the
// context is anonymous.
func ActorID(ctx context.Context) (string, error) {
	a, ok := FromContext(ctx)
	if !ok {
		return "", fmt.Errorf("%w: sign in to continue", document.ErrPermissionDenied)
	}
	return a.ID, nil
}

// FromClaims builds an actor from verified token claims. The subject is the id.
func FromClaims(claims map[string]interface{}) (Actor, bool) {
	sub, _ := claims["sub"].(string)
	name, _ := claims["name"].(string)
	email, _ := claims["email"].(string)
	if name == "" {
		name, _ = claims["preferred_username"].(string)
	}
	return Actor{ID: sub, Name: name, Email: email}, sub != ""
}

// IsAuthor reports whether actorID owns d.
func IsAuthor(actorID string, d *document.Document) bool {
	return d != nil && actorID != "" && d.AuthorID == actorID
}

// RequireAuthor returns a permission error unless actorID owns d.
func RequireAuthor(actorID string, d *document.Document, action string) error {
	if !IsAuthor(actorID, d) {
		return fmt.Errorf("%w: only the author can %s", document.ErrPermissionDenied, action)
	}
	return nil
}
