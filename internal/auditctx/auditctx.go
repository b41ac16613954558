// Package auditctx carries the acting account through request contexts so services can
// attribute audit entries without taking the actor as a parameter everywhere.
package auditctx

import (
	"context"
	"strings"
)

// Actor identifies who initiated a request and from where.
type Actor struct {
	AccountID string
	Name      string
	IPAddress string
	UserAgent string
}

// Anonymous reports whether no account is attached.
func (a Actor) Anonymous() bool {
	return strings.TrimSpace(a.AccountID) == ""
}

// Label renders the actor for audit summaries.
func (a Actor) Label() string {
	switch {
	case a.Anonymous():
		return "anonymous"
	case a.Name == "":
		return a.AccountID
	default:
		return a.Name + " (" + a.AccountID + ")"
	}
}

type actorKey struct{}

// WithActor returns a derived context carrying actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

// FromContext extracts the actor stored by WithActor.
func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}
