// Package ctxutil carries request-scoped identity through context so the
// HTTP layer and the services agree on who triggered an operation. It
// imports nothing internal and is safe to use from any package.
package ctxutil

import "context"

// ActorKey keys the requesting actor's ID in a context. Lifecycle
// transitions and audit events attribute themselves to this value.
type ActorKey struct{}

// WithActorID tags the context with the requesting actor.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, ActorKey{}, actorID)
}

// ActorFromContext returns the requesting actor's ID, or "" when the call
// carries no attribution.
func ActorFromContext(ctx context.Context) string {
	if v := ctx.Value(ActorKey{}); v != nil {
		return v.(string)
	}
	return ""
}
