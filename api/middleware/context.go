package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

type principalKey struct{}

// principal is the authenticated caller attached by Auth or OptionalAuth.
type principal struct {
	actor     types.Actor
	sessionID string
}

func principalFrom(ctx context.Context) (principal, bool) {
	if ctx == nil {
		return principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(principal)
	if !ok || p.actor.UserID == uuid.Nil {
		return principal{}, false
	}
	return p, true
}

// ActorFromContext returns the caller identity. Anonymous requests yield nil.
func ActorFromContext(ctx context.Context) *types.Actor {
	p, ok := principalFrom(ctx)
	if !ok {
		return nil
	}
	actor := p.actor
	return &actor
}

// UserIDFromContext returns the caller's id as a string, or "" when anonymous.
func UserIDFromContext(ctx context.Context) string {
	if p, ok := principalFrom(ctx); ok {
		return p.actor.UserID.String()
	}
	return ""
}

// SessionIDFromContext returns the JWT id of the authenticated session.
func SessionIDFromContext(ctx context.Context) string {
	p, _ := principalFrom(ctx)
	return p.sessionID
}

// WithActor attaches an identity without a session, for tests and internal
// callers.
func WithActor(ctx context.Context, actor types.Actor) context.Context {
	return withPrincipal(ctx, actor, "")
}

func withPrincipal(ctx context.Context, actor types.Actor, sessionID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey{}, principal{actor: actor, sessionID: sessionID})
}
