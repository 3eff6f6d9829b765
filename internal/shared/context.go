package shared

import "context"

// Actor identifies the authenticated caller for audit attribution.
type Actor struct {
	ID   int64
	Name string
}

type actorContextKey struct{}

// ContextWithActor stores the authenticated actor in context.
func ContextWithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context, nil when unauthenticated.
func ActorFromContext(ctx context.Context) *Actor {
	actor, _ := ctx.Value(actorContextKey{}).(*Actor)
	return actor
}

// ActorID returns the acting user id, zero when unauthenticated. Background
// jobs run without an actor and audit entries record the zero id as system.
func ActorID(ctx context.Context) int64 {
	if actor := ActorFromContext(ctx); actor != nil {
		return actor.ID
	}
	return 0
}
