package shared

import "context"

type actorContextKey struct{}

// SystemActor is recorded when no caller identity is present.
const SystemActor = "system"

// ContextWithActor stores the acting user or process in context.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorContextKey{}).(string)
	if actor == "" {
		return SystemActor
	}
	return actor
}
