package shared

import (
	"context"
	"strings"
)

// ActorHeader names the request header identifying who performs a write.
const ActorHeader = "X-Actor"

const maxActorLen = 64

type actorContextKey struct{}

// ContextWithActor stores the acting user or system in context. Blank actors
// are ignored and long ones truncated.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ctx
	}
	if len(actor) > maxActorLen {
		actor = actor[:maxActorLen]
	}
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor, or "" when none was set.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorContextKey{}).(string)
	return actor
}
