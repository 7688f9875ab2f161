package shared

import "context"

// Role names understood by the API.
const (
	RoleAdmin       = "admin"
	RoleCashier     = "cashier"
	RoleDeliveryman = "livreur"
)

// Actor identifies the authenticated caller forwarded by the gateway.
type Actor struct {
	ID   int64
	Role string
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok && actor.ID > 0
}
