package shared

import (
	"context"
	"slices"
	"strconv"
	"strings"
)

// Headers set by the upstream gateway after authentication.
const (
	HeaderActorID          = "X-Actor-ID"
	HeaderActorPermissions = "X-Actor-Permissions"
)

// Ledger permissions.
const (
	PermFinanceGLView      = "finance.gl.view"
	PermFinanceGLEdit      = "finance.gl.edit"
	PermFinancePeriodClose = "finance.period.close"
)

// Actor is the authenticated caller of a request.
type Actor struct {
	ID          int64
	Permissions []string
}

// Can reports whether the actor holds perm.
func (a Actor) Can(perm string) bool {
	return slices.Contains(a.Permissions, perm)
}

// Elevated reports whether the actor may run period rollovers.
func (a Actor) Elevated() bool {
	return a.Can(PermFinancePeriodClose)
}

// ParseActor reads the actor headers. A missing or invalid id yields the zero Actor.
func ParseActor(id, permissions string) Actor {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || n <= 0 {
		return Actor{}
	}
	actor := Actor{ID: n}
	for _, p := range strings.Split(permissions, ",") {
		if p = strings.TrimSpace(p); p != "" {
			actor.Permissions = append(actor.Permissions, p)
		}
	}
	return actor
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
