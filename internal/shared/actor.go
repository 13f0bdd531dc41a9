package shared

import (
	"context"
	"net/http"
	"strings"
)

// Actor identifies the authenticated principal performing an operation.
// Authentication itself happens upstream; this service only consumes the
// identity the gateway forwards.
type Actor struct {
	ID string
}

// ActorHeader carries the principal identifier set by the auth layer.
const ActorHeader = "X-Actor"

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}

// ActorMiddleware rejects mutating requests without a forwarded principal.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(ActorHeader))
		if id == "" && r.Method != http.MethodGet && r.Method != http.MethodHead && r.Method != http.MethodOptions {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		ctx := ContextWithActor(r.Context(), Actor{ID: id})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
