// Package channels connects chat platforms to the resolver.
package channels

import (
	"context"
	"net/http"

	"murmur/internal/resolver"
)

type Channel interface {
	Name() string
	RegisterRoutes(mux *http.ServeMux)
}

// Resolver resolves an utterance received on a channel.
type Resolver interface {
	Resolve(ctx context.Context, utterance string) (resolver.Resolution, error)
}
