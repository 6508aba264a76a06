package middleware

import (
	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/sgttomas/chirality-runtime/pkg/ports"
)

// SessionRepository is the store the middlewares wrap.
type SessionRepository = ports.Repository[domain.AgentSession]

// Middleware allows wrapping a session repository to add behavior.
type Middleware func(SessionRepository) SessionRepository

// Chain applies middlewares so the first one listed sees calls first.
func Chain(store SessionRepository, mws ...Middleware) SessionRepository {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
