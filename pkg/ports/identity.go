package ports

import (
	"context"

	"github.com/sgttomas/chirality-runtime/pkg/domain"
)

// IdentityClaims are the attributes carried by a validated token.
type IdentityClaims struct {
	ActorID string   `json:"actor_id"`
	Email   string   `json:"email,omitempty"`
	Name    string   `json:"name,omitempty"`
	Roles   []string `json:"roles"`
}

// Identity turns opaque tokens into actors.
type Identity interface {
	// Validate returns the actor for token, or an error wrapping ErrInvalidToken.
	Validate(ctx context.Context, token string) (domain.Actor, error)
	// Claims returns the full claim set for token.
	Claims(ctx context.Context, token string) (*IdentityClaims, error)
	// ActorKind classifies an actor known to the identity provider.
	ActorKind(ctx context.Context, actor domain.Actor) (domain.ActorKind, error)
}
