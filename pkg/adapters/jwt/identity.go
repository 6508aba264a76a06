// Package jwt implements ports.Identity over HMAC-signed JSON Web Tokens.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/sgttomas/chirality-runtime/pkg/ports"
)

// Claims is the token payload. The subject is the actor id.
type Claims struct {
	gojwt.RegisteredClaims
	Kind  domain.ActorKind `json:"kind,omitempty"`
	Email string           `json:"email,omitempty"`
	Name  string           `json:"name,omitempty"`
	Roles []string         `json:"roles,omitempty"`
}

// Identity validates and issues HS256 tokens.
type Identity struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// Option configures an Identity.
type Option func(*Identity)

// WithIssuer requires (and stamps) the iss claim.
func WithIssuer(issuer string) Option {
	return func(i *Identity) {
		i.issuer = issuer
	}
}

// New creates an Identity with the shared secret.
func New(secret []byte, opts ...Option) (*Identity, error) {
	if len(secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}
	i := &Identity{secret: secret, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue signs a token for actor valid for ttl.
func (i *Identity) Issue(actor domain.Actor, email, name string, roles []string, ttl time.Duration) (string, error) {
	now := i.now()
	claims := Claims{
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    i.issuer,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(ttl)),
		},
		Kind:  actor.Kind,
		Email: email,
		Name:  name,
		Roles: roles,
	}
	return gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(i.secret)
}

func (i *Identity) parse(token string) (*Claims, error) {
	if token == "" {
		return nil, ports.ErrAuthenticationRequired
	}

	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithTimeFunc(i.now),
		gojwt.WithExpirationRequired(),
	}
	if i.issuer != "" {
		opts = append(opts, gojwt.WithIssuer(i.issuer))
	}

	var claims Claims
	_, err := gojwt.ParseWithClaims(token, &claims, func(*gojwt.Token) (any, error) {
		return i.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ports.ErrInvalidToken)
	}
	if claims.Kind == "" {
		claims.Kind = domain.ActorHuman
	}
	if !claims.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown actor kind %q", ports.ErrInvalidToken, claims.Kind)
	}
	return &claims, nil
}

func (i *Identity) Validate(ctx context.Context, token string) (domain.Actor, error) {
	claims, err := i.parse(token)
	if err != nil {
		return domain.Actor{}, err
	}
	return domain.Actor{Kind: claims.Kind, ID: claims.Subject}, nil
}

func (i *Identity) Claims(ctx context.Context, token string) (*ports.IdentityClaims, error) {
	claims, err := i.parse(token)
	if err != nil {
		return nil, err
	}
	roles := claims.Roles
	if roles == nil {
		roles = []string{}
	}
	return &ports.IdentityClaims{
		ActorID: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Roles:   roles,
	}, nil
}

// ActorKind trusts the kind carried by the actor; tokens are the only source of actors here.
func (i *Identity) ActorKind(ctx context.Context, actor domain.Actor) (domain.ActorKind, error) {
	if !actor.Kind.Valid() {
		return "", fmt.Errorf("%w: unknown actor kind %q", ports.ErrInvalidToken, actor.Kind)
	}
	return actor.Kind, nil
}
