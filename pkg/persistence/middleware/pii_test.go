package middleware_test

import (
	"context"
	"testing"

	"github.com/sgttomas/chirality-runtime/pkg/adapters/memory"
	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/sgttomas/chirality-runtime/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	underlying := memory.NewRepository[domain.AgentSession]("AgentSession")
	mw, err := middleware.NewPIIMiddleware([]string{"password", "ssn"})
	require.NoError(t, err)
	secure := mw(underlying)
	ctx := context.Background()

	s := newTaskSession(map[string]any{
		"deliverable_id": "DEL-01.01",
		"user_password":  "secret123",
		"details": map[string]any{
			"address":    "123 St",
			"ssn_number": "999-99-9999",
		},
	})
	require.NoError(t, secure.Save(ctx, s.ID.String(), &s))

	assert.Equal(t, "secret123", s.Brief.Inputs["user_password"], "caller's session must not be modified")

	stored, err := underlying.Load(ctx, s.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "DEL-01.01", stored.Brief.Inputs["deliverable_id"])
	assert.Equal(t, middleware.Mask, stored.Brief.Inputs["user_password"])

	details := stored.Brief.Inputs["details"].(map[string]any)
	assert.Equal(t, "123 St", details["address"])
	assert.Equal(t, middleware.Mask, details["ssn_number"])
}

func TestPIIMiddleware_InvalidPattern(t *testing.T) {
	_, err := middleware.NewPIIMiddleware([]string{"("})
	assert.Error(t, err)
}

func TestChain_MaskThenEncrypt(t *testing.T) {
	underlying := memory.NewRepository[domain.AgentSession]("AgentSession")
	pii, err := middleware.NewPIIMiddleware([]string{"(?i)token"})
	require.NoError(t, err)
	enc := mustEncryption(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)})

	store := middleware.Chain(underlying, pii, enc)
	ctx := context.Background()

	s := newTaskSession(map[string]any{"API_TOKEN": "abc"})
	require.NoError(t, store.Save(ctx, s.ID.String(), &s))

	loaded, err := store.Load(ctx, s.ID.String())
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, loaded.Brief.Inputs["API_TOKEN"])
}
