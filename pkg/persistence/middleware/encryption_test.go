package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/sgttomas/chirality-runtime/pkg/adapters/memory"
	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/sgttomas/chirality-runtime/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func newTaskSession(inputs map[string]any) domain.AgentSession {
	return domain.NewTaskSession("4_DOCUMENTS",
		domain.SessionBrief{TaskDefinition: "Draft the pump datasheet", Inputs: inputs},
		domain.DeliverableScope{DeliverableID: "DEL-01.01"},
		domain.DeliverableLocal{DeliverableID: "DEL-01.01", DeliverablePath: "/ws/pump"},
		domain.HumanActor("alice"))
}

func mustEncryption(t *testing.T, cfg middleware.EncryptionConfig) middleware.Middleware {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	require.NoError(t, err)
	return mw
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewRepository[domain.AgentSession]("AgentSession")
	secure := mustEncryption(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	ctx := context.Background()

	s := newTaskSession(map[string]any{"deliverable_id": "DEL-01.01", "secret": "my-secret-sauce"})
	require.NoError(t, secure.Save(ctx, s.ID.String(), &s))

	stored, err := underlying.Load(ctx, s.ID.String())
	require.NoError(t, err)
	assert.Empty(t, stored.Brief.TaskDefinition, "task definition must be sealed")
	assert.NotContains(t, stored.Brief.Inputs, "secret")
	assert.Contains(t, stored.Brief.Inputs, "__encrypted__")
	assert.Equal(t, domain.SessionCreated, stored.State, "lifecycle fields stay readable")

	loaded, err := secure.Load(ctx, s.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "Draft the pump datasheet", loaded.Brief.TaskDefinition)
	assert.Equal(t, "my-secret-sauce", loaded.Brief.Inputs["secret"])
}

func TestEncryptionMiddleware_PersonaPassesThrough(t *testing.T) {
	underlying := memory.NewRepository[domain.AgentSession]("AgentSession")
	secure := mustEncryption(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	ctx := context.Background()

	s := domain.NewPersonaSession("PREPARATION", domain.AgentManager,
		domain.PackageScope{PackageID: "PKG-001"}, nil, domain.HumanActor("alice"))
	require.NoError(t, secure.Save(ctx, s.ID.String(), &s))

	loaded, err := secure.Load(ctx, s.ID.String())
	require.NoError(t, err)
	assert.Nil(t, loaded.Brief)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewRepository[domain.AgentSession]("AgentSession")
	oldKey := generateKey(t)
	newKey := generateKey(t)
	ctx := context.Background()

	secureOld := mustEncryption(t, middleware.EncryptionConfig{ActiveKey: oldKey})(underlying)

	s := newTaskSession(map[string]any{"data": "encrypted-with-old-key"})
	require.NoError(t, secureOld.Save(ctx, s.ID.String(), &s))

	secureNew := mustEncryption(t, middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlying)

	loaded, err := secureNew.Load(ctx, s.ID.String())
	require.NoError(t, err, "fallback key must decrypt")
	assert.Equal(t, "encrypted-with-old-key", loaded.Brief.Inputs["data"])

	loaded.Brief.Inputs["data"] = "encrypted-with-new-key"
	require.NoError(t, secureNew.Save(ctx, s.ID.String(), loaded))

	_, err = secureOld.Load(ctx, s.ID.String())
	assert.Error(t, err, "old key alone must not decrypt new-key data")
}

func TestEncryptionMiddleware_RejectsPlainBrief(t *testing.T) {
	underlying := memory.NewRepository[domain.AgentSession]("AgentSession")
	secure := mustEncryption(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	ctx := context.Background()

	s := newTaskSession(nil)
	require.NoError(t, underlying.Save(ctx, s.ID.String(), &s))

	_, err := secure.Load(ctx, s.ID.String())
	assert.Error(t, err)
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	assert.Error(t, err)
}
