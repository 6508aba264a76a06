package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/sgttomas/chirality-runtime/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Hooks(t *testing.T) {
	m := observability.NewMetrics()
	hooks := m.Hooks()
	ctx := context.Background()

	hooks.OnDeliverableTransition(ctx, &domain.DeliverableEvent{To: domain.DeliverableIssued})
	hooks.OnSessionTransition(ctx, &domain.SessionEvent{AgentName: "4_DOCUMENTS", To: domain.SessionActive})
	hooks.OnWriteDenied(ctx, &domain.WriteEvent{Scope: "None"})
	hooks.OnWriteDenied(ctx, &domain.WriteEvent{Scope: "None"})
	hooks.OnArtifactWritten(ctx, &domain.WriteEvent{})
	hooks.OnBriefRejected(ctx, &domain.BriefEvent{AgentName: "AUDIT"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliverableTransitions.WithLabelValues("ISSUED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionTransitions.WithLabelValues("4_DOCUMENTS", "ACTIVE")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.WritesDenied.WithLabelValues("None")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ArtifactsWritten))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BriefsRejected.WithLabelValues("AUDIT")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "chirality_writes_denied_total")
}

func TestCombine_FansOutAndSkipsNil(t *testing.T) {
	var calls []string
	a := domain.LifecycleHooks{
		OnDeliverableTransition: func(context.Context, *domain.DeliverableEvent) { calls = append(calls, "a") },
	}
	b := domain.LifecycleHooks{
		OnDeliverableTransition: func(context.Context, *domain.DeliverableEvent) { calls = append(calls, "b") },
	}

	hooks := observability.Combine(a, domain.LifecycleHooks{}, b)
	hooks.OnDeliverableTransition(context.Background(), &domain.DeliverableEvent{})
	hooks.OnBriefRejected(context.Background(), &domain.BriefEvent{})

	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestLoggingHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	hooks := observability.LoggingHooks(logger)

	hooks.OnWriteDenied(context.Background(), &domain.WriteEvent{Path: "/etc/passwd", Scope: "None", Reason: "no writes"})
	out := buf.String()
	require.Contains(t, out, "write_denied")
	assert.Contains(t, out, "path=/etc/passwd")
}
