package observability

import (
	"context"
	"log/slog"

	"github.com/sgttomas/chirality-runtime/pkg/domain"
)

// Combine fans every event out to all hook sets, in order.
func Combine(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnDeliverableTransition: func(ctx context.Context, e *domain.DeliverableEvent) {
			for _, s := range sets {
				if s.OnDeliverableTransition != nil {
					s.OnDeliverableTransition(ctx, e)
				}
			}
		},
		OnSessionTransition: func(ctx context.Context, e *domain.SessionEvent) {
			for _, s := range sets {
				if s.OnSessionTransition != nil {
					s.OnSessionTransition(ctx, e)
				}
			}
		},
		OnWriteDenied: func(ctx context.Context, e *domain.WriteEvent) {
			for _, s := range sets {
				if s.OnWriteDenied != nil {
					s.OnWriteDenied(ctx, e)
				}
			}
		},
		OnArtifactWritten: func(ctx context.Context, e *domain.WriteEvent) {
			for _, s := range sets {
				if s.OnArtifactWritten != nil {
					s.OnArtifactWritten(ctx, e)
				}
			}
		},
		OnBriefRejected: func(ctx context.Context, e *domain.BriefEvent) {
			for _, s := range sets {
				if s.OnBriefRejected != nil {
					s.OnBriefRejected(ctx, e)
				}
			}
		},
	}
}

// LoggingHooks writes one structured line per event.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnDeliverableTransition: func(ctx context.Context, e *domain.DeliverableEvent) {
			logger.InfoContext(ctx, "deliverable_transition",
				"deliverable_id", e.DeliverableID,
				"from", e.From,
				"to", e.To,
				"actor", e.Actor.String(),
			)
		},
		OnSessionTransition: func(ctx context.Context, e *domain.SessionEvent) {
			logger.InfoContext(ctx, "session_transition",
				"session_id", e.SessionID,
				"agent", e.AgentName,
				"from", e.From,
				"to", e.To,
			)
		},
		OnWriteDenied: func(ctx context.Context, e *domain.WriteEvent) {
			logger.WarnContext(ctx, "write_denied",
				"session_id", e.SessionID,
				"path", e.Path,
				"scope", e.Scope,
				"reason", e.Reason,
			)
		},
		OnArtifactWritten: func(ctx context.Context, e *domain.WriteEvent) {
			logger.InfoContext(ctx, "artifact_written",
				"session_id", e.SessionID,
				"path", e.Path,
				"hash", e.Hash,
			)
		},
		OnBriefRejected: func(ctx context.Context, e *domain.BriefEvent) {
			logger.WarnContext(ctx, "brief_rejected",
				"agent", e.AgentName,
				"reason", e.Reason,
			)
		},
	}
}
