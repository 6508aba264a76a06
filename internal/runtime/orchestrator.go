package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sgttomas/chirality-runtime/internal/logging"
	"github.com/sgttomas/chirality-runtime/pkg/brief"
	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/sgttomas/chirality-runtime/pkg/ports"
	"github.com/sgttomas/chirality-runtime/pkg/session"
)

// Stores groups the repositories the Orchestrator persists entities in.
type Stores struct {
	Projects     ports.Repository[domain.Project]
	Packages     ports.Repository[domain.Package]
	Deliverables ports.Repository[domain.Deliverable]
	Documents    ports.Repository[domain.Document]
	Sessions     *session.Manager
}

// Orchestrator composes the domain core with its collaborators.
// Every mutation runs under the per-entity lock of the session manager.
type Orchestrator struct {
	stores    Stores
	workspace ports.Workspace
	blobs     ports.BlobStore

	vcs      ports.VersionControl
	ledger   ports.StatusLedger
	executor ports.AgentExecutor

	guard  *domain.Guard
	briefs *brief.Validator
	hooks  domain.LifecycleHooks
	logger *slog.Logger

	instructions func(agentName string) string

	mu       sync.Mutex
	personas map[domain.SessionID]*ports.PersonaSession
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithVersionControl commits and tags issued deliverables.
func WithVersionControl(vcs ports.VersionControl) Option {
	return func(o *Orchestrator) { o.vcs = vcs }
}

// WithLedger records every deliverable transition in the status ledger.
func WithLedger(ledger ports.StatusLedger) Option {
	return func(o *Orchestrator) { o.ledger = ledger }
}

// WithExecutor sets the agent executor used by RunTask and persona sessions.
func WithExecutor(executor ports.AgentExecutor) Option {
	return func(o *Orchestrator) { o.executor = executor }
}

// WithGuard replaces the default fallback guard.
func WithGuard(guard *domain.Guard) Option {
	return func(o *Orchestrator) {
		if guard != nil {
			o.guard = guard
		}
	}
}

// WithBriefValidator replaces the built-in brief rules.
func WithBriefValidator(v *brief.Validator) Option {
	return func(o *Orchestrator) {
		if v != nil {
			o.briefs = v
		}
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(o *Orchestrator) { o.hooks = hooks }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithInstructions supplies the agent instructions handed to the executor.
func WithInstructions(fn func(agentName string) string) Option {
	return func(o *Orchestrator) { o.instructions = fn }
}

// NewOrchestrator creates an Orchestrator. Stores, workspace and blobs are required.
func NewOrchestrator(stores Stores, workspace ports.Workspace, blobs ports.BlobStore, opts ...Option) (*Orchestrator, error) {
	if stores.Projects == nil || stores.Packages == nil || stores.Deliverables == nil ||
		stores.Documents == nil || stores.Sessions == nil {
		return nil, errors.New("runtime: all stores are required")
	}
	if workspace == nil {
		return nil, errors.New("runtime: workspace is required")
	}
	if blobs == nil {
		return nil, errors.New("runtime: blob store is required")
	}
	o := &Orchestrator{
		stores:    stores,
		workspace: workspace,
		blobs:     blobs,
		guard:     domain.NewGuard(),
		briefs:    brief.NewValidator(nil),
		logger:    logging.NewNop(),
		personas:  make(map[domain.SessionID]*ports.PersonaSession),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Guard returns the write guard in use.
func (o *Orchestrator) Guard() *domain.Guard { return o.guard }

// Briefs returns the brief validator in use.
func (o *Orchestrator) Briefs() *brief.Validator { return o.briefs }

// withLock serializes fn with every other mutation of the entity id.
func (o *Orchestrator) withLock(ctx context.Context, id string, fn func(context.Context) error) error {
	return o.stores.Sessions.WithLock(ctx, id, fn)
}

// load wraps a repository lookup so missing entities carry their type and id.
func load[T any](ctx context.Context, repo ports.Repository[T], entity, id string) (*T, error) {
	v, err := repo.Load(ctx, id)
	if err == nil {
		return v, nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &domain.NotFoundError{EntityType: entity, ID: id}
	}
	return nil, fmt.Errorf("failed to load %s %s: %w", entity, id, err)
}

func (o *Orchestrator) fireDeliverable(ctx context.Context, d *domain.Deliverable, from domain.DeliverableState, actor domain.Actor) {
	if o.hooks.OnDeliverableTransition == nil {
		return
	}
	o.hooks.OnDeliverableTransition(ctx, &domain.DeliverableEvent{
		EventBase:     domain.NewEventBase(domain.EventDeliverableTransition),
		DeliverableID: d.ID,
		From:          from,
		To:            d.State,
		Actor:         actor,
	})
}

func (o *Orchestrator) fireSession(ctx context.Context, s *domain.AgentSession, from domain.SessionState) {
	if from == s.State || o.hooks.OnSessionTransition == nil {
		return
	}
	o.hooks.OnSessionTransition(ctx, &domain.SessionEvent{
		EventBase: domain.NewEventBase(domain.EventSessionTransition),
		SessionID: s.ID,
		AgentName: s.AgentName,
		From:      from,
		To:        s.State,
	})
}

func (o *Orchestrator) fireDenied(ctx context.Context, id domain.SessionID, v *domain.WriteViolationError) {
	o.logger.Warn("write denied", "session_id", id, "path", v.TargetPath, "scope", v.Scope, "reason", v.Reason)
	if o.hooks.OnWriteDenied == nil {
		return
	}
	o.hooks.OnWriteDenied(ctx, &domain.WriteEvent{
		EventBase: domain.NewEventBase(domain.EventWriteDenied),
		SessionID: id,
		Path:      v.TargetPath,
		Scope:     v.Scope,
		Reason:    v.Reason,
	})
}

func (o *Orchestrator) fireWritten(ctx context.Context, id domain.SessionID, path string, scope domain.WriteScope, hash domain.ContentHash) {
	if o.hooks.OnArtifactWritten == nil {
		return
	}
	o.hooks.OnArtifactWritten(ctx, &domain.WriteEvent{
		EventBase: domain.NewEventBase(domain.EventArtifactWritten),
		SessionID: id,
		Path:      path,
		Scope:     scope.String(),
		Hash:      hash,
	})
}

func (o *Orchestrator) fireBriefRejected(ctx context.Context, agentName string, err error) {
	o.logger.Warn("brief rejected", "agent", agentName, "err", err)
	if o.hooks.OnBriefRejected == nil {
		return
	}
	reason := err.Error()
	var invalid *domain.InvalidBriefError
	if errors.As(err, &invalid) {
		reason = invalid.Reason
	}
	o.hooks.OnBriefRejected(ctx, &domain.BriefEvent{
		EventBase: domain.NewEventBase(domain.EventBriefRejected),
		AgentName: agentName,
		Reason:    reason,
	})
}
