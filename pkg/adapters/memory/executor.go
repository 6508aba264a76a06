package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/sgttomas/chirality-runtime/pkg/ports"
)

// TaskFunc scripts the behavior of one task agent.
type TaskFunc func(ctx context.Context, brief domain.SessionBrief, execCtx ports.ExecutionContext) (*ports.TaskResult, error)

// PersonaFunc scripts one persona reply given the conversation so far.
type PersonaFunc func(ctx context.Context, history []ports.ConversationTurn, input string) (*ports.PersonaResponse, error)

// Executor implements ports.AgentExecutor with scripted agents.
// It is meant for tests and offline runs.
type Executor struct {
	mu       sync.RWMutex
	tasks    map[string]TaskFunc
	personas map[string]PersonaFunc
}

// ExecutorOption registers agents on an Executor.
type ExecutorOption func(*Executor)

// WithTask registers a task agent.
func WithTask(name string, fn TaskFunc) ExecutorOption {
	return func(e *Executor) { e.tasks[name] = fn }
}

// WithPersona registers a persona agent.
func WithPersona(name string, fn PersonaFunc) ExecutorOption {
	return func(e *Executor) { e.personas[name] = fn }
}

// NewExecutor creates an executor with the given agents.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		tasks:    make(map[string]TaskFunc),
		personas: make(map[string]PersonaFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) ExecuteTask(ctx context.Context, agentName string, brief domain.SessionBrief, execCtx ports.ExecutionContext) (*ports.TaskResult, error) {
	e.mu.RLock()
	fn, ok := e.tasks[agentName]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrAgentNotFound, agentName)
	}
	return fn(ctx, brief, execCtx)
}

func (e *Executor) StartPersona(ctx context.Context, sessionID domain.SessionID, agentName string, execCtx ports.ExecutionContext) (*ports.PersonaSession, error) {
	e.mu.RLock()
	_, ok := e.personas[agentName]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrAgentNotFound, agentName)
	}

	ps := &ports.PersonaSession{
		SessionID: sessionID,
		AgentName: agentName,
	}
	if execCtx.AgentInstructions != "" {
		ps.ConversationHistory = append(ps.ConversationHistory, ports.ConversationTurn{
			Role:    ports.RoleSystem,
			Content: execCtx.AgentInstructions,
		})
	}
	return ps, nil
}

func (e *Executor) ContinuePersona(ctx context.Context, session *ports.PersonaSession, input string) (*ports.PersonaResponse, error) {
	if session == nil {
		return nil, ports.ErrSessionNotFound
	}

	e.mu.RLock()
	fn, ok := e.personas[session.AgentName]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrAgentNotFound, session.AgentName)
	}

	resp, err := fn(ctx, session.ConversationHistory, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrAgentExecution, err)
	}

	session.ConversationHistory = append(session.ConversationHistory,
		ports.ConversationTurn{Role: ports.RoleHuman, Content: input},
		ports.ConversationTurn{Role: ports.RoleAgent, Content: resp.Content},
	)
	return resp, nil
}
