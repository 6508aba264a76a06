package ports

import (
	"context"

	"github.com/sgttomas/chirality-runtime/pkg/domain"
)

// ExecutionContext is what an agent is given to run against.
type ExecutionContext struct {
	WorkspacePath     string            `json:"workspace_path"`
	AgentInstructions string            `json:"agent_instructions"`
	WriteScope        domain.WriteScope `json:"write_scope"`
	DeliverablePath   string            `json:"deliverable_path,omitempty"`
	ContextFiles      []string          `json:"context_files"`
}

// ProducedFile is content an agent wants written. The runtime guards and writes it.
type ProducedFile struct {
	Path        string            `json:"path"`
	Content     []byte            `json:"content"`
	Type        domain.OutputType `json:"output_type"`
	Description string            `json:"description,omitempty"`
}

// TaskResult is the outcome of a Task session.
type TaskResult struct {
	Success bool           `json:"success"`
	Outputs []ProducedFile `json:"outputs"`
	Log     string         `json:"log"`
	Error   string         `json:"error,omitempty"`
}

// ConversationRole identifies the speaker of a persona turn.
type ConversationRole string

const (
	RoleHuman  ConversationRole = "HUMAN"
	RoleAgent  ConversationRole = "AGENT"
	RoleSystem ConversationRole = "SYSTEM"
)

// ConversationTurn is one message in a persona conversation.
type ConversationTurn struct {
	Role    ConversationRole `json:"role"`
	Content string           `json:"content"`
}

// PersonaSession is the executor-side conversation of a Persona session.
type PersonaSession struct {
	SessionID           domain.SessionID   `json:"session_id"`
	AgentName           string             `json:"agent_name"`
	ConversationHistory []ConversationTurn `json:"conversation_history"`
}

// PersonaResponse is the agent's reply to one human input.
type PersonaResponse struct {
	Content string `json:"content"`
	// AwaitingInput signals the agent is suspended until the human replies.
	AwaitingInput bool           `json:"awaiting_input"`
	Outputs       []ProducedFile `json:"outputs"`
}

// AgentExecutor runs agents. Implementations never write to the workspace themselves.
type AgentExecutor interface {
	ExecuteTask(ctx context.Context, agentName string, brief domain.SessionBrief, execCtx ExecutionContext) (*TaskResult, error)
	StartPersona(ctx context.Context, sessionID domain.SessionID, agentName string, execCtx ExecutionContext) (*PersonaSession, error)
	ContinuePersona(ctx context.Context, session *PersonaSession, input string) (*PersonaResponse, error)
}
