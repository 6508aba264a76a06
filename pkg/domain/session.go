package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// SessionBrief is the structured task input a Task session runs against.
type SessionBrief struct {
	TaskDefinition   string         `json:"task_definition"`
	ScopeDescription string         `json:"scope_description"`
	OutputContract   []string       `json:"output_contract"`
	Constraints      []string       `json:"constraints"`
	SuccessCriteria  []string       `json:"success_criteria"`
	Inputs           map[string]any `json:"inputs"`
}

// HasInput reports whether the brief's inputs carry a non-null value for key.
func (b SessionBrief) HasInput(key string) bool {
	v, ok := b.Inputs[key]
	return ok && v != nil
}

// OutputType classifies what a session produced.
type OutputType string

const (
	OutputDocument OutputType = "DOCUMENT"
	OutputSnapshot OutputType = "SNAPSHOT"
	OutputReport   OutputType = "REPORT"
	OutputMetadata OutputType = "METADATA"
)

// Valid reports whether t is a known output type.
func (t OutputType) Valid() bool {
	switch t {
	case OutputDocument, OutputSnapshot, OutputReport, OutputMetadata:
		return true
	}
	return false
}

func (t *OutputType) UnmarshalText(text []byte) error {
	v := OutputType(text)
	if !v.Valid() {
		return fmt.Errorf("unknown output type %q", text)
	}
	*t = v
	return nil
}

// SessionOutput records one artifact a session wrote.
type SessionOutput struct {
	Type        OutputType  `json:"output_type"`
	Path        string      `json:"path"`
	ContentHash ContentHash `json:"content_hash"`
	Description string      `json:"description,omitempty"`
}

// AgentSession is the execution context of one agent invocation.
type AgentSession struct {
	ID          SessionID       `json:"id"`
	AgentType   AgentType       `json:"agent_type"`
	AgentClass  AgentClass      `json:"agent_class"`
	AgentName   string          `json:"agent_name"`
	Scope       SessionScope    `json:"scope"`
	Brief       *SessionBrief   `json:"brief,omitempty"`
	State       SessionState    `json:"state"`
	WriteScope  WriteScope      `json:"write_scope"`
	Outputs     []SessionOutput `json:"outputs"`
	GitBranch   string          `json:"git_branch,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	StartedBy   Actor           `json:"started_by"`
}

// SessionOption configures optional AgentSession fields at construction.
type SessionOption func(*AgentSession)

// WithBranch records the git branch the session works on.
func WithBranch(branch string) SessionOption {
	return func(s *AgentSession) { s.GitBranch = branch }
}

// NewTaskSession creates a Created, straight-through Specialist session.
func NewTaskSession(agentName string, brief SessionBrief, scope SessionScope, writeScope WriteScope, by Actor, opts ...SessionOption) AgentSession {
	s := newSession(agentName, AgentSpecialist, AgentClassTask, scope, writeScope, by)
	s.Brief = &brief
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// NewPersonaSession creates a Created, interactive session. Persona sessions carry no brief.
func NewPersonaSession(agentName string, agentType AgentType, scope SessionScope, writeScope WriteScope, by Actor, opts ...SessionOption) AgentSession {
	s := newSession(agentName, agentType, AgentClassPersona, scope, writeScope, by)
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func newSession(agentName string, agentType AgentType, class AgentClass, scope SessionScope, writeScope WriteScope, by Actor) AgentSession {
	if writeScope == nil {
		writeScope = WriteNone{}
	}
	return AgentSession{
		ID:         NewSessionID(),
		AgentType:  agentType,
		AgentClass: class,
		AgentName:  agentName,
		Scope:      scope,
		State:      SessionCreated,
		WriteScope: writeScope,
		Outputs:    []SessionOutput{},
		StartedAt:  time.Now().UTC(),
		StartedBy:  by,
	}
}

// TransitionTo moves the session along its lifecycle, gated by its class.
// Entering a terminal state stamps CompletedAt. State is unchanged on error.
func (s *AgentSession) TransitionTo(target SessionState) error {
	next, err := s.State.TransitionTo(target, s.AgentClass)
	if err != nil {
		return err
	}
	s.State = next
	if next.IsTerminal() {
		now := time.Now().UTC()
		s.CompletedAt = &now
	}
	return nil
}

// Activate moves a Created or Paused session to Active.
func (s *AgentSession) Activate() error { return s.TransitionTo(SessionActive) }

// Pause suspends an Active Persona session.
func (s *AgentSession) Pause() error { return s.TransitionTo(SessionPaused) }

// Complete finishes the session successfully.
func (s *AgentSession) Complete() error { return s.TransitionTo(SessionCompleted) }

// Fail finishes the session unsuccessfully.
func (s *AgentSession) Fail() error { return s.TransitionTo(SessionFailed) }

// Cancel aborts a non-terminal session.
func (s *AgentSession) Cancel() error { return s.TransitionTo(SessionCancelled) }

// AddOutput appends an output record. Terminal sessions accept no outputs.
func (s *AgentSession) AddOutput(out SessionOutput) error {
	if s.State.IsTerminal() {
		return &InvalidStateError{Message: fmt.Sprintf("session %s is %s", s.ID, s.State)}
	}
	if !out.Type.Valid() {
		return &PreconditionFailedError{Message: fmt.Sprintf("unknown output type %q", out.Type)}
	}
	s.Outputs = append(s.Outputs, out)
	return nil
}

// UnmarshalJSON decodes the tagged Scope and WriteScope unions.
func (s *AgentSession) UnmarshalJSON(data []byte) error {
	type plain AgentSession
	aux := struct {
		*plain
		Scope      json.RawMessage `json:"scope"`
		WriteScope json.RawMessage `json:"write_scope"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Scope) > 0 && string(aux.Scope) != "null" {
		scope, err := DecodeSessionScope(aux.Scope)
		if err != nil {
			return err
		}
		s.Scope = scope
	}
	if len(aux.WriteScope) > 0 && string(aux.WriteScope) != "null" {
		ws, err := DecodeWriteScope(aux.WriteScope)
		if err != nil {
			return err
		}
		s.WriteScope = ws
	}
	return nil
}
