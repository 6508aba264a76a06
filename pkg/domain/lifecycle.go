package domain

import "fmt"

// DeliverableState is the production state of a Deliverable.
type DeliverableState string

const (
	DeliverableOpen          DeliverableState = "OPEN"
	DeliverableInitialized   DeliverableState = "INITIALIZED"
	DeliverableSemanticReady DeliverableState = "SEMANTIC_READY"
	DeliverableInProgress    DeliverableState = "IN_PROGRESS"
	DeliverableChecking      DeliverableState = "CHECKING"
	DeliverableIssued        DeliverableState = "ISSUED"
)

// DeliverableStates lists every state in lifecycle order.
var DeliverableStates = []DeliverableState{
	DeliverableOpen,
	DeliverableInitialized,
	DeliverableSemanticReady,
	DeliverableInProgress,
	DeliverableChecking,
	DeliverableIssued,
}

// deliverableTransitions is the only source of truth for deliverable moves.
var deliverableTransitions = map[DeliverableState][]DeliverableState{
	DeliverableOpen:          {DeliverableInitialized},
	DeliverableInitialized:   {DeliverableSemanticReady, DeliverableInProgress},
	DeliverableSemanticReady: {DeliverableInProgress},
	DeliverableInProgress:    {DeliverableChecking},
	DeliverableChecking:      {DeliverableInProgress, DeliverableIssued},
	DeliverableIssued:        {},
}

// CanTransitionTo reports whether target is reachable from s in one step.
func (s DeliverableState) CanTransitionTo(target DeliverableState) bool {
	for _, next := range deliverableTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// TransitionTo returns target if the move is legal.
func (s DeliverableState) TransitionTo(target DeliverableState) (DeliverableState, error) {
	if !s.CanTransitionTo(target) {
		return s, &InvalidStateTransitionError{Entity: "Deliverable", From: string(s), To: string(target)}
	}
	return target, nil
}

// NextStates returns the states reachable from s in one step.
func (s DeliverableState) NextStates() []DeliverableState {
	next := deliverableTransitions[s]
	out := make([]DeliverableState, len(next))
	copy(out, next)
	return out
}

// IsTerminal is true only for Issued.
func (s DeliverableState) IsTerminal() bool { return s == DeliverableIssued }

// AllowsWork reports whether agents may be dispatched against a deliverable in s.
func (s DeliverableState) AllowsWork() bool {
	switch s {
	case DeliverableInitialized, DeliverableSemanticReady, DeliverableInProgress:
		return true
	}
	return false
}

// Valid reports whether s is a known state.
func (s DeliverableState) Valid() bool {
	_, ok := deliverableTransitions[s]
	return ok
}

func (s *DeliverableState) UnmarshalText(text []byte) error {
	v := DeliverableState(text)
	if !v.Valid() {
		return fmt.Errorf("unknown deliverable state %q", text)
	}
	*s = v
	return nil
}

// SessionState is the execution state of an AgentSession.
type SessionState string

const (
	SessionCreated   SessionState = "CREATED"
	SessionActive    SessionState = "ACTIVE"
	SessionPaused    SessionState = "PAUSED"
	SessionCompleted SessionState = "COMPLETED"
	SessionFailed    SessionState = "FAILED"
	SessionCancelled SessionState = "CANCELLED"
)

// SessionStates lists every session state.
var SessionStates = []SessionState{
	SessionCreated,
	SessionActive,
	SessionPaused,
	SessionCompleted,
	SessionFailed,
	SessionCancelled,
}

// CanTransitionTo reports whether a session of the given class may move from s to target.
// Pausing, and every move out of Paused other than cancellation, is reserved to Persona sessions.
func (s SessionState) CanTransitionTo(target SessionState, class AgentClass) bool {
	if s.IsTerminal() || !s.Valid() {
		return false
	}
	if target == SessionCancelled {
		return true
	}
	persona := class == AgentClassPersona
	switch s {
	case SessionCreated:
		return target == SessionActive
	case SessionActive:
		switch target {
		case SessionCompleted, SessionFailed:
			return true
		case SessionPaused:
			return persona
		}
	case SessionPaused:
		switch target {
		case SessionActive, SessionCompleted, SessionFailed:
			return persona
		}
	}
	return false
}

// TransitionTo returns target if the move is legal for class.
func (s SessionState) TransitionTo(target SessionState, class AgentClass) (SessionState, error) {
	if !s.CanTransitionTo(target, class) {
		return s, &InvalidStateTransitionError{Entity: "AgentSession", From: string(s), To: string(target)}
	}
	return target, nil
}

// CanPause is true only for an Active Persona session.
func (s SessionState) CanPause(class AgentClass) bool {
	return s == SessionActive && class == AgentClassPersona
}

// IsTerminal covers Completed, Failed and Cancelled.
func (s SessionState) IsTerminal() bool {
	switch s {
	case SessionCompleted, SessionFailed, SessionCancelled:
		return true
	}
	return false
}

// IsActive covers only Active.
func (s SessionState) IsActive() bool { return s == SessionActive }

// Valid reports whether s is a known state.
func (s SessionState) Valid() bool {
	for _, known := range SessionStates {
		if s == known {
			return true
		}
	}
	return false
}

func (s *SessionState) UnmarshalText(text []byte) error {
	v := SessionState(text)
	if !v.Valid() {
		return fmt.Errorf("unknown session state %q", text)
	}
	*s = v
	return nil
}

// DocumentState is the review state of a Document.
type DocumentState string

const (
	DocumentDraft    DocumentState = "DRAFT"
	DocumentReviewed DocumentState = "REVIEWED"
	DocumentIssued   DocumentState = "ISSUED"
)

// DocumentStates lists every document state in lifecycle order.
var DocumentStates = []DocumentState{DocumentDraft, DocumentReviewed, DocumentIssued}

var documentTransitions = map[DocumentState][]DocumentState{
	DocumentDraft:    {DocumentReviewed},
	DocumentReviewed: {DocumentDraft, DocumentIssued},
	DocumentIssued:   {},
}

// CanTransitionTo reports whether target is reachable from s in one step.
func (s DocumentState) CanTransitionTo(target DocumentState) bool {
	for _, next := range documentTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// TransitionTo returns target if the move is legal.
func (s DocumentState) TransitionTo(target DocumentState) (DocumentState, error) {
	if !s.CanTransitionTo(target) {
		return s, &InvalidStateTransitionError{Entity: "Document", From: string(s), To: string(target)}
	}
	return target, nil
}

// Valid reports whether s is a known state.
func (s DocumentState) Valid() bool {
	_, ok := documentTransitions[s]
	return ok
}

func (s *DocumentState) UnmarshalText(text []byte) error {
	v := DocumentState(text)
	if !v.Valid() {
		return fmt.Errorf("unknown document state %q", text)
	}
	*s = v
	return nil
}
