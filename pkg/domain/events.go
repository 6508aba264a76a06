package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventDeliverableTransition EventType = "deliverable_transition"
	EventSessionTransition     EventType = "session_transition"
	EventWriteDenied           EventType = "write_denied"
	EventArtifactWritten       EventType = "artifact_written"
	EventBriefRejected         EventType = "brief_rejected"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
}

// NewEventBase stamps an event of type t with the current time.
func NewEventBase(t EventType) EventBase {
	return EventBase{Timestamp: time.Now(), Type: t}
}

// DeliverableEvent reports a deliverable state change.
type DeliverableEvent struct {
	EventBase
	DeliverableID DeliverableID    `json:"deliverable_id"`
	From          DeliverableState `json:"from"`
	To            DeliverableState `json:"to"`
	Actor         Actor            `json:"actor"`
}

// SessionEvent reports an agent session state change.
type SessionEvent struct {
	EventBase
	SessionID SessionID    `json:"session_id"`
	AgentName string       `json:"agent_name"`
	From      SessionState `json:"from"`
	To        SessionState `json:"to"`
}

// WriteEvent reports a guarded write, allowed or not.
type WriteEvent struct {
	EventBase
	SessionID SessionID   `json:"session_id,omitempty"`
	Path      string      `json:"path"`
	Scope     string      `json:"scope"`
	Reason    string      `json:"reason,omitempty"`
	Hash      ContentHash `json:"content_hash,omitempty"`
}

// BriefEvent reports a rejected brief.
type BriefEvent struct {
	EventBase
	AgentName string `json:"agent_name"`
	Reason    string `json:"reason"`
}

// LifecycleHooks defines callbacks for runtime observability. Nil hooks are skipped.
type LifecycleHooks struct {
	OnDeliverableTransition func(context.Context, *DeliverableEvent)
	OnSessionTransition     func(context.Context, *SessionEvent)
	OnWriteDenied           func(context.Context, *WriteEvent)
	OnArtifactWritten       func(context.Context, *WriteEvent)
	OnBriefRejected         func(context.Context, *BriefEvent)
}
