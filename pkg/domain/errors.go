package domain

import (
	"errors"
	"fmt"
)

// Sentinels identify each error kind for errors.Is. The typed errors below wrap them.
var (
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrWriteViolation         = errors.New("write violation")
	ErrInvalidBrief           = errors.New("invalid session brief")
	ErrHumanActorRequired     = errors.New("human actor required")
	ErrNotFound               = errors.New("entity not found")
	ErrInvalidState           = errors.New("invalid entity state")
	ErrPreconditionFailed     = errors.New("precondition failed")
)

// InvalidStateTransitionError reports an illegal lifecycle move.
type InvalidStateTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("Invalid state transition for %s: %s -> %s", e.Entity, e.From, e.To)
}

func (e *InvalidStateTransitionError) Unwrap() error { return ErrInvalidStateTransition }

// WriteViolationError reports a write outside a session's declared scope.
type WriteViolationError struct {
	TargetPath string
	Scope      string
	Reason     string
}

func (e *WriteViolationError) Error() string {
	return fmt.Sprintf("Write violation: cannot write to %s with scope %s: %s", e.TargetPath, e.Scope, e.Reason)
}

func (e *WriteViolationError) Unwrap() error { return ErrWriteViolation }

// InvalidBriefError reports a malformed or incomplete session brief.
type InvalidBriefError struct {
	Reason string
}

func (e *InvalidBriefError) Error() string {
	return fmt.Sprintf("Invalid session brief: %s", e.Reason)
}

func (e *InvalidBriefError) Unwrap() error { return ErrInvalidBrief }

// HumanActorRequiredError reports an operation gated to human actors.
type HumanActorRequiredError struct {
	Operation string
}

func (e *HumanActorRequiredError) Error() string {
	return fmt.Sprintf("Human actor required for %s", e.Operation)
}

func (e *HumanActorRequiredError) Unwrap() error { return ErrHumanActorRequired }

// NotFoundError reports a missing entity.
type NotFoundError struct {
	EntityType string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Entity not found: %s with id %s", e.EntityType, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidStateError reports an operation that the entity's current state forbids.
type InvalidStateError struct {
	Message string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("Invalid entity state: %s", e.Message)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// PreconditionFailedError reports a violated operation precondition.
type PreconditionFailedError struct {
	Message string
}

func (e *PreconditionFailedError) Error() string {
	return fmt.Sprintf("Precondition failed: %s", e.Message)
}

func (e *PreconditionFailedError) Unwrap() error { return ErrPreconditionFailed }

// ErrorKind tags used when errors cross a transport boundary.
const (
	KindInvalidStateTransition = "INVALID_STATE_TRANSITION"
	KindWriteViolation         = "WRITE_VIOLATION"
	KindInvalidBrief           = "INVALID_BRIEF"
	KindHumanActorRequired     = "HUMAN_ACTOR_REQUIRED"
	KindNotFound               = "NOT_FOUND"
	KindInvalidState           = "INVALID_STATE"
	KindPreconditionFailed     = "PRECONDITION_FAILED"
	KindInternal               = "INTERNAL"
)

// ErrorDocument renders err as a stable key/value document with a "kind" tag.
// Errors outside the domain set are reported as INTERNAL with their message only.
func ErrorDocument(err error) map[string]any {
	var (
		transition *InvalidStateTransitionError
		violation  *WriteViolationError
		brief      *InvalidBriefError
		human      *HumanActorRequiredError
		notFound   *NotFoundError
		state      *InvalidStateError
		pre        *PreconditionFailedError
	)
	switch {
	case errors.As(err, &transition):
		return map[string]any{"kind": KindInvalidStateTransition, "message": transition.Error(),
			"entity": transition.Entity, "from": transition.From, "to": transition.To}
	case errors.As(err, &violation):
		return map[string]any{"kind": KindWriteViolation, "message": violation.Error(),
			"target_path": violation.TargetPath, "scope": violation.Scope, "reason": violation.Reason}
	case errors.As(err, &brief):
		return map[string]any{"kind": KindInvalidBrief, "message": brief.Error(), "reason": brief.Reason}
	case errors.As(err, &human):
		return map[string]any{"kind": KindHumanActorRequired, "message": human.Error(), "operation": human.Operation}
	case errors.As(err, &notFound):
		return map[string]any{"kind": KindNotFound, "message": notFound.Error(),
			"entity_type": notFound.EntityType, "id": notFound.ID}
	case errors.As(err, &state):
		return map[string]any{"kind": KindInvalidState, "message": state.Error()}
	case errors.As(err, &pre):
		return map[string]any{"kind": KindPreconditionFailed, "message": pre.Error()}
	default:
		return map[string]any{"kind": KindInternal, "message": err.Error()}
	}
}
