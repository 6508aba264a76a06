package domain_test

import (
	"errors"
	"testing"

	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliverableState_TransitionTable(t *testing.T) {
	legal := map[[2]domain.DeliverableState]bool{
		{domain.DeliverableOpen, domain.DeliverableInitialized}:          true,
		{domain.DeliverableInitialized, domain.DeliverableSemanticReady}: true,
		{domain.DeliverableInitialized, domain.DeliverableInProgress}:    true,
		{domain.DeliverableSemanticReady, domain.DeliverableInProgress}:  true,
		{domain.DeliverableInProgress, domain.DeliverableChecking}:       true,
		{domain.DeliverableChecking, domain.DeliverableInProgress}:       true,
		{domain.DeliverableChecking, domain.DeliverableIssued}:           true,
	}

	for _, from := range domain.DeliverableStates {
		for _, to := range domain.DeliverableStates {
			want := legal[[2]domain.DeliverableState{from, to}]
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("%s -> %s: CanTransitionTo = %v, want %v", from, to, got, want)
			}

			d := domain.NewDeliverable("PKG-001", "Pump", "/ws/PKG-001_Pump/Pump")
			d.State = from
			err := d.TransitionTo(to)
			if want {
				if err != nil {
					t.Errorf("%s -> %s: unexpected error %v", from, to, err)
				}
				continue
			}
			var transitionErr *domain.InvalidStateTransitionError
			if !errors.As(err, &transitionErr) {
				t.Fatalf("%s -> %s: expected InvalidStateTransitionError, got %v", from, to, err)
			}
			if d.State != from {
				t.Errorf("%s -> %s: state changed to %s on failure", from, to, d.State)
			}
			if transitionErr.Entity != "Deliverable" || transitionErr.From != string(from) || transitionErr.To != string(to) {
				t.Errorf("unexpected error fields: %+v", transitionErr)
			}
		}
	}
}

func TestDeliverableState_HappyPath(t *testing.T) {
	d := domain.NewDeliverable("PKG-001", "Pump", "/ws/pump")
	require.Equal(t, domain.DeliverableOpen, d.State)

	for _, next := range []domain.DeliverableState{
		domain.DeliverableInitialized,
		domain.DeliverableInProgress,
		domain.DeliverableChecking,
		domain.DeliverableInProgress,
		domain.DeliverableChecking,
		domain.DeliverableIssued,
	} {
		require.NoError(t, d.TransitionTo(next))
	}
	assert.True(t, d.State.IsTerminal())
	assert.Empty(t, d.State.NextStates())
}

func TestDeliverableState_Predicates(t *testing.T) {
	tests := []struct {
		state      domain.DeliverableState
		terminal   bool
		allowsWork bool
	}{
		{domain.DeliverableOpen, false, false},
		{domain.DeliverableInitialized, false, true},
		{domain.DeliverableSemanticReady, false, true},
		{domain.DeliverableInProgress, false, true},
		{domain.DeliverableChecking, false, false},
		{domain.DeliverableIssued, true, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.state.IsTerminal())
			assert.Equal(t, tt.allowsWork, tt.state.AllowsWork())
		})
	}
}

func TestSessionState_TaskNeverPauses(t *testing.T) {
	for _, from := range domain.SessionStates {
		if from.CanTransitionTo(domain.SessionPaused, domain.AgentClassTask) {
			t.Errorf("task session may pause from %s", from)
		}
		if from.CanPause(domain.AgentClassTask) {
			t.Errorf("CanPause(Task) true in %s", from)
		}
	}
}

func TestSessionState_PersonaPauseResume(t *testing.T) {
	s := domain.NewPersonaSession("ARCHITECT", domain.AgentArchitect,
		domain.ProjectScope{ProjectID: "proj:1"}, domain.WriteNone{}, domain.HumanActor("alice"))

	require.NoError(t, s.Activate())
	assert.True(t, s.State.CanPause(s.AgentClass))
	require.NoError(t, s.Pause())
	require.NoError(t, s.Activate())
	require.NoError(t, s.Pause())
	require.NoError(t, s.Complete())
	assert.NotNil(t, s.CompletedAt)

	failing := domain.NewPersonaSession("ARCHITECT", domain.AgentArchitect,
		domain.ProjectScope{ProjectID: "proj:1"}, domain.WriteNone{}, domain.HumanActor("alice"))
	require.NoError(t, failing.Activate())
	require.NoError(t, failing.Pause())
	require.NoError(t, failing.Fail())
}

func TestSessionState_Transitions(t *testing.T) {
	tests := []struct {
		from  domain.SessionState
		to    domain.SessionState
		class domain.AgentClass
		want  bool
	}{
		{domain.SessionCreated, domain.SessionActive, domain.AgentClassTask, true},
		{domain.SessionCreated, domain.SessionCompleted, domain.AgentClassTask, false},
		{domain.SessionCreated, domain.SessionPaused, domain.AgentClassPersona, false},
		{domain.SessionActive, domain.SessionCompleted, domain.AgentClassTask, true},
		{domain.SessionActive, domain.SessionFailed, domain.AgentClassTask, true},
		{domain.SessionActive, domain.SessionPaused, domain.AgentClassTask, false},
		{domain.SessionActive, domain.SessionPaused, domain.AgentClassPersona, true},
		{domain.SessionPaused, domain.SessionActive, domain.AgentClassPersona, true},
		{domain.SessionPaused, domain.SessionActive, domain.AgentClassTask, false},
		{domain.SessionPaused, domain.SessionCompleted, domain.AgentClassPersona, true},
		{domain.SessionActive, domain.SessionCreated, domain.AgentClassPersona, false},
		{domain.SessionCompleted, domain.SessionActive, domain.AgentClassPersona, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to, tt.class); got != tt.want {
			t.Errorf("%s -> %s (%s) = %v, want %v", tt.from, tt.to, tt.class, got, tt.want)
		}
	}
}

func TestSessionState_Cancellation(t *testing.T) {
	for _, class := range []domain.AgentClass{domain.AgentClassPersona, domain.AgentClassTask} {
		for _, from := range domain.SessionStates {
			got := from.CanTransitionTo(domain.SessionCancelled, class)
			if got == from.IsTerminal() {
				t.Errorf("%s -> CANCELLED (%s) = %v, terminal = %v", from, class, got, from.IsTerminal())
			}
		}
	}
}

func TestSessionState_IllegalTransitionLeavesState(t *testing.T) {
	s := domain.NewTaskSession("4_DOCUMENTS", domain.SessionBrief{TaskDefinition: "x"},
		domain.DeliverableScope{DeliverableID: "DEL-01.01"}, domain.WriteNone{}, domain.SystemActor())
	require.NoError(t, s.Activate())

	err := s.Pause()
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	assert.Equal(t, domain.SessionActive, s.State)
	assert.Equal(t, "Invalid state transition for AgentSession: ACTIVE -> PAUSED", err.Error())
	assert.Nil(t, s.CompletedAt)
}

func TestDocumentState_Review(t *testing.T) {
	doc := domain.NewDocument("DEL-01.01", domain.DocDatasheet, "/ws/d/Datasheet.md", domain.HashBytes([]byte("v1")), domain.AgentActor("4_DOCUMENTS"))
	require.Equal(t, domain.DocumentDraft, doc.State)

	require.Error(t, doc.TransitionTo(domain.DocumentIssued, domain.HumanActor("bob")))
	require.NoError(t, doc.TransitionTo(domain.DocumentReviewed, domain.HumanActor("bob")))
	require.NoError(t, doc.TransitionTo(domain.DocumentDraft, domain.HumanActor("bob")))
	require.NoError(t, doc.TransitionTo(domain.DocumentReviewed, domain.HumanActor("bob")))
	require.NoError(t, doc.TransitionTo(domain.DocumentIssued, domain.HumanActor("bob")))
	assert.Equal(t, domain.HumanActor("bob"), doc.UpdatedBy)
	assert.False(t, domain.DocumentIssued.CanTransitionTo(domain.DocumentDraft))
}
