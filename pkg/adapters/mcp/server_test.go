package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgttomas/chirality-runtime/internal/runtime"
	"github.com/sgttomas/chirality-runtime/pkg/adapters/memory"
	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/sgttomas/chirality-runtime/pkg/session"
)

const root = "/srv/chirality-mcp/ws"

func newCallToolRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

type fixture struct {
	orch *runtime.Orchestrator
	srv  *Server
	del  *domain.Deliverable
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	stores := runtime.Stores{
		Projects:     memory.NewRepository[domain.Project]("Project"),
		Packages:     memory.NewRepository[domain.Package]("Package"),
		Deliverables: memory.NewRepository[domain.Deliverable]("Deliverable"),
		Documents:    memory.NewRepository[domain.Document]("Document"),
		Sessions:     session.NewManager(memory.NewRepository[domain.AgentSession]("AgentSession")),
	}
	orch, err := runtime.NewOrchestrator(stores, memory.NewWorkspace(nil), memory.NewBlobStore())
	require.NoError(t, err)

	p, err := orch.CreateProject(ctx, runtime.CreateProjectRequest{Name: "Plant", WorkspacePath: root})
	require.NoError(t, err)
	pkg, err := orch.CreatePackage(ctx, runtime.CreatePackageRequest{ProjectID: p.ID, Label: "Pumps", LegacyNumber: 2})
	require.NoError(t, err)
	d, err := orch.CreateDeliverable(ctx, runtime.CreateDeliverableRequest{PackageID: pkg.ID, Label: "Pump", LegacyNumber: 3})
	require.NoError(t, err)

	return &fixture{orch: orch, srv: NewServer(orch, "test", opts...), del: d}
}

// errorKind extracts the kind tag from a tool error result.
func errorKind(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.True(t, res.IsError)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &doc))
	kind, _ := doc["kind"].(string)
	return kind
}

func TestValidateBrief(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.srv.handleValidateBrief(ctx, newCallToolRequest(map[string]any{
		"agent_name": "AGGREGATION",
		"brief":      map[string]any{"task_definition": "Roll up", "inputs": map[string]any{"project_id": "proj:x"}},
	}))
	require.NoError(t, err)
	assert.Equal(t, ValidateBriefResult{Valid: true}, res.StructuredContent)

	res, err = f.srv.handleValidateBrief(ctx, newCallToolRequest(map[string]any{
		"agent_name": "AGGREGATION",
		"brief":      map[string]any{"task_definition": "Roll up"},
	}))
	require.NoError(t, err)
	got := res.StructuredContent.(ValidateBriefResult)
	assert.False(t, got.Valid)
	assert.Contains(t, got.Reason, "project_id")

	res, err = f.srv.handleValidateBrief(ctx, newCallToolRequest(map[string]any{
		"agent_name": "writer",
		"brief":      map[string]any{},
	}))
	require.NoError(t, err)
	assert.Equal(t, ValidateBriefResult{Valid: false, Reason: "Missing task_definition"}, res.StructuredContent)
}

func TestCheckWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.orch.TransitionDeliverable(ctx, f.del.ID, domain.DeliverableInitialized, domain.HumanActor("alice"))
	require.NoError(t, err)

	s, err := f.orch.StartSession(ctx, runtime.StartSessionRequest{
		AgentName: "writer",
		Class:     domain.AgentClassTask,
		Scope:     domain.DeliverableScope{DeliverableID: f.del.ID},
		Brief:     map[string]any{"task_definition": "Draft"},
	})
	require.NoError(t, err)

	res, err := f.srv.handleCheckWrite(ctx, newCallToolRequest(map[string]any{
		"session_id": s.ID.String(), "path": filepath.Join(f.del.FolderPath, "Datasheet.md"),
	}))
	require.NoError(t, err)
	assert.Equal(t, CheckWriteResult{Allowed: true}, res.StructuredContent)

	res, err = f.srv.handleCheckWrite(ctx, newCallToolRequest(map[string]any{
		"session_id": s.ID.String(), "path": filepath.Join(root, "other.md"),
	}))
	require.NoError(t, err)
	got := res.StructuredContent.(CheckWriteResult)
	assert.False(t, got.Allowed)
	assert.NotEmpty(t, got.Reason)

	res, err = f.srv.handleCheckWrite(ctx, newCallToolRequest(map[string]any{
		"session_id": domain.NewSessionID().String(), "path": "/tmp/x",
	}))
	require.NoError(t, err)
	assert.Equal(t, domain.KindNotFound, errorKind(t, res))
}

func TestMalformedIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for name, call := range map[string]func() (*mcp.CallToolResult, error){
		"check_write": func() (*mcp.CallToolResult, error) {
			return f.srv.handleCheckWrite(ctx, newCallToolRequest(map[string]any{"session_id": "session:missing", "path": "/tmp/x"}))
		},
		"get_deliverable": func() (*mcp.CallToolResult, error) {
			return f.srv.handleGetDeliverable(ctx, newCallToolRequest(map[string]any{"deliverable_id": "DEL-1"}))
		},
		"transition_deliverable": func() (*mcp.CallToolResult, error) {
			return f.srv.handleTransitionDeliverable(ctx, newCallToolRequest(map[string]any{"deliverable_id": "../x", "target": "INITIALIZED"}))
		},
		"transition_session": func() (*mcp.CallToolResult, error) {
			return f.srv.handleTransitionSession(ctx, newCallToolRequest(map[string]any{"session_id": "nope", "target": "ACTIVE"}))
		},
	} {
		t.Run(name, func(t *testing.T) {
			res, err := call()
			require.NoError(t, err)
			require.True(t, res.IsError)
			require.NotEmpty(t, res.Content)
			text, ok := res.Content[0].(mcp.TextContent)
			require.True(t, ok)
			assert.Contains(t, text.Text, "invalid")
		})
	}

	d, err := f.orch.GetDeliverable(ctx, f.del.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliverableOpen, d.State)
}

func TestTransitionDeliverable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.srv.handleTransitionDeliverable(ctx, newCallToolRequest(map[string]any{
		"deliverable_id": f.del.ID.String(), "target": "INITIALIZED",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, domain.DeliverableInitialized, res.StructuredContent.(*domain.Deliverable).State)

	res, err = f.srv.handleTransitionDeliverable(ctx, newCallToolRequest(map[string]any{
		"deliverable_id": f.del.ID.String(), "target": "CHECKING",
	}))
	require.NoError(t, err)
	assert.Equal(t, domain.KindInvalidStateTransition, errorKind(t, res))

	res, err = f.srv.handleTransitionDeliverable(ctx, newCallToolRequest(map[string]any{
		"deliverable_id": f.del.ID.String(), "target": "LATER",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = f.srv.handleGetDeliverable(ctx, newCallToolRequest(map[string]any{"deliverable_id": f.del.ID.String()}))
	require.NoError(t, err)
	assert.Equal(t, domain.DeliverableInitialized, res.StructuredContent.(*domain.Deliverable).State)
}

func TestTransitionDeliverable_IssueNeedsHumanActor(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{name: "system", wantErr: true},
		{name: "human", opts: []Option{WithActor(domain.HumanActor("alice"))}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.opts...)
			for _, st := range []domain.DeliverableState{domain.DeliverableInitialized, domain.DeliverableInProgress, domain.DeliverableChecking} {
				_, err := f.orch.TransitionDeliverable(ctx, f.del.ID, st, domain.SystemActor())
				require.NoError(t, err)
			}
			res, err := f.srv.handleTransitionDeliverable(ctx, newCallToolRequest(map[string]any{
				"deliverable_id": f.del.ID.String(), "target": "ISSUED",
			}))
			require.NoError(t, err)
			if tc.wantErr {
				assert.Equal(t, domain.KindHumanActorRequired, errorKind(t, res))
				return
			}
			assert.False(t, res.IsError)
		})
	}
}

func TestTransitionSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.orch.StartSession(ctx, runtime.StartSessionRequest{
		AgentName: "reviewer",
		AgentType: domain.AgentSpecialist,
		Class:     domain.AgentClassPersona,
		Scope:     domain.DeliverableScope{DeliverableID: f.del.ID},
	})
	require.NoError(t, err)

	res, err := f.srv.handleTransitionSession(ctx, newCallToolRequest(map[string]any{
		"session_id": s.ID.String(), "target": "ACTIVE",
	}))
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, res.StructuredContent.(*domain.AgentSession).State)

	res, err = f.srv.handleTransitionSession(ctx, newCallToolRequest(map[string]any{
		"session_id": s.ID.String(), "target": "CREATED",
	}))
	require.NoError(t, err)
	assert.Equal(t, domain.KindInvalidStateTransition, errorKind(t, res))
}

func TestStatesResource(t *testing.T) {
	f := newFixture(t)
	contents, err := f.srv.readStates(context.Background(), mcp.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)

	text := contents[0].(mcp.TextResourceContents)
	assert.Equal(t, StatesURI, text.URI)

	var tables StateTables
	require.NoError(t, json.Unmarshal([]byte(text.Text), &tables))
	assert.Equal(t, []domain.DeliverableState{domain.DeliverableChecking}, tables.Deliverable[domain.DeliverableInProgress])
	assert.Empty(t, tables.Deliverable[domain.DeliverableIssued])
	assert.Equal(t, []domain.DocumentState{domain.DocumentDraft, domain.DocumentIssued}, tables.Document[domain.DocumentReviewed])
	assert.NotContains(t, tables.Session[domain.AgentClassTask][domain.SessionActive], domain.SessionPaused)
	assert.Contains(t, tables.Session[domain.AgentClassPersona][domain.SessionActive], domain.SessionPaused)
}
