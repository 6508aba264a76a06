package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgttomas/chirality-runtime/internal/runtime"
	"github.com/sgttomas/chirality-runtime/pkg/adapters/jwt"
	"github.com/sgttomas/chirality-runtime/pkg/adapters/memory"
	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/sgttomas/chirality-runtime/pkg/observability"
	"github.com/sgttomas/chirality-runtime/pkg/session"
)

const root = "/srv/chirality-http/ws"

func newOrchestrator(t *testing.T) *runtime.Orchestrator {
	t.Helper()
	stores := runtime.Stores{
		Projects:     memory.NewRepository[domain.Project]("Project"),
		Packages:     memory.NewRepository[domain.Package]("Package"),
		Deliverables: memory.NewRepository[domain.Deliverable]("Deliverable"),
		Documents:    memory.NewRepository[domain.Document]("Document"),
		Sessions:     session.NewManager(memory.NewRepository[domain.AgentSession]("AgentSession")),
	}
	orch, err := runtime.NewOrchestrator(stores, memory.NewWorkspace(nil), memory.NewBlobStore())
	require.NoError(t, err)
	return orch
}

type client struct {
	t       *testing.T
	handler http.Handler
	token   string
}

func (c *client) do(method, path string, body any, out any) int {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	if out != nil {
		require.NoError(c.t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

type errorBody struct {
	Error map[string]any `json:"error"`
}

// seed creates a project, a legacy package and one deliverable.
func seed(t *testing.T, c *client) domain.Deliverable {
	t.Helper()
	var p domain.Project
	require.Equal(t, http.StatusCreated, c.do("POST", "/api/v1/projects",
		map[string]any{"name": "Plant", "workspace_path": root}, &p))

	var pkg domain.Package
	require.Equal(t, http.StatusCreated, c.do("POST", "/api/v1/packages",
		map[string]any{"project_id": p.ID, "label": "Pumps", "legacy_number": 1}, &pkg))
	assert.Equal(t, domain.PackageID("PKG-001"), pkg.ID)

	var d domain.Deliverable
	require.Equal(t, http.StatusCreated, c.do("POST", "/api/v1/deliverables",
		map[string]any{"package_id": pkg.ID, "label": "Pump Datasheet", "legacy_number": 1}, &d))
	return d
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := observability.NewMetrics()
	h := NewHandler(newOrchestrator(t), WithMetrics(metrics.Handler()), WithVersion("1.2.3"))
	c := &client{t: t, handler: h}

	var health map[string]string
	assert.Equal(t, http.StatusOK, c.do("GET", "/health", nil, &health))
	assert.Equal(t, "1.2.3", health["version"])

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeliverableFlow_SystemActor(t *testing.T) {
	c := &client{t: t, handler: NewHandler(newOrchestrator(t))}
	d := seed(t, c)
	assert.Equal(t, domain.DeliverableID("DEL-01.01"), d.ID)

	var got domain.Deliverable
	assert.Equal(t, http.StatusOK, c.do("GET", "/api/v1/deliverables/"+d.ID.String(), nil, &got))
	assert.Equal(t, domain.DeliverableOpen, got.State)

	assert.Equal(t, http.StatusOK, c.do("POST", "/api/v1/deliverables/"+d.ID.String()+"/transition",
		map[string]string{"target": "INITIALIZED"}, &got))
	assert.Equal(t, domain.DeliverableInitialized, got.State)

	var e errorBody
	assert.Equal(t, http.StatusConflict, c.do("POST", "/api/v1/deliverables/"+d.ID.String()+"/transition",
		map[string]string{"target": "ISSUED"}, &e))
	assert.Equal(t, domain.KindInvalidStateTransition, e.Error["kind"])

	for _, target := range []string{"IN_PROGRESS", "CHECKING"} {
		require.Equal(t, http.StatusOK, c.do("POST", "/api/v1/deliverables/"+d.ID.String()+"/transition",
			map[string]string{"target": target}, nil))
	}
	e = errorBody{}
	assert.Equal(t, http.StatusForbidden, c.do("POST", "/api/v1/deliverables/"+d.ID.String()+"/transition",
		map[string]string{"target": "ISSUED"}, &e))
	assert.Equal(t, domain.KindHumanActorRequired, e.Error["kind"])
}

func TestBearerIdentity(t *testing.T) {
	identity, err := jwt.New(bytes.Repeat([]byte("k"), 32))
	require.NoError(t, err)
	h := NewHandler(newOrchestrator(t), WithIdentity(identity))

	anon := &client{t: t, handler: h}
	var e errorBody
	assert.Equal(t, http.StatusUnauthorized, anon.do("POST", "/api/v1/projects",
		map[string]any{"name": "Plant", "workspace_path": root}, &e))

	bad := &client{t: t, handler: h, token: "not-a-jwt"}
	assert.Equal(t, http.StatusUnauthorized, bad.do("GET", "/api/v1/sessions", nil, nil))

	token, err := identity.Issue(domain.HumanActor("alice"), "", "", nil, time.Hour)
	require.NoError(t, err)
	c := &client{t: t, handler: h, token: token}
	d := seed(t, c)

	for _, target := range []string{"INITIALIZED", "IN_PROGRESS", "CHECKING", "ISSUED"} {
		require.Equal(t, http.StatusOK, c.do("POST", "/api/v1/deliverables/"+d.ID.String()+"/transition",
			map[string]string{"target": target}, nil), target)
	}

	// health stays open
	assert.Equal(t, http.StatusOK, anon.do("GET", "/health", nil, nil))
}

func TestSessionEndpoints(t *testing.T) {
	c := &client{t: t, handler: NewHandler(newOrchestrator(t))}
	d := seed(t, c)
	require.Equal(t, http.StatusOK, c.do("POST", "/api/v1/deliverables/"+d.ID.String()+"/transition",
		map[string]string{"target": "INITIALIZED"}, nil))

	var s domain.AgentSession
	require.Equal(t, http.StatusCreated, c.do("POST", "/api/v1/sessions", map[string]any{
		"agent_name":  "writer",
		"agent_class": "TASK",
		"scope":       map[string]any{"type": "DELIVERABLE", "deliverable_id": d.ID},
		"brief":       map[string]any{"task_definition": "Draft datasheet"},
	}, &s))
	assert.Equal(t, domain.SessionCreated, s.State)

	inside := filepath.Join(d.FolderPath, "Datasheet.md")
	var verdict authorizeResponse
	assert.Equal(t, http.StatusOK, c.do("POST", "/api/v1/sessions/"+s.ID.String()+"/authorize",
		map[string]string{"path": inside}, &verdict))
	assert.True(t, verdict.Allowed)

	verdict = authorizeResponse{}
	assert.Equal(t, http.StatusOK, c.do("POST", "/api/v1/sessions/"+s.ID.String()+"/authorize",
		map[string]string{"path": filepath.Join(root, "elsewhere.md")}, &verdict))
	assert.False(t, verdict.Allowed)
	assert.Equal(t, domain.KindWriteViolation, verdict.Error["kind"])

	artifact := map[string]any{"path": inside, "content": []byte("# Datasheet"), "output_type": "DOCUMENT"}
	var e errorBody
	assert.Equal(t, http.StatusConflict, c.do("POST", "/api/v1/sessions/"+s.ID.String()+"/artifacts", artifact, &e))
	assert.Equal(t, domain.KindInvalidState, e.Error["kind"])

	require.Equal(t, http.StatusOK, c.do("POST", "/api/v1/sessions/"+s.ID.String()+"/transition",
		map[string]string{"target": "ACTIVE"}, nil))

	var out domain.SessionOutput
	assert.Equal(t, http.StatusCreated, c.do("POST", "/api/v1/sessions/"+s.ID.String()+"/artifacts", artifact, &out))
	assert.Equal(t, domain.HashBytes([]byte("# Datasheet")), out.ContentHash)

	e = errorBody{}
	outside := map[string]any{"path": filepath.Join(root, "x.md"), "content": []byte("x"), "output_type": "DOCUMENT"}
	assert.Equal(t, http.StatusForbidden, c.do("POST", "/api/v1/sessions/"+s.ID.String()+"/artifacts", outside, &e))

	var list struct {
		Sessions []domain.AgentSession `json:"sessions"`
	}
	assert.Equal(t, http.StatusOK, c.do("GET", "/api/v1/sessions", nil, &list))
	require.Len(t, list.Sessions, 1)
	assert.Len(t, list.Sessions[0].Outputs, 1)

	e = errorBody{}
	assert.Equal(t, http.StatusNotFound, c.do("GET", "/api/v1/sessions/"+domain.NewSessionID().String(), nil, &e))
	assert.Equal(t, domain.KindNotFound, e.Error["kind"])
}

func TestValidateBrief(t *testing.T) {
	c := &client{t: t, handler: NewHandler(newOrchestrator(t))}

	var ok map[string]any
	assert.Equal(t, http.StatusOK, c.do("POST", "/api/v1/briefs/validate", map[string]any{
		"agent_name": "4_DOCUMENTS",
		"brief":      map[string]any{"task_definition": "x", "inputs": map[string]any{"deliverable_id": "DEL-01.01"}},
	}, &ok))
	assert.Equal(t, true, ok["valid"])

	var e errorBody
	assert.Equal(t, http.StatusUnprocessableEntity, c.do("POST", "/api/v1/briefs/validate", map[string]any{
		"agent_name": "4_DOCUMENTS",
		"brief":      map[string]any{"task_definition": "x"},
	}, &e))
	assert.Equal(t, domain.KindInvalidBrief, e.Error["kind"])
}

func TestBadRequests(t *testing.T) {
	c := &client{t: t, handler: NewHandler(newOrchestrator(t))}

	var e errorBody
	assert.Equal(t, http.StatusBadRequest, c.do("POST", "/api/v1/deliverables/DEL-01.01/transition",
		map[string]string{"target": "DONE"}, &e))
	assert.Equal(t, "BAD_REQUEST", e.Error["kind"])

	assert.Equal(t, http.StatusBadRequest, c.do("POST", "/api/v1/projects",
		map[string]any{"name": "Plant", "unknown": true}, nil))

	assert.Equal(t, http.StatusNotFound, c.do("GET", "/api/v1/projects/"+domain.NewProjectID().String(), nil, nil))
}

func TestMalformedIDs(t *testing.T) {
	c := &client{t: t, handler: NewHandler(newOrchestrator(t))}
	seed(t, c)

	for _, req := range []struct{ method, path string }{
		{"GET", "/api/v1/projects/proj:missing"},
		{"GET", "/api/v1/deliverables/DEL-1.1"},
		{"POST", "/api/v1/deliverables/DEL-00.01/transition"},
		{"GET", "/api/v1/sessions/session:missing"},
		{"POST", "/api/v1/sessions/PKG-001/transition"},
		{"POST", "/api/v1/sessions/x/authorize"},
		{"POST", "/api/v1/sessions/x/artifacts"},
	} {
		var e errorBody
		assert.Equal(t, http.StatusBadRequest, c.do(req.method, req.path, map[string]any{}, &e), req.path)
		assert.Equal(t, "BAD_REQUEST", e.Error["kind"], req.path)
	}

	var e errorBody
	assert.Equal(t, http.StatusBadRequest, c.do("POST", "/api/v1/packages",
		map[string]any{"project_id": "proj:../../etc", "label": "Pumps"}, &e))
	e = errorBody{}
	assert.Equal(t, http.StatusBadRequest, c.do("POST", "/api/v1/sessions", map[string]any{
		"agent_name":  "writer",
		"agent_class": "TASK",
		"scope":       map[string]any{"type": "DELIVERABLE", "deliverable_id": "DEL-01"},
		"brief":       map[string]any{"task_definition": "Draft datasheet"},
	}, &e))
}

func TestStartSession_RejectsWriteScopeOutsideSessionScope(t *testing.T) {
	c := &client{t: t, handler: NewHandler(newOrchestrator(t))}
	d := seed(t, c)

	var e errorBody
	assert.Equal(t, http.StatusForbidden, c.do("POST", "/api/v1/sessions", map[string]any{
		"agent_name":  "writer",
		"agent_class": "TASK",
		"scope":       map[string]any{"type": "DELIVERABLE", "deliverable_id": d.ID},
		"write_scope": map[string]any{"type": "TOOL_ROOT_ONLY", "root_path": "/"},
		"brief":       map[string]any{"task_definition": "Draft datasheet"},
	}, &e))
	assert.Equal(t, domain.KindWriteViolation, e.Error["kind"])

	var list struct {
		Sessions []domain.AgentSession `json:"sessions"`
	}
	assert.Equal(t, http.StatusOK, c.do("GET", "/api/v1/sessions", nil, &list))
	assert.Empty(t, list.Sessions)
}
