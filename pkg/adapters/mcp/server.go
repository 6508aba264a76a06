// Package mcp exposes deliverable and session controls as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sgttomas/chirality-runtime/pkg/brief"
	"github.com/sgttomas/chirality-runtime/pkg/domain"
)

// StatesURI is the resource listing the lifecycle transition tables.
const StatesURI = "chirality://states"

// Service is the part of the orchestrator reachable from MCP.
type Service interface {
	GetDeliverable(ctx context.Context, id domain.DeliverableID) (*domain.Deliverable, error)
	TransitionDeliverable(ctx context.Context, id domain.DeliverableID, target domain.DeliverableState, actor domain.Actor) (*domain.Deliverable, error)
	TransitionSession(ctx context.Context, id domain.SessionID, target domain.SessionState) (*domain.AgentSession, error)
	AuthorizeWrite(ctx context.Context, id domain.SessionID, path string) (domain.WriteDecision, error)
	Briefs() *brief.Validator
}

// ValidateBriefInput is the argument set of validate_brief.
type ValidateBriefInput struct {
	AgentName string         `json:"agent_name" jsonschema_description:"Agent the brief is addressed to"`
	Brief     map[string]any `json:"brief" jsonschema_description:"The brief document"`
}

// ValidateBriefResult reports whether a brief would be accepted.
type ValidateBriefResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// CheckWriteInput is the argument set of check_write.
type CheckWriteInput struct {
	SessionID string `json:"session_id" jsonschema_description:"Session whose write scope applies"`
	Path      string `json:"path" jsonschema_description:"Absolute path the session wants to write"`
}

// CheckWriteResult is the guard verdict.
type CheckWriteResult struct {
	Allowed bool   `json:"allowed"`
	Scope   string `json:"scope,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// DeliverableInput names a deliverable.
type DeliverableInput struct {
	DeliverableID string `json:"deliverable_id"`
}

// TransitionDeliverableInput is the argument set of transition_deliverable.
type TransitionDeliverableInput struct {
	DeliverableID string `json:"deliverable_id"`
	Target        string `json:"target"`
}

// TransitionSessionInput is the argument set of transition_session.
type TransitionSessionInput struct {
	SessionID string `json:"session_id"`
	Target    string `json:"target"`
}

// StateTables is the content of the states resource.
type StateTables struct {
	Deliverable map[domain.DeliverableState][]domain.DeliverableState               `json:"deliverable"`
	Document    map[domain.DocumentState][]domain.DocumentState                     `json:"document"`
	Session     map[domain.AgentClass]map[domain.SessionState][]domain.SessionState `json:"session"`
}

// Server wraps the orchestrator and exposes it as an MCP server.
type Server struct {
	service   Service
	actor     domain.Actor
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithActor sets the actor recorded for deliverable transitions. Defaults to the system actor.
func WithActor(actor domain.Actor) Option {
	return func(s *Server) { s.actor = actor }
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(svc Service, version string, opts ...Option) *Server {
	s := &Server{
		service:   svc,
		actor:     domain.SystemActor(),
		logger:    slog.Default(),
		mcpServer: server.NewMCPServer("chirality-mcp", version, server.WithToolCapabilities(false)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}

// ServeSSE serves MCP over SSE on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("validate_brief",
		mcp.WithDescription("Check a session brief against the agent's input rules without starting a session."),
		mcp.WithString("agent_name", mcp.Required(), mcp.Description("Agent the brief is addressed to")),
		mcp.WithObject("brief", mcp.Required(), mcp.Description("Brief document with task_definition and inputs")),
		mcp.WithOutputSchema[ValidateBriefResult](),
	), s.handleValidateBrief)

	s.mcpServer.AddTool(mcp.NewTool("check_write",
		mcp.WithDescription("Ask whether a session may write the given path."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute target path")),
		mcp.WithOutputSchema[CheckWriteResult](),
	), s.handleCheckWrite)

	s.mcpServer.AddTool(mcp.NewTool("get_deliverable",
		mcp.WithDescription("Return a deliverable with its state and documents."),
		mcp.WithString("deliverable_id", mcp.Required(), mcp.Description("Deliverable id")),
	), s.handleGetDeliverable)

	s.mcpServer.AddTool(mcp.NewTool("transition_deliverable",
		mcp.WithDescription("Move a deliverable to another lifecycle state."),
		mcp.WithString("deliverable_id", mcp.Required(), mcp.Description("Deliverable id")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target state"),
			mcp.Enum(stateNames(domain.DeliverableStates)...)),
	), s.handleTransitionDeliverable)

	s.mcpServer.AddTool(mcp.NewTool("transition_session",
		mcp.WithDescription("Move an agent session to another state."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target state"),
			mcp.Enum(stateNames(domain.SessionStates)...)),
	), s.handleTransitionSession)
}

func stateNames[S ~string](states []S) []string {
	out := make([]string, len(states))
	for i, st := range states {
		out[i] = string(st)
	}
	return out
}

// toolError renders a domain error as a tool error carrying its kind.
func toolError(err error) *mcp.CallToolResult {
	doc, _ := json.Marshal(domain.ErrorDocument(err))
	return mcp.NewToolResultError(string(doc))
}

func (s *Server) handleValidateBrief(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input ValidateBriefInput
	if err := request.BindArguments(&input); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid validate_brief arguments", err), nil
	}
	b, err := brief.Parse(input.Brief)
	if err == nil {
		err = s.service.Briefs().Validate(b, input.AgentName)
	}
	result := ValidateBriefResult{Valid: err == nil}
	var invalid *domain.InvalidBriefError
	switch {
	case err == nil:
	case errors.As(err, &invalid):
		result.Reason = invalid.Reason
	default:
		return toolError(err), nil
	}
	return mcp.NewToolResultStructuredOnly(result), nil
}

func (s *Server) handleCheckWrite(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input CheckWriteInput
	if err := request.BindArguments(&input); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid check_write arguments", err), nil
	}
	id, err := domain.ParseSessionID(input.SessionID)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("invalid session_id", err), nil
	}
	decision, err := s.service.AuthorizeWrite(ctx, id, input.Path)
	if err != nil {
		return toolError(err), nil
	}
	result := CheckWriteResult{Allowed: decision.Allowed}
	if !decision.Allowed {
		result.Scope = decision.Violation.Scope
		result.Reason = decision.Violation.Reason
	}
	return mcp.NewToolResultStructuredOnly(result), nil
}

func (s *Server) handleGetDeliverable(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input DeliverableInput
	if err := request.BindArguments(&input); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid get_deliverable arguments", err), nil
	}
	id, err := domain.ParseDeliverableID(input.DeliverableID)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("invalid deliverable_id", err), nil
	}
	d, err := s.service.GetDeliverable(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultStructuredOnly(d), nil
}

func (s *Server) handleTransitionDeliverable(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input TransitionDeliverableInput
	if err := request.BindArguments(&input); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid transition_deliverable arguments", err), nil
	}
	id, err := domain.ParseDeliverableID(input.DeliverableID)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("invalid deliverable_id", err), nil
	}
	var target domain.DeliverableState
	if err := target.UnmarshalText([]byte(input.Target)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.service.TransitionDeliverable(ctx, id, target, s.actor)
	if err != nil {
		s.logger.Warn("MCP transition_deliverable rejected", "deliverable_id", input.DeliverableID, "target", target, "err", err)
		return toolError(err), nil
	}
	return mcp.NewToolResultStructuredOnly(d), nil
}

func (s *Server) handleTransitionSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input TransitionSessionInput
	if err := request.BindArguments(&input); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid transition_session arguments", err), nil
	}
	id, err := domain.ParseSessionID(input.SessionID)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("invalid session_id", err), nil
	}
	var target domain.SessionState
	if err := target.UnmarshalText([]byte(input.Target)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.service.TransitionSession(ctx, id, target)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultStructuredOnly(sess), nil
}

// States builds the transition tables from the domain rules.
func States() StateTables {
	tables := StateTables{
		Deliverable: make(map[domain.DeliverableState][]domain.DeliverableState),
		Document:    make(map[domain.DocumentState][]domain.DocumentState),
		Session:     make(map[domain.AgentClass]map[domain.SessionState][]domain.SessionState),
	}
	for _, from := range domain.DeliverableStates {
		tables.Deliverable[from] = append([]domain.DeliverableState{}, from.NextStates()...)
	}
	for _, from := range domain.DocumentStates {
		next := []domain.DocumentState{}
		for _, to := range domain.DocumentStates {
			if from.CanTransitionTo(to) {
				next = append(next, to)
			}
		}
		tables.Document[from] = next
	}
	for _, class := range []domain.AgentClass{domain.AgentClassTask, domain.AgentClassPersona} {
		table := make(map[domain.SessionState][]domain.SessionState)
		for _, from := range domain.SessionStates {
			next := []domain.SessionState{}
			for _, to := range domain.SessionStates {
				if from.CanTransitionTo(to, class) {
					next = append(next, to)
				}
			}
			table[from] = next
		}
		tables.Session[class] = table
	}
	return tables
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(StatesURI, "Lifecycle transition tables",
		mcp.WithMIMEType("application/json"),
	), s.readStates)
}

func (s *Server) readStates(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(States())
	if err != nil {
		return nil, fmt.Errorf("failed to encode state tables: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      StatesURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
