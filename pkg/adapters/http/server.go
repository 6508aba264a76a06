// Package http exposes the orchestrator as a JSON API under /api/v1.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sgttomas/chirality-runtime/internal/runtime"
	"github.com/sgttomas/chirality-runtime/pkg/brief"
	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/sgttomas/chirality-runtime/pkg/ports"
)

// Service is the part of the orchestrator served over HTTP.
type Service interface {
	CreateProject(ctx context.Context, req runtime.CreateProjectRequest) (*domain.Project, error)
	GetProject(ctx context.Context, id domain.ProjectID) (*domain.Project, error)
	CreatePackage(ctx context.Context, req runtime.CreatePackageRequest) (*domain.Package, error)
	CreateDeliverable(ctx context.Context, req runtime.CreateDeliverableRequest) (*domain.Deliverable, error)
	GetDeliverable(ctx context.Context, id domain.DeliverableID) (*domain.Deliverable, error)
	TransitionDeliverable(ctx context.Context, id domain.DeliverableID, target domain.DeliverableState, actor domain.Actor) (*domain.Deliverable, error)
	StartSession(ctx context.Context, req runtime.StartSessionRequest) (*domain.AgentSession, error)
	ListSessions(ctx context.Context) ([]domain.AgentSession, error)
	GetSession(ctx context.Context, id domain.SessionID) (*domain.AgentSession, error)
	TransitionSession(ctx context.Context, id domain.SessionID, target domain.SessionState) (*domain.AgentSession, error)
	AuthorizeWrite(ctx context.Context, id domain.SessionID, path string) (domain.WriteDecision, error)
	WriteArtifact(ctx context.Context, req runtime.WriteArtifactRequest) (*domain.SessionOutput, error)
	Briefs() *brief.Validator
}

var _ Service = (*runtime.Orchestrator)(nil)

// Server routes API requests to a Service.
type Server struct {
	Service  Service
	Identity ports.Identity
	Metrics  http.Handler
	Version  string
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithIdentity requires bearer tokens validated by identity on /api/v1.
func WithIdentity(identity ports.Identity) Option {
	return func(s *Server) { s.Identity = identity }
}

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.Metrics = h }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.Version = v }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewHandler creates the HTTP handler for svc.
func NewHandler(svc Service, opts ...Option) http.Handler {
	s := &Server{Service: svc, Version: "dev", logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/projects", s.CreateProject)
		r.Get("/projects/{id}", s.GetProject)
		r.Post("/packages", s.CreatePackage)
		r.Post("/deliverables", s.CreateDeliverable)
		r.Get("/deliverables/{id}", s.GetDeliverable)
		r.Post("/deliverables/{id}/transition", s.TransitionDeliverable)
		r.Post("/sessions", s.StartSession)
		r.Get("/sessions", s.ListSessions)
		r.Get("/sessions/{id}", s.GetSession)
		r.Post("/sessions/{id}/transition", s.TransitionSession)
		r.Post("/sessions/{id}/authorize", s.AuthorizeWrite)
		r.Post("/sessions/{id}/artifacts", s.WriteArtifact)
		r.Post("/briefs/validate", s.ValidateBrief)
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type actorKey struct{}

// actorFrom returns the actor attached by authenticate.
func actorFrom(ctx context.Context) domain.Actor {
	if a, ok := ctx.Value(actorKey{}).(domain.Actor); ok {
		return a
	}
	return domain.SystemActor()
}

// authenticate resolves the bearer token to an actor. Without an Identity
// every request acts as the system actor.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := domain.SystemActor()
		if s.Identity != nil {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				s.writeError(w, ports.ErrAuthenticationRequired)
				return
			}
			a, err := s.Identity.Validate(r.Context(), strings.TrimSpace(token))
			if err != nil {
				s.writeError(w, err)
				return
			}
			actor = a
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
	})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ports.ErrAuthenticationRequired), errors.Is(err, ports.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidStateTransition), errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrWriteViolation), errors.Is(err, domain.ErrHumanActorRequired):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidBrief):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrPreconditionFailed):
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	doc := domain.ErrorDocument(err)
	switch status {
	case http.StatusUnauthorized:
		doc = map[string]any{"kind": "UNAUTHORIZED", "message": err.Error()}
	case http.StatusInternalServerError:
		s.logger.Error("request failed", "err", err)
	}
	writeJSON(w, status, map[string]any{"error": doc})
}

func (s *Server) badRequest(w http.ResponseWriter, op string, err error) {
	s.logger.Warn("invalid request", "op", op, "err", err)
	writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{
		"kind": "BAD_REQUEST", "message": err.Error(),
	}})
}

// pathID parses the {id} URL parameter and answers 400 when it is malformed.
func pathID[T any](s *Server, w http.ResponseWriter, r *http.Request, op string, parse func(string) (T, error)) (T, bool) {
	id, err := parse(chi.URLParam(r, "id"))
	if err != nil {
		s.badRequest(w, op, err)
		return id, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "err", err)
	}
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.Version})
}

// CreateProject handles POST /api/v1/projects.
func (s *Server) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req runtime.CreateProjectRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, "CreateProject", err)
		return
	}
	req.Actor = actorFrom(r.Context())
	p, err := s.Service.CreateProject(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetProject handles GET /api/v1/projects/{id}.
func (s *Server) GetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(s, w, r, "GetProject", domain.ParseProjectID)
	if !ok {
		return
	}
	p, err := s.Service.GetProject(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreatePackage handles POST /api/v1/packages.
func (s *Server) CreatePackage(w http.ResponseWriter, r *http.Request) {
	var req runtime.CreatePackageRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, "CreatePackage", err)
		return
	}
	p, err := s.Service.CreatePackage(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// CreateDeliverable handles POST /api/v1/deliverables.
func (s *Server) CreateDeliverable(w http.ResponseWriter, r *http.Request) {
	var req runtime.CreateDeliverableRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, "CreateDeliverable", err)
		return
	}
	d, err := s.Service.CreateDeliverable(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// GetDeliverable handles GET /api/v1/deliverables/{id}.
func (s *Server) GetDeliverable(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(s, w, r, "GetDeliverable", domain.ParseDeliverableID)
	if !ok {
		return
	}
	d, err := s.Service.GetDeliverable(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type transitionRequest struct {
	Target string `json:"target"`
}

// TransitionDeliverable handles POST /api/v1/deliverables/{id}/transition.
// The caller's actor is recorded; issuing requires a human token.
func (s *Server) TransitionDeliverable(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(s, w, r, "TransitionDeliverable", domain.ParseDeliverableID)
	if !ok {
		return
	}
	var req transitionRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, "TransitionDeliverable", err)
		return
	}
	var target domain.DeliverableState
	if err := target.UnmarshalText([]byte(req.Target)); err != nil {
		s.badRequest(w, "TransitionDeliverable", err)
		return
	}
	d, err := s.Service.TransitionDeliverable(r.Context(), id, target, actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// StartSession handles POST /api/v1/sessions.
func (s *Server) StartSession(w http.ResponseWriter, r *http.Request) {
	var req runtime.StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "StartSession", err)
		return
	}
	req.Actor = actorFrom(r.Context())
	sess, err := s.Service.StartSession(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// ListSessions handles GET /api/v1/sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.Service.ListSessions(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// GetSession handles GET /api/v1/sessions/{id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(s, w, r, "GetSession", domain.ParseSessionID)
	if !ok {
		return
	}
	sess, err := s.Service.GetSession(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// TransitionSession handles POST /api/v1/sessions/{id}/transition.
func (s *Server) TransitionSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(s, w, r, "TransitionSession", domain.ParseSessionID)
	if !ok {
		return
	}
	var req transitionRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, "TransitionSession", err)
		return
	}
	var target domain.SessionState
	if err := target.UnmarshalText([]byte(req.Target)); err != nil {
		s.badRequest(w, "TransitionSession", err)
		return
	}
	sess, err := s.Service.TransitionSession(r.Context(), id, target)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type authorizeRequest struct {
	Path string `json:"path"`
}

type authorizeResponse struct {
	Allowed bool           `json:"allowed"`
	Reason  string         `json:"reason,omitempty"`
	Error   map[string]any `json:"error,omitempty"`
}

// AuthorizeWrite handles POST /api/v1/sessions/{id}/authorize.
// A denial is a normal 200 answer carrying the violation.
func (s *Server) AuthorizeWrite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(s, w, r, "AuthorizeWrite", domain.ParseSessionID)
	if !ok {
		return
	}
	var req authorizeRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, "AuthorizeWrite", err)
		return
	}
	decision, err := s.Service.AuthorizeWrite(r.Context(), id, req.Path)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := authorizeResponse{Allowed: decision.Allowed}
	if !decision.Allowed {
		resp.Reason = decision.Violation.Reason
		resp.Error = domain.ErrorDocument(decision.Violation)
	}
	writeJSON(w, http.StatusOK, resp)
}

// WriteArtifact handles POST /api/v1/sessions/{id}/artifacts. Content is base64 in JSON.
func (s *Server) WriteArtifact(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(s, w, r, "WriteArtifact", domain.ParseSessionID)
	if !ok {
		return
	}
	var req runtime.WriteArtifactRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, "WriteArtifact", err)
		return
	}
	req.SessionID = id
	out, err := s.Service.WriteArtifact(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

type validateBriefRequest struct {
	AgentName string         `json:"agent_name"`
	Brief     map[string]any `json:"brief"`
}

// ValidateBrief handles POST /api/v1/briefs/validate.
func (s *Server) ValidateBrief(w http.ResponseWriter, r *http.Request) {
	var req validateBriefRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, "ValidateBrief", err)
		return
	}
	b, err := brief.Parse(req.Brief)
	if err == nil {
		err = s.Service.Briefs().Validate(b, req.AgentName)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "brief": b})
}
