package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/sgttomas/chirality-runtime/pkg/brief"
	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/sgttomas/chirality-runtime/pkg/ports"
)

// StartSessionRequest describes a new agent session.
type StartSessionRequest struct {
	AgentName string              `json:"agent_name"`
	AgentType domain.AgentType    `json:"agent_type,omitempty"`
	Class     domain.AgentClass   `json:"agent_class"`
	Scope     domain.SessionScope `json:"scope"`
	// WriteScope defaults to the deliverable folder for deliverable-scoped sessions, None otherwise.
	WriteScope domain.WriteScope `json:"write_scope,omitempty"`
	Brief      map[string]any    `json:"brief,omitempty"`
	Branch     string            `json:"git_branch,omitempty"`
	Actor      domain.Actor      `json:"-"`
}

// UnmarshalJSON decodes the tagged scope unions.
func (r *StartSessionRequest) UnmarshalJSON(data []byte) error {
	type plain StartSessionRequest
	aux := struct {
		*plain
		Scope      json.RawMessage `json:"scope"`
		WriteScope json.RawMessage `json:"write_scope"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Scope) > 0 && string(aux.Scope) != "null" {
		scope, err := domain.DecodeSessionScope(aux.Scope)
		if err != nil {
			return err
		}
		r.Scope = scope
	}
	if len(aux.WriteScope) > 0 && string(aux.WriteScope) != "null" {
		ws, err := domain.DecodeWriteScope(aux.WriteScope)
		if err != nil {
			return err
		}
		r.WriteScope = ws
	}
	return nil
}

// scopeTarget is what a session scope resolves to in the workspace.
type scopeTarget struct {
	root        string
	workspace   string
	deliverable *domain.Deliverable
}

func (o *Orchestrator) resolveScope(ctx context.Context, scope domain.SessionScope) (scopeTarget, error) {
	switch s := scope.(type) {
	case domain.ProjectScope:
		p, err := o.GetProject(ctx, s.ProjectID)
		if err != nil {
			return scopeTarget{}, err
		}
		return scopeTarget{root: p.WorkspacePath, workspace: p.WorkspacePath}, nil
	case domain.PackageScope:
		pkg, p, err := o.packageWithProject(ctx, s.PackageID)
		if err != nil {
			return scopeTarget{}, err
		}
		return scopeTarget{root: filepath.Join(p.WorkspacePath, pkg.FolderName), workspace: p.WorkspacePath}, nil
	case domain.DeliverableScope:
		d, err := o.GetDeliverable(ctx, s.DeliverableID)
		if err != nil {
			return scopeTarget{}, err
		}
		_, p, err := o.packageWithProject(ctx, d.PackageID)
		if err != nil {
			return scopeTarget{}, err
		}
		return scopeTarget{root: d.FolderPath, workspace: p.WorkspacePath, deliverable: d}, nil
	case nil:
		return scopeTarget{}, &domain.PreconditionFailedError{Message: "session scope is required"}
	}
	return scopeTarget{}, &domain.PreconditionFailedError{Message: fmt.Sprintf("unsupported session scope %T", scope)}
}

func (o *Orchestrator) packageWithProject(ctx context.Context, id domain.PackageID) (*domain.Package, *domain.Project, error) {
	pkg, err := o.GetPackage(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	p, err := o.GetProject(ctx, pkg.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return pkg, p, nil
}

// boundWriteScope rejects a declared write scope that reaches outside the
// session's scope. Deliverable folders and tool roots must sit inside the scope
// root; metadata files must sit inside the project workspace.
func (o *Orchestrator) boundWriteScope(ws domain.WriteScope, target scopeTarget) *domain.WriteViolationError {
	outside := func(path string) *domain.WriteViolationError {
		return &domain.WriteViolationError{
			TargetPath: path,
			Scope:      ws.String(),
			Reason:     fmt.Sprintf("Write scope reaches outside session scope: %s", target.root),
		}
	}
	switch s := ws.(type) {
	case domain.WriteNone:
		return nil
	case domain.DeliverableLocal:
		if d := target.deliverable; d != nil && s.DeliverableID != d.ID {
			return outside(s.DeliverablePath)
		}
		if !o.guard.Contains(target.root, s.DeliverablePath) {
			return outside(s.DeliverablePath)
		}
	case domain.ToolRootOnly:
		if !o.guard.Contains(target.root, s.RootPath) {
			return outside(s.RootPath)
		}
	case domain.RepoMetadataOnly:
		for _, f := range s.AllowedFiles {
			if !o.guard.Contains(target.workspace, f) {
				return outside(f)
			}
		}
	default:
		return outside(target.root)
	}
	return nil
}

// StartSession validates and persists a Created session. Task sessions need a brief
// that parses and satisfies the agent's rule; Persona sessions must not carry one
// and open a conversation with the executor when one is configured.
func (o *Orchestrator) StartSession(ctx context.Context, req StartSessionRequest) (*domain.AgentSession, error) {
	if req.AgentName == "" {
		return nil, &domain.PreconditionFailedError{Message: "agent name cannot be empty"}
	}
	if !req.Class.Valid() {
		return nil, &domain.PreconditionFailedError{Message: fmt.Sprintf("unknown agent class %q", req.Class)}
	}
	target, err := o.resolveScope(ctx, req.Scope)
	if err != nil {
		return nil, err
	}
	writeScope := req.WriteScope
	if writeScope == nil {
		writeScope = domain.WriteNone{}
		if target.deliverable != nil {
			writeScope = target.deliverable.WriteScope()
		}
	} else if v := o.boundWriteScope(writeScope, target); v != nil {
		o.fireDenied(ctx, "", v)
		return nil, v
	}
	var opts []domain.SessionOption
	if req.Branch != "" {
		opts = append(opts, domain.WithBranch(req.Branch))
	}

	var s domain.AgentSession
	switch req.Class {
	case domain.AgentClassTask:
		if req.AgentType != "" && req.AgentType != domain.AgentSpecialist {
			return nil, &domain.PreconditionFailedError{Message: "task sessions run specialist agents only"}
		}
		if req.Brief == nil {
			err := &domain.InvalidBriefError{Reason: "task sessions require a brief"}
			o.fireBriefRejected(ctx, req.AgentName, err)
			return nil, err
		}
		b, err := brief.Parse(req.Brief)
		if err == nil {
			err = o.briefs.Validate(b, req.AgentName)
		}
		if err != nil {
			o.fireBriefRejected(ctx, req.AgentName, err)
			return nil, err
		}
		s = domain.NewTaskSession(req.AgentName, b, req.Scope, writeScope, req.Actor, opts...)
	case domain.AgentClassPersona:
		if req.Brief != nil {
			return nil, &domain.PreconditionFailedError{Message: "persona sessions do not take a brief"}
		}
		if !req.AgentType.Valid() {
			return nil, &domain.PreconditionFailedError{Message: fmt.Sprintf("unknown agent type %q", req.AgentType)}
		}
		s = domain.NewPersonaSession(req.AgentName, req.AgentType, req.Scope, writeScope, req.Actor, opts...)
	}

	if err := o.stores.Sessions.Create(ctx, &s); err != nil {
		return nil, err
	}
	o.logger.Info("session started", "session_id", s.ID, "agent", s.AgentName, "class", s.AgentClass, "scope", s.Scope)

	if s.AgentClass == domain.AgentClassPersona && o.executor != nil {
		if _, err := o.openPersona(ctx, &s, target); err != nil {
			if _, ferr := o.TransitionSession(ctx, s.ID, domain.SessionFailed); ferr != nil {
				o.logger.Warn("failed to fail session", "session_id", s.ID, "err", ferr)
			}
			return nil, err
		}
	}
	return &s, nil
}

func (o *Orchestrator) executionContext(s *domain.AgentSession, target scopeTarget) ports.ExecutionContext {
	ec := ports.ExecutionContext{
		WorkspacePath: target.root,
		WriteScope:    s.WriteScope,
		ContextFiles:  []string{},
	}
	if o.instructions != nil {
		ec.AgentInstructions = o.instructions(s.AgentName)
	}
	if d := target.deliverable; d != nil {
		ec.DeliverablePath = d.FolderPath
		for _, ref := range d.Documents {
			ec.ContextFiles = append(ec.ContextFiles, ref.Path)
		}
	}
	return ec
}

func (o *Orchestrator) openPersona(ctx context.Context, s *domain.AgentSession, target scopeTarget) (*ports.PersonaSession, error) {
	conv, err := o.executor.StartPersona(ctx, s.ID, s.AgentName, o.executionContext(s, target))
	if err != nil {
		return nil, fmt.Errorf("failed to start persona %s: %w", s.AgentName, err)
	}
	o.mu.Lock()
	o.personas[s.ID] = conv
	o.mu.Unlock()
	return conv, nil
}

func (o *Orchestrator) persona(id domain.SessionID) (*ports.PersonaSession, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	conv, ok := o.personas[id]
	return conv, ok
}

func (o *Orchestrator) forgetPersona(id domain.SessionID) {
	o.mu.Lock()
	delete(o.personas, id)
	o.mu.Unlock()
}

// GetSession loads a session.
func (o *Orchestrator) GetSession(ctx context.Context, id domain.SessionID) (*domain.AgentSession, error) {
	s, err := o.stores.Sessions.Load(ctx, id)
	if err != nil && errors.Is(err, domain.ErrNotFound) {
		return nil, &domain.NotFoundError{EntityType: "AgentSession", ID: id.String()}
	}
	return s, err
}

// ListSessions returns every stored session, oldest first.
func (o *Orchestrator) ListSessions(ctx context.Context) ([]domain.AgentSession, error) {
	ids, err := o.stores.Sessions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	out := make([]domain.AgentSession, 0, len(ids))
	for _, id := range ids {
		s, err := o.stores.Sessions.Store().Load(ctx, id)
		if err != nil {
			o.logger.Warn("skipping unreadable session", "session_id", id, "err", err)
			continue
		}
		out = append(out, *s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// DeleteSession removes a session that is not currently Active. The state check
// and the delete happen under the session lock.
func (o *Orchestrator) DeleteSession(ctx context.Context, id domain.SessionID) error {
	err := o.stores.Sessions.DeleteIf(ctx, id, func(s *domain.AgentSession) error {
		if s.State.IsActive() {
			return &domain.InvalidStateError{Message: fmt.Sprintf("session %s is active", id)}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.NotFoundError{EntityType: "AgentSession", ID: id.String()}
		}
		return err
	}
	o.forgetPersona(id)
	return nil
}

// TransitionSession moves a session to target.
func (o *Orchestrator) TransitionSession(ctx context.Context, id domain.SessionID, target domain.SessionState) (*domain.AgentSession, error) {
	s, from, err := o.stores.Sessions.Transition(ctx, id, target)
	if err != nil {
		return nil, err
	}
	o.logger.Info("session transitioned", "session_id", id, "from", from, "to", s.State)
	o.fireSession(ctx, s, from)
	if s.State.IsTerminal() {
		o.forgetPersona(id)
	}
	return s, nil
}

// Activate moves a Created or Paused session to Active.
func (o *Orchestrator) Activate(ctx context.Context, id domain.SessionID) (*domain.AgentSession, error) {
	return o.TransitionSession(ctx, id, domain.SessionActive)
}

// Pause suspends an Active Persona session.
func (o *Orchestrator) Pause(ctx context.Context, id domain.SessionID) (*domain.AgentSession, error) {
	return o.TransitionSession(ctx, id, domain.SessionPaused)
}

// Resume reactivates a Paused session.
func (o *Orchestrator) Resume(ctx context.Context, id domain.SessionID) (*domain.AgentSession, error) {
	var from domain.SessionState
	s, err := o.stores.Sessions.Update(ctx, id, func(s *domain.AgentSession) error {
		if s.State != domain.SessionPaused {
			return &domain.InvalidStateError{Message: fmt.Sprintf("session %s is %s, not paused", id, s.State)}
		}
		from = s.State
		return s.Activate()
	})
	if err != nil {
		return nil, err
	}
	o.fireSession(ctx, s, from)
	return s, nil
}

// Complete finishes a session successfully.
func (o *Orchestrator) Complete(ctx context.Context, id domain.SessionID) (*domain.AgentSession, error) {
	return o.TransitionSession(ctx, id, domain.SessionCompleted)
}

// Fail finishes a session unsuccessfully.
func (o *Orchestrator) Fail(ctx context.Context, id domain.SessionID) (*domain.AgentSession, error) {
	return o.TransitionSession(ctx, id, domain.SessionFailed)
}

// Cancel aborts a session.
func (o *Orchestrator) Cancel(ctx context.Context, id domain.SessionID) (*domain.AgentSession, error) {
	return o.TransitionSession(ctx, id, domain.SessionCancelled)
}

// AuthorizeWrite returns the guard verdict for path without writing anything.
func (o *Orchestrator) AuthorizeWrite(ctx context.Context, id domain.SessionID, path string) (domain.WriteDecision, error) {
	s, err := o.GetSession(ctx, id)
	if err != nil {
		return domain.WriteDecision{}, err
	}
	decision := o.guard.Validate(s.WriteScope, path)
	if !decision.Allowed {
		o.fireDenied(ctx, id, decision.Violation)
	}
	return decision, nil
}

// WriteArtifactRequest is content a session wants written.
type WriteArtifactRequest struct {
	SessionID   domain.SessionID  `json:"session_id"`
	Path        string            `json:"path"`
	Content     []byte            `json:"content"`
	Type        domain.OutputType `json:"output_type"`
	Description string            `json:"description,omitempty"`
}

// WriteArtifact guards, writes and records one artifact of an Active session.
// The content is mirrored into the blob store, and a registered document at the
// same path picks up the new hash. A write whose session update does not commit
// is undone.
func (o *Orchestrator) WriteArtifact(ctx context.Context, req WriteArtifactRequest) (*domain.SessionOutput, error) {
	var (
		out     domain.SessionOutput
		journal []pendingWrite
	)
	s, err := o.stores.Sessions.Update(ctx, req.SessionID, func(s *domain.AgentSession) error {
		if !s.State.IsActive() {
			return &domain.InvalidStateError{Message: fmt.Sprintf("session %s is %s, not active", s.ID, s.State)}
		}
		var err error
		out, err = o.writeOutput(ctx, s, ports.ProducedFile{
			Path: req.Path, Content: req.Content, Type: req.Type, Description: req.Description,
		}, &journal)
		return err
	})
	if err != nil {
		o.undo(ctx, journal)
		return nil, err
	}
	o.afterWrite(ctx, s, out)
	return &out, nil
}

// pendingWrite is what a path held before a write that has not committed yet.
type pendingWrite struct {
	path     string
	existed  bool
	previous []byte
}

// undo restores journaled paths, newest first.
func (o *Orchestrator) undo(ctx context.Context, journal []pendingWrite) {
	for i := len(journal) - 1; i >= 0; i-- {
		w := journal[i]
		if !w.existed {
			o.discard(ctx, w.path)
			continue
		}
		if _, err := o.workspace.Write(ctx, w.path, w.previous); err != nil {
			o.logger.Warn("failed to restore file", "path", w.path, "err", err)
		}
	}
}

// writeOutput runs with the session lock held. Nothing touches the workspace
// unless the guard allows the path and the blob is stored. Every workspace write
// is appended to journal so the caller can undo it.
func (o *Orchestrator) writeOutput(ctx context.Context, s *domain.AgentSession, file ports.ProducedFile, journal *[]pendingWrite) (domain.SessionOutput, error) {
	if !file.Type.Valid() {
		return domain.SessionOutput{}, &domain.PreconditionFailedError{Message: fmt.Sprintf("unknown output type %q", file.Type)}
	}
	decision := o.guard.Validate(s.WriteScope, file.Path)
	if !decision.Allowed {
		o.fireDenied(ctx, s.ID, decision.Violation)
		return domain.SessionOutput{}, decision.Violation
	}
	if _, err := o.blobs.Store(ctx, file.Content); err != nil {
		return domain.SessionOutput{}, fmt.Errorf("failed to store blob for %s: %w", file.Path, err)
	}

	prior := pendingWrite{path: file.Path}
	exists, err := o.workspace.Exists(ctx, file.Path)
	if err != nil {
		return domain.SessionOutput{}, fmt.Errorf("failed to stat %s: %w", file.Path, err)
	}
	if exists {
		if prior.previous, err = o.workspace.Read(ctx, file.Path); err != nil {
			return domain.SessionOutput{}, fmt.Errorf("failed to read %s: %w", file.Path, err)
		}
		prior.existed = true
	}
	hash, err := o.workspace.Write(ctx, file.Path, file.Content)
	if err != nil {
		return domain.SessionOutput{}, fmt.Errorf("failed to write %s: %w", file.Path, err)
	}
	*journal = append(*journal, prior)

	out := domain.SessionOutput{Type: file.Type, Path: file.Path, ContentHash: hash, Description: file.Description}
	if err := s.AddOutput(out); err != nil {
		return domain.SessionOutput{}, err
	}
	return out, nil
}

func (o *Orchestrator) afterWrite(ctx context.Context, s *domain.AgentSession, out domain.SessionOutput) {
	o.logger.Debug("artifact written", "session_id", s.ID, "path", out.Path, "hash", out.ContentHash)
	o.fireWritten(ctx, s.ID, out.Path, s.WriteScope, out.ContentHash)
	local, ok := s.WriteScope.(domain.DeliverableLocal)
	if !ok {
		return
	}
	if err := o.refreshDocument(ctx, local.DeliverableID, out.Path, out.ContentHash, domain.AgentActor(s.AgentName)); err != nil {
		o.logger.Warn("failed to refresh document hash", "session_id", s.ID, "path", out.Path, "err", err)
	}
}

// checkOutputs guards every produced path before any of them is written.
func (o *Orchestrator) checkOutputs(ctx context.Context, s *domain.AgentSession, files []ports.ProducedFile) error {
	for _, f := range files {
		decision := o.guard.Validate(s.WriteScope, f.Path)
		if !decision.Allowed {
			o.fireDenied(ctx, s.ID, decision.Violation)
			return decision.Violation
		}
	}
	return nil
}

// recordOutputs writes files and moves the session to next in one locked update.
// Either every file is recorded or none is left behind.
func (o *Orchestrator) recordOutputs(ctx context.Context, id domain.SessionID, files []ports.ProducedFile, next domain.SessionState) (*domain.AgentSession, []domain.SessionOutput, error) {
	var (
		from    domain.SessionState
		written []domain.SessionOutput
		journal []pendingWrite
	)
	s, err := o.stores.Sessions.Update(ctx, id, func(s *domain.AgentSession) error {
		from = s.State
		for _, f := range files {
			out, err := o.writeOutput(ctx, s, f, &journal)
			if err != nil {
				return err
			}
			written = append(written, out)
		}
		return s.TransitionTo(next)
	})
	if err != nil {
		o.undo(ctx, journal)
		return nil, nil, err
	}
	for _, out := range written {
		o.afterWrite(ctx, s, out)
	}
	o.fireSession(ctx, s, from)
	return s, written, nil
}

func (o *Orchestrator) failSession(ctx context.Context, id domain.SessionID, cause error) {
	o.logger.Warn("session failed", "session_id", id, "err", cause)
	if _, err := o.TransitionSession(ctx, id, domain.SessionFailed); err != nil {
		o.logger.Warn("failed to mark session failed", "session_id", id, "err", err)
	}
}

// RunTask executes a Created or Active Task session to completion. A failed
// result or any output outside the write scope fails the session.
func (o *Orchestrator) RunTask(ctx context.Context, id domain.SessionID) (*ports.TaskResult, error) {
	if o.executor == nil {
		return nil, &domain.PreconditionFailedError{Message: "no agent executor configured"}
	}
	s, err := o.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.AgentClass != domain.AgentClassTask {
		return nil, &domain.InvalidStateError{Message: fmt.Sprintf("session %s is not a task session", id)}
	}
	if s.State != domain.SessionCreated && s.State != domain.SessionActive {
		return nil, &domain.InvalidStateError{Message: fmt.Sprintf("session %s is %s", id, s.State)}
	}
	if s.Brief == nil {
		return nil, &domain.InvalidBriefError{Reason: "task session has no brief"}
	}
	target, err := o.resolveScope(ctx, s.Scope)
	if err != nil {
		return nil, err
	}
	if d := target.deliverable; d != nil && !d.State.AllowsWork() {
		return nil, &domain.InvalidStateError{Message: fmt.Sprintf("deliverable %s is %s and accepts no work", d.ID, d.State)}
	}
	if s.State == domain.SessionCreated {
		if s, err = o.Activate(ctx, id); err != nil {
			return nil, err
		}
	}

	result, err := o.executor.ExecuteTask(ctx, s.AgentName, *s.Brief, o.executionContext(s, target))
	if err != nil {
		o.failSession(ctx, id, err)
		return nil, fmt.Errorf("task %s failed: %w", id, err)
	}
	if !result.Success {
		o.failSession(ctx, id, errors.New(result.Error))
		return result, nil
	}
	if err := o.checkOutputs(ctx, s, result.Outputs); err != nil {
		o.failSession(ctx, id, err)
		return result, err
	}
	if _, _, err := o.recordOutputs(ctx, id, result.Outputs, domain.SessionCompleted); err != nil {
		o.failSession(ctx, id, err)
		return result, err
	}
	return result, nil
}

// ContinuePersona sends one human input to a Persona session. The session is
// activated for the turn, then paused while the agent awaits input or completed
// when it does not.
func (o *Orchestrator) ContinuePersona(ctx context.Context, id domain.SessionID, input string) (*ports.PersonaResponse, error) {
	if o.executor == nil {
		return nil, &domain.PreconditionFailedError{Message: "no agent executor configured"}
	}
	s, err := o.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.AgentClass != domain.AgentClassPersona {
		return nil, &domain.InvalidStateError{Message: fmt.Sprintf("session %s is not a persona session", id)}
	}
	if s.State.IsTerminal() {
		return nil, &domain.InvalidStateError{Message: fmt.Sprintf("session %s is %s", id, s.State)}
	}
	target, err := o.resolveScope(ctx, s.Scope)
	if err != nil {
		return nil, err
	}
	conv, ok := o.persona(id)
	if !ok {
		if conv, err = o.openPersona(ctx, s, target); err != nil {
			return nil, err
		}
	}
	if !s.State.IsActive() {
		if s, err = o.Activate(ctx, id); err != nil {
			return nil, err
		}
	}

	resp, err := o.executor.ContinuePersona(ctx, conv, input)
	if err != nil {
		o.failSession(ctx, id, err)
		return nil, fmt.Errorf("persona %s failed: %w", id, err)
	}
	if err := o.checkOutputs(ctx, s, resp.Outputs); err != nil {
		o.failSession(ctx, id, err)
		return resp, err
	}
	next := domain.SessionCompleted
	if resp.AwaitingInput {
		next = domain.SessionPaused
	}
	s, _, err = o.recordOutputs(ctx, id, resp.Outputs, next)
	if err != nil {
		o.failSession(ctx, id, err)
		return resp, err
	}
	if s.State.IsTerminal() {
		o.forgetPersona(id)
	}
	return resp, nil
}
