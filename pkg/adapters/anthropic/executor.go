// Package anthropic implements ports.AgentExecutor over the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sgttomas/chirality-runtime/internal/logging"
	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/sgttomas/chirality-runtime/pkg/ports"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-5"

// completeMarker ends a persona conversation when present in a reply.
const completeMarker = "<<SESSION_COMPLETE>>"

const taskProtocol = `Respond with a single JSON object and nothing else:
{"log": "<what you did>", "outputs": [{"path": "<absolute path>", "content": "<file content>", "output_type": "DOCUMENT|SNAPSHOT|REPORT|METADATA", "description": "<optional>"}]}
Only propose paths inside your write scope; the runtime rejects anything else.`

// Executor runs registered agents against the Messages API.
type Executor struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	logger    *slog.Logger

	mu     sync.RWMutex
	agents map[string]string
}

// Option configures an Executor.
type Option func(*Executor)

// WithModel selects the model.
func WithModel(model string) Option {
	return func(e *Executor) {
		if model != "" {
			e.model = anthropic.Model(model)
		}
	}
}

// WithMaxTokens bounds each reply.
func WithMaxTokens(n int64) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// WithAgent registers an agent and its standing instructions.
func WithAgent(name, instructions string) Option {
	return func(e *Executor) {
		e.agents[name] = instructions
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Executor. requestOpts are passed to the SDK client (base URL, retries, ...).
func New(apiKey string, opts []Option, requestOpts ...option.RequestOption) *Executor {
	e := &Executor{
		client:    anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, requestOpts...)...),
		model:     DefaultModel,
		maxTokens: 4096,
		logger:    logging.NewNop(),
		agents:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds or replaces an agent.
func (e *Executor) Register(name, instructions string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.agents[name] = instructions
}

func (e *Executor) instructions(name string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	in, ok := e.agents[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ports.ErrAgentNotFound, name)
	}
	return in, nil
}

func systemPrompt(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, strings.TrimSpace(p))
		}
	}
	return strings.Join(kept, "\n\n")
}

func (e *Executor) complete(ctx context.Context, system string, messages []anthropic.MessageParam) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := e.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ports.ErrAgentExecution, err)
	}

	var b strings.Builder
	for i := range resp.Content {
		if block := &resp.Content[i]; block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: empty response", ports.ErrAgentExecution)
	}
	return b.String(), nil
}

type taskReply struct {
	Log     string `json:"log"`
	Outputs []struct {
		Path        string `json:"path"`
		Content     string `json:"content"`
		OutputType  string `json:"output_type"`
		Description string `json:"description"`
	} `json:"outputs"`
}

// extractJSON trims prose or code fences around the first JSON object.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return text
	}
	return text[start : end+1]
}

func (e *Executor) ExecuteTask(ctx context.Context, agentName string, brief domain.SessionBrief, execCtx ports.ExecutionContext) (*ports.TaskResult, error) {
	standing, err := e.instructions(agentName)
	if err != nil {
		return nil, err
	}

	payload, err := json.MarshalIndent(map[string]any{
		"brief":            brief,
		"write_scope":      execCtx.WriteScope,
		"deliverable_path": execCtx.DeliverablePath,
		"workspace_path":   execCtx.WorkspacePath,
		"context_files":    execCtx.ContextFiles,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode task: %w", err)
	}

	system := systemPrompt(standing, execCtx.AgentInstructions, taskProtocol)
	text, err := e.complete(ctx, system, []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(string(payload))),
	})
	if err != nil {
		return nil, err
	}

	var reply taskReply
	if err := json.Unmarshal([]byte(extractJSON(text)), &reply); err != nil {
		e.logger.Warn("agent reply was not valid JSON", "agent", agentName, "err", err)
		return &ports.TaskResult{Success: false, Log: text, Error: "agent reply was not valid JSON"}, nil
	}

	result := &ports.TaskResult{Success: true, Log: reply.Log, Outputs: []ports.ProducedFile{}}
	for _, o := range reply.Outputs {
		outType := domain.OutputType(strings.ToUpper(o.OutputType))
		if outType == "" {
			outType = domain.OutputDocument
		}
		result.Outputs = append(result.Outputs, ports.ProducedFile{
			Path:        o.Path,
			Content:     []byte(o.Content),
			Type:        outType,
			Description: o.Description,
		})
	}
	return result, nil
}

func (e *Executor) StartPersona(ctx context.Context, sessionID domain.SessionID, agentName string, execCtx ports.ExecutionContext) (*ports.PersonaSession, error) {
	standing, err := e.instructions(agentName)
	if err != nil {
		return nil, err
	}

	ps := &ports.PersonaSession{SessionID: sessionID, AgentName: agentName}
	if system := systemPrompt(standing, execCtx.AgentInstructions); system != "" {
		ps.ConversationHistory = append(ps.ConversationHistory, ports.ConversationTurn{Role: ports.RoleSystem, Content: system})
	}
	return ps, nil
}

func (e *Executor) ContinuePersona(ctx context.Context, session *ports.PersonaSession, input string) (*ports.PersonaResponse, error) {
	if session == nil {
		return nil, ports.ErrSessionNotFound
	}
	if _, err := e.instructions(session.AgentName); err != nil {
		return nil, err
	}

	var system []string
	var messages []anthropic.MessageParam
	for _, turn := range session.ConversationHistory {
		switch turn.Role {
		case ports.RoleSystem:
			system = append(system, turn.Content)
		case ports.RoleHuman:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Content)))
		case ports.RoleAgent:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Content)))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(input)))

	text, err := e.complete(ctx, systemPrompt(system...), messages)
	if err != nil {
		return nil, err
	}

	done := strings.Contains(text, completeMarker)
	content := strings.TrimSpace(strings.ReplaceAll(text, completeMarker, ""))

	session.ConversationHistory = append(session.ConversationHistory,
		ports.ConversationTurn{Role: ports.RoleHuman, Content: input},
		ports.ConversationTurn{Role: ports.RoleAgent, Content: content},
	)
	return &ports.PersonaResponse{
		Content:       content,
		AwaitingInput: !done,
		Outputs:       []ports.ProducedFile{},
	}, nil
}
