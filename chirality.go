package chirality

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	backend "github.com/redis/go-redis/v9"

	"github.com/sgttomas/chirality-runtime/internal/adapters/file"
	"github.com/sgttomas/chirality-runtime/internal/config"
	"github.com/sgttomas/chirality-runtime/internal/logging"
	"github.com/sgttomas/chirality-runtime/internal/runtime"
	"github.com/sgttomas/chirality-runtime/pkg/adapters/anthropic"
	"github.com/sgttomas/chirality-runtime/pkg/adapters/git"
	"github.com/sgttomas/chirality-runtime/pkg/adapters/jwt"
	loamAdapter "github.com/sgttomas/chirality-runtime/pkg/adapters/loam"
	"github.com/sgttomas/chirality-runtime/pkg/adapters/memory"
	"github.com/sgttomas/chirality-runtime/pkg/adapters/redis"
	"github.com/sgttomas/chirality-runtime/pkg/adapters/sqlite"
	"github.com/sgttomas/chirality-runtime/pkg/brief"
	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/sgttomas/chirality-runtime/pkg/observability"
	"github.com/sgttomas/chirality-runtime/pkg/persistence/middleware"
	"github.com/sgttomas/chirality-runtime/pkg/ports"
	"github.com/sgttomas/chirality-runtime/pkg/session"
)

// Config is the runtime configuration. See LoadConfig.
type Config = config.Config

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config { return config.Default() }

// LoadConfig reads a YAML or JSON file (chirality.yaml when path is empty) and CHIRALITY_* overrides.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// Orchestrator is the operation surface shared by every transport.
type Orchestrator = runtime.Orchestrator

// Request types accepted by the Orchestrator.
type (
	CreateProjectRequest     = runtime.CreateProjectRequest
	CreatePackageRequest     = runtime.CreatePackageRequest
	CreateDeliverableRequest = runtime.CreateDeliverableRequest
	StartSessionRequest      = runtime.StartSessionRequest
	WriteArtifactRequest     = runtime.WriteArtifactRequest
)

// Runtime is the high-level entry point. It owns the adapters selected by the
// configuration and exposes the orchestrator operations.
type Runtime struct {
	*runtime.Orchestrator

	Config    *Config
	Workspace ports.Workspace
	Identity  ports.Identity
	Metrics   *observability.Metrics
	Agents    []loamAdapter.Agent

	hooks    domain.LifecycleHooks
	executor ports.AgentExecutor
	logger   *slog.Logger
	closers  []func() error
}

// Option configures the Runtime.
type Option func(*Runtime)

// WithLogger sets the structured logger. The default follows Config.LogLevel.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) { r.logger = logger }
}

// WithLifecycleHooks registers extra observability hooks next to logging and metrics.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Runtime) { r.hooks = hooks }
}

// WithExecutor injects an agent executor, bypassing the Anthropic adapter.
func WithExecutor(executor ports.AgentExecutor) Option {
	return func(r *Runtime) { r.executor = executor }
}

// WithWorkspace injects a workspace, bypassing the filesystem adapter.
func WithWorkspace(ws ports.Workspace) Option {
	return func(r *Runtime) { r.Workspace = ws }
}

// WithIdentity injects an identity provider, bypassing the JWT adapter.
func WithIdentity(identity ports.Identity) Option {
	return func(r *Runtime) { r.Identity = identity }
}

// New wires a Runtime from cfg. A nil cfg means DefaultConfig.
func New(cfg *Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runtime{Config: cfg}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.New(cfg.Level())
	}

	rt, err := r.build()
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	r.Orchestrator = rt
	return r, nil
}

func (r *Runtime) build() (*runtime.Orchestrator, error) {
	cfg := r.Config
	ctx := context.Background()

	root, err := filepath.Abs(cfg.Workspace)
	if err != nil {
		return nil, fmt.Errorf("invalid workspace: %w", err)
	}
	if r.Workspace == nil {
		r.Workspace = file.NewWorkspace(root, file.WithWorkspaceLogger(r.logger))
	}

	stores, err := r.stores()
	if err != nil {
		return nil, err
	}
	blobs, err := r.blobStore()
	if err != nil {
		return nil, err
	}

	r.Metrics = observability.NewMetrics()
	hooks := observability.Combine(observability.LoggingHooks(r.logger), r.Metrics.Hooks(), r.hooks)

	opts := []runtime.Option{
		runtime.WithLogger(r.logger),
		runtime.WithLifecycleHooks(hooks),
		runtime.WithGuard(domain.NewGuard(domain.WithContainmentPolicy(cfg.ContainmentPolicy()))),
	}

	validator := brief.NewValidator(nil)
	if cfg.Brief.RulesFile != "" {
		rules, err := brief.LoadRules(cfg.Brief.RulesFile)
		if err != nil {
			return nil, err
		}
		validator = brief.NewValidator(brief.DefaultRules().Merge(rules))
	}
	opts = append(opts, runtime.WithBriefValidator(validator))

	if cfg.Ledger.Enabled {
		ledger, err := loamAdapter.Open(root)
		if err != nil {
			return nil, fmt.Errorf("failed to open status ledger: %w", err)
		}
		opts = append(opts, runtime.WithLedger(ledger))
	}

	if cfg.Git.Enabled {
		repo := git.New(root)
		if repo.Available() {
			opts = append(opts, runtime.WithVersionControl(repo))
		} else {
			r.logger.Warn("git enabled but no git binary found; issuance will not be committed")
		}
	}

	if cfg.Anthropic.AgentsDir != "" {
		catalog, err := loamAdapter.OpenCatalog(cfg.Anthropic.AgentsDir)
		if err != nil {
			return nil, err
		}
		if r.Agents, err = catalog.Agents(ctx); err != nil {
			return nil, err
		}
	}

	if r.executor == nil && cfg.Anthropic.APIKey != "" {
		aopts := []anthropic.Option{
			anthropic.WithModel(cfg.Anthropic.Model),
			anthropic.WithMaxTokens(cfg.Anthropic.MaxTokens),
			anthropic.WithLogger(r.logger),
		}
		for _, a := range r.Agents {
			aopts = append(aopts, anthropic.WithAgent(a.Name, a.Instructions))
		}
		r.executor = anthropic.New(cfg.Anthropic.APIKey, aopts)
	} else if len(r.Agents) > 0 {
		instructions := make(map[string]string, len(r.Agents))
		for _, a := range r.Agents {
			instructions[a.Name] = a.Instructions
		}
		opts = append(opts, runtime.WithInstructions(func(name string) string { return instructions[name] }))
	}
	if r.executor != nil {
		opts = append(opts, runtime.WithExecutor(r.executor))
	}

	if r.Identity == nil && cfg.Auth.JWTSecret != "" {
		var jopts []jwt.Option
		if cfg.Auth.Issuer != "" {
			jopts = append(jopts, jwt.WithIssuer(cfg.Auth.Issuer))
		}
		identity, err := jwt.New([]byte(cfg.Auth.JWTSecret), jopts...)
		if err != nil {
			return nil, err
		}
		r.Identity = identity
	}

	r.logger.Debug("runtime configured",
		"workspace", root,
		"store", cfg.Store.Backend,
		"blob", cfg.Blob.Backend,
		"containment", cfg.ContainmentPolicy(),
		"ledger", cfg.Ledger.Enabled,
		"git", cfg.Git.Enabled,
		"executor", r.executor != nil,
	)
	return runtime.NewOrchestrator(stores, r.Workspace, blobs, opts...)
}

// stores builds the entity repositories and the session manager for the configured backend.
func (r *Runtime) stores() (runtime.Stores, error) {
	cfg := r.Config
	var (
		stores   runtime.Stores
		sessions ports.Repository[domain.AgentSession]
		mgrOpts  = []session.Option{session.WithLogger(r.logger), session.WithLockTTL(cfg.Store.LockTTL)}
	)

	switch cfg.Store.Backend {
	case "memory":
		stores.Projects = memory.NewRepository[domain.Project]("Project")
		stores.Packages = memory.NewRepository[domain.Package]("Package")
		stores.Deliverables = memory.NewRepository[domain.Deliverable]("Deliverable")
		stores.Documents = memory.NewRepository[domain.Document]("Document")
		sessions = memory.NewRepository[domain.AgentSession]("AgentSession")
	case "file":
		stores.Projects = file.New[domain.Project]("Project", cfg.Path("projects"))
		stores.Packages = file.New[domain.Package]("Package", cfg.Path("packages"))
		stores.Deliverables = file.New[domain.Deliverable]("Deliverable", cfg.Path("deliverables"))
		stores.Documents = file.New[domain.Document]("Document", cfg.Path("documents"))
		sessions = file.New[domain.AgentSession]("AgentSession", cfg.Path("sessions"))
	case "redis":
		client := backend.NewClient(&backend.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		r.closers = append(r.closers, client.Close)
		prefix := func(entity string) redis.Option {
			return redis.WithPrefix(cfg.Redis.Prefix + strings.ToLower(entity) + ":")
		}
		stores.Projects = redis.NewFromClient[domain.Project](client, "Project", prefix("Project"))
		stores.Packages = redis.NewFromClient[domain.Package](client, "Package", prefix("Package"))
		stores.Deliverables = redis.NewFromClient[domain.Deliverable](client, "Deliverable", prefix("Deliverable"))
		stores.Documents = redis.NewFromClient[domain.Document](client, "Document", prefix("Document"))
		sessions = redis.NewFromClient[domain.AgentSession](client, "AgentSession",
			prefix("AgentSession"), redis.WithTTL(cfg.Redis.TTL))
		mgrOpts = append(mgrOpts, session.WithLocker(redis.NewLocker(client, cfg.Redis.Prefix)))
	default:
		return runtime.Stores{}, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	var mws []middleware.Middleware
	if len(cfg.Privacy.RedactPatterns) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.Privacy.RedactPatterns)
		if err != nil {
			return runtime.Stores{}, err
		}
		mws = append(mws, pii)
	}
	if key, _ := cfg.EncryptionKeys(); key != nil {
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    key,
			FallbackKeys: cfg.FallbackKeys(),
		})
		if err != nil {
			return runtime.Stores{}, err
		}
		mws = append(mws, enc)
	}
	stores.Sessions = session.NewManager(middleware.Chain(sessions, mws...), mgrOpts...)
	return stores, nil
}

func (r *Runtime) blobStore() (ports.BlobStore, error) {
	cfg := r.Config
	switch cfg.Blob.Backend {
	case "memory":
		return memory.NewBlobStore(), nil
	case "sqlite":
		path := cfg.Blob.Path
		if path == "" {
			path = cfg.Path("blobs.db")
		}
		store, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, store.Close)
		return store, nil
	case "file":
		path := cfg.Blob.Path
		if path == "" {
			path = cfg.Path("blobs")
		}
		return file.NewBlobStore(path), nil
	}
	return nil, fmt.Errorf("unknown blob backend %q", cfg.Blob.Backend)
}

// Logger returns the runtime logger.
func (r *Runtime) Logger() *slog.Logger { return r.logger }

// Executor returns the configured agent executor, or nil.
func (r *Runtime) Executor() ports.AgentExecutor { return r.executor }

// Watch streams workspace changes when the workspace supports it.
func (r *Runtime) Watch(ctx context.Context) (<-chan ports.FsChangeEvent, error) {
	if w, ok := r.Workspace.(ports.Watchable); ok {
		return w.Watch(ctx)
	}
	return nil, errors.New("current workspace does not support watching")
}

// Close releases backend connections.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
