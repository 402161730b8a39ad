// Package kernel wires the shared infrastructure behind the CLI: config,
// log file, session database, metrics, LLM clients, the host session and the
// orchestrator. It owns their lifecycle.
package kernel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"devagent/handlers"
	"devagent/pkg/artifact"
	"devagent/pkg/config"
	"devagent/pkg/generation"
	"devagent/pkg/generation/llm"
	"devagent/pkg/host"
	"devagent/pkg/host/pyhost"
	"devagent/pkg/logx"
	"devagent/pkg/metrics"
	"devagent/pkg/orchestrator"
	"devagent/pkg/persistence"
	"devagent/pkg/probe"
	"devagent/pkg/proto"
	"devagent/pkg/sessionlog"
	"devagent/pkg/templates"
	"devagent/pkg/validate"
)

// Options adjust how the kernel is assembled.
type Options struct {
	// Token overrides the stored credential for every provider.
	Token string
	// MetricsAddr overrides metrics.listen_addr when set.
	MetricsAddr string
	// LogToFile attaches the rotated log file from the logging section.
	LogToFile bool
	// Session replaces the host built from the host section.
	Session host.Session
	// Clients replaces the factory-backed client source.
	Clients generation.ClientSource
}

// Kernel manages the components one devagent process uses.
type Kernel struct {
	ctx    context.Context //nolint:containedctx // Required for kernel lifecycle management
	cancel context.CancelFunc

	Config *config.Config
	Logger *logx.Logger

	Database     *sql.DB
	Operations   *persistence.DatabaseOperations
	Registry     *prometheus.Registry
	Recorder     *metrics.PrometheusRecorder
	LLMFactory   *generation.ClientFactory
	Host         host.Session
	Orchestrator *orchestrator.Orchestrator

	token         string
	metricsAddr   string
	logCloser     io.Closer
	metricsServer *http.Server
	metricsLn     net.Listener
	busy          atomic.Bool

	sourcesMu sync.Mutex
	sources   map[string]generation.ClientSource

	projectDir string
	running    bool
}

// NewKernel builds every component from cfg. Nothing listens until Start.
func NewKernel(parent context.Context, cfg *config.Config, projectDir string, opts Options) (*Kernel, error) {
	ctx, cancel := context.WithCancel(parent)

	k := &Kernel{
		ctx:         ctx,
		cancel:      cancel,
		Config:      cfg,
		Logger:      logx.NewLogger("kernel"),
		token:       opts.Token,
		metricsAddr: cfg.Metrics.ListenAddr,
		sources:     make(map[string]generation.ClientSource),
		projectDir:  projectDir,
	}
	if opts.MetricsAddr != "" {
		k.metricsAddr = opts.MetricsAddr
	}

	if err := k.initializeServices(opts); err != nil {
		k.closeResources()
		cancel()
		return nil, fmt.Errorf("failed to initialize kernel services: %w", err)
	}
	return k, nil
}

func (k *Kernel) initializeServices(opts Options) error {
	if opts.LogToFile {
		closer, err := logx.InitializeLogFile(k.Config.Logging.Dir, k.Config.Logging.MaxSizeMB, k.Config.Logging.TeeEnabled())
		if err != nil {
			return fmt.Errorf("failed to initialize log file: %w", err)
		}
		k.logCloser = closer
	}

	if err := k.initializeDatabase(); err != nil {
		return err
	}

	k.Registry = prometheus.NewRegistry()
	k.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	k.Recorder = metrics.NewPrometheusRecorder(k.Registry)

	k.LLMFactory = generation.NewClientFactory(k.Config.Generation, k.Recorder)
	clients := opts.Clients
	if clients == nil {
		clients = k.clientFor
	}

	session := opts.Session
	if session == nil {
		var err error
		if session, err = newHostSession(k.Config.Host); err != nil {
			return fmt.Errorf("failed to create host session: %w", err)
		}
	}
	k.Host = session

	renderer, err := templates.NewRenderer()
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	prober := probe.New(session, probe.Options{
		SettleInterval:  k.Config.Probe.SettleInterval,
		ErrorSeverities: k.Config.Probe.ErrorSeverities,
		ScriptBindings:  k.Config.Probe.ScriptBindings,
	}, nil)

	k.Orchestrator, err = orchestrator.New(orchestrator.Deps{
		Generator: generation.NewAdapter(k.Config.Generation, clients, renderer, nil),
		Store:     artifact.NewStore(),
		Validator: newValidator(session),
		Prober:    prober,
		Renderer:  renderer,
	}, orchestrator.Options{
		OutputRoot:   k.Config.Output.Root,
		PreviewChars: k.Config.Loop.PreviewChars,
		Paths:        session.Modules(),
		Recorder:     k.Recorder,
		Sessions:     k.Operations,
		Sink:         persistence.NewSink(k.Operations),
		Pump:         session,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	k.Logger.Info("Kernel services initialized successfully")
	return nil
}

func (k *Kernel) initializeDatabase() error {
	db, err := persistence.Open(k.Config.Persistence.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	k.Database = db
	k.Operations = persistence.NewDatabaseOperations(db)
	k.Logger.Info("Database initialized with schema: %s", k.Config.Persistence.DBPath)
	return nil
}

// newValidator compiles with the host interpreter when it has one and parses
// with tree-sitter otherwise.
func newValidator(session host.Session) orchestrator.Validator {
	if compiler, ok := session.(validate.Compiler); ok {
		return validate.NewCompileValidator(compiler)
	}
	return validate.NewValidator()
}

func newHostSession(cfg config.HostConfig) (host.Session, error) {
	switch cfg.Kind {
	case config.HostNone:
		return host.NewNullSession(), nil
	default:
		return pyhost.NewSession(pyhost.Options{
			Interpreter: cfg.Interpreter,
			ExtraPaths:  cfg.ExtraPaths,
			ExecTimeout: cfg.ExecTimeout,
		})
	}
}

// clientFor resolves the credential for the selector's provider and returns
// a cached client built by the factory.
func (k *Kernel) clientFor(selector proto.ModelSelector) (llm.LLMClient, error) {
	selector = k.LLMFactory.Resolve(selector)

	k.sourcesMu.Lock()
	source, ok := k.sources[selector.Provider]
	if !ok {
		credential, err := config.ResolveCredential(selector.Provider, k.token)
		if err != nil {
			// CreateClient reports the missing credential as an unavailable backend.
			k.Logger.Warn("⚠️ No credential for provider %s: %v", selector.Provider, err)
		}
		source = generation.FactorySource(k.LLMFactory, credential)
		k.sources[selector.Provider] = source
	}
	k.sourcesMu.Unlock()

	return source(selector)
}

// Start begins serving metrics when an address is configured.
func (k *Kernel) Start() error {
	if k.running {
		return fmt.Errorf("kernel already running")
	}
	if k.metricsAddr != "" {
		if err := k.startMetricsServer(); err != nil {
			return err
		}
	}
	k.running = true
	k.Logger.Info("Kernel services started successfully")
	return nil
}

func (k *Kernel) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(k.Registry))
	mux.HandleFunc("/health", handlers.HealthHandler(k.busy.Load))

	ln, err := net.Listen("tcp", k.metricsAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", k.metricsAddr, err)
	}
	k.metricsLn = ln
	k.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := k.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			k.Logger.Error("Metrics server failed: %v", err)
		}
	}()
	k.Logger.Info("📈 Serving metrics on http://%s/metrics", ln.Addr())
	return nil
}

// MetricsAddr returns the address the metrics server listens on, or "".
func (k *Kernel) MetricsAddr() string {
	if k.metricsLn == nil {
		return ""
	}
	return k.metricsLn.Addr().String()
}

// Submit runs one request through the orchestrator.
func (k *Kernel) Submit(ctx context.Context, req *proto.Request, observers ...sessionlog.Observer) *proto.SessionResult {
	k.busy.Store(true)
	defer k.busy.Store(false)
	return k.Orchestrator.Run(ctx, req, observers...)
}

// Stop shuts the metrics server down and closes the database and log file.
func (k *Kernel) Stop() error {
	k.Logger.Info("Stopping kernel services...")
	k.cancel()

	if k.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := k.metricsServer.Shutdown(shutdownCtx); err != nil {
			k.Logger.Warn("⚠️ Error stopping metrics server: %v", err)
		}
		cancel()
		k.metricsServer = nil
		k.metricsLn = nil
	}

	k.running = false
	k.Logger.Info("Kernel services stopped")
	k.closeResources()
	return nil
}

func (k *Kernel) closeResources() {
	if k.Database != nil {
		if err := k.Database.Close(); err != nil {
			k.Logger.Error("Error closing database: %v", err)
		}
		k.Database = nil
	}
	if k.logCloser != nil {
		_ = k.logCloser.Close()
		k.logCloser = nil
	}
}

// Context returns the kernel's lifecycle context.
func (k *Kernel) Context() context.Context {
	return k.ctx
}

// ProjectDir returns the project directory path.
func (k *Kernel) ProjectDir() string {
	return k.projectDir
}
