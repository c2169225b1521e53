// Package kernel wires the process-wide services a saga command needs:
// configuration, the session store, the model client chain, web search, and
// optional metrics. Commands build one kernel, run sessions through it, and
// stop it on the way out.
package kernel

import (
	"context"
	"fmt"
	"path/filepath"

	"saga/pkg/batch"
	"saga/pkg/config"
	"saga/pkg/coordinator"
	"saga/pkg/evaluator"
	"saga/pkg/interview"
	"saga/pkg/llm"
	"saga/pkg/llm/anthropic"
	"saga/pkg/llm/google"
	"saga/pkg/llm/middleware"
	"saga/pkg/llm/ollama"
	"saga/pkg/llm/openai"
	"saga/pkg/logx"
	"saga/pkg/metrics"
	"saga/pkg/persistence"
	"saga/pkg/research"
	"saga/pkg/session"
	"saga/pkg/utils"
	"saga/pkg/writer"
)

// Kernel holds the long-lived services shared by every session a command
// runs: the store, the composed model client, search, and metrics. Per-session
// objects (executors, engine, coordinator) are built fresh in RunSession so
// their log output lands in that session's ring.
type Kernel struct {
	// Context is embedded rather than passed per-call so the metrics server
	// and other background work stop when the kernel does.
	ctx    context.Context //nolint:containedctx // Required for kernel lifecycle management
	cancel context.CancelFunc

	// Configuration and logging
	Config *config.Config
	Logger *logx.Logger

	// Core services (concrete types, no over-abstraction)
	Store    *persistence.Store
	Recorder *metrics.Recorder     // nil when metrics are disabled
	Search   research.SearchClient // nil when no search backend is configured
	Client   llm.LLMClient
}

// NewKernel creates a kernel with all shared services initialized. On any
// failure the partially built kernel is torn down before returning.
func NewKernel(parent context.Context, cfg *config.Config) (*Kernel, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Models == nil || cfg.Pipeline == nil || cfg.Storage == nil {
		return nil, fmt.Errorf("config is missing models, pipeline, or storage sections")
	}

	ctx, cancel := context.WithCancel(parent)

	k := &Kernel{
		ctx:    ctx,
		cancel: cancel,
		Config: cfg,
		Logger: logx.NewLogger("kernel"),
	}

	if err := k.initializeServices(); err != nil {
		k.Stop()
		return nil, fmt.Errorf("failed to initialize kernel services: %w", err)
	}

	return k, nil
}

// initializeServices sets up the session store, metrics, the model client
// chain, and web search, in dependency order (the model chain records into
// the metrics recorder when one exists).
func (k *Kernel) initializeServices() error {
	if err := k.initializeStore(); err != nil {
		return err
	}
	k.initializeMetrics()
	if err := k.initializeModelChain(); err != nil {
		return err
	}
	k.initializeSearch()
	return nil
}

// initializeStore opens the SQLite session store, creating the parent
// directory on first run.
func (k *Kernel) initializeStore() error {
	dbPath := k.Config.Storage.DatabasePath
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	store, err := persistence.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	k.Store = store
	k.Logger.Debug("session store ready at %s", dbPath)
	return nil
}

// initializeMetrics builds the Prometheus recorder and starts the exposition
// endpoint when metrics are enabled. Disabled metrics leave Recorder nil and
// every recording site quietly skips.
func (k *Kernel) initializeMetrics() {
	mcfg := k.Config.Metrics
	if mcfg == nil || !mcfg.Enabled {
		return
	}

	k.Recorder = metrics.NewRecorder()

	addr := mcfg.Addr
	if addr == "" {
		addr = config.DefaultMetricsAddr
	}
	metrics.Serve(k.ctx, addr, logx.NewLogger("metrics"))
}

// initializeModelChain composes the LLM client every executor shares:
// provider clients wrapped with retry (and per-attempt metrics), a fallback
// pair when a backup model is configured, and request logging outermost so
// each logical request logs once.
func (k *Kernel) initializeModelChain() error {
	models := k.Config.Models
	if models.Primary == "" {
		return fmt.Errorf("no primary model configured")
	}

	llmLogger := logx.NewLogger("llm")

	primary, err := k.buildBackend(models.Primary, llmLogger)
	if err != nil {
		return fmt.Errorf("primary model %s: %w", models.Primary, err)
	}

	client := primary
	if models.Backup != "" && models.Backup != models.Primary {
		backup, backupErr := k.buildBackend(models.Backup, llmLogger)
		if backupErr != nil {
			// A missing backup credential should not block the pipeline.
			k.Logger.Warn("backup model %s unavailable: %v", models.Backup, backupErr)
		} else {
			client = middleware.NewFallbackClient(primary, backup, llmLogger)
		}
	}

	k.Client = llm.Chain(client, middleware.Logging(llmLogger))
	return nil
}

// buildBackend wraps one provider client with its own retry budget, and with
// metrics recording when enabled. Retry sits outside metrics so every
// physical attempt is recorded under the backend's real model name.
func (k *Kernel) buildBackend(modelName string, logger middleware.Logger) (llm.LLMClient, error) {
	base, err := k.newProviderClient(modelName)
	if err != nil {
		return nil, err
	}

	mws := []llm.Middleware{middleware.Retry(logger)}
	if k.Recorder != nil {
		mws = append(mws, middleware.Metrics(k.Recorder))
	}
	return llm.Chain(base, mws...), nil
}

// newProviderClient resolves a model name to its provider and constructs the
// raw client with credentials from the secrets file or environment.
func (k *Kernel) newProviderClient(modelName string) (llm.LLMClient, error) {
	provider, err := config.GetModelProvider(modelName)
	if err != nil {
		return nil, err
	}

	if provider == config.ProviderOllama {
		host := k.Config.Models.OllamaHost
		if host == "" {
			host, _ = config.GetAPIKey(provider)
		}
		return ollama.NewClient(host, modelName), nil
	}

	key, err := config.GetAPIKey(provider)
	if err != nil {
		return nil, err
	}

	switch provider {
	case config.ProviderAnthropic:
		return anthropic.NewClient(key, modelName), nil

	case config.ProviderOpenAI:
		return openai.NewClient(key, modelName), nil

	case config.ProviderOpenRouter:
		baseURL := k.Config.Models.OpenRouterBaseURL
		if baseURL == "" {
			baseURL = config.DefaultOpenRouterBaseURL
		}
		return openai.NewClientWithBaseURL(key, modelName, baseURL), nil

	case config.ProviderGoogle:
		return google.NewClient(key, modelName), nil

	default:
		return nil, fmt.Errorf("unsupported provider %q for model %s", provider, modelName)
	}
}

// initializeSearch wires the Tavily search client when a key is available.
// Without one, historical research degrades to a logged no-op and the writer
// works from the interview alone.
func (k *Kernel) initializeSearch() {
	key := config.GetSearchAPIKey()
	if key == "" {
		k.Logger.Warn("no search credentials found, historical research will be skipped")
		return
	}

	scfg := config.SearchConfig{}
	if k.Config.Search != nil {
		scfg = *k.Config.Search
	}
	k.Search = research.NewTavilyClient(key, scfg)
}

// Stop releases kernel resources: the metrics server (via context cancel)
// and the session store. Safe to call after a failed NewKernel.
func (k *Kernel) Stop() {
	if k.cancel != nil {
		k.cancel()
	}
	if k.Store != nil {
		if err := k.Store.Close(); err != nil {
			k.Logger.Error("error closing session store: %v", err)
		}
		k.Store = nil
	}
}

// RunSession drives one biography session through the full pipeline: saves
// the fresh state so it is resumable from the first iteration, runs the
// coordinator loop, applies the narrative-arc evaluation to completed
// biographies, and persists the final state. The returned state is always
// non-nil for a non-nil input, even when the run failed.
func (k *Kernel) RunSession(ctx context.Context, state *session.SessionState, subject interview.SubjectSource, presenter coordinator.Presenter) (*session.SessionState, error) {
	if state == nil {
		return nil, fmt.Errorf("session state is required")
	}

	if err := k.Store.SaveSession(state); err != nil {
		return state, fmt.Errorf("failed to save new session: %w", err)
	}

	// Per-session loggers bind to the session's ring so every executor line
	// is captured alongside the state it produced.
	mk := func(component string) *logx.Logger {
		logger := logx.NewLogger(component)
		if state.Ring != nil {
			logger = logger.WithRing(state.Ring)
		}
		return logger
	}

	pipeline := *k.Config.Pipeline
	interviewer := interview.NewInterviewer(k.Client, pipeline, mk("interview"))

	executors := map[session.ActionName]coordinator.Executor{
		session.ActionContinueInterview: interview.NewContinueExecutor(interviewer, subject, mk("interview")),
		session.ActionEndInterview:      interview.NewEndExecutor(mk("interview")),
		session.ActionExtractEvents:     research.NewExtractExecutor(k.Client, mk("research")),
		session.ActionResearchHistory:   research.NewResearchExecutor(k.Client, k.Search, mk("research")),
		session.ActionWriteBiography:    writer.NewWriteExecutor(k.Client, mk("writer")),
		session.ActionEvaluateQuality:   evaluator.NewEvaluateExecutor(k.Client, pipeline, mk("evaluator")),
		session.ActionRefineBiography:   writer.NewRefineExecutor(k.Client, pipeline, mk("writer")),
	}

	engine := coordinator.NewEngine(k.Client, pipeline, mk("coordinator"))

	opts := []coordinator.Option{}
	if presenter != nil {
		opts = append(opts, coordinator.WithPresenter(presenter))
	}
	if k.Recorder != nil {
		opts = append(opts, coordinator.WithObserver(k.Recorder))
	}
	coord := coordinator.New(engine, executors, pipeline, mk("coordinator"), opts...)

	state, runErr := coord.Run(ctx, state)

	// The narrative-arc evaluation runs once, after the loop, on sessions
	// that finished with a biography.
	if runErr == nil && state.Status == session.StatusCompleted && state.HasBiography() {
		heroLogger := mk("evaluator")
		hero := evaluator.NewHeroJourneyEvaluator(k.Client, heroLogger)
		if err := hero.Evaluate(ctx, state); err != nil {
			heroLogger.Warn("narrative arc evaluation skipped: %v", err)
		}
	}

	if err := k.Store.SaveSession(state); err != nil {
		if runErr == nil {
			return state, fmt.Errorf("session finished but could not be saved: %w", err)
		}
		k.Logger.Error("failed to save session %s: %v", state.SessionID, err)
	}

	return state, runErr
}

// BatchRunner adapts the kernel for the batch processor: each persona file
// becomes a simulated subject driven through a full unattended session.
func (k *Kernel) BatchRunner() batch.RunFunc {
	return func(ctx context.Context, personaPath string) (*session.SessionState, error) {
		persona, err := interview.LoadPersona(personaPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load persona: %w", err)
		}

		state := session.NewState(persona.Name)
		subjectLogger := logx.NewLogger("subject-sim")
		if state.Ring != nil {
			subjectLogger = subjectLogger.WithRing(state.Ring)
		}
		subject := interview.NewSimulatedSubject(persona, k.Client, subjectLogger)

		return k.RunSession(ctx, state, subject, coordinator.NopPresenter{})
	}
}
