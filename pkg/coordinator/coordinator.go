package coordinator

import (
	"context"
	"fmt"
	"time"

	"saga/pkg/config"
	"saga/pkg/logx"
	"saga/pkg/session"
)

// Executor runs one pipeline action against a session. Implementations
// absorb their own backend failures and degrade the state per their action's
// policy; a returned error means the action could not apply its state update
// at all this iteration. The loop logs such errors and keeps going, except
// when the context is done.
type Executor interface {
	Execute(ctx context.Context, state *session.SessionState) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, state *session.SessionState) error

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, state *session.SessionState) error {
	return f(ctx, state)
}

// Presenter receives per-iteration progress for display. CLI and batch
// adapters implement it; NopPresenter discards everything.
type Presenter interface {
	// ShowDecision is called once per iteration with the decision that will
	// execute (post-guard) and the state it was made against.
	ShowDecision(iteration int, decision Decision, state *session.SessionState)

	// ShowOutcome is called after the action executed, with its error if any.
	ShowOutcome(action session.ActionName, state *session.SessionState, err error)
}

// NopPresenter ignores all progress output.
type NopPresenter struct{}

func (NopPresenter) ShowDecision(int, Decision, *session.SessionState) {}

func (NopPresenter) ShowOutcome(session.ActionName, *session.SessionState, error) {}

// Observer receives coordinator telemetry. The metrics recorder implements
// it; nopObserver is used when none is wired. Calls happen inline on the
// loop, so implementations must be cheap and non-blocking.
type Observer interface {
	DecisionMade(source Source, action session.ActionName, confidence float64)
	GuardOverride(proposed, executed session.ActionName)
	ActionExecuted(action session.ActionName, duration time.Duration, err error)
	SessionFinished(status string, iterations int)
}

type nopObserver struct{}

func (nopObserver) DecisionMade(Source, session.ActionName, float64) {}

func (nopObserver) GuardOverride(session.ActionName, session.ActionName) {}

func (nopObserver) ActionExecuted(session.ActionName, time.Duration, error) {}

func (nopObserver) SessionFinished(string, int) {}

// Coordinator owns one session's control loop.
type Coordinator struct {
	engine    *Engine
	executors map[session.ActionName]Executor
	cfg       config.PipelineConfig
	presenter Presenter
	observer  Observer
	logger    *logx.Logger
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithPresenter wires a progress display.
func WithPresenter(p Presenter) Option {
	return func(c *Coordinator) {
		if p != nil {
			c.presenter = p
		}
	}
}

// WithObserver wires a telemetry sink.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		if o != nil {
			c.observer = o
		}
	}
}

// New creates a coordinator around a decision engine and an executor table.
// The table maps every executable action; complete is terminal and needs no
// executor.
func New(engine *Engine, executors map[session.ActionName]Executor, cfg config.PipelineConfig, logger *logx.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = logx.NewLogger("coordinator")
	}
	c := &Coordinator{
		engine:    engine,
		executors: executors,
		cfg:       cfg,
		presenter: NopPresenter{},
		observer:  nopObserver{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes the coordinator loop against the session until a complete
// decision, the iteration cap, a protocol defect, or context cancellation.
// Cap exhaustion is normal termination: the session keeps whatever biography
// and evaluation exist and stays resumable. Only protocol defects (an
// executable action with no registered executor, which indicates a bug in
// the decision path) and context cancellation return an error.
func (c *Coordinator) Run(ctx context.Context, state *session.SessionState) (*session.SessionState, error) {
	maxIterations := c.cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = config.DefaultMaxIterations
	}

	logger := c.logger
	if state.Ring != nil {
		logger = logger.WithRing(state.Ring)
	}
	ctx = logx.WithSessionID(ctx, state.SessionID)

	logger.Info("session %s: coordinator loop starting (max %d iterations)", state.SessionID, maxIterations)

	for iteration := 1; iteration <= maxIterations; iteration++ {
		select {
		case <-ctx.Done():
			logger.Warn("session %s: canceled at iteration %d: %v", state.SessionID, iteration, ctx.Err())
			return state, ctx.Err()
		default:
		}

		proposed := c.engine.Decide(ctx, state)
		decision := Guard(proposed, state)
		if decision.Source == SourceGuard {
			logger.Warn("session %s: loop guard overrode %s -> %s", state.SessionID, proposed.NextAction, decision.NextAction)
			c.observer.GuardOverride(proposed.NextAction, decision.NextAction)
		}
		c.observer.DecisionMade(decision.Source, decision.NextAction, decision.Confidence)

		// The history records what actually executes, so repetition checks
		// in later iterations see through guard rewrites.
		state.RecordAction(iteration, decision.NextAction, decision.Reasoning)
		c.presenter.ShowDecision(iteration, decision, state)
		logger.Info("session %s: iteration %d: %s (%.2f, %s) - %s",
			state.SessionID, iteration, decision.NextAction, decision.Confidence, decision.Source, decision.Reasoning)

		if decision.NextAction.IsTerminal() {
			state.Phase = session.PhaseCompleted
			state.Status = session.StatusCompleted
			c.observer.SessionFinished(state.Status, iteration)
			logger.Info("session %s: completed after %d iterations", state.SessionID, iteration)
			return state, nil
		}

		executor, ok := c.executors[decision.NextAction]
		if !ok {
			// Decide and Guard only emit closed-set actions, so a missing
			// entry is a wiring bug, not a runtime condition.
			state.Status = session.StatusFailed
			c.observer.SessionFinished(state.Status, iteration)
			return state, logx.Errorf("protocol defect: no executor registered for action %q", decision.NextAction)
		}

		start := time.Now()
		err := executor.Execute(ctx, state)
		c.observer.ActionExecuted(decision.NextAction, time.Since(start), err)
		c.presenter.ShowOutcome(decision.NextAction, state, err)
		if err != nil {
			if ctx.Err() != nil {
				return state, fmt.Errorf("action %s interrupted: %w", decision.NextAction, err)
			}
			logger.Warn("session %s: action %s failed without state update: %v", state.SessionID, decision.NextAction, err)
			continue
		}

		// A refinement is only useful if its effect is measured, so a fresh
		// evaluation runs immediately on the new version.
		if decision.NextAction == session.ActionRefineBiography {
			if evaluate, ok := c.executors[session.ActionEvaluateQuality]; ok {
				if err := evaluate.Execute(ctx, state); err != nil {
					if ctx.Err() != nil {
						return state, fmt.Errorf("post-refinement evaluation interrupted: %w", err)
					}
					logger.Warn("session %s: post-refinement evaluation failed: %v", state.SessionID, err)
				}
			}
		}
	}

	c.observer.SessionFinished(state.Status, maxIterations)
	logger.Warn("session %s: stopped after %d iterations without reaching completion", state.SessionID, maxIterations)
	return state, nil
}
