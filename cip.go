// Package cip provides a high-level API surface for embedding scaffold
// selection, run-policy resolution and guardrail mediation as a library.
//
// This is the primary entry point for hosts (CLIs, MCP servers, agents) that
// want the whole flow without wiring the packages together themselves.
package cip

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/initializ/cip/guardrail"
	"github.com/initializ/cip/llm"
	"github.com/initializ/cip/logging"
	"github.com/initializ/cip/pipeline"
	"github.com/initializ/cip/policy"
	"github.com/initializ/cip/runtime"
	"github.com/initializ/cip/scaffold"
	"github.com/initializ/cip/selection"
	"github.com/initializ/cip/telemetry"
	"github.com/initializ/cip/types"
)

// ─── Engine ──────────────────────────────────────────────────────────

// Config configures an Engine.
type Config struct {
	DomainPath  string
	ScaffoldDir string
	Strict      bool

	Logger   logging.Logger
	Sink     telemetry.Sink
	Client   llm.Client
	Registry *guardrail.Registry
	Hooks    *runtime.HookRegistry
	// Holdback withholds each stream's trailing window until it is cleared.
	Holdback bool
}

// Engine ties the scaffold registry, policy resolution and guardrails
// together. It is safe for concurrent use; Reload swaps the whole registry
// generation atomically.
type Engine struct {
	cfg      Config
	logger   logging.Logger
	sink     telemetry.Sink
	mediator *runtime.Mediator
	registry *guardrail.Registry

	reloadMu sync.Mutex
	state    atomic.Pointer[engineState]
}

type engineState struct {
	domain   *types.DomainConfig
	selector *selection.Selector
	resolver *policy.Resolver
	warnings []string
}

// New loads the domain and scaffolds named in cfg and builds an Engine.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	e := newEngine(cfg)
	if err := e.Reload(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// NewFromIndex builds an Engine over an already loaded registry. domain may
// be nil, in which case built-in defaults are used.
func NewFromIndex(idx *scaffold.Index, domain *types.DomainConfig, cfg Config) (*Engine, error) {
	if domain == nil {
		domain = types.NewDomainConfig("default")
	}
	e := newEngine(cfg)
	st, err := e.buildState(idx, domain, nil)
	if err != nil {
		return nil, err
	}
	e.state.Store(st)
	return e, nil
}

func newEngine(cfg Config) *Engine {
	reg := cfg.Registry
	if reg == nil {
		reg = guardrail.DefaultRegistry()
	}
	logger := logging.OrNop(cfg.Logger)
	return &Engine{
		cfg:      cfg,
		logger:   logger,
		sink:     cfg.Sink,
		registry: reg,
		mediator: runtime.NewMediator(runtime.MediatorConfig{
			Client:   cfg.Client,
			Hooks:    cfg.Hooks,
			Logger:   logger,
			Sink:     cfg.Sink,
			Registry: reg,
			Holdback: cfg.Holdback,
		}),
	}
}

// buildState assembles one registry generation. Each generation gets its own
// selector so a reader holding an older state never sees a newer index.
func (e *Engine) buildState(idx *scaffold.Index, domain *types.DomainConfig, warnings []string) (*engineState, error) {
	presets := policy.NewPresetRegistry(true)
	if err := presets.Load(domain.Presets); err != nil {
		return nil, fmt.Errorf("domain presets: %w", err)
	}
	sel, err := selection.NewSelector(idx, domain.DefaultScaffoldID, selection.WithDefaultParams(domain.Selection))
	if err != nil {
		return nil, fmt.Errorf("domain selection params: %w", err)
	}
	return &engineState{
		domain:   domain,
		selector: sel,
		resolver: policy.NewResolver(presets),
		warnings: warnings,
	}, nil
}

// Reload re-runs the load pipeline from the configured paths. On failure the
// current registry stays in place and the error is returned.
func (e *Engine) Reload(ctx context.Context) error {
	if e.cfg.ScaffoldDir == "" {
		return fmt.Errorf("reload: no scaffold directory configured")
	}
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	lc, err := pipeline.Load(ctx, pipeline.LoadOptions{
		DomainPath:  e.cfg.DomainPath,
		ScaffoldDir: e.cfg.ScaffoldDir,
		Strict:      e.cfg.Strict,
	})
	if err != nil {
		e.logger.Error("registry load failed", map[string]any{"error": err.Error()})
		return err
	}
	for _, w := range lc.Warnings {
		e.logger.Warn("registry load warning", map[string]any{"warning": w})
	}

	st, err := e.buildState(lc.Index, lc.Domain, lc.Warnings)
	if err != nil {
		return err
	}
	e.state.Store(st)
	e.logger.Info("registry loaded", map[string]any{
		"domain":    lc.Domain.Name,
		"scaffolds": lc.Index.Len(),
	})
	telemetry.Emit(e.sink, telemetry.EventRegistryReloaded, map[string]any{
		"domain":    lc.Domain.Name,
		"scaffolds": lc.Index.Len(),
		"warnings":  len(lc.Warnings),
	})
	return nil
}

// Domain returns the current domain config.
func (e *Engine) Domain() *types.DomainConfig { return e.state.Load().domain }

// Index returns the current scaffold index.
func (e *Engine) Index() *scaffold.Index { return e.state.Load().selector.Snapshot().Index }

// Presets returns the current preset registry.
func (e *Engine) Presets() *policy.PresetRegistry { return e.state.Load().resolver.Presets() }

// Warnings returns the warnings collected by the last successful load.
func (e *Engine) Warnings() []string { return e.state.Load().warnings }

// ─── Select API ──────────────────────────────────────────────────────

// SelectRequest is a routing request with an optional policy expression.
type SelectRequest struct {
	ToolName   string
	UserInput  string
	ScaffoldID string
	OutputHint string
	Policy     policy.Expression
	Params     *selection.Params
}

// SelectResult bundles the selection, the resolved policy and the effective
// settings for the chosen scaffold.
type SelectResult struct {
	Selection *selection.Result `json:"selection"`
	Policy    policy.Resolution `json:"policy"`
	Effective *policy.Effective `json:"effective"`
}

// Select resolves the request's policy, picks a scaffold and applies the
// policy to it.
func (e *Engine) Select(req SelectRequest) (*SelectResult, error) {
	st := e.state.Load()
	res, err := e.resolve(st, req.Policy)
	if err != nil {
		return nil, err
	}

	hint := req.OutputHint
	if hint == "" && res.Policy.OutputFormat != nil {
		hint = *res.Policy.OutputFormat
	}
	sel, err := st.selector.Select(selection.Request{
		ToolName:   req.ToolName,
		UserInput:  req.UserInput,
		ScaffoldID: req.ScaffoldID,
		OutputHint: hint,
		Bias:       res.Policy.ScaffoldSelectionBias,
		Params:     req.Params,
	})
	if err != nil {
		return nil, err
	}
	telemetry.Emit(e.sink, telemetry.EventSelectionMade, map[string]any{
		"scaffold_id": sel.ScaffoldID,
		"mode":        string(sel.Mode),
		"confidence":  sel.Confidence,
		"ambiguous":   sel.Ambiguous,
	})
	return &SelectResult{
		Selection: sel,
		Policy:    res,
		Effective: policy.Apply(sel.Scaffold, st.domain, res.Policy),
	}, nil
}

// Explain scores every scaffold for req without running the cascade.
func (e *Engine) Explain(req SelectRequest) ([]selection.ScaffoldScore, error) {
	st := e.state.Load()
	res, err := e.resolve(st, req.Policy)
	if err != nil {
		return nil, err
	}
	return st.selector.Explain(selection.Request{
		ToolName:   req.ToolName,
		UserInput:  req.UserInput,
		OutputHint: req.OutputHint,
		Bias:       res.Policy.ScaffoldSelectionBias,
		Params:     req.Params,
	})
}

// Health analyzes how evenly each registered scaffold fills the scoring
// layers and which scaffolds are likely to compete for the same requests.
func (e *Engine) Health(opts selection.HealthOptions) (*selection.PortfolioHealth, error) {
	return selection.AnalyzePortfolio(e.Index(), opts)
}

// ─── Policy API ──────────────────────────────────────────────────────

// ResolvePolicy normalizes expr into a RunPolicy.
func (e *Engine) ResolvePolicy(expr policy.Expression) (policy.Resolution, error) {
	return e.resolve(e.state.Load(), expr)
}

func (e *Engine) resolve(st *engineState, expr policy.Expression) (policy.Resolution, error) {
	if expr.IsZero() {
		return policy.Resolution{}, nil
	}
	res, err := st.resolver.Resolve(expr)
	if err != nil {
		return policy.Resolution{}, err
	}
	if len(res.Unrecognized) > 0 {
		e.logger.Warn("unrecognized policy clauses", map[string]any{
			"clauses":   res.Unrecognized,
			"malformed": res.Malformed,
		})
	}
	telemetry.Emit(e.sink, telemetry.EventPolicyResolved, map[string]any{
		"source":             res.Policy.Source,
		"unrecognized_count": len(res.Unrecognized),
		"malformed":          res.Malformed,
	})
	return res, nil
}

// Effective applies expr to the named scaffold.
func (e *Engine) Effective(scaffoldID string, expr policy.Expression) (*policy.Effective, error) {
	st := e.state.Load()
	sc, ok := st.selector.Snapshot().Index.Get(scaffoldID)
	if !ok {
		return nil, fmt.Errorf("unknown scaffold %q: %w", scaffoldID, selection.ErrUnknownScaffold)
	}
	res, err := e.resolve(st, expr)
	if err != nil {
		return nil, err
	}
	return policy.Apply(sc, st.domain, res.Policy), nil
}

// ─── Guardrail API ───────────────────────────────────────────────────

// Pipeline builds a guardrail pipeline for settings.
func (e *Engine) Pipeline(settings guardrail.Settings) (*guardrail.Pipeline, error) {
	return guardrail.NewPipeline(settings,
		guardrail.WithLogger(e.logger),
		guardrail.WithSink(e.sink),
		guardrail.WithRegistry(e.registry),
	)
}

// Evaluate checks a complete response against settings.
func (e *Engine) Evaluate(ctx context.Context, text string, settings guardrail.Settings) (*guardrail.Result, error) {
	p, err := e.Pipeline(settings)
	if err != nil {
		return nil, err
	}
	return p.Evaluate(ctx, text)
}

// OpenStream starts a guardrail stream for settings.
func (e *Engine) OpenStream(settings guardrail.Settings, opts ...guardrail.StreamOption) (*guardrail.Stream, error) {
	p, err := e.Pipeline(settings)
	if err != nil {
		return nil, err
	}
	if e.cfg.Holdback {
		opts = append([]guardrail.StreamOption{guardrail.WithHoldback()}, opts...)
	}
	return p.OpenStream(opts...), nil
}

// ─── Generation API ──────────────────────────────────────────────────

func requestFor(req *llm.Request, eff *policy.Effective) *llm.Request {
	out := *req
	if out.Temperature == nil {
		out.Temperature = eff.Temperature
	}
	if out.MaxTokens == 0 && eff.MaxTokens != nil {
		out.MaxTokens = *eff.MaxTokens
	}
	return &out
}

// Complete generates a full response with the configured client and returns
// it sanitized under eff.
func (e *Engine) Complete(ctx context.Context, req *llm.Request, eff *policy.Effective) (*runtime.Completion, error) {
	return e.mediator.Complete(ctx, requestFor(req, eff), eff.Guardrails)
}

// Stream generates a streamed response, forwarding guardrail-cleared text.
func (e *Engine) Stream(ctx context.Context, req *llm.Request, eff *policy.Effective, forward func(string) error) (*guardrail.Result, error) {
	r := requestFor(req, eff)
	r.Stream = true
	return e.mediator.Stream(ctx, r, eff.Guardrails, forward)
}
