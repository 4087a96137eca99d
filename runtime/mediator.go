// Package runtime mediates generation: it calls a provider and passes the
// response, whole or streamed, through the guardrail pipeline before any of
// it reaches the caller.
package runtime

import (
	"context"
	"fmt"

	"github.com/initializ/cip/guardrail"
	"github.com/initializ/cip/llm"
	"github.com/initializ/cip/logging"
	"github.com/initializ/cip/telemetry"
)

// MediatorConfig configures a Mediator.
type MediatorConfig struct {
	Client   llm.Client
	Hooks    *HookRegistry
	Logger   logging.Logger
	Sink     telemetry.Sink
	Registry *guardrail.Registry
	// Holdback withholds each stream's trailing window until it is cleared.
	Holdback bool
}

// Mediator sits between a generation provider and the caller.
type Mediator struct {
	client   llm.Client
	hooks    *HookRegistry
	logger   logging.Logger
	sink     telemetry.Sink
	registry *guardrail.Registry
	holdback bool
}

// Completion is a mediated, complete response.
type Completion struct {
	Model        string            `json:"model,omitempty"`
	Content      string            `json:"content"`
	FinishReason string            `json:"finish_reason,omitempty"`
	Usage        llm.Usage         `json:"usage"`
	Guardrail    *guardrail.Result `json:"guardrail"`
}

// NewMediator creates a Mediator from cfg.
func NewMediator(cfg MediatorConfig) *Mediator {
	hooks := cfg.Hooks
	if hooks == nil {
		hooks = NewHookRegistry()
	}
	reg := cfg.Registry
	if reg == nil {
		reg = guardrail.DefaultRegistry()
	}
	return &Mediator{
		client:   cfg.Client,
		hooks:    hooks,
		logger:   logging.OrNop(cfg.Logger),
		sink:     cfg.Sink,
		registry: reg,
		holdback: cfg.Holdback,
	}
}

func (m *Mediator) pipeline(settings guardrail.Settings) (*guardrail.Pipeline, error) {
	return guardrail.NewPipeline(settings,
		guardrail.WithLogger(m.logger),
		guardrail.WithSink(m.sink),
		guardrail.WithRegistry(m.registry),
	)
}

// Complete requests a full response and returns its sanitized form.
func (m *Mediator) Complete(ctx context.Context, req *llm.Request, settings guardrail.Settings) (*Completion, error) {
	if m.client == nil {
		return nil, fmt.Errorf("mediator: no generation client configured")
	}
	p, err := m.pipeline(settings)
	if err != nil {
		return nil, fmt.Errorf("building guardrail pipeline: %w", err)
	}
	if err := m.hooks.Fire(ctx, BeforeGenerate, &HookContext{Request: req}); err != nil {
		return nil, fmt.Errorf("before generate hook: %w", err)
	}

	resp, err := m.client.Chat(ctx, req)
	if err != nil {
		_ = m.hooks.Fire(ctx, OnError, &HookContext{Request: req, Error: err})
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	res, err := p.Evaluate(ctx, resp.Content)
	if err != nil {
		return nil, err
	}
	if err := m.afterGenerate(ctx, req, resp, res); err != nil {
		return nil, err
	}
	return &Completion{
		Model:        m.client.ModelID(),
		Content:      res.Sanitized,
		FinishReason: resp.FinishReason,
		Usage:        resp.Usage,
		Guardrail:    res,
	}, nil
}

// Stream requests a streamed response and forwards guardrail-cleared text to
// forward as it arrives. When the stream halts the upstream request is
// cancelled. A halt is a normal outcome, reported in the returned result.
func (m *Mediator) Stream(ctx context.Context, req *llm.Request, settings guardrail.Settings, forward func(string) error) (*guardrail.Result, error) {
	if m.client == nil {
		return nil, fmt.Errorf("mediator: no generation client configured")
	}
	p, err := m.pipeline(settings)
	if err != nil {
		return nil, fmt.Errorf("building guardrail pipeline: %w", err)
	}
	if err := m.hooks.Fire(ctx, BeforeGenerate, &HookContext{Request: req}); err != nil {
		return nil, fmt.Errorf("before generate hook: %w", err)
	}

	upstream, cancel := context.WithCancel(ctx)
	defer cancel()
	deltas, err := m.client.ChatStream(upstream, req)
	if err != nil {
		_ = m.hooks.Fire(ctx, OnError, &HookContext{Request: req, Error: err})
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	var opts []guardrail.StreamOption
	if m.holdback {
		opts = append(opts, guardrail.WithHoldback())
	}
	s := p.OpenStream(opts...)
	res, err := s.Run(ctx, deltas, forward)
	cancel()
	if err != nil {
		_ = m.hooks.Fire(ctx, OnError, &HookContext{Request: req, Result: res, Error: err})
		return res, err
	}

	m.logger.Debug("stream closed", map[string]any{
		"stream_id": res.StreamID,
		"state":     res.State.String(),
		"fired":     res.Fired,
	})
	if err := m.afterGenerate(ctx, req, nil, res); err != nil {
		return res, err
	}
	return res, nil
}

func (m *Mediator) afterGenerate(ctx context.Context, req *llm.Request, resp *llm.Response, res *guardrail.Result) error {
	hctx := &HookContext{Request: req, Response: resp, Result: res}
	if err := m.hooks.Fire(ctx, AfterGenerate, hctx); err != nil {
		return fmt.Errorf("after generate hook: %w", err)
	}
	if len(res.Interventions) > 0 || res.State == guardrail.StateHalted {
		if err := m.hooks.Fire(ctx, OnIntervention, hctx); err != nil {
			return fmt.Errorf("intervention hook: %w", err)
		}
	}
	return nil
}
