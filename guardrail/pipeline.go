package guardrail

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/initializ/cip/logging"
	"github.com/initializ/cip/telemetry"
)

// Pipeline evaluates text against an ordered list of detectors. A Pipeline
// is immutable once built and safe for concurrent use.
type Pipeline struct {
	detectors []Detector
	settings  Settings
	window    int
	logger    logging.Logger
	sink      telemetry.Sink
}

type pipelineOptions struct {
	logger   logging.Logger
	sink     telemetry.Sink
	registry *Registry
	extra    []Detector
}

// Option configures NewPipeline.
type Option func(*pipelineOptions)

// WithLogger sets the logger used for detector failures.
func WithLogger(l logging.Logger) Option {
	return func(o *pipelineOptions) { o.logger = l }
}

// WithSink sets the telemetry sink for interventions and stream events.
func WithSink(s telemetry.Sink) Option {
	return func(o *pipelineOptions) { o.sink = s }
}

// WithRegistry sets the registry builtin specs are resolved against.
func WithRegistry(r *Registry) Option {
	return func(o *pipelineOptions) { o.registry = r }
}

// WithDetectors appends caller-supplied detectors after the configured ones.
func WithDetectors(d ...Detector) Option {
	return func(o *pipelineOptions) { o.extra = append(o.extra, d...) }
}

// NewPipeline builds the detector list from settings. Registration order is
// indicators, never-include phrases, pattern rules, escalation triggers,
// builtins, then extra detectors.
func NewPipeline(settings Settings, opts ...Option) (*Pipeline, error) {
	o := pipelineOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = DefaultRegistry()
	}
	settings = settings.withDefaults()
	switch settings.RedactionScope {
	case ScopeSpan, ScopeSentence:
	default:
		return nil, fmt.Errorf("unknown redaction scope %q", settings.RedactionScope)
	}

	p := &Pipeline{
		settings: settings,
		logger:   logging.OrNop(o.logger),
		sink:     o.sink,
	}

	if len(settings.Indicators) > 0 {
		if d := NewLexicalDetector("prohibited_indicators", settings.Indicators); d.Len() > 0 {
			p.detectors = append(p.detectors, d)
		}
	}
	if len(settings.NeverInclude) > 0 {
		d := NewLexicalDetector("never_include", []IndicatorSet{{Phrases: settings.NeverInclude}})
		d.kind = "never-include phrase"
		if d.Len() > 0 {
			p.detectors = append(p.detectors, d)
		}
	}
	if len(settings.PatternRules) > 0 {
		d, err := NewPatternDetector("regex_policies", settings.PatternRules)
		if err != nil {
			return nil, err
		}
		p.detectors = append(p.detectors, d)
	}
	if len(settings.EscalationTriggers) > 0 {
		p.detectors = append(p.detectors, NewEscalationDetector(settings.EscalationTriggers, settings.EscalationAction))
	}
	for _, spec := range settings.Builtins {
		d, err := o.registry.Build(spec)
		if err != nil {
			return nil, err
		}
		p.detectors = append(p.detectors, d)
	}
	for _, d := range o.extra {
		if d != nil {
			p.detectors = append(p.detectors, d)
		}
	}

	p.window = settings.StreamContext
	if p.window < DefaultStreamContext {
		p.window = DefaultStreamContext
	}
	for _, d := range p.detectors {
		if h, ok := d.(contextHinter); ok && h.ContextHint() > p.window {
			p.window = h.ContextHint()
		}
	}
	return p, nil
}

// Detectors returns detector names in registration order.
func (p *Pipeline) Detectors() []string {
	out := make([]string, len(p.detectors))
	for i, d := range p.detectors {
		out[i] = d.Name()
	}
	return out
}

// Settings returns the normalized settings the pipeline was built from.
func (p *Pipeline) Settings() Settings { return p.settings }

// Window is the number of trailing bytes re-checked per stream chunk.
func (p *Pipeline) Window() int { return p.window }

// Evaluate runs every detector over text concurrently and returns the
// combined result. A detector that errors or panics is recorded in
// Result.Failures and counts as no match; Evaluate itself only fails when
// ctx is done.
func (p *Pipeline) Evaluate(ctx context.Context, text string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dets := p.run(ctx, text, "")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := p.assemble(text, dets)
	p.report(res, "")
	return res, nil
}

type detection struct {
	verdict Verdict
	err     error
}

func (p *Pipeline) run(ctx context.Context, text, streamID string) []detection {
	out := make([]detection, len(p.detectors))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range p.detectors {
		g.Go(func() error {
			v, err := safeDetect(gctx, d, text)
			out[i] = detection{verdict: v, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, d := range out {
		if d.err == nil {
			continue
		}
		fields := map[string]any{
			"detector": p.detectors[i].Name(),
			"index":    i,
			"error":    d.err.Error(),
		}
		if streamID != "" {
			fields["stream_id"] = streamID
		}
		p.logger.Warn("guardrail detector failed", fields)
	}
	return out
}

func safeDetect(ctx context.Context, d Detector, text string) (v Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = Verdict{}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return d.Detect(ctx, text)
}

// assemble folds per-detector verdicts into a Result: first firing detector,
// interventions, redaction and disclaimer completion.
func (p *Pipeline) assemble(text string, dets []detection) *Result {
	res := &Result{}
	var spans []span
	for i, d := range dets {
		name := p.detectors[i].Name()
		if d.err != nil {
			res.Failures = append(res.Failures, DetectorFailure{
				Index:    i,
				Detector: name,
				Message:  d.err.Error(),
				Err:      d.err,
			})
			continue
		}
		v := d.verdict
		for _, f := range v.Flags {
			res.Interventions = append(res.Interventions, Intervention{Detector: name, Action: ActionFlag, Reason: f})
		}
		if !v.Fired {
			continue
		}
		action := v.Action
		if action == "" {
			action = ActionRedact
		}
		matches := validMatches(text, v.Matches)
		if !res.Fired {
			res.Fired = true
			res.Detector = name
			res.Reason = v.Reason
			res.Evidence = matches
		}
		iv := Intervention{Detector: name, Action: action, Reason: v.Reason}
		for _, m := range matches {
			iv.Evidence = append(iv.Evidence, m.Text)
		}
		res.Interventions = append(res.Interventions, iv)
		if action == ActionRedact {
			for _, m := range matches {
				spans = append(spans, span{m.Start, m.End})
			}
		}
	}

	body := redact(text, spans, p.settings.RedactionMarker, p.settings.RedactionScope)
	footer, added := disclaimerFooter(body, p.settings.Disclaimers)
	for _, d := range added {
		res.Interventions = append(res.Interventions, Intervention{
			Detector: "disclaimers",
			Action:   ActionDisclaimer,
			Reason:   "appended missing disclaimer",
			Evidence: []string{d},
		})
	}
	res.Sanitized = body + footer
	res.Footer = footer
	return res
}

// validMatches drops spans outside text and fills in missing match text.
func validMatches(text string, ms []Match) []Match {
	out := make([]Match, 0, len(ms))
	for _, m := range ms {
		if m.Start < 0 || m.End > len(text) || m.Start >= m.End {
			continue
		}
		if m.Text == "" {
			m.Text = text[m.Start:m.End]
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func (p *Pipeline) report(res *Result, streamID string) {
	if p.sink == nil {
		return
	}
	for _, iv := range res.Interventions {
		attrs := map[string]any{
			"detector": iv.Detector,
			"action":   string(iv.Action),
			"reason":   iv.Reason,
		}
		if streamID != "" {
			attrs["stream_id"] = streamID
		}
		telemetry.Emit(p.sink, telemetry.EventGuardrailIntervention, attrs)
	}
}
