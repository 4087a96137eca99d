package selection

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/initializ/cip/textutil"
)

// complexityCues are tokens that suggest a request needs multi-step reasoning.
var complexityCues = map[string]bool{
	"because": true, "therefore": true, "compare": true, "comparison": true, "versus": true,
	"vs": true, "tradeoff": true, "tradeoffs": true, "trade": true, "why": true, "how": true,
	"analyze": true, "analyse": true, "evaluate": true, "plan": true, "strategy": true,
	"pros": true, "cons": true, "impact": true, "scenario": true, "scenarios": true,
	"if": true, "should": true, "long": true, "term": true, "consequences": true, "risks": true,
}

// input is a request prepared once and scored against every scaffold.
type input struct {
	text       string
	tokens     map[string]struct{}
	tool       string
	hint       string
	complexity float64
	now        time.Time
}

func prepareInput(req Request, p Params) input {
	toks := textutil.Tokenize(req.UserInput)
	set := make(map[string]struct{}, len(toks))
	cues := 0.0
	for _, t := range toks {
		if _, dup := set[t]; dup {
			continue
		}
		set[t] = struct{}{}
		if complexityCues[t] {
			cues++
		}
	}
	if q := strings.Count(req.UserInput, "?"); q > 1 {
		cues += float64(q - 1)
	}
	cues += float64(len(toks)) / 40

	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	return input{
		text:       req.UserInput,
		tokens:     set,
		tool:       req.ToolName,
		hint:       req.OutputHint,
		complexity: saturate(cues, p.ComplexitySaturation),
		now:        now,
	}
}

// ScaffoldScore is the full explanation of one scaffold's score.
type ScaffoldScore struct {
	ScaffoldID    string             `json:"scaffold_id"`
	Total         float64            `json:"total"`
	PreBias       float64            `json:"pre_bias"`
	Layers        LayerVector        `json:"layers"`
	Weighted      LayerVector        `json:"weighted"`
	Active        int                `json:"active_layers"`
	Reinforcement float64            `json:"reinforcement"`
	Temporal      float64            `json:"temporal"`
	Normalizer    float64            `json:"normalizer"`
	Bias          float64            `json:"bias"`
	Keywords      []string           `json:"keywords,omitempty"`
	IntentSignals map[string]float64 `json:"intent_signals,omitempty"`
	Triggers      []string           `json:"triggers,omitempty"`
	ToolHit       bool               `json:"tool_hit,omitempty"`
}

func (c *compiled) score(in input, p Params, bias map[string]float64) ScaffoldScore {
	sc := ScaffoldScore{ScaffoldID: c.scaffold.ID}
	var layers LayerVector

	// L1: keyword hits, intent coverage, tool membership, description overlap.
	raw := 0.0
	for _, kw := range c.keywords {
		if kw.re != nil && kw.re.MatchString(in.text) {
			sc.Keywords = append(sc.Keywords, kw.phrase)
			raw++
		}
	}
	for _, sig := range c.intents {
		cov := textutil.Coverage(sig.tokens, in.tokens)
		if cov == 0 || cov < p.MinSignalCoverage {
			continue
		}
		contribution := cov
		if sig.re != nil && sig.re.MatchString(in.text) {
			contribution += p.ExactSignalBonus
		}
		if sc.IntentSignals == nil {
			sc.IntentSignals = make(map[string]float64)
		}
		sc.IntentSignals[sig.phrase] = contribution
		raw += contribution
	}
	if in.tool != "" && c.tools[in.tool] {
		sc.ToolHit = true
		raw++
	}
	if len(c.description) > 0 {
		overlap := 0
		for _, t := range c.description {
			if _, ok := in.tokens[t]; ok {
				overlap++
			}
		}
		if overlap > 0 && overlap >= p.MinDescriptionOverlap {
			raw += float64(overlap) / float64(len(c.description))
		}
	}
	layers.Applicability = saturate(raw, p.ApplicabilitySaturation)

	// L4: escalation trigger coverage.
	trig := 0.0
	for _, tr := range c.triggers {
		cov := textutil.Coverage(tr.tokens, in.tokens)
		if cov == 0 || cov < p.TriggerCoverage {
			continue
		}
		sc.Triggers = append(sc.Triggers, tr.phrase)
		trig += cov
	}
	layers.Guardrail = saturate(trig, p.GuardrailSaturation)

	// L2 and L3 only count once the request shows some evidence for the
	// scaffold; shape alone never selects.
	if layers.Applicability > 0 || layers.Guardrail > 0 {
		layers.Reasoning = 1 - math.Abs(in.complexity-c.depth)
		switch {
		case in.hint == "":
		case in.hint == c.scaffold.OutputCalibration.Format:
			layers.Output = 1
		case c.formats[in.hint]:
			layers.Output = p.FormatOptionMatch
		}
	}

	sum := 0.0
	for l := Layer(0); l < numLayers; l++ {
		w, v := p.Weights.At(l), layers.At(l)
		contrib := w * v * p.Interaction.At(l)
		sc.Weighted.set(l, contrib)
		sum += contrib
		if w > 0 && v > p.LayerActivation {
			sc.Active++
		}
	}

	sc.Layers = layers
	sc.Reinforcement = 1 + p.Reinforcement*float64(max(0, sc.Active-1))
	sc.Temporal = 1
	if p.Kernel != nil {
		sc.Temporal = p.Kernel.Factor(c.scaffold, in.now)
	}
	sc.Normalizer = p.normalizer(sc.Active)

	m := sum * sc.Reinforcement * sc.Temporal / sc.Normalizer
	if m < p.Floor || math.IsNaN(m) {
		m = p.Floor
	}
	sc.PreBias = m
	sc.Bias = 1
	if b, ok := bias[c.scaffold.ID]; ok {
		sc.Bias = b
	}
	sc.Total = m * sc.Bias
	return sc
}

// rank scores every cached scaffold and orders them by total score,
// descending. Equal scores keep declaration order.
func (pc *PatternCache) rank(in input, p Params, bias map[string]float64) []ScaffoldScore {
	scores := make([]ScaffoldScore, 0, len(pc.entries))
	for _, c := range pc.entries {
		scores = append(scores, c.score(in, p, bias))
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Total > scores[j].Total
	})
	return scores
}
