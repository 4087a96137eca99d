package selection

import (
	"fmt"
	"math"
	"sort"

	"github.com/initializ/cip/scaffold"
	"github.com/initializ/cip/textutil"
)

// Per-layer caps for health scoring. A well-rounded scaffold lands around
// 0.7-0.8 and only an exceptionally rich one saturates.
const (
	applicabilityCap = 15
	reasoningCap     = 12
	outputCap        = 12
	guardrailCap     = 10

	// knowledgeCap bounds how much domain_knowledge_activation adds to the
	// reasoning layer.
	knowledgeCap = 5

	layerCount = float64(numLayers)
)

// Health signals for one scaffold.
const (
	SignalFriction  = "friction_detected"
	SignalEmergence = "emergence_window"
	SignalBaseline  = "baseline"
)

// Health signals for a portfolio.
const (
	PortfolioEmergence = "portfolio_emergence"
	PortfolioFriction  = "portfolio_friction"
	PortfolioMixed     = "portfolio_mixed"
	PortfolioBaseline  = "portfolio_baseline"
	PortfolioEmpty     = "portfolio_empty"
)

// HealthOptions tunes the health analysis.
type HealthOptions struct {
	// DetectionThreshold is the layer spread above which a scaffold shows
	// friction, and the floor every layer must clear for emergence.
	DetectionThreshold float64 `json:"detection_threshold"`
	// TensionThreshold is the agreement below which a layer pair is reported.
	TensionThreshold float64 `json:"tension_threshold"`
	// CoherenceDivisor scales the layer standard deviation in the coherence score.
	CoherenceDivisor float64 `json:"coherence_divisor"`
}

// DefaultHealthOptions returns the standard thresholds.
func DefaultHealthOptions() HealthOptions {
	return HealthOptions{DetectionThreshold: 0.4, TensionThreshold: 0.5, CoherenceDivisor: 0.5}
}

// Validate rejects thresholds outside [0, 1] and a non-positive divisor.
func (o HealthOptions) Validate() error {
	for name, v := range map[string]float64{
		"detection_threshold": o.DetectionThreshold,
		"tension_threshold":   o.TensionThreshold,
	} {
		if !finite(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: %s %v must be in [0, 1]", ErrInvalidSelectionParams, name, v)
		}
	}
	if !finite(o.CoherenceDivisor) || o.CoherenceDivisor <= 0 {
		return fmt.Errorf("%w: coherence_divisor %v must be positive", ErrInvalidSelectionParams, o.CoherenceDivisor)
	}
	return nil
}

// TensionPair is a pair of layers of one scaffold that disagree.
type TensionPair struct {
	LayerA    string  `json:"layer_a"`
	LayerB    string  `json:"layer_b"`
	Agreement float64 `json:"agreement"`
}

// ScaffoldHealth describes how evenly one scaffold fills the four layers.
type ScaffoldHealth struct {
	ScaffoldID string        `json:"scaffold_id"`
	Layers     LayerVector   `json:"layers"`
	MScore     float64       `json:"m_score"`
	Coherence  float64       `json:"coherence"`
	Dominant   string        `json:"dominant_layer"`
	Signal     string        `json:"signal"`
	Tensions   []TensionPair `json:"tension_pairs,omitempty"`
}

// Coupling is the same-layer agreement between two scaffolds.
type Coupling struct {
	ScaffoldA string  `json:"scaffold_a"`
	ScaffoldB string  `json:"scaffold_b"`
	Layer     string  `json:"layer"`
	Score     float64 `json:"score"`
}

// SignalOverlap lists applicability signals two scaffolds share. Shared
// tools defeat the tool-match branch; shared phrases push both scaffolds'
// applicability scores up together and invite ties.
type SignalOverlap struct {
	ScaffoldA     string   `json:"scaffold_a"`
	ScaffoldB     string   `json:"scaffold_b"`
	SharedTools   []string `json:"shared_tools,omitempty"`
	SharedPhrases []string `json:"shared_phrases,omitempty"`
}

// PortfolioHealth is the health report for a whole registry.
type PortfolioHealth struct {
	Scaffolds    []ScaffoldHealth `json:"scaffolds"`
	Coupling     []Coupling       `json:"coupling,omitempty"`
	Overlaps     []SignalOverlap  `json:"overlaps,omitempty"`
	AvgCoherence float64          `json:"avg_coherence"`
	Signal       string           `json:"portfolio_signal"`
}

// HealthLayers scores s on each layer in [0, 1] by counting what it declares
// for that layer against a fixed cap.
func HealthLayers(s *scaffold.Scaffold) LayerVector {
	app := s.Applicability
	applicability := len(app.Tools) + len(app.Keywords) + len(app.IntentSignals)

	reasoning := len(s.ReasoningFramework.Steps) + min(len(s.DomainKnowledgeActivation), knowledgeCap)

	oc := s.OutputCalibration
	output := len(oc.FormatOptions) + len(oc.MustInclude) + len(oc.NeverInclude)
	if oc.Format != "" && oc.Format != scaffold.DefaultFormat {
		output++
	}
	if oc.MaxLengthGuidance != "" {
		output++
	}

	g := s.Guardrails
	guardrail := len(g.Disclaimers) + len(g.EscalationTriggers) + len(g.ProhibitedActions)

	return LayerVector{
		Applicability: clamp01(float64(applicability) / applicabilityCap),
		Reasoning:     clamp01(float64(reasoning) / reasoningCap),
		Output:        clamp01(float64(output) / outputCap),
		Guardrail:     clamp01(float64(guardrail) / guardrailCap),
	}
}

// AnalyzeScaffold computes the health of one scaffold. The M-score is the
// equally weighted layer sum divided by the square root of the layer count.
func AnalyzeScaffold(s *scaffold.Scaffold, opts HealthOptions) ScaffoldHealth {
	v := HealthLayers(s)
	h := ScaffoldHealth{
		ScaffoldID: s.ID,
		Layers:     v,
		MScore:     v.Sum() / layerCount / math.Sqrt(layerCount),
		Coherence:  coherence(v, opts.CoherenceDivisor),
		Dominant:   dominant(v).String(),
		Signal:     healthSignal(v, opts.DetectionThreshold),
	}
	for a := Layer(0); a < numLayers; a++ {
		for b := a + 1; b < numLayers; b++ {
			if agree := agreement(v.At(a), v.At(b)); agree < opts.TensionThreshold {
				h.Tensions = append(h.Tensions, TensionPair{LayerA: a.String(), LayerB: b.String(), Agreement: round3(agree)})
			}
		}
	}
	return h
}

// AnalyzePortfolio computes the health of every scaffold in idx, their
// pairwise coupling (highest first) and shared applicability signals.
func AnalyzePortfolio(idx *scaffold.Index, opts HealthOptions) (*PortfolioHealth, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	all := idx.All()
	ph := &PortfolioHealth{Scaffolds: make([]ScaffoldHealth, 0, len(all))}
	for _, s := range all {
		ph.Scaffolds = append(ph.Scaffolds, AnalyzeScaffold(s, opts))
	}

	for i, a := range ph.Scaffolds {
		for j := i + 1; j < len(ph.Scaffolds); j++ {
			b := ph.Scaffolds[j]
			for l := Layer(0); l < numLayers; l++ {
				ph.Coupling = append(ph.Coupling, Coupling{
					ScaffoldA: a.ScaffoldID,
					ScaffoldB: b.ScaffoldID,
					Layer:     l.String(),
					Score:     round3(agreement(a.Layers.At(l), b.Layers.At(l))),
				})
			}
			if ov, ok := overlap(all[i], all[j]); ok {
				ph.Overlaps = append(ph.Overlaps, ov)
			}
		}
	}
	sort.SliceStable(ph.Coupling, func(i, j int) bool { return ph.Coupling[i].Score > ph.Coupling[j].Score })

	signals := make(map[string]bool)
	var sum float64
	for _, h := range ph.Scaffolds {
		sum += h.Coherence
		signals[h.Signal] = true
	}
	if len(ph.Scaffolds) > 0 {
		ph.AvgCoherence = round3(sum / float64(len(ph.Scaffolds)))
	}
	switch {
	case len(signals) == 0:
		ph.Signal = PortfolioEmpty
	case len(signals) > 1:
		ph.Signal = PortfolioMixed
	case signals[SignalEmergence]:
		ph.Signal = PortfolioEmergence
	case signals[SignalFriction]:
		ph.Signal = PortfolioFriction
	default:
		ph.Signal = PortfolioBaseline
	}
	return ph, nil
}

// agreement is 1 - |a-b|, floored at zero.
func agreement(a, b float64) float64 {
	return math.Max(0, 1-math.Abs(a-b))
}

func coherence(v LayerVector, divisor float64) float64 {
	mean := v.Sum() / layerCount
	var variance float64
	for l := Layer(0); l < numLayers; l++ {
		d := v.At(l) - mean
		variance += d * d
	}
	sigma := math.Sqrt(variance / layerCount)
	return math.Max(0, 1-sigma/divisor)
}

// dominant returns the highest layer; ties go to the earlier layer.
func dominant(v LayerVector) Layer {
	best := LayerApplicability
	for l := Layer(1); l < numLayers; l++ {
		if v.At(l) > v.At(best) {
			best = l
		}
	}
	return best
}

func healthSignal(v LayerVector, threshold float64) string {
	lo, hi := v.At(0), v.At(0)
	for l := Layer(1); l < numLayers; l++ {
		lo = math.Min(lo, v.At(l))
		hi = math.Max(hi, v.At(l))
	}
	switch {
	case hi-lo > threshold:
		return SignalFriction
	case lo > threshold:
		return SignalEmergence
	default:
		return SignalBaseline
	}
}

func overlap(a, b *scaffold.Scaffold) (SignalOverlap, bool) {
	ov := SignalOverlap{
		ScaffoldA:   a.ID,
		ScaffoldB:   b.ID,
		SharedTools: shared(a.Applicability.Tools, b.Applicability.Tools),
		SharedPhrases: shared(
			append(append([]string(nil), a.Applicability.Keywords...), a.Applicability.IntentSignals...),
			append(append([]string(nil), b.Applicability.Keywords...), b.Applicability.IntentSignals...),
		),
	}
	return ov, len(ov.SharedTools) > 0 || len(ov.SharedPhrases) > 0
}

// shared returns the normalized values present in both lists, in the order
// they first appear in a.
func shared(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, s := range b {
		in[textutil.Normalize(s)] = true
	}
	var out []string
	seen := make(map[string]bool)
	for _, s := range a {
		n := textutil.Normalize(s)
		if n == "" || seen[n] || !in[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
