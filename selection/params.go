// Package selection routes a request to exactly one scaffold: by explicit
// id, by unique tool match, or by a layered score over four signal layers.
package selection

import (
	"errors"
	"fmt"
	"math"
)

// Sentinel errors returned by Select. They are wrapped with context; match
// them with errors.Is.
var (
	ErrUnknownScaffold        = errors.New("scaffold id not registered")
	ErrNoScaffoldAvailable    = errors.New("no scaffold available")
	ErrInvalidSelectionParams = errors.New("invalid selection params")
)

// Layer identifies one of the four scoring layers.
type Layer int

const (
	LayerApplicability Layer = iota
	LayerReasoning
	LayerOutput
	LayerGuardrail
	numLayers
)

var layerNames = [numLayers]string{"applicability", "reasoning", "output", "guardrail"}

func (l Layer) String() string {
	if l < 0 || l >= numLayers {
		return fmt.Sprintf("layer(%d)", int(l))
	}
	return layerNames[l]
}

// LayerVector holds one value per layer.
type LayerVector struct {
	Applicability float64 `json:"applicability" yaml:"applicability" mapstructure:"applicability"`
	Reasoning     float64 `json:"reasoning" yaml:"reasoning" mapstructure:"reasoning"`
	Output        float64 `json:"output" yaml:"output" mapstructure:"output"`
	Guardrail     float64 `json:"guardrail" yaml:"guardrail" mapstructure:"guardrail"`
}

// Uniform returns a vector with v in every layer.
func Uniform(v float64) LayerVector {
	return LayerVector{v, v, v, v}
}

// At returns the value of layer l.
func (v LayerVector) At(l Layer) float64 {
	switch l {
	case LayerApplicability:
		return v.Applicability
	case LayerReasoning:
		return v.Reasoning
	case LayerOutput:
		return v.Output
	case LayerGuardrail:
		return v.Guardrail
	}
	return 0
}

func (v *LayerVector) set(l Layer, x float64) {
	switch l {
	case LayerApplicability:
		v.Applicability = x
	case LayerReasoning:
		v.Reasoning = x
	case LayerOutput:
		v.Output = x
	case LayerGuardrail:
		v.Guardrail = x
	}
}

// Sum adds the four layer values.
func (v LayerVector) Sum() float64 {
	return v.Applicability + v.Reasoning + v.Output + v.Guardrail
}

// Normalization selects the constant k_n the weighted sum is divided by.
type Normalization string

const (
	// NormalizeSqrtActive divides by the square root of the active layer count.
	NormalizeSqrtActive Normalization = "sqrt_active"
	// NormalizeActive divides by the active layer count.
	NormalizeActive Normalization = "active"
	// NormalizeNone leaves the weighted sum as is.
	NormalizeNone Normalization = "none"
)

// Interaction coefficients are bounded to keep a single layer from
// dominating the ranking.
const (
	MinInteraction = 0.1
	MaxInteraction = 2.0

	weightTolerance = 1e-6
)

// Params carries every tunable of the scoring formula
//
//	M = Σ(W_i · L_i · I_i) · R · f(t) / k_n
//
// where R is the multi-layer reinforcement factor 1 + r·max(0, N-1).
type Params struct {
	Weights     LayerVector `json:"weights" yaml:"weights" mapstructure:"weights"`
	Interaction LayerVector `json:"interaction" yaml:"interaction" mapstructure:"interaction"`

	// Reinforcement is the per-extra-active-layer bonus r.
	Reinforcement float64 `json:"reinforcement" yaml:"reinforcement" mapstructure:"reinforcement"`

	// Saturation rates k for 1-exp(-k·raw) curves.
	ApplicabilitySaturation float64 `json:"applicability_saturation" yaml:"applicability_saturation" mapstructure:"applicability_saturation"`
	GuardrailSaturation     float64 `json:"guardrail_saturation" yaml:"guardrail_saturation" mapstructure:"guardrail_saturation"`
	ComplexitySaturation    float64 `json:"complexity_saturation" yaml:"complexity_saturation" mapstructure:"complexity_saturation"`

	MinSignalCoverage     float64 `json:"min_signal_coverage" yaml:"min_signal_coverage" mapstructure:"min_signal_coverage"`
	ExactSignalBonus      float64 `json:"exact_signal_bonus" yaml:"exact_signal_bonus" mapstructure:"exact_signal_bonus"`
	MinDescriptionOverlap int     `json:"min_description_overlap" yaml:"min_description_overlap" mapstructure:"min_description_overlap"`
	TriggerCoverage       float64 `json:"trigger_coverage" yaml:"trigger_coverage" mapstructure:"trigger_coverage"`
	FormatOptionMatch     float64 `json:"format_option_match" yaml:"format_option_match" mapstructure:"format_option_match"`

	// LayerActivation is the value a layer must exceed to count as active.
	LayerActivation float64 `json:"layer_activation" yaml:"layer_activation" mapstructure:"layer_activation"`

	Floor           float64       `json:"floor" yaml:"floor" mapstructure:"floor"`
	MinConfidence   float64       `json:"min_confidence" yaml:"min_confidence" mapstructure:"min_confidence"`
	AmbiguityMargin float64       `json:"ambiguity_margin" yaml:"ambiguity_margin" mapstructure:"ambiguity_margin"`
	Normalization   Normalization `json:"normalization" yaml:"normalization" mapstructure:"normalization"`

	// Kernel is the temporal factor f(t). Nil means identity.
	Kernel TemporalKernel `json:"-" yaml:"-" mapstructure:"-"`
}

// DefaultParams returns the native baseline: equal weights, unit
// interaction, no reinforcement bonus, square-root normalization.
func DefaultParams() Params {
	return Params{
		Weights:                 Uniform(0.25),
		Interaction:             Uniform(1.0),
		ApplicabilitySaturation: 0.7,
		GuardrailSaturation:     1.0,
		ComplexitySaturation:    0.5,
		MinSignalCoverage:       0.5,
		ExactSignalBonus:        0.3,
		MinDescriptionOverlap:   2,
		TriggerCoverage:         0.6,
		FormatOptionMatch:       0.6,
		Normalization:           NormalizeSqrtActive,
	}
}

// Validate rejects params that would make scores incomparable or unbounded.
func (p Params) Validate() error {
	for l := Layer(0); l < numLayers; l++ {
		w := p.Weights.At(l)
		if !finite(w) || w < 0 {
			return fmt.Errorf("%w: weight %s is %v, must be a non-negative number", ErrInvalidSelectionParams, l, w)
		}
		i := p.Interaction.At(l)
		if !finite(i) || i < MinInteraction || i > MaxInteraction {
			return fmt.Errorf("%w: interaction %s is %v, must be within [%v, %v]", ErrInvalidSelectionParams, l, i, MinInteraction, MaxInteraction)
		}
	}
	if sum := p.Weights.Sum(); math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("%w: weights sum to %v, must sum to 1.0", ErrInvalidSelectionParams, sum)
	}

	checks := []struct {
		name     string
		v, lo, hi float64
	}{
		{"reinforcement", p.Reinforcement, 0, 1},
		{"applicability_saturation", p.ApplicabilitySaturation, 1e-9, math.MaxFloat64},
		{"guardrail_saturation", p.GuardrailSaturation, 1e-9, math.MaxFloat64},
		{"complexity_saturation", p.ComplexitySaturation, 1e-9, math.MaxFloat64},
		{"min_signal_coverage", p.MinSignalCoverage, 0, 1},
		{"exact_signal_bonus", p.ExactSignalBonus, 0, math.MaxFloat64},
		{"trigger_coverage", p.TriggerCoverage, 0, 1},
		{"format_option_match", p.FormatOptionMatch, 0, 1},
		{"layer_activation", p.LayerActivation, 0, 1},
		{"floor", p.Floor, -math.MaxFloat64, math.MaxFloat64},
		{"min_confidence", p.MinConfidence, 0, math.MaxFloat64},
		{"ambiguity_margin", p.AmbiguityMargin, 0, math.MaxFloat64},
	}
	for _, c := range checks {
		if !finite(c.v) || c.v < c.lo || c.v > c.hi {
			return fmt.Errorf("%w: %s is %v", ErrInvalidSelectionParams, c.name, c.v)
		}
	}
	if p.MinDescriptionOverlap < 0 {
		return fmt.Errorf("%w: min_description_overlap is %d", ErrInvalidSelectionParams, p.MinDescriptionOverlap)
	}

	switch p.Normalization {
	case NormalizeSqrtActive, NormalizeActive, NormalizeNone:
	default:
		return fmt.Errorf("%w: unknown normalization %q", ErrInvalidSelectionParams, p.Normalization)
	}
	return nil
}

// normalizer returns k_n for n active layers.
func (p Params) normalizer(n int) float64 {
	if n < 1 {
		n = 1
	}
	switch p.Normalization {
	case NormalizeActive:
		return float64(n)
	case NormalizeNone:
		return 1
	default:
		return math.Sqrt(float64(n))
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func saturate(raw, k float64) float64 {
	if raw <= 0 {
		return 0
	}
	return 1 - math.Exp(-k*raw)
}
