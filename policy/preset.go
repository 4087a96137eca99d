package policy

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/mitchellh/mapstructure"

	"github.com/initializ/cip/textutil"
	"github.com/initializ/cip/types"
)

// Preset is a named, reusable run policy.
type Preset struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Policy      RunPolicy `json:"policy"`
	Builtin     bool      `json:"builtin,omitempty"`
}

// BuiltinPresets returns the presets every registry starts with.
func BuiltinPresets() []Preset {
	return []Preset{
		{
			Name:        "creative",
			Description: "Higher temperature, no length constraint",
			Policy:      RunPolicy{Temperature: Float(0.8), MaxLengthGuidance: String("no length constraint")},
			Builtin:     true,
		},
		{
			Name:        "precise",
			Description: "Low temperature, compact bullet points",
			Policy: RunPolicy{
				Temperature:       Float(0.1),
				OutputFormat:      String("bullet_points"),
				MaxLengthGuidance: String("concise, under 300 words"),
				Compact:           Bool(true),
			},
			Builtin: true,
		},
		{
			Name:        "aggressive",
			Description: "Direct answers without disclaimers or prohibited-action framing",
			Policy: RunPolicy{
				Temperature:             Float(0.5),
				SkipDisclaimers:         Bool(true),
				MaxLengthGuidance:       String("direct and brief"),
				RemoveProhibitedActions: []string{Wildcard},
			},
			Builtin: true,
		},
		{
			Name:        "balanced",
			Description: "Moderate temperature, scaffold defaults otherwise",
			Policy:      RunPolicy{Temperature: Float(0.3)},
			Builtin:     true,
		},
	}
}

// PresetRegistry holds named presets. Reads are lock-free against an
// immutable map; writers copy the map and publish it atomically.
type PresetRegistry struct {
	mu      sync.Mutex
	presets atomic.Pointer[map[string]Preset]
}

// NewPresetRegistry returns a registry, optionally seeded with BuiltinPresets.
func NewPresetRegistry(includeBuiltins bool) *PresetRegistry {
	r := &PresetRegistry{}
	m := make(map[string]Preset)
	if includeBuiltins {
		for _, p := range BuiltinPresets() {
			p.Policy.Source = "preset:" + p.Name
			m[presetKey(p.Name)] = p
		}
	}
	r.presets.Store(&m)
	return r
}

// presetKey folds "Very Cautious", "very-cautious" and "very_cautious" together
// so a preset can be named in prose and referenced as a single word.
func presetKey(name string) string {
	return textutil.Slugify(name)
}

// Register adds or replaces a preset after validating its policy.
func (r *PresetRegistry) Register(p Preset) error {
	if presetKey(p.Name) == "" {
		return fmt.Errorf("%w: preset name is required", ErrInvalidPolicy)
	}
	if err := p.Policy.Validate(); err != nil {
		return fmt.Errorf("preset %q: %w", p.Name, err)
	}
	p.Policy = p.Policy.Normalize()
	p.Policy.Source = "preset:" + p.Name

	r.mu.Lock()
	defer r.mu.Unlock()
	cur := *r.presets.Load()
	next := make(map[string]Preset, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[presetKey(p.Name)] = p
	r.presets.Store(&next)
	return nil
}

// Get looks a preset up by name, ignoring case and separators.
func (r *PresetRegistry) Get(name string) (Preset, bool) {
	p, ok := (*r.presets.Load())[presetKey(name)]
	return p, ok
}

// Policy returns the named preset's policy or ErrUnknownPreset.
func (r *PresetRegistry) Policy(name string) (RunPolicy, error) {
	p, ok := r.Get(name)
	if !ok {
		return RunPolicy{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return p.Policy, nil
}

// Names returns the registered preset names, sorted.
func (r *PresetRegistry) Names() []string {
	m := *r.presets.Load()
	out := make([]string, 0, len(m))
	for _, p := range m {
		out = append(out, p.Name)
	}
	sort.Strings(out)
	return out
}

// List returns the registered presets sorted by name.
func (r *PresetRegistry) List() []Preset {
	m := *r.presets.Load()
	out := make([]Preset, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Load registers domain-declared presets, overriding builtins of the same name.
func (r *PresetRegistry) Load(refs []types.PresetRef) error {
	for _, ref := range refs {
		pol, err := DecodePolicy(ref.Policy)
		if err != nil {
			return fmt.Errorf("preset %q: %w", ref.Name, err)
		}
		if err := r.Register(Preset{Name: ref.Name, Description: ref.Description, Policy: pol}); err != nil {
			return err
		}
	}
	return nil
}

// DecodePolicy decodes a loosely typed map (from YAML or JSON) into a
// RunPolicy. Unknown keys are rejected.
func DecodePolicy(m map[string]any) (RunPolicy, error) {
	var p RunPolicy
	if len(m) == 0 {
		return p, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &p,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return p, err
	}
	if err := dec.Decode(m); err != nil {
		return RunPolicy{}, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if err := p.Validate(); err != nil {
		return RunPolicy{}, err
	}
	return p.Normalize(), nil
}
