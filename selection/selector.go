package selection

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/initializ/cip/scaffold"
)

// Mode names the cascade branch that produced a selection.
type Mode string

const (
	ModeCallerID  Mode = "caller_id"
	ModeToolMatch Mode = "tool_match"
	ModeScored    Mode = "scored"
	ModeDefault   Mode = "default"
)

// Request is one selection request.
type Request struct {
	ToolName   string
	UserInput  string
	ScaffoldID string
	// OutputHint is the caller-declared output format, if any.
	OutputHint string
	// Bias holds per-scaffold multipliers applied after normalization.
	Bias map[string]float64
	// Params overrides the selector defaults for this call.
	Params *Params
	// Now is the reference time for the temporal kernel; zero means time.Now.
	Now time.Time
}

// Result records which scaffold was chosen and why. Scores and Ranking are
// populated for the scored and default branches and always cover every
// registered scaffold.
type Result struct {
	ScaffoldID     string             `json:"scaffold_id"`
	Mode           Mode               `json:"mode"`
	Reason         string             `json:"reason"`
	Scores         map[string]float64 `json:"scores,omitempty"`
	Ranking        []ScaffoldScore    `json:"ranking,omitempty"`
	Confidence     float64            `json:"confidence"`
	Ambiguous      bool               `json:"ambiguous"`
	ToolCandidates []string           `json:"tool_candidates,omitempty"`

	Scaffold *scaffold.Scaffold `json:"-"`
}

// Snapshot is one published registry generation: the index, its pattern
// cache and the domain default scaffold id.
type Snapshot struct {
	Index     *scaffold.Index
	Cache     *PatternCache
	DefaultID string
	Loaded    time.Time
}

// Selector runs the selection cascade over the currently published Snapshot.
// Readers never observe a partially built snapshot: Publish swaps the whole
// generation atomically.
type Selector struct {
	snap     atomic.Pointer[Snapshot]
	defaults Params
}

// Option configures a Selector.
type Option func(*Selector)

// WithDefaultParams sets the params used when a request carries none.
func WithDefaultParams(p Params) Option {
	return func(s *Selector) { s.defaults = p }
}

// NewSelector validates the default params and publishes idx.
func NewSelector(idx *scaffold.Index, defaultID string, opts ...Option) (*Selector, error) {
	s := &Selector{defaults: DefaultParams()}
	for _, o := range opts {
		o(s)
	}
	if err := s.defaults.Validate(); err != nil {
		return nil, fmt.Errorf("default params: %w", err)
	}
	s.Publish(idx, defaultID)
	return s, nil
}

// Publish compiles a pattern cache for idx and replaces the current snapshot.
func (s *Selector) Publish(idx *scaffold.Index, defaultID string) *Snapshot {
	if idx == nil {
		idx, _ = scaffold.NewIndex(nil)
	}
	snap := &Snapshot{
		Index:     idx,
		Cache:     NewPatternCache(idx),
		DefaultID: defaultID,
		Loaded:    time.Now(),
	}
	s.snap.Store(snap)
	return snap
}

// Snapshot returns the current registry generation.
func (s *Selector) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Defaults returns a copy of the selector's default params.
func (s *Selector) Defaults() Params {
	return s.defaults
}

// Select picks exactly one scaffold. The branches are tried in order:
// explicit id, unique tool match, layered score, domain default.
func (s *Selector) Select(req Request) (*Result, error) {
	p, err := s.params(req)
	if err != nil {
		return nil, err
	}
	snap := s.snap.Load()

	if req.ScaffoldID != "" {
		sc, ok := snap.Index.Get(req.ScaffoldID)
		if !ok {
			return nil, fmt.Errorf("unknown scaffold %q: %w", req.ScaffoldID, ErrUnknownScaffold)
		}
		return &Result{
			ScaffoldID: sc.ID,
			Mode:       ModeCallerID,
			Reason:     fmt.Sprintf("caller requested scaffold %q", sc.ID),
			Confidence: 1,
			Scaffold:   sc,
		}, nil
	}

	var toolCandidates []string
	if req.ToolName != "" {
		matches := snap.Index.ByTool(req.ToolName)
		if len(matches) == 1 {
			return &Result{
				ScaffoldID: matches[0].ID,
				Mode:       ModeToolMatch,
				Reason:     fmt.Sprintf("tool %q is declared only by scaffold %q", req.ToolName, matches[0].ID),
				Confidence: 1,
				Scaffold:   matches[0],
			}, nil
		}
		for _, m := range matches {
			toolCandidates = append(toolCandidates, m.ID)
		}
	}

	ranking := snap.Cache.rank(prepareInput(req, p), p, req.Bias)
	res := &Result{
		Scores:         make(map[string]float64, len(ranking)),
		Ranking:        ranking,
		ToolCandidates: toolCandidates,
	}
	for _, sc := range ranking {
		res.Scores[sc.ScaffoldID] = sc.Total
	}

	if len(ranking) > 0 {
		best := ranking[0]
		res.Confidence = best.Total
		if best.Total > p.Floor && best.Total >= p.MinConfidence {
			res.ScaffoldID = best.ScaffoldID
			res.Mode = ModeScored
			res.Scaffold, _ = snap.Index.Get(best.ScaffoldID)
			res.Reason = fmt.Sprintf("highest layered score %.4f", best.Total)
			if len(toolCandidates) > 1 {
				res.Reason += fmt.Sprintf("; tool %q is declared by %d scaffolds", req.ToolName, len(toolCandidates))
			}
			if p.AmbiguityMargin > 0 && len(ranking) > 1 && ranking[1].Total > p.Floor {
				res.Ambiguous = math.Abs(best.Total-ranking[1].Total) < p.AmbiguityMargin
			}
			return res, nil
		}
	}

	if snap.DefaultID != "" {
		if sc, ok := snap.Index.Get(snap.DefaultID); ok {
			res.ScaffoldID = sc.ID
			res.Mode = ModeDefault
			res.Scaffold = sc
			res.Reason = fmt.Sprintf("no scaffold scored above the floor %.4f, using domain default %q", p.Floor, sc.ID)
			return res, nil
		}
		return nil, fmt.Errorf("domain default %q is not registered: %w", snap.DefaultID, ErrNoScaffoldAvailable)
	}
	return nil, fmt.Errorf("no scaffold scored above the floor and no default is configured: %w", ErrNoScaffoldAvailable)
}

// Explain scores every scaffold for req without running the cascade.
func (s *Selector) Explain(req Request) ([]ScaffoldScore, error) {
	p, err := s.params(req)
	if err != nil {
		return nil, err
	}
	return s.snap.Load().Cache.rank(prepareInput(req, p), p, req.Bias), nil
}

func (s *Selector) params(req Request) (Params, error) {
	p := s.defaults
	if req.Params != nil {
		p = *req.Params
		if err := p.Validate(); err != nil {
			return Params{}, err
		}
	}
	for id, b := range req.Bias {
		if !finite(b) || b < 0 {
			return Params{}, fmt.Errorf("%w: bias for scaffold %q is %v, must be non-negative", ErrInvalidSelectionParams, id, b)
		}
	}
	return p, nil
}
