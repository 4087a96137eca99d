// Package pipeline loads and validates a domain and its scaffold registry
// through a sequence of stages.
package pipeline

import (
	"context"
	"fmt"
)

// Stage is a single unit of work in a load pipeline.
type Stage interface {
	Name() string
	Execute(ctx context.Context, lc *LoadContext) error
}

// Pipeline executes a sequence of stages in order.
type Pipeline struct {
	stages []Stage
}

// New creates a Pipeline from the given stages.
func New(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Run executes each stage sequentially. It stops on the first error.
func (p *Pipeline) Run(ctx context.Context, lc *LoadContext) error {
	for _, s := range p.stages {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline cancelled before stage %s: %w", s.Name(), err)
		}
		if err := s.Execute(ctx, lc); err != nil {
			return fmt.Errorf("stage %s: %w", s.Name(), err)
		}
	}
	return nil
}

// DefaultStages returns the standard load sequence: domain, discovery,
// validation, index.
func DefaultStages() []Stage {
	return []Stage{
		&DomainStage{},
		&DiscoverStage{},
		&ValidateStage{},
		&IndexStage{},
	}
}

// Load runs the default stages. The returned context is never nil, so
// callers can report every collected error and warning even on failure.
func Load(ctx context.Context, opts LoadOptions) (*LoadContext, error) {
	lc := NewLoadContext(opts)
	err := New(DefaultStages()...).Run(ctx, lc)
	return lc, err
}
