package pipeline

import (
	"github.com/initializ/cip/scaffold"
	"github.com/initializ/cip/types"
)

// LoadOptions carries shared configuration for all load stages.
type LoadOptions struct {
	// DomainPath is the domain.yaml file. Empty means built-in defaults.
	DomainPath  string
	ScaffoldDir string
	// Strict turns warnings into errors.
	Strict bool
}

// LoadContext carries all state through the load pipeline.
type LoadContext struct {
	Opts      LoadOptions
	Domain    *types.DomainConfig
	Documents []*scaffold.Document
	Index     *scaffold.Index
	Errors    []string
	Warnings  []string
}

// NewLoadContext creates a LoadContext with the given options.
func NewLoadContext(opts LoadOptions) *LoadContext {
	return &LoadContext{Opts: opts}
}

// AddWarning appends a warning message to the load context.
func (lc *LoadContext) AddWarning(msg string) {
	lc.Warnings = append(lc.Warnings, msg)
}

// AddError appends an error message to the load context.
func (lc *LoadContext) AddError(msg string) {
	lc.Errors = append(lc.Errors, msg)
}

// Scaffolds returns the parsed scaffolds in discovery order.
func (lc *LoadContext) Scaffolds() []*scaffold.Scaffold {
	out := make([]*scaffold.Scaffold, 0, len(lc.Documents))
	for _, d := range lc.Documents {
		out = append(out, d.Scaffold)
	}
	return out
}
