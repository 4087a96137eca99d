package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/initializ/cip/scaffold"
	"github.com/initializ/cip/types"
	"github.com/initializ/cip/validate"
)

// ErrInvalidConfig is returned when validation collected errors.
var ErrInvalidConfig = errors.New("invalid configuration")

// DomainStage reads, schema-checks and parses the domain config.
type DomainStage struct{}

func (s *DomainStage) Name() string { return "domain" }

func (s *DomainStage) Execute(_ context.Context, lc *LoadContext) error {
	path := lc.Opts.DomainPath
	if path == "" {
		lc.Domain = types.NewDomainConfig("default")
		lc.AddWarning("no domain config given; using built-in defaults")
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading domain config: %w", err)
	}
	schemaErrs, err := validate.ValidateDomainDocument(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for _, e := range schemaErrs {
		lc.AddError(fmt.Sprintf("%s: schema: %s", path, e))
	}
	cfg, err := types.ParseDomainConfig(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	lc.Domain = cfg
	return nil
}

// DiscoverStage finds and parses every scaffold document. Parse failures and
// duplicate ids are collected rather than aborting, so one run reports them all.
type DiscoverStage struct{}

func (s *DiscoverStage) Name() string { return "discover" }

func (s *DiscoverStage) Execute(_ context.Context, lc *LoadContext) error {
	if lc.Opts.ScaffoldDir == "" {
		return fmt.Errorf("scaffold directory is required")
	}
	files, err := scaffold.DiscoverFiles(lc.Opts.ScaffoldDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		lc.AddWarning(fmt.Sprintf("no scaffold documents found in %s", lc.Opts.ScaffoldDir))
	}
	seen := make(map[string]string, len(files))
	for _, f := range files {
		doc, err := scaffold.LoadFile(f)
		if err != nil {
			lc.AddError(err.Error())
			continue
		}
		if prev, dup := seen[doc.Scaffold.ID]; dup {
			lc.AddError(fmt.Sprintf("%s: duplicate scaffold id %q, already defined in %s", f, doc.Scaffold.ID, prev))
			continue
		}
		seen[doc.Scaffold.ID] = f
		lc.Documents = append(lc.Documents, doc)
	}
	return nil
}

// ValidateStage runs schema and semantic checks on every scaffold document.
type ValidateStage struct{}

func (s *ValidateStage) Name() string { return "validate" }

func (s *ValidateStage) Execute(_ context.Context, lc *LoadContext) error {
	for _, doc := range lc.Documents {
		schemaErrs, err := validate.ValidateScaffoldDocument(doc.Raw)
		if err != nil {
			return fmt.Errorf("%s: %w", doc.Path, err)
		}
		for _, e := range schemaErrs {
			lc.AddError(fmt.Sprintf("%s: schema: %s", doc.Path, e))
		}
		r := validate.ValidateScaffold(doc.Path, doc.Scaffold)
		for _, e := range r.Errors {
			lc.AddError(doc.Path + ": " + e)
		}
		for _, w := range r.Warnings {
			lc.AddWarning(doc.Path + ": " + w)
		}
	}
	return nil
}

// IndexStage builds the scaffold index and checks the domain against it.
type IndexStage struct{}

func (s *IndexStage) Name() string { return "index" }

func (s *IndexStage) Execute(_ context.Context, lc *LoadContext) error {
	idx, err := scaffold.NewIndex(lc.Scaffolds())
	if err != nil {
		lc.AddError(err.Error())
	} else {
		lc.Index = idx
	}
	if lc.Domain != nil {
		r := validate.ValidateDomainConfig(lc.Domain, lc.Index)
		for _, e := range r.Errors {
			lc.AddError("domain: " + e)
		}
		for _, w := range r.Warnings {
			lc.AddWarning("domain: " + w)
		}
	}

	if lc.Opts.Strict && len(lc.Warnings) > 0 {
		for _, w := range lc.Warnings {
			lc.AddError("strict: " + w)
		}
	}
	if len(lc.Errors) > 0 {
		return fmt.Errorf("%w: %d error(s):\n  %s", ErrInvalidConfig, len(lc.Errors), strings.Join(lc.Errors, "\n  "))
	}
	return nil
}
