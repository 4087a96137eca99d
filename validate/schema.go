// Package validate checks scaffold documents and domain configs against their
// JSON Schemas and semantic rules.
package validate

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/initializ/cip/schemas"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

type compiledSchema struct {
	once   sync.Once
	source []byte
	schema *gojsonschema.Schema
	err    error
}

func (c *compiledSchema) get() (*gojsonschema.Schema, error) {
	c.once.Do(func() {
		c.schema, c.err = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(c.source))
	})
	return c.schema, c.err
}

var (
	scaffoldSchema = &compiledSchema{source: schemas.ScaffoldV1Schema}
	domainSchema   = &compiledSchema{source: schemas.DomainV1Schema}
)

// ValidateScaffoldDocument validates raw YAML scaffold bytes against the
// scaffold v1 schema. It returns a slice of validation error descriptions and
// an error if the document cannot be decoded or the schema fails to compile.
func ValidateScaffoldDocument(yamlData []byte) ([]string, error) {
	return validateYAML(scaffoldSchema, "scaffold", yamlData)
}

// ValidateDomainDocument validates raw YAML domain config bytes against the
// domain v1 schema.
func ValidateDomainDocument(yamlData []byte) ([]string, error) {
	return validateYAML(domainSchema, "domain config", yamlData)
}

func validateYAML(cs *compiledSchema, kind string, yamlData []byte) ([]string, error) {
	schema, err := cs.get()
	if err != nil {
		return nil, fmt.Errorf("compiling %s schema: %w", kind, err)
	}

	jsonData, err := YAMLToJSON(yamlData)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", kind, err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("validating %s: %w", kind, err)
	}
	if result.Valid() {
		return nil, nil
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	return errs, nil
}

// YAMLToJSON converts a YAML document into equivalent JSON bytes. Mapping
// keys must be strings.
func YAMLToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	clean, err := jsonCompatible(doc)
	if err != nil {
		return nil, err
	}
	return json.Marshal(clean)
}

func jsonCompatible(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			c, err := jsonCompatible(val)
			if err != nil {
				return nil, err
			}
			t[k] = c
		}
		return t, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string mapping key %v", k)
			}
			c, err := jsonCompatible(val)
			if err != nil {
				return nil, err
			}
			out[ks] = c
		}
		return out, nil
	case []any:
		for i, val := range t {
			c, err := jsonCompatible(val)
			if err != nil {
				return nil, err
			}
			t[i] = c
		}
		return t, nil
	default:
		return v, nil
	}
}
