// Package schemaconfig loads a host's unit-type catalogue from a JSON
// manifest instead of a hand-built compiler.Schema (SPEC_FULL.md §6.1), for
// hosts whose unit roster is data rather than Go code. Validated against a
// bundled JSON Schema the same way the teacher validates its own decorator
// parameter schemas (core/types/validation.go).
package schemaconfig

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/scriptcore/unitscript/compiler"
)

//go:embed schema.json
var manifestSchemaJSON []byte

// manifest mirrors the JSON document's shape one level before conversion to
// a compiler.Schema.
type manifest struct {
	Bindings map[string]string                  `json:"bindings"`
	Types    map[string]manifestTypeDescriptor   `json:"types"`
}

type manifestTypeDescriptor struct {
	Attributes map[string]manifestAttribute `json:"attributes"`
}

type manifestAttribute struct {
	Result   string `json:"result"`
	Callable bool   `json:"callable"`
}

// Load reads, validates, and converts a manifest document into a
// compiler.Schema.
func Load(data []byte) (*compiler.Schema, error) {
	if err := validate(data); err != nil {
		return nil, fmt.Errorf("manifest validation failed: %w", err)
	}

	var doc manifest
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("manifest decode failed: %w", err)
	}

	schema := compiler.NewSchema()
	for name, tag := range doc.Bindings {
		schema.Bind(name, compiler.TypeTag(tag))
	}
	for typeName, desc := range doc.Types {
		tag := compiler.TypeTag(typeName)
		attrs := make(map[string]compiler.Attribute, len(desc.Attributes))
		for attrName, attr := range desc.Attributes {
			attrs[attrName] = compiler.Attribute{
				Name:     attrName,
				Result:   compiler.TypeTag(attr.Result),
				Callable: attr.Callable,
			}
		}
		schema.Descriptors[tag] = &compiler.TypeDescriptor{Tag: tag, Attributes: attrs}
	}
	return schema, nil
}

func validate(data []byte) error {
	compiledSchema, err := compileManifestSchema()
	if err != nil {
		return err
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return compiledSchema.Validate(v)
}

func compileManifestSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := "schema://unitscript/manifest.json"
	if err := c.AddResource(url, strings.NewReader(string(manifestSchemaJSON))); err != nil {
		return nil, err
	}
	return c.Compile(url)
}
