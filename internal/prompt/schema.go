package prompt

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/fpang/tal-prompt-studio/internal/jsonutil"
)

// SchemaViolation reports model output that could not be parsed or did not
// satisfy the package schema.
type SchemaViolation struct {
	Stage string // "parse", "validate" or "decode"
	Err   error
}

func (e *SchemaViolation) Error() string {
	return fmt.Sprintf("schema violation (%s): %v", e.Stage, e.Err)
}

func (e *SchemaViolation) Unwrap() error {
	return e.Err
}

// SizePattern matches WIDTHxHEIGHT with both dimensions positive.
const SizePattern = `^[1-9][0-9]*x[1-9][0-9]*$`

var (
	schemaOnce     sync.Once
	packageSchema  *jsonschema.Schema
	resolvedSchema *jsonschema.Resolved
	resolveErr     error
)

// Schema returns the JSON Schema descriptor for Package. Callers must treat
// the returned value as read-only.
func Schema() *jsonschema.Schema {
	schemaOnce.Do(initSchema)
	return packageSchema
}

func initSchema() {
	packageSchema = buildSchema()
	resolvedSchema, resolveErr = packageSchema.Resolve(nil)
}

func buildSchema() *jsonschema.Schema {
	str := func(desc string, minLen int) *jsonschema.Schema {
		s := &jsonschema.Schema{Type: "string", Description: desc}
		if minLen > 0 {
			s.MinLength = intPtr(minLen)
		}
		return s
	}
	strList := func(desc string) *jsonschema.Schema {
		return &jsonschema.Schema{
			Type:        "array",
			Description: desc,
			Items:       &jsonschema.Schema{Type: "string"},
		}
	}

	return &jsonschema.Schema{
		Type:        "object",
		Title:       "PromptPackage",
		Description: "Photorealistic TAL image-generation instruction package.",
		Properties: map[string]*jsonschema.Schema{
			"final_prompt":        str("Complete prompt for the image generator.", 1),
			"negative_prompt":     str("Styles and content to suppress.", 0),
			"reference_image_ids": strList("Identity-lock reference images."),
			"reference_strength": {
				Type:        "number",
				Description: "How strongly the output must match the reference image.",
				Minimum:     floatPtr(0),
				Maximum:     floatPtr(1),
			},
			"size": {
				Type:        "string",
				Description: "Output size as WIDTHxHEIGHT.",
				Pattern:     SizePattern,
			},
			"count": {
				Type:        "integer",
				Description: "Number of images to generate.",
				Minimum:     floatPtr(1),
			},
			"seed": {
				Types:       []string{"integer", "null"},
				Description: "Sampling seed, or null for random.",
			},
			"assumptions":  strList("Details inferred from a vague request."),
			"policy_notes": strList("Automatic content-policy interventions."),
		},
		Required: []string{
			"final_prompt", "negative_prompt", "reference_image_ids", "reference_strength",
			"size", "count", "seed", "assumptions", "policy_notes",
		},
	}
}

// SchemaJSON renders the schema for inclusion in a model instruction.
func SchemaJSON() string {
	data, err := json.MarshalIndent(Schema(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Parse turns raw model text into a validated Package. The text may be fenced
// or surrounded by prose; the object inside must satisfy schema. A nil schema
// means the package schema. Any failure is a *SchemaViolation.
func Parse(raw string, schema *jsonschema.Schema) (Package, error) {
	obj, err := jsonutil.DecodeObject(raw)
	if err != nil {
		return Package{}, &SchemaViolation{Stage: "parse", Err: err}
	}
	if err := validateInstance(obj, schema); err != nil {
		return Package{}, err
	}
	pkg, err := jsonutil.Remarshal[Package](obj)
	if err != nil {
		return Package{}, &SchemaViolation{Stage: "decode", Err: err}
	}
	if pkg.Seed != nil {
		// The generic decode went through float64; reread integral seeds exactly.
		if seed, err := exactSeed(raw); err == nil && seed != nil {
			pkg.Seed = seed
		}
	}
	pkg.normalize()
	return pkg, nil
}

// Validate checks an already-typed package against the package schema.
func Validate(pkg Package) error {
	pkg.normalize()
	data, err := json.Marshal(pkg)
	if err != nil {
		return &SchemaViolation{Stage: "decode", Err: err}
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return &SchemaViolation{Stage: "decode", Err: err}
	}
	return validateInstance(obj, nil)
}

func validateInstance(obj map[string]any, schema *jsonschema.Schema) error {
	resolved, err := resolve(schema)
	if err != nil {
		return &SchemaViolation{Stage: "validate", Err: err}
	}
	if err := resolved.Validate(obj); err != nil {
		return &SchemaViolation{Stage: "validate", Err: err}
	}
	return nil
}

func exactSeed(raw string) (*int64, error) {
	body, err := jsonutil.ObjectText(raw)
	if err != nil {
		return nil, err
	}
	var v struct {
		Seed *int64 `json:"seed"`
	}
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	return v.Seed, nil
}

func resolve(schema *jsonschema.Schema) (*jsonschema.Resolved, error) {
	base := Schema()
	if schema == nil || schema == base {
		return resolvedSchema, resolveErr
	}
	return schema.Resolve(nil)
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
