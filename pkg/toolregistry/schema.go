package toolregistry

import (
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

// Kind is the closed set of primitive parameter kinds a tool schema
// may declare.
type Kind int

const (
	KindString Kind = iota
	KindInteger
	KindNumber
	KindBoolean
	KindObject
	KindArray
)

// kindFromName maps declared type names, including the legacy short
// forms, onto the closed Kind set. Unrecognized names default to
// KindString.
func kindFromName(name string) Kind {
	switch name {
	case "string", "str":
		return KindString
	case "integer", "int":
		return KindInteger
	case "number", "float":
		return KindNumber
	case "boolean", "bool":
		return KindBoolean
	case "object", "dict":
		return KindObject
	case "array", "list":
		return KindArray
	default:
		return KindString
	}
}

// JSONType returns the JSON-Schema type name for the kind.
func (k Kind) JSONType() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "string"
	}
}

// Param is one compiled tool parameter.
type Param struct {
	Name        string
	Kind        Kind
	Description string
	Required    bool
}

// Schema is the compiled form of a stored parameter schema: a typed
// parameter list plus a validator built once at compile time.
type Schema struct {
	Params    []Param
	validator *gojsonschema.Schema
}

// CompileSchema turns a persisted parameter schema into a Schema.
// Two formats are accepted: a JSON-Schema-shaped object with a
// "properties" map (required fields from its "required" list), or the
// legacy flat name→type map where every field is required.
func CompileSchema(raw map[string]interface{}) (*Schema, error) {
	properties, required := normalizeSchema(raw)

	names := make([]string, 0, len(properties))
	for name := range properties {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]Param, 0, len(names))
	for _, name := range names {
		kind, description := paramDetails(properties[name])
		params = append(params, Param{
			Name:        name,
			Kind:        kind,
			Description: description,
			Required:    required[name],
		})
	}

	validator, err := buildValidator(params)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Schema{Params: params, validator: validator}, nil
}

// normalizeSchema splits a raw schema into a properties map and the
// set of required field names.
func normalizeSchema(raw map[string]interface{}) (map[string]interface{}, map[string]bool) {
	required := map[string]bool{}

	if props, ok := raw["properties"].(map[string]interface{}); ok {
		if reqList, ok := raw["required"].([]interface{}); ok {
			for _, v := range reqList {
				if name, ok := v.(string); ok {
					required[name] = true
				}
			}
		}
		if reqList, ok := raw["required"].([]string); ok {
			for _, name := range reqList {
				required[name] = true
			}
		}
		return props, required
	}

	// Legacy flat map: every declared field is required.
	for name := range raw {
		required[name] = true
	}
	return raw, required
}

// paramDetails extracts kind and description from a property value,
// which is either a nested {"type": ..., "description": ...} object or
// a bare type-name string (legacy).
func paramDetails(value interface{}) (Kind, string) {
	switch v := value.(type) {
	case map[string]interface{}:
		typeName, _ := v["type"].(string)
		description, _ := v["description"].(string)
		return kindFromName(typeName), description
	case string:
		return kindFromName(v), ""
	default:
		return KindString, ""
	}
}

func buildValidator(params []Param) (*gojsonschema.Schema, error) {
	properties := map[string]interface{}{}
	required := []string{}

	for _, p := range params {
		properties[p.Name] = map[string]interface{}{
			"type":        p.Kind.JSONType(),
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schemaMap := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}

// Validate checks call arguments against the compiled schema.
func (s *Schema) Validate(args map[string]interface{}) error {
	result, err := s.validator.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if !result.Valid() {
		msgs := []string{}
		for _, verr := range result.Errors() {
			msgs = append(msgs, verr.String())
		}
		return fmt.Errorf("validation errors: %v", msgs)
	}
	return nil
}

// Normalize fills absent optional fields with an explicit nil value,
// never a silently coerced default, and drops nothing.
func (s *Schema) Normalize(args map[string]interface{}) map[string]interface{} {
	normalized := make(map[string]interface{}, len(s.Params))
	for k, v := range args {
		normalized[k] = v
	}
	for _, p := range s.Params {
		if _, present := normalized[p.Name]; !present && !p.Required {
			normalized[p.Name] = nil
		}
	}
	return normalized
}

// InputSchema renders the compiled schema back into the JSON-Schema
// object handed to the language model.
func (s *Schema) InputSchema() map[string]interface{} {
	properties := map[string]interface{}{}
	required := []string{}

	for _, p := range s.Params {
		properties[p.Name] = map[string]interface{}{
			"type":        p.Kind.JSONType(),
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
