package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSONSchema is the subset of JSON Schema emitted for vendor-native
// structured output: strict objects (additionalProperties=false, all
// properties required) with inlined definitions.
type JSONSchema struct {
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`

	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	AdditionalProperties *bool                  `json:"additionalProperties,omitempty"`

	Items *JSONSchema `json:"items,omitempty"`

	Enum []string `json:"enum,omitempty"`

	Minimum          *float64 `json:"minimum,omitempty"`
	Maximum          *float64 `json:"maximum,omitempty"`
	ExclusiveMinimum *float64 `json:"exclusiveMinimum,omitempty"`
	ExclusiveMaximum *float64 `json:"exclusiveMaximum,omitempty"`
	MultipleOf       *float64 `json:"multipleOf,omitempty"`
	MinLength        *int     `json:"minLength,omitempty"`
	MaxLength        *int     `json:"maxLength,omitempty"`
}

// SupportsNative reports whether the definition can be expressed on a
// vendor-native JSON-schema path. Every construct the engine recognizes maps
// onto JSON Schema, so only an empty definition is excluded; per-vendor
// restrictions beyond that are the adapter's decision.
func (s *Schema) SupportsNative() bool {
	return s.Definition != nil && len(s.Definition.Fields) > 0
}

// ToJSONSchema converts the definition tree to a strict JSON schema for the
// vendor-native structured-output path.
func (s *Schema) ToJSONSchema() *JSONSchema {
	return nodeToJSONSchema(s.Definition)
}

func nodeToJSONSchema(n *Node) *JSONSchema {
	if n == nil {
		return &JSONSchema{Type: "object"}
	}
	switch n.Type {
	case TypeDict:
		return dictToJSONSchema(n)
	case TypeList:
		js := &JSONSchema{Type: "array", Description: n.Description}
		if n.Fields != nil {
			js.Items = dictToJSONSchema(&Node{Type: TypeDict, Fields: n.Fields, Order: n.Order})
		} else {
			js.Items = nodeToJSONSchema(&Node{Type: n.Elem})
		}
		return js
	case TypeEnum:
		return &JSONSchema{Type: "string", Description: n.Description, Enum: append([]string{}, n.Choices...)}
	case TypeInt:
		js := &JSONSchema{Type: "integer", Description: n.Description}
		applyNumericConstraints(js, n.Constraints)
		return js
	case TypeFloat:
		js := &JSONSchema{Type: "number", Description: n.Description}
		applyNumericConstraints(js, n.Constraints)
		return js
	case TypeBool:
		return &JSONSchema{Type: "boolean", Description: n.Description}
	default:
		js := &JSONSchema{Type: "string", Description: n.Description}
		js.MinLength = n.Constraints.MinLength
		js.MaxLength = n.Constraints.MaxLength
		return js
	}
}

func dictToJSONSchema(n *Node) *JSONSchema {
	strict := false
	js := &JSONSchema{
		Type:                 "object",
		Description:          n.Description,
		Properties:           map[string]*JSONSchema{},
		AdditionalProperties: &strict,
	}
	for _, name := range n.fieldNames() {
		js.Properties[name] = nodeToJSONSchema(n.Fields[name])
		js.Required = append(js.Required, name)
	}
	return js
}

func applyNumericConstraints(js *JSONSchema, c Constraints) {
	js.Minimum = c.Ge
	js.ExclusiveMinimum = c.Gt
	js.Maximum = c.Le
	js.ExclusiveMaximum = c.Lt
	js.MultipleOf = c.MultipleOf
}

// InstanceFromJSON coerces a JSON document (from a vendor-native structured
// output) into a typed instance tree shaped by the definition.
func (s *Schema) InstanceFromJSON(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("schema: decode native output: %w", err)
	}
	return normalizeInstance(s.Definition, raw), nil
}
