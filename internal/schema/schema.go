// Package schema implements the structured-response language used to elicit
// typed output from language models: schema construction, XML-prompt
// rendering, and tolerant parsing of best-effort model output.
//
// A schema is a class name plus a definition tree. Rendering the tree
// produces an XML-like template embedded in the prompt; parsing runs the
// model's raw text back through the tree to build a typed instance. The
// round trip (schema → prompt → model text → instance) is the package
// contract.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// NodeType enumerates the schema node types.
type NodeType string

const (
	TypeStr   NodeType = "str"
	TypeInt   NodeType = "int"
	TypeFloat NodeType = "float"
	TypeBool  NodeType = "bool"
	TypeEnum  NodeType = "enum"
	TypeDict  NodeType = "dict"
	TypeList  NodeType = "list"
)

// forbiddenNames are field names that collide with schema attribute names.
var forbiddenNames = map[string]struct{}{
	"type": {}, "description": {}, "elements": {}, "choices": {},
	"int": {}, "float": {}, "bool": {}, "dict": {}, "enum": {}, "list": {}, "item": {},
}

// Constraints are the leaf constraints recognized by the engine.
type Constraints struct {
	Ge         *float64 `json:"ge,omitempty"`
	Gt         *float64 `json:"gt,omitempty"`
	Le         *float64 `json:"le,omitempty"`
	Lt         *float64 `json:"lt,omitempty"`
	MultipleOf *float64 `json:"multiple_of,omitempty"`
	MinLength  *int     `json:"min_length,omitempty"`
	MaxLength  *int     `json:"max_length,omitempty"`
}

func (c Constraints) empty() bool {
	return c.Ge == nil && c.Gt == nil && c.Le == nil && c.Lt == nil &&
		c.MultipleOf == nil && c.MinLength == nil && c.MaxLength == nil
}

// Node is one node of a definition tree: a typed leaf, a dict of named
// children, or a list of primitive or dict elements.
type Node struct {
	Type        NodeType
	Description string
	Constraints Constraints

	// Choices holds the allowed values of an enum leaf.
	Choices []string

	// Fields holds dict children, or the element schema of a list of dicts.
	// Order preserves declaration order for deterministic rendering.
	Fields map[string]*Node
	Order  []string

	// Elem is the leaf type of a primitive-element list.
	Elem NodeType
}

// NewLeaf creates a typed leaf node.
func NewLeaf(t NodeType, description string) *Node {
	return &Node{Type: t, Description: description}
}

// NewEnum creates an enum leaf with the given choices.
func NewEnum(description string, choices ...string) *Node {
	return &Node{Type: TypeEnum, Description: description, Choices: choices}
}

// NewDict creates an empty dict node.
func NewDict(description string) *Node {
	return &Node{Type: TypeDict, Description: description, Fields: map[string]*Node{}}
}

// NewList creates a list node with primitive elements of type elem.
func NewList(elem NodeType, description string) *Node {
	return &Node{Type: TypeList, Description: description, Elem: elem}
}

// NewListOfDict creates a list node whose elements follow a dict schema.
func NewListOfDict(description string) *Node {
	return &Node{Type: TypeList, Description: description, Fields: map[string]*Node{}}
}

// WithConstraints sets leaf constraints and returns the node.
func (n *Node) WithConstraints(c Constraints) *Node {
	n.Constraints = c
	return n
}

func (n *Node) addField(name string, child *Node) error {
	if name == "" {
		return fmt.Errorf("schema: empty field name")
	}
	if _, bad := forbiddenNames[name]; bad {
		return fmt.Errorf("schema: field name %q collides with a schema attribute", name)
	}
	if n.Fields == nil {
		n.Fields = map[string]*Node{}
	}
	if _, exists := n.Fields[name]; !exists {
		n.Order = append(n.Order, name)
	}
	n.Fields[name] = child
	return nil
}

// fieldNames returns dict children in declaration order.
func (n *Node) fieldNames() []string {
	if len(n.Order) == len(n.Fields) {
		return n.Order
	}
	// Order can be incomplete after hand-built trees; fall back to it plus
	// whatever is missing.
	seen := map[string]struct{}{}
	names := make([]string, 0, len(n.Fields))
	for _, f := range n.Order {
		if _, ok := n.Fields[f]; ok {
			names = append(names, f)
			seen[f] = struct{}{}
		}
	}
	for f := range n.Fields {
		if _, ok := seen[f]; !ok {
			names = append(names, f)
		}
	}
	return names
}

// Schema is a structured-response definition: a class name, a definition
// tree, an optional populated instance, and a flag marking eligibility for
// a vendor-native JSON-schema path.
type Schema struct {
	ClassName  string
	Definition *Node
	Instance   map[string]any
	Native     bool
}

// New creates an empty schema for the given class name.
func New(className string) *Schema {
	return &Schema{ClassName: className, Definition: NewDict("")}
}

// AddNode inserts a node at a dot-separated field path. Intermediate path
// segments must be existing dict nodes or lists of dicts; for lists the
// cursor descends into the element schema.
func (s *Schema) AddNode(path string, node *Node) error {
	if s.Definition == nil {
		s.Definition = NewDict("")
	}
	parts := strings.Split(path, ".")
	cur := s.Definition
	for _, seg := range parts[:len(parts)-1] {
		child, ok := cur.Fields[seg]
		if !ok {
			return fmt.Errorf("schema: path %q: segment %q does not exist", path, seg)
		}
		switch {
		case child.Type == TypeDict:
			cur = child
		case child.Type == TypeList && child.Fields != nil:
			cur = child // descend into the element schema
		default:
			return fmt.Errorf("schema: path %q: segment %q is not a dict or list of dicts", path, seg)
		}
	}
	return cur.addField(parts[len(parts)-1], node)
}

// ── JSON wire format ────────────────────────────────────────
//
// A schema travels between client and core as a flat record
// {class_name, definition, instance, native}. Nodes serialize as
// {type, description, constraints..., choices?, elements?} where elements is
// a field→node object for dicts, and either a leaf type name or a field→node
// object for lists.

// MarshalJSON implements json.Marshaler, preserving field declaration order.
func (s *Schema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"class_name":`)
	writeJSONString(&buf, s.ClassName)
	buf.WriteString(`,"definition":`)
	if err := s.Definition.encode(&buf, true); err != nil {
		return nil, err
	}
	if s.Instance != nil {
		buf.WriteString(`,"instance":`)
		inst, err := json.Marshal(s.Instance)
		if err != nil {
			return nil, err
		}
		buf.Write(inst)
	}
	buf.WriteString(`,"native":`)
	if s.Native {
		buf.WriteString("true")
	} else {
		buf.WriteString("false")
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// encode writes the node as JSON. Root dicts serialize their fields directly
// under "elements" like any other dict.
func (n *Node) encode(buf *bytes.Buffer, _ bool) error {
	buf.WriteString(`{"type":`)
	writeJSONString(buf, string(n.Type))
	if n.Description != "" {
		buf.WriteString(`,"description":`)
		writeJSONString(buf, n.Description)
	}
	if err := n.Constraints.encode(buf); err != nil {
		return err
	}
	if n.Type == TypeEnum {
		buf.WriteString(`,"choices":`)
		choices, err := json.Marshal(n.Choices)
		if err != nil {
			return err
		}
		buf.Write(choices)
	}
	switch n.Type {
	case TypeDict:
		buf.WriteString(`,"elements":`)
		if err := n.encodeFields(buf); err != nil {
			return err
		}
	case TypeList:
		buf.WriteString(`,"elements":`)
		if n.Fields != nil {
			if err := n.encodeFields(buf); err != nil {
				return err
			}
		} else {
			writeJSONString(buf, string(n.Elem))
		}
	}
	buf.WriteByte('}')
	return nil
}

func (n *Node) encodeFields(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	for i, name := range n.fieldNames() {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONString(buf, name)
		buf.WriteByte(':')
		if err := n.Fields[name].encode(buf, false); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func (c Constraints) encode(buf *bytes.Buffer) error {
	writeNum := func(key string, v *float64) {
		if v == nil {
			return
		}
		buf.WriteString(`,"` + key + `":`)
		num, _ := json.Marshal(*v)
		buf.Write(num)
	}
	writeInt := func(key string, v *int) {
		if v == nil {
			return
		}
		fmt.Fprintf(buf, `,"%s":%d`, key, *v)
	}
	writeNum("ge", c.Ge)
	writeNum("gt", c.Gt)
	writeNum("le", c.Le)
	writeNum("lt", c.Lt)
	writeNum("multiple_of", c.MultipleOf)
	writeInt("min_length", c.MinLength)
	writeInt("max_length", c.MaxLength)
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

// UnmarshalJSON implements json.Unmarshaler. A token-level decoder is used
// so that field declaration order survives the wire.
func (s *Schema) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("schema: expected object")
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		switch key {
		case "class_name":
			tok, err := dec.Token()
			if err != nil {
				return err
			}
			s.ClassName, _ = tok.(string)
		case "definition":
			node, err := decodeNode(dec)
			if err != nil {
				return err
			}
			s.Definition = node
		case "instance":
			var inst map[string]any
			if err := dec.Decode(&inst); err != nil {
				return err
			}
			s.Instance = inst
		case "native":
			tok, err := dec.Token()
			if err != nil {
				return err
			}
			s.Native, _ = tok.(bool)
		default:
			var skip any
			if err := dec.Decode(&skip); err != nil {
				return err
			}
		}
	}
	_, err = dec.Token() // closing brace
	if err != nil {
		return err
	}
	if s.Instance != nil && s.Definition != nil {
		s.Instance = normalizeInstance(s.Definition, s.Instance)
	}
	return nil
}

func decodeNode(dec *json.Decoder) (*Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("schema: node must be an object")
	}
	n := &Node{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := keyTok.(string)
		switch key {
		case "type":
			v, err := decodeString(dec)
			if err != nil {
				return nil, err
			}
			n.Type = NodeType(v)
		case "description":
			v, err := decodeString(dec)
			if err != nil {
				return nil, err
			}
			n.Description = v
		case "choices":
			if err := dec.Decode(&n.Choices); err != nil {
				return nil, err
			}
		case "ge":
			n.Constraints.Ge, err = decodeFloat(dec)
		case "gt":
			n.Constraints.Gt, err = decodeFloat(dec)
		case "le":
			n.Constraints.Le, err = decodeFloat(dec)
		case "lt":
			n.Constraints.Lt, err = decodeFloat(dec)
		case "multiple_of":
			n.Constraints.MultipleOf, err = decodeFloat(dec)
		case "min_length":
			n.Constraints.MinLength, err = decodeInt(dec)
		case "max_length":
			n.Constraints.MaxLength, err = decodeInt(dec)
		case "elements":
			if err := n.decodeElements(dec); err != nil {
				return nil, err
			}
		default:
			var skip any
			if err := dec.Decode(&skip); err != nil {
				return nil, err
			}
		}
		if err != nil {
			return nil, err
		}
	}
	if _, err := dec.Token(); err != nil { // closing brace
		return nil, err
	}
	return n, nil
}

// decodeElements handles the polymorphic "elements" key: a leaf type name for
// primitive lists, or a field→node object for dicts and lists of dicts.
func (n *Node) decodeElements(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	switch v := tok.(type) {
	case string:
		n.Elem = NodeType(v)
		return nil
	case json.Delim:
		if v != '{' {
			return fmt.Errorf("schema: elements must be an object or a type name")
		}
	default:
		return fmt.Errorf("schema: elements must be an object or a type name")
	}
	n.Fields = map[string]*Node{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := keyTok.(string)
		child, err := decodeNode(dec)
		if err != nil {
			return err
		}
		n.Fields[name] = child
		n.Order = append(n.Order, name)
	}
	_, err = dec.Token() // closing brace
	return err
}

func decodeString(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	v, _ := tok.(string)
	return v, nil
}

func decodeFloat(dec *json.Decoder) (*float64, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	num, ok := tok.(json.Number)
	if !ok {
		return nil, fmt.Errorf("schema: expected number, got %v", tok)
	}
	f, err := num.Float64()
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func decodeInt(dec *json.Decoder) (*int, error) {
	f, err := decodeFloat(dec)
	if err != nil {
		return nil, err
	}
	i := int(*f)
	return &i, nil
}

// normalizeInstance coerces a JSON-decoded value tree (json.Number, generic
// maps) into the typed shapes the engine produces: int, float64, bool,
// string, map[string]any, []any.
func normalizeInstance(node *Node, inst map[string]any) map[string]any {
	out := make(map[string]any, len(inst))
	for name, child := range node.Fields {
		out[name] = normalizeValue(child, inst[name])
	}
	return out
}

func normalizeValue(node *Node, v any) any {
	if v == nil || node == nil {
		return nil
	}
	switch node.Type {
	case TypeDict:
		if m, ok := v.(map[string]any); ok {
			return normalizeInstance(node, m)
		}
	case TypeList:
		items, ok := v.([]any)
		if !ok {
			return nil
		}
		out := make([]any, 0, len(items))
		for _, item := range items {
			if node.Fields != nil {
				if m, ok := item.(map[string]any); ok {
					out = append(out, normalizeInstance(&Node{Type: TypeDict, Fields: node.Fields, Order: node.Order}, m))
				} else {
					out = append(out, nil)
				}
			} else {
				out = append(out, normalizeScalar(node.Elem, item))
			}
		}
		return out
	default:
		return normalizeScalar(node.Type, v)
	}
	return nil
}

func normalizeScalar(t NodeType, v any) any {
	switch t {
	case TypeInt:
		switch n := v.(type) {
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return int(i)
			}
		case float64:
			return int(n)
		case int:
			return n
		}
	case TypeFloat:
		switch n := v.(type) {
		case json.Number:
			if f, err := n.Float64(); err == nil {
				return f
			}
		case float64:
			return n
		case int:
			return float64(n)
		}
	case TypeBool:
		if b, ok := v.(bool); ok {
			return b
		}
	case TypeStr, TypeEnum:
		if s, ok := v.(string); ok {
			return s
		}
	}
	return nil
}

// ToJSON serializes the schema for transport.
func (s *Schema) ToJSON() ([]byte, error) { return json.Marshal(s) }

// FromJSON deserializes a schema from its wire record.
func FromJSON(data []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("schema: decode: %w", err)
	}
	return &s, nil
}
