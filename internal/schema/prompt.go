package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// RootTag returns the schema's root element name: the class name converted
// to snake_case.
func (s *Schema) RootTag() string { return snakeCase(s.ClassName) }

// snakeCase converts CamelCase to snake_case, keeping acronym runs together
// ("LLMOutput" → "llm_output").
func snakeCase(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if i > 0 && (prevLower || nextLower) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ToPrompt renders the definition tree as the XML-like template embedded in
// the prompt. Every element carries a type attribute; leaves show their
// description wrapped as "[desc - as a T]"; lists show one example <li>
// followed by an "..." sentinel.
func (s *Schema) ToPrompt() string {
	var b strings.Builder
	root := s.RootTag()
	b.WriteString("<" + root + " type='dict'")
	if s.Definition != nil && s.Definition.Description != "" {
		b.WriteString(" description='" + attrEscape(s.Definition.Description) + "'")
	}
	b.WriteString(">\n")
	if s.Definition != nil {
		for _, name := range s.Definition.fieldNames() {
			renderNode(&b, name, s.Definition.Fields[name], 1)
		}
	}
	b.WriteString("</" + root + ">")
	return b.String()
}

func renderNode(b *strings.Builder, name string, n *Node, depth int) {
	pad := strings.Repeat("  ", depth)
	switch n.Type {
	case TypeDict:
		b.WriteString(pad + "<" + name + " type='dict'")
		if n.Description != "" {
			b.WriteString(" description='" + attrEscape(n.Description) + "'")
		}
		b.WriteString(">\n")
		for _, f := range n.fieldNames() {
			renderNode(b, f, n.Fields[f], depth+1)
		}
		b.WriteString(pad + "</" + name + ">\n")

	case TypeList:
		b.WriteString(pad + "<" + name + " type='list'")
		if n.Fields != nil {
			b.WriteString(" elements='dict'")
		} else {
			b.WriteString(" elements='" + string(n.Elem) + "'")
		}
		if n.Description != "" {
			b.WriteString(" description='" + attrEscape(n.Description) + "'")
		}
		b.WriteString(">\n")
		itemPad := strings.Repeat("  ", depth+1)
		if n.Fields != nil {
			b.WriteString(itemPad + "<li index='0'>\n")
			for _, f := range n.fieldNames() {
				renderNode(b, f, n.Fields[f], depth+2)
			}
			b.WriteString(itemPad + "</li>\n")
		} else {
			b.WriteString(itemPad + "<li index='0'>" + placeholder(&Node{Type: n.Elem}) + "</li>\n")
		}
		b.WriteString(itemPad + "...\n")
		b.WriteString(pad + "</" + name + ">\n")

	default: // leaves
		b.WriteString(pad + "<" + name + " type='" + string(n.Type) + "'")
		if n.Type == TypeEnum {
			choices, _ := json.Marshal(n.Choices)
			b.WriteString(" choices='" + attrEscape(string(choices)) + "'")
		}
		writeConstraintAttrs(b, n.Constraints)
		b.WriteString(">" + placeholder(n) + "</" + name + ">\n")
	}
}

// placeholder is the bracketed hint shown inside a leaf element.
func placeholder(n *Node) string {
	if n.Description != "" {
		return "[" + n.Description + " - as a " + string(n.Type) + "]"
	}
	return "[value here - as a " + string(n.Type) + "]"
}

// Human-readable names for constraint attributes.
func writeConstraintAttrs(b *strings.Builder, c Constraints) {
	writeNum := func(name string, v *float64) {
		if v != nil {
			b.WriteString(" " + name + "='" + formatNumber(*v) + "'")
		}
	}
	writeNum("greater_or_equal", c.Ge)
	writeNum("greater_than", c.Gt)
	writeNum("less_or_equal", c.Le)
	writeNum("less_than", c.Lt)
	writeNum("multiple_of", c.MultipleOf)
	if c.MinLength != nil {
		fmt.Fprintf(b, " min_length='%d'", *c.MinLength)
	}
	if c.MaxLength != nil {
		fmt.Fprintf(b, " max_length='%d'", *c.MaxLength)
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func attrEscape(s string) string {
	return strings.ReplaceAll(s, "'", "’")
}

// RenderInstance renders a populated instance as canonical XML. Parsing the
// result through FromPrompt reproduces the instance (modulo float precision).
func (s *Schema) RenderInstance() string {
	var b strings.Builder
	root := s.RootTag()
	b.WriteString("<" + root + ">\n")
	if s.Definition != nil {
		renderInstanceFields(&b, s.Definition, s.Instance, 1)
	}
	b.WriteString("</" + root + ">")
	return b.String()
}

func renderInstanceFields(b *strings.Builder, node *Node, values map[string]any, depth int) {
	for _, name := range node.fieldNames() {
		renderInstanceValue(b, name, node.Fields[name], values[name], depth)
	}
}

func renderInstanceValue(b *strings.Builder, name string, n *Node, v any, depth int) {
	if v == nil {
		return
	}
	pad := strings.Repeat("  ", depth)
	switch n.Type {
	case TypeDict:
		m, ok := v.(map[string]any)
		if !ok {
			return
		}
		b.WriteString(pad + "<" + name + ">\n")
		renderInstanceFields(b, n, m, depth+1)
		b.WriteString(pad + "</" + name + ">\n")

	case TypeList:
		items, ok := v.([]any)
		if !ok {
			return
		}
		b.WriteString(pad + "<" + name + ">\n")
		itemPad := strings.Repeat("  ", depth+1)
		for i, item := range items {
			if n.Fields != nil {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				fmt.Fprintf(b, "%s<li index='%d'>\n", itemPad, i)
				renderInstanceFields(b, &Node{Type: TypeDict, Fields: n.Fields, Order: n.Order}, m, depth+2)
				b.WriteString(itemPad + "</li>\n")
			} else {
				fmt.Fprintf(b, "%s<li index='%d'>%s</li>\n", itemPad, i, scalarText(item))
			}
		}
		b.WriteString(pad + "</" + name + ">\n")

	default:
		b.WriteString(pad + "<" + name + ">" + scalarText(v) + "</" + name + ">\n")
	}
}

func scalarText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
