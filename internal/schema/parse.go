package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParseError reports a failure to parse model output against a schema. It
// preserves the offending text and the target class name so callers can
// inspect or retry.
type ParseError struct {
	Message   string
	RawText   string
	ClassName string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.ClassName, e.Message)
}

// ── Lexer ───────────────────────────────────────────────────
//
// The lexer segments the root span into open / close / self-closing / text
// events. It is regex-guided rather than a strict XML tokenizer: attribute
// bodies may contain quotes and unknown attributes are carried but ignored.

type eventKind int

const (
	evOpen eventKind = iota
	evClose
	evSelfClose
	evText
)

type event struct {
	kind eventKind
	name string
	raw  string
}

// tagRe matches one tag. The attribute body alternates quoted runs and
// non-bracket characters so quotes inside attribute values don't break the
// match.
var tagRe = regexp.MustCompile(`<(/?)([A-Za-z_][A-Za-z0-9_.:-]*)((?:"[^"]*"|'[^']*'|[^<>"'])*)(/?)>`)

func lex(span string) []event {
	var events []event
	last := 0
	for _, m := range tagRe.FindAllStringSubmatchIndex(span, -1) {
		if m[0] > last {
			events = append(events, event{kind: evText, raw: span[last:m[0]]})
		}
		raw := span[m[0]:m[1]]
		name := span[m[4]:m[5]]
		closing := m[3] > m[2]
		selfClosing := m[9] > m[8]
		switch {
		case closing:
			events = append(events, event{kind: evClose, name: name, raw: raw})
		case selfClosing:
			events = append(events, event{kind: evSelfClose, name: name, raw: raw})
		default:
			events = append(events, event{kind: evOpen, name: name, raw: raw})
		}
		last = m[1]
	}
	if last < len(span) {
		events = append(events, event{kind: evText, raw: span[last:]})
	}
	return events
}

// ── Parser ──────────────────────────────────────────────────
//
// The builder is driven by the declared schema rather than by the tag
// stream: inside a declared leaf, tag-like fragments are literal content;
// unknown elements elsewhere are skipped; declared fields that never appear
// stay null. On a stray close event the builder pops at most to the nearest
// matching open, treating intervening unclosed elements as text-carrying
// leaves.

type parser struct {
	events []event
	pos    int
	schema *Schema
}

// FromPrompt locates the outermost root element in raw model text and parses
// it tolerantly into an instance tree. Structural malformation never fails;
// only type coercion on declared fields does. The parsed instance is stored
// on the schema and returned.
func (s *Schema) FromPrompt(text string) (map[string]any, error) {
	root := s.RootTag()
	openRe := regexp.MustCompile(`<` + regexp.QuoteMeta(root) + `(\s|>|/>)`)
	loc := openRe.FindStringIndex(text)
	if loc == nil {
		return nil, &ParseError{
			Message:   fmt.Sprintf("no <%s> element found in output", root),
			RawText:   text,
			ClassName: s.ClassName,
		}
	}
	p := &parser{events: lex(text[loc[0]:]), schema: s}

	// Consume the root open tag.
	if p.pos < len(p.events) && (p.events[p.pos].kind == evOpen || p.events[p.pos].kind == evSelfClose) {
		if p.events[p.pos].kind == evSelfClose {
			inst := nullInstance(s.Definition)
			s.Instance = inst
			return inst, nil
		}
		p.pos++
	}
	inst, err := p.parseDict(s.Definition, root, nil)
	if err != nil {
		return nil, err
	}
	s.Instance = inst
	return inst, nil
}

func nullInstance(node *Node) map[string]any {
	out := make(map[string]any, len(node.Fields))
	for name := range node.Fields {
		out[name] = nil
	}
	return out
}

// parseDict consumes events until the container's close tag (or an implied
// closure) and returns the field map. enclosing carries the names of open
// ancestor containers; their close tags imply closure of this level and are
// left unconsumed for the ancestor to handle.
func (p *parser) parseDict(node *Node, name string, enclosing []string) (map[string]any, error) {
	out := nullInstance(node)
	childEnclosing := append(append([]string{}, enclosing...), name)

	for p.pos < len(p.events) {
		ev := p.events[p.pos]
		switch ev.kind {
		case evText:
			p.pos++ // prose between fields is ignored

		case evClose:
			if ev.name == name {
				p.pos++
				return out, nil
			}
			if contains(enclosing, ev.name) {
				return out, nil // ancestor close implies ours; leave it
			}
			p.pos++ // stray close, drop it

		case evSelfClose:
			// A self-closing declared field stays null; anything else is noise.
			p.pos++

		case evOpen:
			if ev.name == name {
				// A sibling of the same name at the ancestor level; our
				// element was never closed.
				return out, nil
			}
			child, declared := node.Fields[ev.name]
			if !declared {
				p.pos++
				p.skipUnknown(ev.name, childEnclosing)
				continue
			}
			p.pos++
			v, err := p.parseValue(child, ev.name, node, childEnclosing)
			if err != nil {
				return nil, err
			}
			out[ev.name] = v
		}
	}
	return out, nil // input exhausted: implied closure
}

func (p *parser) parseValue(child *Node, fieldName string, parent *Node, enclosing []string) (any, error) {
	switch child.Type {
	case TypeDict:
		return p.parseDict(child, fieldName, enclosing)
	case TypeList:
		return p.parseList(child, fieldName, parent, enclosing)
	default:
		raw := p.collectLeafText(fieldName, parent, enclosing)
		v, err := coerceScalar(child.Type, raw)
		if err != nil {
			return nil, &ParseError{
				Message:   fmt.Sprintf("field %q: %v", fieldName, err),
				RawText:   raw,
				ClassName: p.schema.ClassName,
			}
		}
		return v, nil
	}
}

// collectLeafText accumulates literal content for a declared leaf. Stray
// tag-like fragments (unknown elements, garbled closes) are preserved as
// text. The leaf ends at its own close tag, at a repeated open of the same
// name (an unclosed leaf), at the open of a declared sibling, or at the
// close of an enclosing container.
func (p *parser) collectLeafText(leafName string, parent *Node, enclosing []string) string {
	var b strings.Builder
	for p.pos < len(p.events) {
		ev := p.events[p.pos]
		switch ev.kind {
		case evClose:
			if ev.name == leafName {
				p.pos++
				return b.String()
			}
			if contains(enclosing, ev.name) {
				return b.String() // unclosed leaf; parent handles the close
			}
			b.WriteString(ev.raw) // garbled close inside text
			p.pos++

		case evOpen:
			if ev.name == leafName {
				// "<id>PROJ-001<id>" — the repeat implies closure.
				p.pos++
				return b.String()
			}
			if _, sibling := parent.Fields[ev.name]; sibling {
				return b.String() // next sibling implies closure; leave it
			}
			b.WriteString(ev.raw) // tag-like fragment inside the value
			p.pos++

		case evSelfClose:
			b.WriteString(ev.raw) // e.g. <ref id='3'/> stays literal
			p.pos++

		case evText:
			b.WriteString(ev.raw)
			p.pos++
		}
	}
	return b.String()
}

// parseList iterates <li> children. Text directly inside the list (such as
// the "..." sentinel) is ignored.
func (p *parser) parseList(node *Node, name string, parent *Node, enclosing []string) ([]any, error) {
	items := []any{}
	itemEnclosing := append(append([]string{}, enclosing...), name)

	for p.pos < len(p.events) {
		ev := p.events[p.pos]
		switch ev.kind {
		case evText:
			p.pos++

		case evClose:
			if ev.name == name {
				p.pos++
				return items, nil
			}
			if contains(enclosing, ev.name) {
				return items, nil
			}
			p.pos++

		case evSelfClose:
			p.pos++

		case evOpen:
			if ev.name != "li" {
				if _, sibling := parent.Fields[ev.name]; sibling {
					return items, nil // unclosed list
				}
				p.pos++
				p.skipUnknown(ev.name, itemEnclosing)
				continue
			}
			p.pos++
			if node.Fields != nil {
				elem := &Node{Type: TypeDict, Fields: node.Fields, Order: node.Order}
				v, err := p.parseDict(elem, "li", itemEnclosing)
				if err != nil {
					return nil, err
				}
				items = append(items, v)
			} else {
				raw, closed := p.collectItemText(name, enclosing)
				trimmed := strings.TrimSpace(raw)
				if trimmed == "" && !closed {
					continue // dangling open at the end of the list
				}
				v, err := coerceScalar(node.Elem, raw)
				if err != nil {
					return nil, &ParseError{
						Message:   fmt.Sprintf("list %q: %v", name, err),
						RawText:   raw,
						ClassName: p.schema.ClassName,
					}
				}
				items = append(items, v)
			}
		}
	}
	return items, nil
}

// collectItemText gathers the body of a primitive <li>. A following <li>
// open implies closure of the current one; closed reports whether an
// explicit </li> was seen.
func (p *parser) collectItemText(listName string, enclosing []string) (string, bool) {
	var b strings.Builder
	for p.pos < len(p.events) {
		ev := p.events[p.pos]
		switch ev.kind {
		case evClose:
			if ev.name == "li" {
				p.pos++
				return b.String(), true
			}
			if ev.name == listName || contains(enclosing, ev.name) {
				return b.String(), false
			}
			b.WriteString(ev.raw)
			p.pos++
		case evOpen:
			if ev.name == "li" {
				return b.String(), false // nested/next <li> implies closure
			}
			b.WriteString(ev.raw)
			p.pos++
		case evSelfClose:
			b.WriteString(ev.raw)
			p.pos++
		case evText:
			b.WriteString(ev.raw)
			p.pos++
		}
	}
	return b.String(), false
}

// skipUnknown consumes a balanced unknown element, bailing out without
// consuming if it runs into the close of an enclosing container.
func (p *parser) skipUnknown(name string, enclosing []string) {
	depth := 1
	for p.pos < len(p.events) {
		ev := p.events[p.pos]
		switch ev.kind {
		case evOpen:
			if ev.name == name {
				depth++
			}
			p.pos++
		case evClose:
			if ev.name == name {
				depth--
				p.pos++
				if depth == 0 {
					return
				}
				continue
			}
			if contains(enclosing, ev.name) {
				return // unknown element never closed
			}
			p.pos++
		default:
			p.pos++
		}
	}
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// coerceScalar converts leaf text to its declared type. Integer and float
// coercion is strict; enums return the trimmed text verbatim (choice
// validation is deliberately not enforced here).
func coerceScalar(t NodeType, raw string) (any, error) {
	s := strings.TrimSpace(raw)
	switch t {
	case TypeStr, TypeEnum:
		return s, nil
	case TypeInt:
		i, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to int", s)
		}
		return i, nil
	case TypeFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to float", s)
		}
		return f, nil
	case TypeBool:
		switch strings.ToLower(s) {
		case "true", "1":
			return true, nil
		case "false", "0", "":
			return false, nil
		default:
			return true, nil // non-empty strings are truthy
		}
	default:
		return s, nil
	}
}
