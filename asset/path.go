package asset

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"assetgraph/itemid"
)

// PathElementType is the kind of step of a Path.
type PathElementType int

const (
	// ElementMember steps into a named field.
	ElementMember PathElementType = iota
	// ElementIndex steps into a collection item by list position or
	// dictionary key.
	ElementIndex
	// ElementItemID steps into a collection item by item id.
	ElementItemID
)

// PathElement is one step of a Path.
type PathElement struct {
	Type   PathElementType
	Name   string
	Index  any
	ItemID itemid.ID
}

// Path addresses a value inside an asset, relative to its root object. The
// text form is like `Member.Items{item-id}.Field["key"][2]`.
type Path struct {
	Elements []PathElement
}

func (p Path) push(e PathElement) Path {
	elems := make([]PathElement, len(p.Elements), len(p.Elements)+1)
	copy(elems, p.Elements)
	return Path{Elements: append(elems, e)}
}

func (p Path) Member(name string) Path {
	return p.push(PathElement{Type: ElementMember, Name: name})
}

// WithIndex appends an index step. index is an int or a string.
func (p Path) WithIndex(index any) Path {
	return p.push(PathElement{Type: ElementIndex, Index: index})
}

func (p Path) WithItemID(id itemid.ID) Path {
	return p.push(PathElement{Type: ElementItemID, ItemID: id})
}

func (p Path) IsEmpty() bool { return len(p.Elements) == 0 }

func (p Path) String() string {
	var b strings.Builder
	for i, e := range p.Elements {
		switch e.Type {
		case ElementMember:
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(e.Name)
		case ElementIndex:
			b.WriteByte('[')
			switch k := e.Index.(type) {
			case int:
				b.WriteString(strconv.Itoa(k))
			case string:
				b.WriteString(strconv.Quote(k))
			default:
				fmt.Fprintf(&b, "%v", k)
			}
			b.WriteByte(']')
		case ElementItemID:
			b.WriteByte('{')
			b.WriteString(e.ItemID.String())
			b.WriteByte('}')
		}
	}
	return b.String()
}

// ParsePath parses the text form of a Path.
func ParsePath(s string) (Path, error) {
	var p Path
	rest := s
	first := true
	for rest != "" {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			name, r := splitName(rest)
			if name == "" {
				return Path{}, fmt.Errorf("parse path %q: %w: empty member name", s, ErrInvalidPath)
			}
			p = p.Member(name)
			rest = r
		case '[':
			rest = rest[1:]
			if strings.HasPrefix(rest, `"`) {
				quoted, err := strconv.QuotedPrefix(rest)
				if err != nil {
					return Path{}, fmt.Errorf("parse path %q: %w: %w", s, ErrInvalidPath, err)
				}
				key, err := strconv.Unquote(quoted)
				if err != nil {
					return Path{}, fmt.Errorf("parse path %q: %w: %w", s, ErrInvalidPath, err)
				}
				rest = rest[len(quoted):]
				if !strings.HasPrefix(rest, "]") {
					return Path{}, fmt.Errorf("parse path %q: %w: missing ]", s, ErrInvalidPath)
				}
				rest = rest[1:]
				p = p.WithIndex(key)
				break
			}
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return Path{}, fmt.Errorf("parse path %q: %w: missing ]", s, ErrInvalidPath)
			}
			n, err := strconv.Atoi(rest[:end])
			if err != nil {
				return Path{}, fmt.Errorf("parse path %q: %w: bad index: %w", s, ErrInvalidPath, err)
			}
			rest = rest[end+1:]
			p = p.WithIndex(n)
		case '{':
			end := strings.IndexByte(rest, '}')
			if end < 0 {
				return Path{}, fmt.Errorf("parse path %q: %w: missing }", s, ErrInvalidPath)
			}
			id, err := itemid.Parse(rest[1:end])
			if err != nil {
				return Path{}, fmt.Errorf("parse path %q: %w: %w", s, ErrInvalidPath, err)
			}
			rest = rest[end+1:]
			p = p.WithItemID(id)
		default:
			if !first {
				return Path{}, fmt.Errorf("parse path %q: %w: unexpected %q", s, ErrInvalidPath, rest[0])
			}
			name, r := splitName(rest)
			p = p.Member(name)
			rest = r
		}
		first = false
	}
	return p, nil
}

func splitName(s string) (string, string) {
	end := strings.IndexAny(s, ".[{")
	if end < 0 {
		return s, ""
	}
	return s[:end], s[end:]
}

// Metadata associates values with paths, in insertion order. It is the
// serialized form of override and object reference information.
type Metadata[T any] struct {
	keys   []string
	paths  map[string]Path
	values map[string]T
}

func NewMetadata[T any]() *Metadata[T] {
	return &Metadata[T]{paths: make(map[string]Path), values: make(map[string]T)}
}

func (m *Metadata[T]) Set(p Path, v T) {
	key := p.String()
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.paths[key] = p
	m.values[key] = v
}

func (m *Metadata[T]) Get(p Path) (T, bool) {
	if m == nil {
		var zero T
		return zero, false
	}
	v, ok := m.values[p.String()]
	return v, ok
}

func (m *Metadata[T]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Each calls fn for every entry in insertion order.
func (m *Metadata[T]) Each(fn func(p Path, v T)) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		fn(m.paths[k], m.values[k])
	}
}

func (m *Metadata[T]) MarshalYAML() (interface{}, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range m.keys {
		var v yaml.Node
		if err := v.Encode(m.values[k]); err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, &v)
	}
	return n, nil
}

func (m *Metadata[T]) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: metadata must be a mapping", n.Line)
	}
	fresh := NewMetadata[T]()
	for i := 0; i+1 < len(n.Content); i += 2 {
		p, err := ParsePath(n.Content[i].Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Content[i].Line, err)
		}
		var v T
		if err := n.Content[i+1].Decode(&v); err != nil {
			return fmt.Errorf("line %d: %w", n.Content[i+1].Line, err)
		}
		fresh.Set(p, v)
	}
	*m = *fresh
	return nil
}
