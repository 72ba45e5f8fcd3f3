// Package yamlasset reads and writes assets as YAML documents.
//
// Objects are mappings tagged with their type ("!Entity"), carrying their
// identity under "$id". Identified lists are "!list" mappings from item id
// to value, identified dictionaries are "!dict" mappings keyed "id~key".
// Deleted item ids are listed under "$deleted". Plain lists are sequences
// and plain dictionaries are "!map" mappings. An identifiable object that
// appears more than once is written in full the first time and as
// "!ref <id>" afterwards.
package yamlasset

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"lukechampine.com/blake3"

	"assetgraph/asset"
	"assetgraph/itemid"
	"assetgraph/value"
)

const (
	tagRef     = "!ref"
	tagContent = "!content"
	tagUUID    = "!uuid"
	tagList    = "!list"
	tagDict    = "!dict"
	tagMap     = "!map"

	idKey      = "$id"
	deletedKey = "$deleted"
	keySep     = "~"
)

// ErrInvalidDocument is returned for documents that do not describe an asset.
var ErrInvalidDocument = errors.New("invalid asset document")

type reference struct {
	ID       uuid.UUID `yaml:"id"`
	Location string    `yaml:"location,omitempty"`
}

type document struct {
	ID               uuid.UUID                           `yaml:"id"`
	Location         string                              `yaml:"location,omitempty"`
	Archetype        *reference                          `yaml:"archetype,omitempty"`
	Root             yaml.Node                           `yaml:"root"`
	Overrides        *asset.Metadata[asset.OverrideType] `yaml:"overrides,omitempty"`
	ObjectReferences *asset.Metadata[uuid.UUID]          `yaml:"objectReferences,omitempty"`
}

// Encode writes an asset as a YAML document. Every item of an identified
// collection must have an id; PrepareForSave guarantees that.
func Encode(a *asset.Asset) ([]byte, error) {
	if a == nil || a.Root == nil {
		return nil, fmt.Errorf("encode asset: %w: no root", ErrInvalidDocument)
	}
	e := &encoder{written: make(map[uuid.UUID]bool)}
	root, err := e.encode(a.Root)
	if err != nil {
		return nil, fmt.Errorf("encode asset %s: %w", a.Location, err)
	}
	doc := document{ID: a.ID, Location: a.Location, Root: *root}
	if a.Archetype != nil {
		doc.Archetype = &reference{ID: a.Archetype.ID, Location: a.Archetype.Location}
	}
	if a.Overrides.Len() > 0 {
		doc.Overrides = a.Overrides
	}
	if a.ObjectReferences.Len() > 0 {
		doc.ObjectReferences = a.ObjectReferences
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("encode asset %s: %w", a.Location, err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads an asset from a YAML document. References to objects that
// are not part of the document decode as nil.
func Decode(data []byte) (*asset.Asset, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing asset: %w", err)
	}
	if doc.Root.Kind == 0 {
		return nil, fmt.Errorf("%w: missing root", ErrInvalidDocument)
	}
	d := &decoder{objects: make(map[uuid.UUID]*value.Object)}
	v, err := d.decode(&doc.Root)
	if err != nil {
		return nil, err
	}
	root, ok := v.(*value.Object)
	if !ok || root == nil {
		return nil, fmt.Errorf("%w: line %d: root must be an object", ErrInvalidDocument, doc.Root.Line)
	}
	d.resolve(root)

	a := &asset.Asset{
		ID:               doc.ID,
		Location:         doc.Location,
		Root:             root,
		Overrides:        doc.Overrides,
		ObjectReferences: doc.ObjectReferences,
	}
	if doc.Archetype != nil {
		a.Archetype = &asset.Reference{ID: doc.Archetype.ID, Location: doc.Archetype.Location}
	}
	return a, nil
}

// Fingerprint returns the hex BLAKE3 digest of the encoded asset.
func Fingerprint(a *asset.Asset) (string, error) {
	data, err := Encode(a)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

type encoder struct {
	written map[uuid.UUID]bool
}

func scalar(tag, v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: v}
}

func (e *encoder) encode(v any) (*yaml.Node, error) {
	switch x := v.(type) {
	case nil:
		return scalar("!!null", "null"), nil
	case *value.Object:
		if x == nil {
			return scalar("!!null", "null"), nil
		}
		return e.object(x)
	case *value.List:
		if x == nil {
			return scalar("!!null", "null"), nil
		}
		return e.list(x)
	case *value.Dict:
		if x == nil {
			return scalar("!!null", "null"), nil
		}
		return e.dict(x)
	case value.ContentRef:
		return scalar(tagContent, x.ID.String()+":"+x.URL), nil
	case uuid.UUID:
		return scalar(tagUUID, x.String()), nil
	case string, bool, int, int64, float64:
		var n yaml.Node
		if err := n.Encode(x); err != nil {
			return nil, err
		}
		return &n, nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

func (e *encoder) object(o *value.Object) (*yaml.Node, error) {
	if o.IsIdentifiable() {
		if e.written[o.ID] {
			return scalar(tagRef, o.ID.String()), nil
		}
		e.written[o.ID] = true
	}
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if o.Type != "" {
		n.Tag = "!" + o.Type
	}
	if o.IsIdentifiable() {
		n.Content = append(n.Content, scalar("!!str", idKey), scalar("!!str", o.ID.String()))
	}
	for _, name := range o.Fields() {
		fv, err := e.encode(o.Get(name))
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", o.Type, name, err)
		}
		n.Content = append(n.Content, scalar("!!str", name), fv)
	}
	return n, nil
}

func (e *encoder) list(l *value.List) (*yaml.Node, error) {
	if !l.Identified() {
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for i, it := range l.Items() {
			iv, err := e.encode(it)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			n.Content = append(n.Content, iv)
		}
		return n, nil
	}
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: tagList}
	for i, it := range l.Items() {
		id, ok := l.IDs().Get(i)
		if !ok || id.IsEmpty() {
			return nil, fmt.Errorf("[%d]: %w: item has no id", i, ErrInvalidDocument)
		}
		iv, err := e.encode(it)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		n.Content = append(n.Content, scalar("!!str", id.String()), iv)
	}
	return withDeleted(n, l.IDs()), nil
}

func (e *encoder) dict(d *value.Dict) (*yaml.Node, error) {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: tagMap}
	if d.Identified() {
		n.Tag = tagDict
	}
	for _, k := range d.Keys() {
		v, _ := d.Get(k)
		kv, err := e.encode(v)
		if err != nil {
			return nil, fmt.Errorf("[%q]: %w", k, err)
		}
		key := k
		if d.Identified() {
			id, ok := d.IDs().Get(k)
			if !ok || id.IsEmpty() {
				return nil, fmt.Errorf("[%q]: %w: item has no id", k, ErrInvalidDocument)
			}
			key = id.String() + keySep + k
		}
		n.Content = append(n.Content, scalar("!!str", key), kv)
	}
	if d.Identified() {
		return withDeleted(n, d.IDs()), nil
	}
	return n, nil
}

func withDeleted(n *yaml.Node, ids *itemid.Identifiers) *yaml.Node {
	deleted := ids.Deleted()
	if len(deleted) == 0 {
		return n
	}
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: yaml.FlowStyle}
	for _, id := range deleted {
		seq.Content = append(seq.Content, scalar("!!str", id.String()))
	}
	n.Content = append(n.Content, scalar("!!str", deletedKey), seq)
	return n
}

// ref stands for an object reference until every object of the document is
// known.
type ref uuid.UUID

type decoder struct {
	objects map[uuid.UUID]*value.Object
}

func (d *decoder) decode(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return d.scalar(n)
	case yaml.SequenceNode:
		l := value.NewPlainList()
		for _, c := range n.Content {
			v, err := d.decode(c)
			if err != nil {
				return nil, err
			}
			l.Append(v)
		}
		return l, nil
	case yaml.MappingNode:
		switch tag := n.ShortTag(); tag {
		case tagList:
			return d.list(n)
		case tagDict:
			return d.dict(n)
		case tagMap:
			return d.plainDict(n)
		default:
			return d.object(n, tag)
		}
	}
	return nil, fmt.Errorf("%w: line %d: unsupported node", ErrInvalidDocument, n.Line)
}

func (d *decoder) scalar(n *yaml.Node) (any, error) {
	switch n.ShortTag() {
	case "!!null":
		return nil, nil
	case "!!str":
		return n.Value, nil
	case "!!bool", "!!int", "!!float":
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	case tagUUID:
		id, err := uuid.Parse(n.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidDocument, n.Line, err)
		}
		return id, nil
	case tagRef:
		id, err := uuid.Parse(n.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidDocument, n.Line, err)
		}
		return ref(id), nil
	case tagContent:
		idText, url, _ := strings.Cut(n.Value, ":")
		id, err := uuid.Parse(idText)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidDocument, n.Line, err)
		}
		return value.ContentRef{ID: id, URL: url}, nil
	}
	return nil, fmt.Errorf("%w: line %d: unsupported tag %s", ErrInvalidDocument, n.Line, n.Tag)
}

func (d *decoder) object(n *yaml.Node, tag string) (any, error) {
	typ := ""
	switch {
	case tag == "!!map":
	case strings.HasPrefix(tag, "!") && !strings.HasPrefix(tag, "!!"):
		typ = tag[1:]
	default:
		return nil, fmt.Errorf("%w: line %d: unsupported tag %s", ErrInvalidDocument, n.Line, tag)
	}
	o := value.NewObject(typ)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, vn := n.Content[i], n.Content[i+1]
		if k.Value == idKey {
			id, err := uuid.Parse(vn.Value)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidDocument, vn.Line, err)
			}
			if _, dup := d.objects[id]; dup {
				return nil, fmt.Errorf("%w: line %d: duplicate object %s", ErrInvalidDocument, vn.Line, id)
			}
			o.ID = id
			d.objects[id] = o
			continue
		}
		v, err := d.decode(vn)
		if err != nil {
			return nil, err
		}
		o.Set(k.Value, v)
	}
	return o, nil
}

func (d *decoder) list(n *yaml.Node) (any, error) {
	l := value.NewList()
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, vn := n.Content[i], n.Content[i+1]
		if k.Value == deletedKey {
			if err := decodeDeleted(vn, l.IDs()); err != nil {
				return nil, err
			}
			continue
		}
		id, err := itemid.Parse(k.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidDocument, k.Line, err)
		}
		v, err := d.decode(vn)
		if err != nil {
			return nil, err
		}
		l.InsertWithID(l.Len(), v, id)
	}
	return l, nil
}

func (d *decoder) dict(n *yaml.Node) (any, error) {
	dict := value.NewDict()
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, vn := n.Content[i], n.Content[i+1]
		if k.Value == deletedKey {
			if err := decodeDeleted(vn, dict.IDs()); err != nil {
				return nil, err
			}
			continue
		}
		idText, key, ok := strings.Cut(k.Value, keySep)
		if !ok {
			return nil, fmt.Errorf("%w: line %d: dictionary key %q has no item id", ErrInvalidDocument, k.Line, k.Value)
		}
		id, err := itemid.Parse(idText)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidDocument, k.Line, err)
		}
		v, err := d.decode(vn)
		if err != nil {
			return nil, err
		}
		dict.AddWithID(key, v, id)
	}
	return dict, nil
}

func (d *decoder) plainDict(n *yaml.Node) (any, error) {
	dict := value.NewPlainDict()
	for i := 0; i+1 < len(n.Content); i += 2 {
		v, err := d.decode(n.Content[i+1])
		if err != nil {
			return nil, err
		}
		dict.Set(n.Content[i].Value, v)
	}
	return dict, nil
}

func decodeDeleted(n *yaml.Node, ids *itemid.Identifiers) error {
	if n.Kind != yaml.SequenceNode {
		return fmt.Errorf("%w: line %d: %s must be a sequence", ErrInvalidDocument, n.Line, deletedKey)
	}
	for _, c := range n.Content {
		id, err := itemid.Parse(c.Value)
		if err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrInvalidDocument, c.Line, err)
		}
		ids.MarkAsDeleted(id)
	}
	return nil
}

// resolve replaces every ref under v with the object it names.
func (d *decoder) resolve(v any) {
	seen := make(map[any]bool)
	var walk func(v any) any
	walk = func(v any) any {
		if r, ok := v.(ref); ok {
			if o, ok := d.objects[uuid.UUID(r)]; ok {
				return o
			}
			return nil
		}
		if !value.IsReference(v) || seen[v] {
			return v
		}
		seen[v] = true
		switch x := v.(type) {
		case *value.Object:
			for _, name := range x.Fields() {
				x.Set(name, walk(x.Get(name)))
			}
		case *value.List:
			for i, it := range x.Items() {
				x.Set(i, walk(it))
			}
		case *value.Dict:
			for _, k := range x.Keys() {
				it, _ := x.Get(k)
				x.Set(k, walk(it))
			}
		}
		return v
	}
	walk(v)
}
