package graph

import (
	"errors"
	"fmt"

	"assetgraph/itemid"
	"assetgraph/value"
)

var (
	ErrNotCollection    = errors.New("node is not a collection")
	ErrIndexOutOfRange  = errors.New("index out of range")
	ErrKeyExists        = errors.New("key already exists")
	ErrKeyNotFound      = errors.New("key not found")
	ErrInvalidIndexType = errors.New("index type does not match collection")
)

// Node is either an *ObjectNode or a *MemberNode.
type Node interface {
	// Retrieve returns the current value of the node.
	Retrieve() any
	// RetrieveAt returns the item at index of the node's collection value.
	RetrieveAt(index Index) any
	// IsReference reports whether the node's value links to other object
	// nodes rather than holding inline data.
	IsReference() bool
}

// ObjectNode represents a composite value: an object, a list or a
// dictionary. Object values expose their fields as member nodes;
// collection values expose their items by index.
type ObjectNode struct {
	container *Container
	value     any
	members   map[string]*MemberNode
	owner     *MemberNode

	ItemChanging Event[*ItemChange]
	ItemChanged  Event[*ItemChange]
}

// Container returns the container that created the node.
func (n *ObjectNode) Container() *Container { return n.container }

// Owner returns the member node whose value most recently resolved to this
// node through Target, or nil.
func (n *ObjectNode) Owner() *MemberNode { return n.owner }

func (n *ObjectNode) Retrieve() any { return n.value }

func (n *ObjectNode) RetrieveAt(index Index) any {
	return retrieveAt(n.value, index)
}

// IsReference reports whether the collection holds at least one composite
// item.
func (n *ObjectNode) IsReference() bool {
	for _, idx := range n.Indices() {
		if value.IsReference(n.RetrieveAt(idx)) {
			return true
		}
	}
	return false
}

// IsCollection reports whether the node holds a list or a dictionary.
func (n *ObjectNode) IsCollection() bool {
	switch n.value.(type) {
	case *value.List, *value.Dict:
		return true
	}
	return false
}

// IsDictionary reports whether the node holds a dictionary.
func (n *ObjectNode) IsDictionary() bool {
	_, ok := n.value.(*value.Dict)
	return ok
}

// Members returns the member nodes of an object value in field order.
func (n *ObjectNode) Members() []*MemberNode {
	obj, ok := n.value.(*value.Object)
	if !ok {
		return nil
	}
	fields := obj.Fields()
	out := make([]*MemberNode, 0, len(fields))
	for _, name := range fields {
		out = append(out, n.member(name))
	}
	return out
}

// Member returns the member node for a field, or nil if the object has no
// such field.
func (n *ObjectNode) Member(name string) *MemberNode {
	obj, ok := n.value.(*value.Object)
	if !ok || !obj.Has(name) {
		return nil
	}
	return n.member(name)
}

func (n *ObjectNode) member(name string) *MemberNode {
	if m, ok := n.members[name]; ok {
		return m
	}
	if n.members == nil {
		n.members = make(map[string]*MemberNode)
	}
	m := &MemberNode{parent: n, name: name}
	n.members[name] = m
	return m
}

// Indices returns the item indices of a collection value in order.
func (n *ObjectNode) Indices() []Index {
	switch c := n.value.(type) {
	case *value.List:
		out := make([]Index, c.Len())
		for i := range out {
			out[i] = IntIndex(i)
		}
		return out
	case *value.Dict:
		keys := c.Keys()
		out := make([]Index, len(keys))
		for i, k := range keys {
			out[i] = KeyIndex(k)
		}
		return out
	}
	return nil
}

// HasIndex reports whether the collection has an item at index.
func (n *ObjectNode) HasIndex(index Index) bool {
	switch c := n.value.(type) {
	case *value.List:
		return index.IsInt() && index.Int() >= 0 && index.Int() < c.Len()
	case *value.Dict:
		_, isKey := index.Value().(string)
		return isKey && c.Has(index.Key())
	}
	return false
}

// IndexedTarget returns the object node of the item at index, or nil if the
// item is not a composite value.
func (n *ObjectNode) IndexedTarget(index Index) *ObjectNode {
	item := n.RetrieveAt(index)
	if !value.IsReference(item) {
		return nil
	}
	return n.container.GetOrCreateNode(item)
}

// ItemIDs returns the item id table of an identified collection, or nil.
func (n *ObjectNode) ItemIDs() *itemid.Identifiers {
	ids, _ := value.ItemIDs(n.value)
	return ids
}

// Update replaces the item at index.
func (n *ObjectNode) Update(v any, index Index) error {
	if !n.IsCollection() {
		return ErrNotCollection
	}
	if !n.HasIndex(index) {
		return fmt.Errorf("update %s: %w", index, ErrIndexOutOfRange)
	}
	e := &ItemChange{Collection: n, Type: CollectionUpdate, Index: index, OldValue: n.RetrieveAt(index), NewValue: v}
	n.ItemChanging.Raise(e)
	switch c := n.value.(type) {
	case *value.List:
		c.Set(index.Int(), v)
	case *value.Dict:
		c.Set(index.Key(), v)
	}
	value.GenerateMissingItemIDs(v)
	n.ItemChanged.Raise(e)
	return nil
}

// Add inserts a new item with a fresh item id. For a list an empty index
// appends.
func (n *ObjectNode) Add(v any, index Index) error {
	return n.add(v, index, itemid.New())
}

// AddWithID inserts a new item under an existing item id, clearing any
// deletion recorded for that id.
func (n *ObjectNode) AddWithID(v any, index Index, id itemid.ID) error {
	return n.add(v, index, id)
}

func (n *ObjectNode) add(v any, index Index, id itemid.ID) error {
	switch c := n.value.(type) {
	case *value.List:
		if index.IsEmpty() {
			index = IntIndex(c.Len())
		}
		if !index.IsInt() {
			return fmt.Errorf("add at %s: %w", index, ErrInvalidIndexType)
		}
		if index.Int() < 0 || index.Int() > c.Len() {
			return fmt.Errorf("add at %s: %w", index, ErrIndexOutOfRange)
		}
	case *value.Dict:
		if _, ok := index.Value().(string); !ok {
			return fmt.Errorf("add at %s: %w", index, ErrInvalidIndexType)
		}
		if c.Has(index.Key()) {
			return fmt.Errorf("add at %s: %w", index, ErrKeyExists)
		}
	default:
		return ErrNotCollection
	}

	e := &ItemChange{Collection: n, Type: CollectionAdd, Index: index, NewValue: v}
	n.ItemChanging.Raise(e)
	switch c := n.value.(type) {
	case *value.List:
		c.InsertWithID(index.Int(), v, id)
	case *value.Dict:
		c.AddWithID(index.Key(), v, id)
	}
	value.GenerateMissingItemIDs(v)
	n.ItemChanged.Raise(e)
	return nil
}

// Remove deletes the item at index. The removed item id is not recorded as
// deleted.
func (n *ObjectNode) Remove(index Index) error {
	if !n.IsCollection() {
		return ErrNotCollection
	}
	if !n.HasIndex(index) {
		if n.IsDictionary() {
			return fmt.Errorf("remove %s: %w", index, ErrKeyNotFound)
		}
		return fmt.Errorf("remove %s: %w", index, ErrIndexOutOfRange)
	}
	e := &ItemChange{Collection: n, Type: CollectionRemove, Index: index, OldValue: n.RetrieveAt(index)}
	n.ItemChanging.Raise(e)
	switch c := n.value.(type) {
	case *value.List:
		c.RemoveAt(index.Int())
	case *value.Dict:
		c.Remove(index.Key())
	}
	n.ItemChanged.Raise(e)
	return nil
}

// MemberNode represents one field of an object value.
type MemberNode struct {
	parent *ObjectNode
	name   string

	ValueChanging Event[*MemberChange]
	ValueChanged  Event[*MemberChange]
}

func (m *MemberNode) Name() string { return m.name }

// Parent returns the object node that owns the field.
func (m *MemberNode) Parent() *ObjectNode { return m.parent }

func (m *MemberNode) Retrieve() any {
	obj, _ := m.parent.value.(*value.Object)
	return obj.Get(m.name)
}

func (m *MemberNode) RetrieveAt(index Index) any {
	return retrieveAt(m.Retrieve(), index)
}

// IsReference reports whether the field currently holds a composite value.
func (m *MemberNode) IsReference() bool {
	return value.IsReference(m.Retrieve())
}

// Target returns the object node of the field's composite value, or nil.
func (m *MemberNode) Target() *ObjectNode {
	v := m.Retrieve()
	if !value.IsReference(v) {
		return nil
	}
	t := m.parent.container.GetOrCreateNode(v)
	t.owner = m
	return t
}

// Update writes a new value to the field.
func (m *MemberNode) Update(v any) error {
	obj, ok := m.parent.value.(*value.Object)
	if !ok {
		return fmt.Errorf("update member %s: parent is not an object", m.name)
	}
	e := &MemberChange{Member: m, OldValue: obj.Get(m.name), NewValue: v}
	m.ValueChanging.Raise(e)
	obj.Set(m.name, v)
	value.GenerateMissingItemIDs(v)
	m.ValueChanged.Raise(e)
	return nil
}

func retrieveAt(v any, index Index) any {
	switch c := v.(type) {
	case *value.List:
		if i := index.Int(); index.IsInt() && i >= 0 && i < c.Len() {
			return c.At(i)
		}
	case *value.Dict:
		if item, ok := c.Get(index.Key()); ok {
			return item
		}
	}
	return nil
}
