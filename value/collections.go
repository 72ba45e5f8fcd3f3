package value

import (
	"assetgraph/itemid"
)

// List is an ordered collection. An identified list keeps an item id for
// every position.
type List struct {
	items []any
	ids   *itemid.Identifiers
}

// NewList creates an identified list, assigning a fresh id to each item.
func NewList(items ...any) *List {
	l := &List{ids: itemid.NewIdentifiers()}
	for _, it := range items {
		l.Insert(len(l.items), it)
	}
	return l
}

// NewPlainList creates a list whose items have no identity.
func NewPlainList(items ...any) *List {
	return &List{items: append([]any(nil), items...)}
}

// Identified reports whether the list tracks item ids.
func (l *List) Identified() bool { return l.ids != nil }

// IDs returns the item id table, nil for a plain list.
func (l *List) IDs() *itemid.Identifiers { return l.ids }

func (l *List) Len() int { return len(l.items) }

func (l *List) At(i int) any { return l.items[i] }

// Set replaces the item at position i. The item keeps its id.
func (l *List) Set(i int, v any) { l.items[i] = v }

// Items returns a copy of the items.
func (l *List) Items() []any {
	return append([]any(nil), l.items...)
}

// Insert inserts v at position i with a fresh item id.
func (l *List) Insert(i int, v any) itemid.ID {
	id := itemid.Empty
	if l.ids != nil {
		id = itemid.New()
	}
	l.InsertWithID(i, v, id)
	return id
}

// InsertWithID inserts v at position i under the given item id.
func (l *List) InsertWithID(i int, v any, id itemid.ID) {
	l.items = append(l.items, nil)
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = v
	if l.ids != nil {
		l.ids.Insert(i, id)
	}
}

// Append adds v at the end of the list with a fresh item id.
func (l *List) Append(v any) itemid.ID {
	return l.Insert(len(l.items), v)
}

// RemoveAt removes the item at position i and returns it with its id. The
// id is not recorded as deleted; that is the caller's decision.
func (l *List) RemoveAt(i int) (any, itemid.ID) {
	v := l.items[i]
	l.items = append(l.items[:i], l.items[i+1:]...)
	id := itemid.Empty
	if l.ids != nil {
		id = l.ids.DeleteAndShift(i, false)
	}
	return v, id
}

// Dict is a string-keyed dictionary that preserves insertion order. An
// identified dictionary keeps an item id for every key.
type Dict struct {
	keys   []string
	values map[string]any
	ids    *itemid.Identifiers
}

// NewDict creates an empty identified dictionary.
func NewDict() *Dict {
	return &Dict{values: make(map[string]any), ids: itemid.NewIdentifiers()}
}

// NewPlainDict creates a dictionary whose entries have no identity.
func NewPlainDict() *Dict {
	return &Dict{values: make(map[string]any)}
}

func (d *Dict) Identified() bool { return d.ids != nil }

// IDs returns the item id table, nil for a plain dictionary.
func (d *Dict) IDs() *itemid.Identifiers { return d.ids }

func (d *Dict) Len() int { return len(d.keys) }

func (d *Dict) Get(key string) (any, bool) {
	v, ok := d.values[key]
	return v, ok
}

func (d *Dict) Has(key string) bool {
	_, ok := d.values[key]
	return ok
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []string {
	return append([]string(nil), d.keys...)
}

// Set adds or replaces an entry. A new key gets a fresh item id.
func (d *Dict) Set(key string, v any) *Dict {
	if d.Has(key) {
		d.values[key] = v
		return d
	}
	id := itemid.Empty
	if d.ids != nil {
		id = itemid.New()
	}
	d.AddWithID(key, v, id)
	return d
}

// AddWithID adds a new entry under the given item id.
func (d *Dict) AddWithID(key string, v any, id itemid.ID) {
	if !d.Has(key) {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
	if d.ids != nil {
		d.ids.Set(key, id)
	}
}

// Remove deletes an entry and returns its value and item id.
func (d *Dict) Remove(key string) (any, itemid.ID) {
	v, ok := d.values[key]
	if !ok {
		return nil, itemid.Empty
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
	id := itemid.Empty
	if d.ids != nil {
		id = d.ids.Delete(key, false)
	}
	return v, id
}
