package itemid

import (
	"fmt"
	"sort"
)

// Identifiers maps the keys of one collection instance to item ids. For a
// list the keys are int positions; for a dictionary they are the dictionary
// keys. It also records deleted ids: items that exist upstream but were
// intentionally removed from this collection.
type Identifiers struct {
	list    []slot
	byKey   map[any]ID
	deleted map[ID]struct{}

	// byID maps each id to the lowest key holding it. nil means stale.
	byID map[ID]any
}

type slot struct {
	id ID
	ok bool
}

// NewIdentifiers returns an empty table.
func NewIdentifiers() *Identifiers {
	return &Identifiers{
		byKey:   make(map[any]ID),
		deleted: make(map[ID]struct{}),
	}
}

func position(key any) (int, bool) {
	i, ok := key.(int)
	return i, ok && i >= 0
}

// Len returns the number of keys that have an id.
func (ids *Identifiers) Len() int {
	n := len(ids.byKey)
	for _, s := range ids.list {
		if s.ok {
			n++
		}
	}
	return n
}

// Get returns the id assigned to key.
func (ids *Identifiers) Get(key any) (ID, bool) {
	if i, ok := position(key); ok {
		if i >= len(ids.list) || !ids.list[i].ok {
			return Empty, false
		}
		return ids.list[i].id, true
	}
	id, ok := ids.byKey[key]
	return id, ok
}

// Set assigns id to key. A live id cannot be deleted at the same time, so
// any tombstone for id is dropped.
func (ids *Identifiers) Set(key any, id ID) {
	if old, ok := ids.Get(key); ok && ids.byID != nil && ids.byID[old] == key {
		ids.byID = nil
	}
	if i, ok := position(key); ok {
		ids.grow(i + 1)
		ids.list[i] = slot{id: id, ok: true}
	} else {
		ids.byKey[key] = id
	}
	delete(ids.deleted, id)
	if ids.byID != nil {
		if cur, ok := ids.byID[id]; !ok || lessKey(key, cur) {
			ids.byID[id] = key
		}
	}
}

func (ids *Identifiers) grow(n int) {
	for len(ids.list) < n {
		ids.list = append(ids.list, slot{})
	}
}

// Insert assigns id to a list position, shifting the ids of the following
// positions by one.
func (ids *Identifiers) Insert(index int, id ID) {
	ids.byID = nil
	if index > len(ids.list) {
		ids.grow(index)
	}
	ids.list = append(ids.list, slot{})
	copy(ids.list[index+1:], ids.list[index:])
	ids.list[index] = slot{}
	ids.Set(index, id)
}

// Delete removes the id of a key, without shifting list positions, and
// optionally records it as deleted. It returns the removed id.
func (ids *Identifiers) Delete(key any, markAsDeleted bool) ID {
	id, ok := ids.Get(key)
	if !ok {
		return Empty
	}
	if i, ok := position(key); ok {
		ids.list[i] = slot{}
	} else {
		delete(ids.byKey, key)
	}
	if ids.byID != nil && ids.byID[id] == key {
		ids.byID = nil
	}
	if markAsDeleted {
		ids.MarkAsDeleted(id)
	}
	return id
}

// DeleteAndShift removes the id of a list position, shifts the ids of the
// following positions down by one and optionally records the removed id as
// deleted.
func (ids *Identifiers) DeleteAndShift(index int, markAsDeleted bool) ID {
	id := ids.Delete(index, markAsDeleted)
	if index >= 0 && index < len(ids.list) {
		ids.list = append(ids.list[:index], ids.list[index+1:]...)
		ids.byID = nil
	}
	return id
}

// KeyOf returns the key currently holding id. When several keys hold it,
// the lowest one wins.
func (ids *Identifiers) KeyOf(id ID) (any, bool) {
	if ids.byID == nil {
		ids.reindex()
	}
	k, ok := ids.byID[id]
	return k, ok
}

func (ids *Identifiers) reindex() {
	ids.byID = make(map[ID]any, len(ids.list)+len(ids.byKey))
	for i, s := range ids.list {
		if _, seen := ids.byID[s.id]; s.ok && !seen {
			ids.byID[s.id] = i
		}
	}
	for k, id := range ids.byKey {
		if cur, ok := ids.byID[id]; !ok || lessKey(k, cur) {
			ids.byID[id] = k
		}
	}
}

// Contains reports whether id is assigned to a key.
func (ids *Identifiers) Contains(id ID) bool {
	_, ok := ids.KeyOf(id)
	return ok
}

// Keys returns the keys that have an id, ints first in ascending order,
// then the remaining keys sorted by their text form.
func (ids *Identifiers) Keys() []any {
	keys := make([]any, 0, len(ids.list)+len(ids.byKey))
	for i, s := range ids.list {
		if s.ok {
			keys = append(keys, i)
		}
	}
	rest := make([]any, 0, len(ids.byKey))
	for k := range ids.byKey {
		rest = append(rest, k)
	}
	sort.Slice(rest, func(i, j int) bool { return lessKey(rest[i], rest[j]) })
	return append(keys, rest...)
}

// MarkAsDeleted records id as deleted.
func (ids *Identifiers) MarkAsDeleted(id ID) {
	ids.deleted[id] = struct{}{}
}

// UnmarkAsDeleted forgets the deletion of id.
func (ids *Identifiers) UnmarkAsDeleted(id ID) {
	delete(ids.deleted, id)
}

// IsDeleted reports whether id is recorded as deleted.
func (ids *Identifiers) IsDeleted(id ID) bool {
	_, ok := ids.deleted[id]
	return ok
}

// Deleted returns the deleted ids in a stable order.
func (ids *Identifiers) Deleted() []ID {
	out := make([]ID, 0, len(ids.deleted))
	for id := range ids.deleted {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Clone returns an independent copy of the table.
func (ids *Identifiers) Clone() *Identifiers {
	c := NewIdentifiers()
	c.list = append([]slot(nil), ids.list...)
	for k, v := range ids.byKey {
		c.byKey[k] = v
	}
	for id := range ids.deleted {
		c.deleted[id] = struct{}{}
	}
	return c
}

func lessKey(a, b any) bool {
	ai, aInt := a.(int)
	bi, bInt := b.(int)
	switch {
	case aInt && bInt:
		return ai < bi
	case aInt:
		return true
	case bInt:
		return false
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}
