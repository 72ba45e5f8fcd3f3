// Package graph exposes values from package value as a graph of object
// nodes and member nodes, with change events, traversal and linking.
package graph

import (
	"fmt"
	"strconv"
)

// Index addresses an item of a collection node: an int position for lists,
// a string key for dictionaries. The zero Index is empty.
type Index struct {
	v any
}

// EmptyIndex addresses no item.
var EmptyIndex Index

// NewIndex wraps a raw index value. A nil value gives EmptyIndex.
func NewIndex(v any) Index {
	return Index{v: v}
}

// IntIndex returns the index of a list position.
func IntIndex(i int) Index {
	return Index{v: i}
}

// KeyIndex returns the index of a dictionary key.
func KeyIndex(key string) Index {
	return Index{v: key}
}

func (i Index) IsEmpty() bool { return i.v == nil }

// Value returns the raw index value.
func (i Index) Value() any { return i.v }

// IsInt reports whether the index is a list position.
func (i Index) IsInt() bool {
	_, ok := i.v.(int)
	return ok
}

// Int returns the list position, or -1 for a non-positional index.
func (i Index) Int() int {
	if n, ok := i.v.(int); ok {
		return n
	}
	return -1
}

// Key returns the dictionary key, or "" for a positional index.
func (i Index) Key() string {
	s, _ := i.v.(string)
	return s
}

func (i Index) String() string {
	switch v := i.v.(type) {
	case nil:
		return "(empty)"
	case int:
		return strconv.Itoa(v)
	case string:
		return strconv.Quote(v)
	}
	return fmt.Sprint(i.v)
}
