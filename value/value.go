// Package value provides the dynamic object model that asset graphs are
// built from: typed objects with ordered fields, identified or plain lists
// and dictionaries, content references and scalars.
package value

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"

	"assetgraph/itemid"
)

// Object is a typed record with ordered fields. An object with a non-nil ID
// is identifiable.
type Object struct {
	Type string
	ID   uuid.UUID

	names  []string
	fields map[string]any
}

// NewObject creates an object of the given type with no identity.
func NewObject(typ string) *Object {
	return &Object{Type: typ, fields: make(map[string]any)}
}

// NewIdentifiable creates an identifiable object. A nil id gets a fresh one.
func NewIdentifiable(typ string, id uuid.UUID) *Object {
	if id == uuid.Nil {
		id = uuid.New()
	}
	o := NewObject(typ)
	o.ID = id
	return o
}

// Set assigns a field, appending it to the field order if it is new.
func (o *Object) Set(name string, v any) *Object {
	if _, ok := o.fields[name]; !ok {
		o.names = append(o.names, name)
	}
	o.fields[name] = v
	return o
}

// Get returns the value of a field, or nil if it is absent.
func (o *Object) Get(name string) any {
	return o.fields[name]
}

// Has reports whether the object declares the field.
func (o *Object) Has(name string) bool {
	_, ok := o.fields[name]
	return ok
}

// Fields returns the field names in declaration order.
func (o *Object) Fields() []string {
	return append([]string(nil), o.names...)
}

// IsIdentifiable reports whether the object carries an identity.
func (o *Object) IsIdentifiable() bool {
	return o.ID != uuid.Nil
}

// ContentRef is a reference to another asset, compared by id and url rather
// than by instance.
type ContentRef struct {
	ID  uuid.UUID
	URL string
}

// IsReference reports whether v is a composite value that gets its own
// object node.
func IsReference(v any) bool {
	switch x := v.(type) {
	case *Object:
		return x != nil
	case *List:
		return x != nil
	case *Dict:
		return x != nil
	}
	return false
}

// TypeName returns the runtime type name of v, "" for nil.
func TypeName(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case *Object:
		if x == nil {
			return ""
		}
		return x.Type
	case *List:
		return "list"
	case *Dict:
		return "dict"
	case ContentRef:
		return "content"
	}
	return fmt.Sprintf("%T", v)
}

// IdentityOf returns the identity of v if it is an identifiable object.
func IdentityOf(v any) (uuid.UUID, bool) {
	o, ok := v.(*Object)
	if !ok || o == nil || !o.IsIdentifiable() {
		return uuid.Nil, false
	}
	return o.ID, true
}

// Equal compares two values. Composite values compare by instance, content
// references by id and url, everything else by value.
func Equal(a, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case *Object, *List, *Dict:
		return a == b
	case ContentRef:
		y, ok := b.(ContentRef)
		return ok && x.ID == y.ID && x.URL == y.URL
	case string, bool, int, int64, float64, uuid.UUID:
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// ItemIDs returns the identity table of an identified list or dictionary.
func ItemIDs(v any) (*itemid.Identifiers, bool) {
	switch x := v.(type) {
	case *List:
		if x != nil && x.ids != nil {
			return x.ids, true
		}
	case *Dict:
		if x != nil && x.ids != nil {
			return x.ids, true
		}
	}
	return nil, false
}
