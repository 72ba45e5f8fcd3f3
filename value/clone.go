package value

import (
	"github.com/google/uuid"
)

// Clone deep-copies v. Shared instances inside v stay shared in the copy.
// Identities and item ids are preserved.
func Clone(v any) any {
	c := cloner{memo: make(map[any]any)}
	return c.clone(v)
}

// CloneWithNewIDs deep-copies v and gives every identifiable object in the
// copy a fresh identity. It returns the old → new identity mapping. Item ids
// are preserved so the copy still corresponds item by item.
func CloneWithNewIDs(v any) (any, map[uuid.UUID]uuid.UUID) {
	c := cloner{memo: make(map[any]any), remap: make(map[uuid.UUID]uuid.UUID), newIDs: true}
	return c.clone(v), c.remap
}

type cloner struct {
	memo   map[any]any
	remap  map[uuid.UUID]uuid.UUID
	newIDs bool
}

func (c *cloner) clone(v any) any {
	switch x := v.(type) {
	case *Object:
		if x == nil {
			return x
		}
		if done, ok := c.memo[x]; ok {
			return done
		}
		o := NewObject(x.Type)
		o.ID = x.ID
		if c.newIDs && x.IsIdentifiable() {
			o.ID = uuid.New()
			c.remap[x.ID] = o.ID
		}
		c.memo[x] = o
		for _, name := range x.names {
			o.Set(name, c.clone(x.fields[name]))
		}
		return o
	case *List:
		if x == nil {
			return x
		}
		if done, ok := c.memo[x]; ok {
			return done
		}
		l := &List{items: make([]any, len(x.items))}
		if x.ids != nil {
			l.ids = x.ids.Clone()
		}
		c.memo[x] = l
		for i, it := range x.items {
			l.items[i] = c.clone(it)
		}
		return l
	case *Dict:
		if x == nil {
			return x
		}
		if done, ok := c.memo[x]; ok {
			return done
		}
		d := &Dict{keys: append([]string(nil), x.keys...), values: make(map[string]any, len(x.values))}
		if x.ids != nil {
			d.ids = x.ids.Clone()
		}
		c.memo[x] = d
		for _, k := range x.keys {
			d.values[k] = c.clone(x.values[k])
		}
		return d
	}
	return v
}
