package value

import (
	"fmt"

	"assetgraph/itemid"
)

// Walk calls fn for v and every value reachable from it, visiting each
// composite instance once.
func Walk(v any, fn func(v any)) {
	seen := make(map[any]bool)
	var walk func(v any)
	walk = func(v any) {
		if IsReference(v) {
			if seen[v] {
				return
			}
			seen[v] = true
		}
		fn(v)
		switch x := v.(type) {
		case *Object:
			if x == nil {
				return
			}
			for _, name := range x.names {
				walk(x.fields[name])
			}
		case *List:
			if x == nil {
				return
			}
			for _, it := range x.items {
				walk(it)
			}
		case *Dict:
			if x == nil {
				return
			}
			for _, k := range x.keys {
				walk(x.values[k])
			}
		}
	}
	walk(v)
}

// GenerateMissingItemIDs assigns a fresh item id to every item of an
// identified collection reachable from v that has none. Existing ids are
// left untouched.
func GenerateMissingItemIDs(v any) {
	Walk(v, func(v any) {
		switch x := v.(type) {
		case *List:
			if x == nil || x.ids == nil {
				return
			}
			for i := range x.items {
				if _, ok := x.ids.Get(i); !ok {
					x.ids.Set(i, itemid.New())
				}
			}
		case *Dict:
			if x == nil || x.ids == nil {
				return
			}
			for _, k := range x.keys {
				if _, ok := x.ids.Get(k); !ok {
					x.ids.Set(k, itemid.New())
				}
			}
		}
	})
}

// Fix describes one repair made by FixupItemIDs.
type Fix struct {
	Key    any
	OldID  itemid.ID
	NewID  itemid.ID
	Reason string
}

func (f Fix) String() string {
	return fmt.Sprintf("item [%v]: %s, id %s replaced by %s", f.Key, f.Reason, f.OldID, f.NewID)
}

// FixupItemIDs repairs empty and duplicated item ids in every identified
// collection reachable from v, and drops tombstones for ids that are live.
// The first holder of a duplicated id keeps it. Ids that are valid and
// unique never change.
func FixupItemIDs(v any) []Fix {
	var fixes []Fix
	Walk(v, func(v any) {
		var keys []any
		ids, ok := ItemIDs(v)
		if !ok {
			return
		}
		switch x := v.(type) {
		case *List:
			for i := range x.items {
				keys = append(keys, i)
			}
		case *Dict:
			for _, k := range x.keys {
				keys = append(keys, k)
			}
		}
		seen := make(map[itemid.ID]bool, len(keys))
		for _, k := range keys {
			id, _ := ids.Get(k)
			reason := ""
			switch {
			case id.IsEmpty():
				reason = "empty id"
			case seen[id]:
				reason = "duplicate id"
			}
			if reason != "" {
				fresh := itemid.New()
				ids.Set(k, fresh)
				fixes = append(fixes, Fix{Key: k, OldID: id, NewID: fresh, Reason: reason})
				id = fresh
			}
			seen[id] = true
		}
		for _, id := range ids.Deleted() {
			if seen[id] {
				ids.UnmarkAsDeleted(id)
				fixes = append(fixes, Fix{OldID: id, NewID: id, Reason: "live id marked as deleted"})
			}
		}
	})
	return fixes
}
