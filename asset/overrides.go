package asset

import (
	"fmt"

	"assetgraph/graph"
)

// ResetAllOverridesRecursively drops the overrides of root and everything
// under it, then reconciles that subtree so it matches the base again. For
// an object node, a non-empty index restricts the reset to one item.
func (g *PropertyGraph) ResetAllOverridesRecursively(root Node, index graph.Index) error {
	if root == nil {
		return fmt.Errorf("reset overrides: %w", ErrNilArgument)
	}
	nodesToReset := make(map[Node]graph.Index)
	var visitRoot *ObjectNode
	switch n := root.(type) {
	case *MemberNode:
		if !index.IsEmpty() {
			return fmt.Errorf("reset overrides of member %s: %w: index must be empty", n.Name(), ErrInvalidArgument)
		}
		nodesToReset[n] = graph.EmptyIndex
		visitRoot = n.Target()
	case *ObjectNode:
		if index.IsEmpty() {
			visitRoot = n
			break
		}
		nodesToReset[n] = index
		visitRoot = n.IndexedTarget(index)
		n.OverrideItem(false, index)
	}
	if visitRoot != nil {
		v := g.newVisitor(func(n Node) {
			if _, ok := nodesToReset[n]; !ok {
				nodesToReset[n] = graph.EmptyIndex
			}
		})
		v.Visit(visitRoot.graphNode())
	}
	return g.reconcileWithBase(root, nodesToReset)
}

// ClearAllOverrides removes every override of the asset and relinks it to
// its base, without touching values. The removed overrides are returned so
// that RestoreOverrides can put them back.
func (g *PropertyGraph) ClearAllOverrides() ([]NodeOverride, error) {
	g.clearAllBaseLinks()

	var cleared []NodeOverride
	v := &graph.Visitor{
		SkipRootNode: true,
		Visiting: func(gn graph.Node, _ graph.Path) {
			switch n := g.wrap(gn).(type) {
			case *MemberNode:
				if n.IsContentOverridden() {
					n.OverrideContent(false)
					cleared = append(cleared, NodeOverride{Node: n, Index: graph.EmptyIndex, Target: TargetContent})
				}
			case *ObjectNode:
				for _, idx := range n.OverriddenItemIndices() {
					n.OverrideItem(false, idx)
					cleared = append(cleared, NodeOverride{Node: n, Index: idx, Target: TargetItem})
				}
				for _, idx := range n.OverriddenKeyIndices() {
					n.OverrideKey(false, idx)
					cleared = append(cleared, NodeOverride{Node: n, Index: idx, Target: TargetKey})
				}
			}
		},
	}
	v.Visit(g.root.graphNode())

	if err := g.RefreshBase(); err != nil {
		return cleared, err
	}
	return cleared, nil
}

// RestoreOverrides reapplies overrides returned by ClearAllOverrides.
func (g *PropertyGraph) RestoreOverrides(overrides []NodeOverride) error {
	for _, o := range overrides {
		switch o.Target {
		case TargetContent:
			m, ok := o.Node.(*MemberNode)
			if !ok {
				return fmt.Errorf("restore content override: %w: not a member node", ErrInvalidArgument)
			}
			m.OverrideContent(true)
		case TargetItem, TargetKey:
			n, ok := o.Node.(*ObjectNode)
			if !ok {
				return fmt.Errorf("restore %s override: %w: not an object node", o.Target, ErrInvalidArgument)
			}
			if o.Target == TargetItem {
				n.OverrideItem(true, o.Index)
			} else {
				n.OverrideKey(true, o.Index)
			}
		default:
			return fmt.Errorf("restore override: %w: unknown target %d", ErrInvalidArgument, o.Target)
		}
	}
	return nil
}

// GenerateOverridesForSerialization collects every non-Base override under
// root, addressed by path. Collection items are addressed by item id and
// dictionary keys by key.
func GenerateOverridesForSerialization(root *ObjectNode) *Metadata[OverrideType] {
	out := NewMetadata[OverrideType]()
	walkPaths(root, definitionOf(root), func(n Node, p Path) {
		switch x := n.(type) {
		case *MemberNode:
			if ov := x.ContentOverride(); ov != OverrideBase {
				out.Set(p, ov)
			}
		case *ObjectNode:
			if !x.HasItemIDs() {
				return
			}
			for _, idx := range x.Indices() {
				id := x.IndexToID(idx)
				if ov := x.ItemOverride(idx); ov != OverrideBase {
					out.Set(p.WithItemID(id), ov)
				}
				if ov := x.KeyOverride(idx); ov != OverrideBase {
					out.Set(p.WithIndex(idx.Value()), ov)
				}
			}
		}
	})
	return out
}

// ApplyOverrides sets the override state recorded in overrides on the nodes
// under root. Paths that no longer resolve are skipped.
func ApplyOverrides(root *ObjectNode, overrides *Metadata[OverrideType]) error {
	if root == nil {
		return fmt.Errorf("apply overrides: %w", ErrNilArgument)
	}
	var err error
	overrides.Each(func(p Path, ov OverrideType) {
		if err != nil {
			return
		}
		var node Node
		var index graph.Index
		var onKey bool
		node, index, onKey, err = ResolveObjectPath(root, p)
		if err != nil || node == nil {
			return
		}
		switch n := node.(type) {
		case *MemberNode:
			n.SetContentOverride(ov)
		case *ObjectNode:
			if onKey {
				n.SetKeyOverride(ov, index)
			} else {
				n.SetItemOverride(ov, index)
			}
		}
	})
	return err
}

// ResolveObjectPath finds the node a path addresses. For collection items it
// returns the collection node with the item index; onKey tells whether the
// last step addressed a dictionary key rather than an item id. A nil node
// with a nil error means the path no longer resolves.
func ResolveObjectPath(root *ObjectNode, p Path) (node Node, index graph.Index, onKey bool, err error) {
	node = root
	for i, e := range p.Elements {
		last := i == len(p.Elements)-1
		switch e.Type {
		case ElementMember:
			index, onKey = graph.EmptyIndex, false
			obj, ok := objectOf(node)
			if !ok {
				return nil, graph.EmptyIndex, false, nil
			}
			if obj.IsCollection() {
				return nil, graph.EmptyIndex, false, fmt.Errorf("%w: %s: member %s on a collection", ErrInvalidPath, p, e.Name)
			}
			m := obj.Member(e.Name)
			if m == nil {
				return nil, graph.EmptyIndex, false, nil
			}
			node = m
		case ElementIndex, ElementItemID:
			coll, ok := objectOf(node)
			if !ok {
				return nil, graph.EmptyIndex, false, nil
			}
			if !coll.IsCollection() {
				return nil, graph.EmptyIndex, false, fmt.Errorf("%w: %s: item of a non-collection", ErrInvalidPath, p)
			}
			if e.Type == ElementIndex {
				index, onKey = graph.NewIndex(e.Index), true
				if !coll.HasIndex(index) {
					return nil, graph.EmptyIndex, false, nil
				}
			} else {
				if !coll.HasItemIDs() {
					return nil, graph.EmptyIndex, false, fmt.Errorf("%w: %s: item id in a collection without ids", ErrInvalidPath, p)
				}
				idx, found := coll.TryIDToIndex(e.ItemID)
				if !found {
					return nil, graph.EmptyIndex, false, nil
				}
				index, onKey = idx, false
			}
			node = coll
			if !last {
				t := coll.IndexedTarget(index)
				if t == nil {
					return nil, graph.EmptyIndex, false, nil
				}
				node = t
			}
		}
	}
	return node, index, onKey, nil
}

// objectOf returns the object node a path step operates on: the node itself,
// or the target of a member.
func objectOf(n Node) (*ObjectNode, bool) {
	switch x := n.(type) {
	case *ObjectNode:
		return x, true
	case *MemberNode:
		t := x.Target()
		return t, t != nil
	}
	return nil, false
}

func definitionOf(n Node) Definition {
	if g := n.PropertyGraph(); g != nil {
		return g.definition
	}
	return DefaultDefinition{}
}

// walkPaths calls fn for every node owned by the asset under root, with its
// serialization path. Object nodes reached through a member share the
// member's path.
func walkPaths(root *ObjectNode, def Definition, fn func(n Node, p Path)) {
	visited := make(map[*ObjectNode]bool)
	var visitObject func(o *ObjectNode, p Path)
	visitObject = func(o *ObjectNode, p Path) {
		if visited[o] {
			return
		}
		visited[o] = true
		fn(o, p)
		for _, m := range o.Members() {
			mp := p.Member(m.Name())
			fn(m, mp)
			if t := m.Target(); t != nil && !def.IsMemberTargetObjectReference(m, m.Retrieve()) {
				visitObject(t, mp)
			}
		}
		for _, idx := range o.Indices() {
			t := o.IndexedTarget(idx)
			if t == nil || def.IsTargetItemObjectReference(o, idx, o.RetrieveAt(idx)) {
				continue
			}
			visitObject(t, itemPath(p, o, idx))
		}
	}
	visitObject(root, Path{})
}

// itemPath extends p with the address of an item: its item id when the
// collection has ids, its index otherwise.
func itemPath(p Path, collection *ObjectNode, index graph.Index) Path {
	if id, ok := collection.TryIndexToID(index); ok {
		return p.WithItemID(id)
	}
	return p.WithIndex(index.Value())
}
