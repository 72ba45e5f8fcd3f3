package asset

import (
	"fmt"
	"sort"

	"assetgraph/graph"
	"assetgraph/itemid"
	"assetgraph/value"
)

// ReconcileWithBase brings every non-overridden value of the asset back in
// line with its archetype.
func (g *PropertyGraph) ReconcileWithBase() error {
	return g.reconcileWithBase(g.root, nil)
}

// reconcileWithBase runs two passes over the subtree of root. The first
// pass reconciles owned values, which creates the derived counterparts of
// base objects; the second reconciles object references, which may point at
// those counterparts. When nodesToReset is not nil, only the nodes it holds
// are reset, at the recorded index, or entirely for an empty index.
func (g *PropertyGraph) reconcileWithBase(root Node, nodesToReset map[Node]graph.Index) error {
	for _, references := range []bool{false, true} {
		var err error
		v := g.newVisitor(func(n Node) {
			if err == nil {
				err = g.reconcileWithBaseNode(n, references, nodesToReset)
			}
		})
		v.Visit(root.graphNode())
		if err != nil {
			return fmt.Errorf("reconcile %s with base: %w", g.asset.Location, err)
		}
	}
	return nil
}

func (g *PropertyGraph) reconcileWithBaseNode(node Node, references bool, nodesToReset map[Node]graph.Index) error {
	if node.BaseNode() == nil {
		return nil
	}
	switch n := node.(type) {
	case *MemberNode:
		return g.reconcileMember(n, references, nodesToReset)
	case *ObjectNode:
		return g.reconcileObject(n, references, nodesToReset)
	}
	return nil
}

func (g *PropertyGraph) reconcileMember(m *MemberNode, references bool, nodesToReset map[Node]graph.Index) error {
	base := m.BaseMember()
	if base == nil {
		return nil
	}
	reconcile, err := g.shouldReconcileMember(m, base, references, nodesToReset)
	if err != nil || !reconcile {
		return err
	}

	m.resetting = true
	defer func() { m.resetting = false }()

	bv := base.Retrieve()
	var v any
	if g.isMemberObjectReference(base, bv) {
		if v, err = g.registry.ResolveFromBase(bv, m); err != nil {
			return err
		}
	} else {
		v = CloneValueFromBase(bv)
	}
	if err := m.Update(v); err != nil {
		return fmt.Errorf("member %s: %w", m.Name(), err)
	}
	m.OverrideContent(false)
	return nil
}

type pendingAdd struct {
	baseIndex graph.Index
	id        itemid.ID
}

func (g *PropertyGraph) reconcileObject(o *ObjectNode, references bool, nodesToReset map[Node]graph.Index) error {
	base := o.BaseObject()
	if base == nil || !o.IsCollection() || !o.HasItemIDs() || !base.HasItemIDs() {
		return nil
	}

	o.resetting = true
	defer func() { o.resetting = false }()

	resetIndex, resetting := nodesToReset[o]

	// Local items that the base does not have and that are not local
	// additions go away.
	var toRemove []itemid.ID
	for _, idx := range o.Indices() {
		if o.IsItemOverridden(idx) {
			continue
		}
		if resetting && !resetIndex.IsEmpty() && resetIndex != idx {
			continue
		}
		id := o.IndexToID(idx)
		if id.IsEmpty() || !base.HasID(id) {
			toRemove = append(toRemove, id)
		}
	}

	ids := o.ItemIDs()
	for _, deleted := range ids.Deleted() {
		if !base.HasID(deleted) {
			o.DisconnectOverriddenDeletedItem(deleted)
		}
	}

	var toAdd []pendingAdd
	for _, bidx := range base.Indices() {
		id := base.IndexToID(bidx)
		if id.IsEmpty() || o.IsItemDeleted(id) {
			o.OverrideDeletedItem(true, id)
			continue
		}

		localIdx, found := o.TryIDToIndex(id)
		if !found {
			collision := o.IsDictionary() && o.HasIndex(bidx)
			if collision || !g.hooks.canUpdate(o, graph.CollectionAdd, bidx, base.RetrieveAt(bidx)) {
				o.OverrideDeletedItem(true, id)
				continue
			}
			toAdd = append(toAdd, pendingAdd{baseIndex: bidx, id: id})
			continue
		}

		reconcile, err := g.shouldReconcileItem(o, base, localIdx, bidx, references, nodesToReset)
		if err != nil {
			return err
		}
		if reconcile {
			bv := base.RetrieveAt(bidx)
			var v any
			if g.isItemObjectReference(base, bidx, bv) {
				if v, err = g.registry.ResolveFromBase(bv, o); err != nil {
					return err
				}
			} else {
				v = CloneValueFromBase(bv)
			}
			if err := o.Update(v, localIdx); err != nil {
				return err
			}
			o.OverrideItem(false, localIdx)
		}

		if o.IsDictionary() && !o.IsKeyOverridden(localIdx) && localIdx != bidx && !o.HasIndex(bidx) {
			if err := g.moveKey(o, localIdx, bidx, id); err != nil {
				return err
			}
		}
	}

	for _, id := range toRemove {
		idx, ok := o.TryIDToIndex(id)
		if !ok {
			continue
		}
		if err := o.Remove(idx); err != nil {
			return err
		}
		o.OverrideDeletedItem(false, id)
	}

	if o.IsDictionary() {
		sort.SliceStable(toAdd, func(i, j int) bool {
			return toAdd[i].baseIndex.Key() < toAdd[j].baseIndex.Key()
		})
	}
	for _, add := range toAdd {
		v := CloneValueFromBase(base.RetrieveAt(add.baseIndex))
		if o.IsDictionary() {
			if err := o.Restore(v, add.baseIndex, add.id); err != nil {
				return err
			}
			continue
		}
		at, err := insertPosition(o, base, add.baseIndex.Int())
		if err != nil {
			return err
		}
		if err := o.Restore(v, graph.IntIndex(at), add.id); err != nil {
			return err
		}
	}
	return nil
}

// insertPosition returns where to insert the item at baseIndex of the base
// list: right after the nearest preceding base item that also exists
// locally, or at the front.
func insertPosition(o, base *ObjectNode, baseIndex int) (int, error) {
	for i := baseIndex - 1; i >= 0; i-- {
		id, ok := base.TryIndexToID(graph.IntIndex(i))
		if !ok {
			return 0, fmt.Errorf("base collection has no item id at index %d", i)
		}
		if local, ok := o.TryIDToIndex(id); ok {
			return local.Int() + 1, nil
		}
	}
	return 0, nil
}

// moveKey renames a dictionary entry to the key the base uses, keeping its
// item id and item override.
func (g *PropertyGraph) moveKey(o *ObjectNode, from, to graph.Index, id itemid.ID) error {
	v := o.RetrieveAt(from)
	ov := o.ItemOverride(from)
	if err := o.Remove(from); err != nil {
		return err
	}
	if err := o.Restore(v, to, id); err != nil {
		return err
	}
	o.SetItemOverride(ov, to)
	return nil
}

func (g *PropertyGraph) shouldReconcileMember(m, base *MemberNode, references bool, nodesToReset map[Node]graph.Index) (bool, error) {
	if idx, ok := nodesToReset[m]; ok {
		return idx.IsEmpty(), nil
	}
	if m.IsContentOverridden() {
		return false, nil
	}
	local, bv := m.Retrieve(), base.Retrieve()
	if g.isMemberObjectReference(base, bv) {
		if !references {
			return false, nil
		}
		resolved, err := g.registry.ResolveFromBase(bv, m)
		if err != nil {
			return false, err
		}
		return !value.Equal(local, resolved), nil
	}
	return valuesDiffer(local, bv), nil
}

func (g *PropertyGraph) shouldReconcileItem(o, base *ObjectNode, localIdx, baseIdx graph.Index, references bool, nodesToReset map[Node]graph.Index) (bool, error) {
	if idx, ok := nodesToReset[o]; ok {
		return idx.IsEmpty() || idx == localIdx, nil
	}
	if o.IsItemOverridden(localIdx) {
		return false, nil
	}
	local, bv := o.RetrieveAt(localIdx), base.RetrieveAt(baseIdx)
	if g.isItemObjectReference(base, baseIdx, bv) {
		if !references {
			return false, nil
		}
		resolved, err := g.registry.ResolveFromBase(bv, o)
		if err != nil {
			return false, err
		}
		return !value.Equal(local, resolved), nil
	}
	return valuesDiffer(local, bv), nil
}

// valuesDiffer compares a local value with its base value. Composite values
// only differ when their type does; their content is reconciled node by
// node.
func valuesDiffer(local, base any) bool {
	if value.IsReference(local) || value.IsReference(base) {
		return value.TypeName(local) != value.TypeName(base)
	}
	lc, lok := local.(value.ContentRef)
	bc, bok := base.(value.ContentRef)
	if lok || bok {
		return lc.ID != bc.ID || lc.URL != bc.URL
	}
	return !value.Equal(local, base)
}

func (g *PropertyGraph) isMemberObjectReference(base *MemberNode, v any) bool {
	return identifiable(v) && g.definition.IsMemberTargetObjectReference(base, v)
}

func (g *PropertyGraph) isItemObjectReference(base *ObjectNode, index graph.Index, v any) bool {
	return identifiable(v) && g.definition.IsTargetItemObjectReference(base, index, v)
}

// CloneValueFromBase copies a base value for use in a derived asset.
// Identifiable objects in the copy get new identities; content references
// and scalars are shared.
func CloneValueFromBase(v any) any {
	if !value.IsReference(v) {
		return v
	}
	clone, _ := value.CloneWithNewIDs(v)
	return clone
}
