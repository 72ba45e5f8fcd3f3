package asset

import (
	"assetgraph/graph"
	"assetgraph/itemid"
	"assetgraph/value"
)

// changeListener subscribes to the nodes owned by an asset and forwards
// their changes to the property graph. It follows value replacements so
// that newly reachable nodes are listened to and dropped ones are not.
type changeListener struct {
	g          *PropertyGraph
	registered map[Node][]func()
}

func newChangeListener(g *PropertyGraph) *changeListener {
	return &changeListener{g: g, registered: make(map[Node][]func())}
}

func (l *changeListener) registerAll(root Node) {
	if root == nil {
		return
	}
	l.g.newVisitor(l.register).Visit(root.graphNode())
}

func (l *changeListener) unregisterAllFrom(root Node) {
	if root == nil {
		return
	}
	l.g.newVisitor(l.unregister).Visit(root.graphNode())
}

func (l *changeListener) unregisterAll() {
	for n := range l.registered {
		l.unregister(n)
	}
}

func (l *changeListener) register(n Node) {
	if _, ok := l.registered[n]; ok {
		return
	}
	switch x := n.(type) {
	case *MemberNode:
		l.registered[n] = []func(){
			x.ValueChanging.Subscribe(func(e *graph.MemberChange) { l.g.assetContentChanging(x, e) }),
			x.ValueChanged.Subscribe(func(e *graph.MemberChange) { l.valueChanged(x, e) }),
		}
	case *ObjectNode:
		l.registered[n] = []func(){
			x.ItemChanging.Subscribe(func(e *graph.ItemChange) { l.g.assetItemChanging(x, e) }),
			x.ItemChanged.Subscribe(func(e *graph.ItemChange) { l.itemChanged(x, e) }),
		}
	}
}

func (l *changeListener) unregister(n Node) {
	cancels, ok := l.registered[n]
	if !ok {
		return
	}
	for _, cancel := range cancels {
		cancel()
	}
	delete(l.registered, n)
}

func (l *changeListener) valueChanged(m *MemberNode, e *graph.MemberChange) {
	if old := l.g.container.nodes.GetNode(e.OldValue); old != nil && !l.g.definition.IsMemberTargetObjectReference(m, e.OldValue) {
		l.unregisterAllFrom(old)
		l.g.UnlinkFromBase(old)
	}
	if t := m.Target(); t != nil && l.g.shouldVisitMemberTarget(m.MemberNode) {
		l.registerAll(t)
	}
	l.g.assetContentChanged(m, e)
}

func (l *changeListener) itemChanged(c *ObjectNode, e *graph.ItemChange) {
	if old := l.g.container.nodes.GetNode(e.OldValue); old != nil && !l.g.definition.IsTargetItemObjectReference(c, e.Index, e.OldValue) {
		l.unregisterAllFrom(old)
		l.g.UnlinkFromBase(old)
	}
	if e.Type != graph.CollectionRemove && value.IsReference(e.NewValue) {
		if t := c.IndexedTarget(e.Index); t != nil && l.g.shouldVisitTargetItem(c.ObjectNode, e.Index) {
			l.registerAll(t)
		}
	}
	l.g.assetItemChanged(c, e)
}

func (g *PropertyGraph) assetContentChanging(m *MemberNode, e *graph.MemberChange) {
	ov := m.ContentOverride()
	g.previousOverrides[m] = ov
	g.Changing.Raise(&MemberChangeEvent{
		Member:           m,
		OldValue:         e.OldValue,
		NewValue:         e.NewValue,
		PreviousOverride: ov,
		NewOverride:      ov,
	})
}

func (g *PropertyGraph) assetContentChanged(m *MemberNode, e *graph.MemberChange) {
	prev := g.previousOverrides[m]
	delete(g.previousOverrides, m)
	ov := m.ContentOverride()
	if m.ResettingOverride() {
		ov &^= OverrideNew
	}
	g.LinkToBase(m, m.BaseNode())

	ev := &MemberChangeEvent{
		Member:           m,
		OldValue:         e.OldValue,
		NewValue:         e.NewValue,
		PreviousOverride: prev,
		NewOverride:      ov,
	}
	g.hooks.onContentChanged(ev)
	g.Changed.Raise(ev)
}

func (g *PropertyGraph) assetItemChanging(c *ObjectNode, e *graph.ItemChange) {
	var prev OverrideType
	if e.Type != graph.CollectionAdd {
		prev = c.ItemOverride(e.Index)
	}
	g.previousOverrides[c] = prev
	var id itemid.ID
	if e.Type != graph.CollectionAdd {
		id = c.IndexToID(e.Index)
	}
	if e.Type == graph.CollectionRemove {
		g.removedItemIDs[c] = id
	}
	g.hooks.onItemChanging(c, e)
	g.ItemChanging.Raise(&ItemChangeEvent{
		Collection:       c,
		Type:             e.Type,
		Index:            e.Index,
		OldValue:         e.OldValue,
		NewValue:         e.NewValue,
		ItemID:           id,
		PreviousOverride: prev,
		NewOverride:      prev,
	})
}

func (g *PropertyGraph) assetItemChanged(c *ObjectNode, e *graph.ItemChange) {
	prev := g.previousOverrides[c]
	delete(g.previousOverrides, c)

	var ov OverrideType
	id := c.IndexToID(e.Index)
	if e.Type == graph.CollectionRemove {
		id = g.removedItemIDs[c]
		delete(g.removedItemIDs, c)
		// A removal overrides whenever the collection has a base, even if
		// the base never had the item.
		if c.BaseNode() != nil && !g.updatingFromBase {
			ov = OverrideNew
		}
	} else {
		ov = c.ItemOverride(e.Index)
	}
	if c.ResettingOverride() {
		ov &^= OverrideNew
	}
	g.LinkToBase(c, c.BaseNode())

	ev := &ItemChangeEvent{
		Collection:       c,
		Type:             e.Type,
		Index:            e.Index,
		OldValue:         e.OldValue,
		NewValue:         e.NewValue,
		ItemID:           id,
		PreviousOverride: prev,
		NewOverride:      ov,
	}
	g.hooks.onItemChanged(ev)
	g.ItemChanged.Raise(ev)
}
