package asset

import (
	"assetgraph/graph"
	"assetgraph/itemid"
	"assetgraph/value"
)

// Node is an asset-aware graph node: a *MemberNode or an *ObjectNode that
// carries override state and a link to its counterpart in the base asset.
type Node interface {
	graph.Node
	// BaseNode returns the counterpart of this node in the archetype, or nil.
	BaseNode() Node
	// PropertyGraph returns the graph that last linked this node, or nil.
	PropertyGraph() *PropertyGraph
	// Content returns an attached piece of bookkeeping data.
	Content(key string) any
	// SetContent attaches bookkeeping data to the node. A nil value removes it.
	SetContent(key string, v any)
	// ResettingOverride reports whether reconciliation is writing this node.
	ResettingOverride() bool

	graphNode() graph.Node
	state() *nodeState
}

type nodeState struct {
	nodes     *NodeContainer
	base      Node
	graph     *PropertyGraph
	contents  map[string]any
	resetting bool
}

func (s *nodeState) BaseNode() Node { return s.base }

func (s *nodeState) PropertyGraph() *PropertyGraph { return s.graph }

func (s *nodeState) Content(key string) any { return s.contents[key] }

func (s *nodeState) SetContent(key string, v any) {
	if v == nil {
		delete(s.contents, key)
		return
	}
	if s.contents == nil {
		s.contents = make(map[string]any)
	}
	s.contents[key] = v
}

func (s *nodeState) ResettingOverride() bool { return s.resetting }

func (s *nodeState) state() *nodeState { return s }

// propagating reports whether changes reaching this node should be treated
// as inherited or overriding. Nodes not yet owned by a graph propagate.
func (s *nodeState) propagating() bool {
	return s.graph == nil || s.graph.container.PropagateChangesFromBase
}

func (s *nodeState) updatingFromBase() bool {
	return s.graph != nil && s.graph.updatingFromBase
}

// MemberNode is a field of an object value with a content override.
type MemberNode struct {
	*graph.MemberNode
	nodeState

	override OverrideType
}

func (m *MemberNode) graphNode() graph.Node { return m.MemberNode }

// Parent returns the object node owning the field.
func (m *MemberNode) Parent() *ObjectNode { return m.nodes.object(m.MemberNode.Parent()) }

// Target returns the object node of the field's composite value, or nil.
func (m *MemberNode) Target() *ObjectNode { return m.nodes.object(m.MemberNode.Target()) }

// BaseMember returns the base node as a member node, or nil.
func (m *MemberNode) BaseMember() *MemberNode {
	b, _ := m.base.(*MemberNode)
	return b
}

func (m *MemberNode) ContentOverride() OverrideType { return m.override }

func (m *MemberNode) SetContentOverride(o OverrideType) { m.override = o }

// IsContentOverridden reports whether the field value is authored locally.
func (m *MemberNode) IsContentOverridden() bool { return m.override.IsNew() }

// OverrideContent marks the field value as local or inherited.
func (m *MemberNode) OverrideContent(overridden bool) {
	if overridden {
		m.SetContentOverride(OverrideNew)
		return
	}
	m.SetContentOverride(OverrideBase)
}

func (m *MemberNode) onValueChanged(*graph.MemberChange) {
	if !m.propagating() {
		return
	}
	if m.base != nil && !m.updatingFromBase() && !m.resetting {
		m.OverrideContent(true)
	}
}

// ObjectNode is an object, list or dictionary value. For identified
// collections it tracks overrides per item and per key, keyed by item id.
type ObjectNode struct {
	*graph.ObjectNode
	nodeState

	itemOverrides map[itemid.ID]OverrideType
	keyOverrides  map[itemid.ID]OverrideType
	removing      itemid.ID
}

func (o *ObjectNode) graphNode() graph.Node { return o.ObjectNode }

// BaseObject returns the base node as an object node, or nil.
func (o *ObjectNode) BaseObject() *ObjectNode {
	b, _ := o.base.(*ObjectNode)
	return b
}

// Owner returns the member node the object was last reached through, or nil.
func (o *ObjectNode) Owner() *MemberNode { return o.nodes.member(o.ObjectNode.Owner()) }

func (o *ObjectNode) Member(name string) *MemberNode {
	return o.nodes.member(o.ObjectNode.Member(name))
}

func (o *ObjectNode) Members() []*MemberNode {
	gm := o.ObjectNode.Members()
	out := make([]*MemberNode, len(gm))
	for i, m := range gm {
		out[i] = o.nodes.member(m)
	}
	return out
}

func (o *ObjectNode) IndexedTarget(index graph.Index) *ObjectNode {
	return o.nodes.object(o.ObjectNode.IndexedTarget(index))
}

// HasItemIDs reports whether the node is an identified collection.
func (o *ObjectNode) HasItemIDs() bool { return o.ItemIDs() != nil }

// TryIndexToID returns the item id at index.
func (o *ObjectNode) TryIndexToID(index graph.Index) (itemid.ID, bool) {
	ids := o.ItemIDs()
	if ids == nil || index.IsEmpty() {
		return itemid.Empty, false
	}
	return ids.Get(index.Value())
}

// IndexToID returns the item id at index, or itemid.Empty.
func (o *ObjectNode) IndexToID(index graph.Index) itemid.ID {
	id, _ := o.TryIndexToID(index)
	return id
}

// TryIDToIndex returns the current index of an item id.
func (o *ObjectNode) TryIDToIndex(id itemid.ID) (graph.Index, bool) {
	ids := o.ItemIDs()
	if ids == nil {
		return graph.EmptyIndex, false
	}
	key, ok := ids.KeyOf(id)
	if !ok {
		return graph.EmptyIndex, false
	}
	return graph.NewIndex(key), true
}

// IDToIndex returns the current index of an item id, or graph.EmptyIndex.
func (o *ObjectNode) IDToIndex(id itemid.ID) graph.Index {
	idx, _ := o.TryIDToIndex(id)
	return idx
}

// HasID reports whether an item with id is present.
func (o *ObjectNode) HasID(id itemid.ID) bool {
	_, ok := o.TryIDToIndex(id)
	return ok
}

func (o *ObjectNode) ItemOverride(index graph.Index) OverrideType {
	id, ok := o.TryIndexToID(index)
	if !ok {
		return OverrideBase
	}
	return o.itemOverrides[id]
}

func (o *ObjectNode) KeyOverride(index graph.Index) OverrideType {
	id, ok := o.TryIndexToID(index)
	if !ok {
		return OverrideBase
	}
	return o.keyOverrides[id]
}

func (o *ObjectNode) IsItemOverridden(index graph.Index) bool { return o.ItemOverride(index).IsNew() }

func (o *ObjectNode) IsKeyOverridden(index graph.Index) bool { return o.KeyOverride(index).IsNew() }

// SetItemOverride records the override of the item at index. It does nothing
// for collections without item ids.
func (o *ObjectNode) SetItemOverride(ov OverrideType, index graph.Index) {
	id, ok := o.TryIndexToID(index)
	if !ok {
		return
	}
	o.itemOverrides = setOverride(o.itemOverrides, id, ov)
}

// SetKeyOverride records the override of the dictionary key at index.
func (o *ObjectNode) SetKeyOverride(ov OverrideType, index graph.Index) {
	id, ok := o.TryIndexToID(index)
	if !ok {
		return
	}
	o.keyOverrides = setOverride(o.keyOverrides, id, ov)
}

func (o *ObjectNode) OverrideItem(overridden bool, index graph.Index) {
	o.SetItemOverride(newOrBase(overridden), index)
}

func (o *ObjectNode) OverrideKey(overridden bool, index graph.Index) {
	o.SetKeyOverride(newOrBase(overridden), index)
}

// OverriddenItemIndices returns the indices of items with a New override.
func (o *ObjectNode) OverriddenItemIndices() []graph.Index {
	return o.indicesWhere(o.IsItemOverridden)
}

// OverriddenKeyIndices returns the indices of keys with a New override.
func (o *ObjectNode) OverriddenKeyIndices() []graph.Index {
	return o.indicesWhere(o.IsKeyOverridden)
}

func (o *ObjectNode) indicesWhere(pred func(graph.Index) bool) []graph.Index {
	if !o.HasItemIDs() {
		return nil
	}
	var out []graph.Index
	for _, idx := range o.Indices() {
		if pred(idx) {
			out = append(out, idx)
		}
	}
	return out
}

// IsItemDeleted reports whether id carries a deletion tombstone.
func (o *ObjectNode) IsItemDeleted(id itemid.ID) bool {
	ids := o.ItemIDs()
	return ids != nil && ids.IsDeleted(id)
}

// OverrideDeletedItem adds or removes the deletion tombstone of an item.
func (o *ObjectNode) OverrideDeletedItem(deleted bool, id itemid.ID) {
	ids := o.ItemIDs()
	if ids == nil || id.IsEmpty() {
		return
	}
	if deleted {
		ids.MarkAsDeleted(id)
		return
	}
	ids.UnmarkAsDeleted(id)
}

// DisconnectOverriddenDeletedItem drops a tombstone whose item no longer
// exists in the base. Only the bookkeeping entry goes away; item overrides
// recorded under the id are left untouched.
func (o *ObjectNode) DisconnectOverriddenDeletedItem(id itemid.ID) {
	if ids := o.ItemIDs(); ids != nil {
		ids.UnmarkAsDeleted(id)
	}
}

// Restore inserts an item under a known item id.
func (o *ObjectNode) Restore(v any, index graph.Index, id itemid.ID) error {
	return o.AddWithID(v, index, id)
}

func (o *ObjectNode) onItemChanging(e *graph.ItemChange) {
	if e.Type == graph.CollectionRemove {
		o.removing = o.IndexToID(e.Index)
	}
}

func (o *ObjectNode) onItemChanged(e *graph.ItemChange) {
	if !o.HasItemIDs() {
		return
	}
	base := o.BaseObject()
	overriding := base != nil && !o.updatingFromBase()
	if e.Type == graph.CollectionRemove {
		id := o.removing
		o.removing = itemid.Empty
		delete(o.itemOverrides, id)
		delete(o.keyOverrides, id)
		if overriding && !id.IsEmpty() && base.HasID(id) {
			o.OverrideDeletedItem(true, id)
		}
		return
	}
	if !o.propagating() {
		return
	}
	if overriding && !o.resetting {
		o.OverrideItem(true, e.Index)
	}
}

func setOverride(m map[itemid.ID]OverrideType, id itemid.ID, ov OverrideType) map[itemid.ID]OverrideType {
	if ov == OverrideBase {
		delete(m, id)
		return m
	}
	if m == nil {
		m = make(map[itemid.ID]OverrideType)
	}
	m[id] = ov
	return m
}

func newOrBase(overridden bool) OverrideType {
	if overridden {
		return OverrideNew
	}
	return OverrideBase
}

// NodeContainer wraps the nodes of a graph.Container into asset nodes,
// keeping one asset node per graph node.
type NodeContainer struct {
	graph   *graph.Container
	objects map[*graph.ObjectNode]*ObjectNode
	members map[*graph.MemberNode]*MemberNode
}

func NewNodeContainer() *NodeContainer {
	return &NodeContainer{
		graph:   graph.NewContainer(),
		objects: make(map[*graph.ObjectNode]*ObjectNode),
		members: make(map[*graph.MemberNode]*MemberNode),
	}
}

// GetNode returns the asset node of an existing composite value, or nil.
func (c *NodeContainer) GetNode(v any) *ObjectNode {
	return c.object(c.graph.GetNode(v))
}

// GetOrCreateNode returns the asset node of a composite value, or nil for
// other values.
func (c *NodeContainer) GetOrCreateNode(v any) *ObjectNode {
	return c.object(c.graph.GetOrCreateNode(v))
}

func (c *NodeContainer) object(n *graph.ObjectNode) *ObjectNode {
	if n == nil {
		return nil
	}
	if o, ok := c.objects[n]; ok {
		return o
	}
	o := &ObjectNode{ObjectNode: n, nodeState: nodeState{nodes: c}}
	n.ItemChanging.Subscribe(o.onItemChanging)
	n.ItemChanged.Subscribe(o.onItemChanged)
	c.objects[n] = o
	return o
}

func (c *NodeContainer) member(n *graph.MemberNode) *MemberNode {
	if n == nil {
		return nil
	}
	if m, ok := c.members[n]; ok {
		return m
	}
	m := &MemberNode{MemberNode: n, nodeState: nodeState{nodes: c}}
	n.ValueChanged.Subscribe(m.onValueChanged)
	c.members[n] = m
	return m
}

// wrap converts a graph node into its asset node. It returns an untyped nil
// for a nil node.
func (c *NodeContainer) wrap(n graph.Node) Node {
	switch x := n.(type) {
	case *graph.ObjectNode:
		if x != nil {
			return c.object(x)
		}
	case *graph.MemberNode:
		if x != nil {
			return c.member(x)
		}
	}
	return nil
}

// unwrap returns the graph node of an asset node, or an untyped nil.
func unwrap(n Node) graph.Node {
	if n == nil {
		return nil
	}
	return n.graphNode()
}

// identifiable reports whether v is an identifiable object.
func identifiable(v any) bool {
	_, ok := value.IdentityOf(v)
	return ok
}
