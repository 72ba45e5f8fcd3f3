package asset

import (
	"fmt"

	"github.com/google/uuid"

	"assetgraph/graph"
	"assetgraph/itemid"
	"assetgraph/value"
)

// MemberChangeEvent reports a local change of a member value together with
// the override state before and after it.
type MemberChangeEvent struct {
	Member           *MemberNode
	OldValue         any
	NewValue         any
	PreviousOverride OverrideType
	NewOverride      OverrideType
}

// ItemChangeEvent reports a local change of a collection item.
type ItemChangeEvent struct {
	Collection       *ObjectNode
	Type             graph.ChangeType
	Index            graph.Index
	OldValue         any
	NewValue         any
	ItemID           itemid.ID
	PreviousOverride OverrideType
	NewOverride      OverrideType
}

// BaseChangeEvent reports that a node was updated after a change in its
// base.
type BaseChangeEvent struct {
	Node   Node
	Change graph.Change
}

// hooks are the points where graph variants change the default behavior.
type hooks interface {
	findTarget(source, target Node) Node
	canUpdate(node *ObjectNode, change graph.ChangeType, index graph.Index, v any) bool
	newRegistry() BaseToDerivedRegistry
	onContentChanged(e *MemberChangeEvent)
	onItemChanging(c *ObjectNode, e *graph.ItemChange)
	onItemChanged(e *ItemChangeEvent)
	finalizeInitialization() error
	dispose()
}

type plainHooks struct{ g *PropertyGraph }

func (plainHooks) findTarget(_, target Node) Node { return target }

func (plainHooks) canUpdate(*ObjectNode, graph.ChangeType, graph.Index, any) bool { return true }

func (h plainHooks) newRegistry() BaseToDerivedRegistry { return NewBaseToDerivedRegistry(h.g) }

func (plainHooks) onContentChanged(*MemberChangeEvent) {}

func (plainHooks) onItemChanging(*ObjectNode, *graph.ItemChange) {}

func (plainHooks) onItemChanged(*ItemChangeEvent) {}

func (plainHooks) finalizeInitialization() error { return nil }

func (plainHooks) dispose() {}

// PropertyGraph manages one asset: it links the asset's nodes to those of
// its archetype, keeps override state up to date as the asset is edited,
// and reconciles the asset with its archetype when the archetype changes.
type PropertyGraph struct {
	container  *Container
	asset      *Asset
	definition Definition
	hooks      hooks
	registry   BaseToDerivedRegistry
	root       *ObjectNode
	archetype  *PropertyGraph
	listener   *changeListener

	initialized      bool
	initializing     bool
	updatingFromBase bool

	previousOverrides map[Node]OverrideType
	removedItemIDs    map[*ObjectNode]itemid.ID
	baseLinks         map[Node]func()

	// Changing and ItemChanging are raised before every change of the
	// asset. Both override fields hold the override in place before the
	// change; ItemID is empty for additions.
	Changing     graph.Event[*MemberChangeEvent]
	ItemChanging graph.Event[*ItemChangeEvent]
	// Changed and ItemChanged are raised after every local change of the
	// asset, once override state has been updated.
	Changed     graph.Event[*MemberChangeEvent]
	ItemChanged graph.Event[*ItemChangeEvent]
	// BaseContentChanged is raised after a base change has been applied.
	BaseContentChanged graph.Event[*BaseChangeEvent]
}

func newPropertyGraph(c *Container, a *Asset, def Definition, mk func(*PropertyGraph) hooks) (*PropertyGraph, error) {
	if def == nil {
		def = DefaultDefinition{}
	}
	g := &PropertyGraph{
		container:         c,
		asset:             a,
		definition:        def,
		previousOverrides: make(map[Node]OverrideType),
		removedItemIDs:    make(map[*ObjectNode]itemid.ID),
		baseLinks:         make(map[Node]func()),
	}
	if mk == nil {
		g.hooks = plainHooks{g}
	} else {
		g.hooks = mk(g)
	}
	g.registry = g.hooks.newRegistry()
	g.root = c.nodes.GetOrCreateNode(a.Root)
	g.listener = newChangeListener(g)
	g.listener.registerAll(g.root)
	if a.Overrides != nil {
		if err := ApplyOverrides(g.root, a.Overrides); err != nil {
			return nil, fmt.Errorf("apply overrides of %s: %w", a.Location, err)
		}
	}
	return g, nil
}

func (g *PropertyGraph) Asset() *Asset { return g.asset }

func (g *PropertyGraph) RootNode() *ObjectNode { return g.root }

func (g *PropertyGraph) Container() *Container { return g.container }

func (g *PropertyGraph) Definition() Definition { return g.definition }

// Archetype returns the graph of the asset's archetype once linked, or nil.
func (g *PropertyGraph) Archetype() *PropertyGraph { return g.archetype }

func (g *PropertyGraph) Registry() BaseToDerivedRegistry { return g.registry }

// UpdatingPropertyFromBase reports whether a base change is being applied.
func (g *PropertyGraph) UpdatingPropertyFromBase() bool { return g.updatingFromBase }

func (g *PropertyGraph) IsInitialized() bool { return g.initialized }

// Composite returns the composite view of the graph, or nil for plain graphs.
func (g *PropertyGraph) Composite() *CompositeGraph {
	cg, _ := g.hooks.(*CompositeGraph)
	return cg
}

// Initialize links the asset to its archetype and reconciles it. It can be
// called once.
func (g *PropertyGraph) Initialize() error {
	if g.initialized || g.initializing {
		return fmt.Errorf("initialize %s: %w", g.asset.Location, ErrAlreadyInitialized)
	}
	g.initializing = true
	defer func() { g.initializing = false }()

	if err := g.RefreshBase(); err != nil {
		return err
	}
	if err := g.ReconcileWithBase(); err != nil {
		return err
	}
	if err := g.hooks.finalizeInitialization(); err != nil {
		return err
	}
	g.initialized = true
	return nil
}

// RefreshBase relinks the whole asset to the current archetype.
func (g *PropertyGraph) RefreshBase() error {
	var base Node
	g.archetype = nil
	if ref := g.asset.Archetype; ref != nil {
		g.archetype = g.container.TryGetGraph(ref.ID)
		if g.archetype == nil {
			return fmt.Errorf("%w: unable to find the base [%s] of asset [%s]", ErrArchetypeNotFound, ref.Location, g.asset.Location)
		}
		base = g.archetype.root
	}
	g.clearAllBaseLinks()
	g.LinkToBase(g.root, base)
	return nil
}

// RefreshBaseNode relinks the subtree of node to base.
func (g *PropertyGraph) RefreshBaseNode(node, base Node) {
	g.UnlinkFromBase(node)
	g.LinkToBase(node, base)
}

// LinkToBase links node and its subtree to base and its subtree.
func (g *PropertyGraph) LinkToBase(node, base Node) {
	if node == nil {
		return
	}
	l := g.linker(g.linkBaseNode)
	l.FindTarget = func(s, t graph.Node) graph.Node {
		return unwrap(g.hooks.findTarget(g.wrap(s), g.wrap(t)))
	}
	l.LinkGraph(node.graphNode(), unwrap(base))
}

// UnlinkFromBase removes the base links of node and its subtree.
func (g *PropertyGraph) UnlinkFromBase(node Node) {
	if node == nil {
		return
	}
	g.linker(func(n, _ Node) { g.unlinkBaseNode(n) }).LinkGraph(node.graphNode(), nil)
}

func (g *PropertyGraph) linker(action func(node, base Node)) *graph.Linker {
	return &graph.Linker{
		LinkAction:              func(s, t graph.Node) { action(g.wrap(s), g.wrap(t)) },
		FindTargetReference:     g.findTargetReference,
		ShouldVisitMemberTarget: g.shouldVisitMemberTarget,
		ShouldVisitTargetItem:   g.shouldVisitTargetItem,
	}
}

func (g *PropertyGraph) wrap(n graph.Node) Node { return g.container.nodes.wrap(n) }

// findTargetReference matches the items of identified collections by item id.
func (g *PropertyGraph) findTargetReference(source, target *graph.ObjectNode, index graph.Index) *graph.ObjectNode {
	s := g.container.nodes.object(source)
	if !s.HasItemIDs() {
		if !target.HasIndex(index) {
			return nil
		}
		return target.IndexedTarget(index)
	}
	id, ok := s.TryIndexToID(index)
	if !ok {
		return nil
	}
	tidx, ok := g.container.nodes.object(target).TryIDToIndex(id)
	if !ok {
		return nil
	}
	return target.IndexedTarget(tidx)
}

func (g *PropertyGraph) shouldVisitMemberTarget(m *graph.MemberNode) bool {
	return !g.definition.IsMemberTargetObjectReference(g.container.nodes.member(m), m.Retrieve())
}

func (g *PropertyGraph) shouldVisitTargetItem(c *graph.ObjectNode, index graph.Index) bool {
	return !g.definition.IsTargetItemObjectReference(g.container.nodes.object(c), index, c.RetrieveAt(index))
}

// newVisitor returns a visitor over the nodes owned by the asset: it does
// not follow object references.
func (g *PropertyGraph) newVisitor(fn func(Node)) *graph.Visitor {
	return &graph.Visitor{
		Visiting:                func(n graph.Node, _ graph.Path) { fn(g.wrap(n)) },
		ShouldVisitMemberTarget: g.shouldVisitMemberTarget,
		ShouldVisitTargetItem:   g.shouldVisitTargetItem,
	}
}

func (g *PropertyGraph) linkBaseNode(node, base Node) {
	s := node.state()
	if s.base != nil && s.base != base {
		g.unlinkBaseNode(node)
	}
	s.graph = g
	s.base = base
	if base == nil {
		return
	}
	g.registry.RegisterBaseToDerived(base, node)
	if _, ok := g.baseLinks[node]; ok {
		return
	}
	var cancel func()
	switch b := base.(type) {
	case *MemberNode:
		cancel = b.ValueChanged.Subscribe(func(e *graph.MemberChange) { g.OnBaseContentChanged(e, node) })
	case *ObjectNode:
		cancel = b.ItemChanged.Subscribe(func(e *graph.ItemChange) { g.OnBaseContentChanged(e, node) })
	}
	g.baseLinks[node] = cancel
}

func (g *PropertyGraph) unlinkBaseNode(node Node) {
	if cancel, ok := g.baseLinks[node]; ok {
		if cancel != nil {
			cancel()
		}
		delete(g.baseLinks, node)
	}
	s := node.state()
	if s.base != nil {
		g.registry.UnregisterBaseToDerived(s.base, node)
		s.base = nil
	}
}

func (g *PropertyGraph) clearAllBaseLinks() {
	for node := range g.baseLinks {
		g.unlinkBaseNode(node)
	}
}

// BaseLinks returns the number of nodes subscribed to a base node.
func (g *PropertyGraph) BaseLinks() int { return len(g.baseLinks) }

// unlinkDerivedOf unlinks every node of this graph whose base lies in the
// subtree of baseRoot.
func (g *PropertyGraph) unlinkDerivedOf(baseRoot *ObjectNode) {
	inSubtree := make(map[Node]bool)
	v := &graph.Visitor{Visiting: func(n graph.Node, _ graph.Path) { inSubtree[g.wrap(n)] = true }}
	v.Visit(baseRoot.graphNode())
	for node := range g.baseLinks {
		if inSubtree[node.BaseNode()] {
			g.unlinkBaseNode(node)
		}
	}
}

// ownedOldValue returns the node of the composite value a base change
// replaced or removed, unless that value was an object reference.
func (g *PropertyGraph) ownedOldValue(e graph.Change) *ObjectNode {
	old, _ := e.Values()
	n := g.container.nodes.GetNode(old)
	if n == nil {
		return nil
	}
	switch c := e.(type) {
	case *graph.MemberChange:
		if g.definition.IsMemberTargetObjectReference(g.container.nodes.member(c.Member), old) {
			return nil
		}
	case *graph.ItemChange:
		if g.definition.IsTargetItemObjectReference(g.container.nodes.object(c.Collection), c.Index, old) {
			return nil
		}
	}
	return n
}

// OnBaseContentChanged applies a change of the base of node to node.
func (g *PropertyGraph) OnBaseContentChanged(e graph.Change, node Node) {
	if !g.container.PropagateChangesFromBase {
		return
	}
	if n := g.ownedOldValue(e); n != nil {
		g.unlinkDerivedOf(n)
	}
	base := node.BaseNode()
	if base == nil {
		g.container.logger.Printf("asset %s: base changed for a node without base", g.asset.Location)
		return
	}

	prev := g.updatingFromBase
	g.updatingFromBase = true
	g.RefreshBaseNode(node, base)
	err := g.reconcileWithBase(node, nil)
	g.updatingFromBase = prev
	if err != nil {
		g.container.logger.Printf("asset %s: reconcile with base: %v", g.asset.Location, err)
	}
	g.BaseContentChanged.Raise(&BaseChangeEvent{Node: node, Change: e})
}

// PrepareForSave fixes item ids and stores override and object reference
// information into the asset.
func (g *PropertyGraph) PrepareForSave(a *Asset) error {
	if a != g.asset {
		return fmt.Errorf("prepare %s for save: %w: asset does not belong to this graph", a.Location, ErrInvalidArgument)
	}
	value.GenerateMissingItemIDs(a.Root)
	for _, fix := range value.FixupItemIDs(a.Root) {
		g.container.logger.Printf("asset %s: %s", a.Location, fix)
	}
	a.Overrides = GenerateOverridesForSerialization(g.root)
	a.ObjectReferences = g.GenerateObjectReferencesForSerialization(g.root)
	return nil
}

// GenerateObjectReferencesForSerialization returns the path and identity of
// every value under root that the definition classifies as an object
// reference.
func (g *PropertyGraph) GenerateObjectReferencesForSerialization(root *ObjectNode) *Metadata[uuid.UUID] {
	refs := NewMetadata[uuid.UUID]()
	walkPaths(root, g.definition, func(n Node, p Path) {
		switch x := n.(type) {
		case *MemberNode:
			v := x.Retrieve()
			if id, ok := value.IdentityOf(v); ok && g.definition.IsMemberTargetObjectReference(x, v) {
				refs.Set(p, id)
			}
		case *ObjectNode:
			for _, idx := range x.Indices() {
				v := x.RetrieveAt(idx)
				if id, ok := value.IdentityOf(v); ok && g.definition.IsTargetItemObjectReference(x, idx, v) {
					refs.Set(itemPath(p, x, idx), id)
				}
			}
		}
	})
	return refs
}

// ClearReferencesToObjects sets to nil every object reference pointing at
// one of ids.
func (g *PropertyGraph) ClearReferencesToObjects(ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	var errs []error
	v := g.newVisitor(func(n Node) {
		switch x := n.(type) {
		case *MemberNode:
			cur := x.Retrieve()
			if id, ok := value.IdentityOf(cur); ok && set[id] && g.definition.IsMemberTargetObjectReference(x, cur) {
				if err := x.Update(nil); err != nil {
					errs = append(errs, err)
				}
			}
		case *ObjectNode:
			for _, idx := range x.Indices() {
				cur := x.RetrieveAt(idx)
				if id, ok := value.IdentityOf(cur); ok && set[id] && g.definition.IsTargetItemObjectReference(x, idx, cur) {
					if err := x.Update(nil, idx); err != nil {
						errs = append(errs, err)
					}
				}
			}
		}
	})
	v.Visit(g.root.graphNode())
	if len(errs) > 0 {
		return fmt.Errorf("clear references in %s: %w", g.asset.Location, errs[0])
	}
	return nil
}

// Dispose removes every subscription the graph holds.
func (g *PropertyGraph) Dispose() {
	g.hooks.dispose()
	g.clearAllBaseLinks()
	g.listener.unregisterAll()
}
