package asset

import (
	"fmt"

	"github.com/google/uuid"

	"assetgraph/graph"
	"assetgraph/value"
)

const (
	// OwnerPartContent is the node content key holding the part design a
	// node belongs to.
	OwnerPartContent = "OwnerPart"

	// PartsMember is the field of a composite asset's root holding its
	// part designs.
	PartsMember = "Parts"
	// PartDesignType is the type of a part design object. Its fields are
	// Part, the identifiable part itself, and Base, nil or a BasePart.
	PartDesignType = "PartDesign"
	// BasePartType is the type of the object linking a part to the part of
	// another asset it was instantiated from.
	BasePartType = "BasePart"
)

// PartBase links a part to the part it was instantiated from. InstanceID
// groups the parts created together from one base asset.
type PartBase struct {
	BasePartAsset value.ContentRef
	BasePartID    uuid.UUID
	InstanceID    uuid.UUID
}

// NewPartDesign wraps a part into a part design. base may be nil.
func NewPartDesign(part *value.Object, base *PartBase) *value.Object {
	d := value.NewObject(PartDesignType).Set("Part", part)
	if base == nil {
		return d.Set("Base", nil)
	}
	return d.Set("Base", value.NewObject(BasePartType).
		Set("BasePartAsset", base.BasePartAsset).
		Set("BasePartID", base.BasePartID.String()).
		Set("InstanceID", base.InstanceID.String()))
}

func partOf(design *value.Object) *value.Object {
	p, _ := design.Get("Part").(*value.Object)
	return p
}

func partBaseOf(design *value.Object) (PartBase, bool) {
	b, ok := design.Get("Base").(*value.Object)
	if !ok || b == nil {
		return PartBase{}, false
	}
	asset, _ := b.Get("BasePartAsset").(value.ContentRef)
	partID, err := parseUUIDField(b, "BasePartID")
	if err != nil {
		return PartBase{}, false
	}
	instanceID, err := parseUUIDField(b, "InstanceID")
	if err != nil {
		return PartBase{}, false
	}
	return PartBase{BasePartAsset: asset, BasePartID: partID, InstanceID: instanceID}, true
}

func parseUUIDField(o *value.Object, name string) (uuid.UUID, error) {
	switch v := o.Get(name).(type) {
	case uuid.UUID:
		return v, nil
	case string:
		return uuid.Parse(v)
	}
	return uuid.Nil, fmt.Errorf("field %s is not an id", name)
}

type partKey struct {
	basePart uuid.UUID
	instance uuid.UUID
}

// CompositeGraph is the property graph of an asset made of parts, some of
// which are instances of the parts of other assets. Each part is linked to
// the part it was instantiated from, object references are resolved within
// the same instance, and parts added to or removed from a base asset are
// added to or removed from every instance of it.
type CompositeGraph struct {
	*PropertyGraph

	deletedParts map[partKey]bool
	baseParts    map[uuid.UUID]func()
}

func newCompositeGraph(c *Container, a *Asset, def Definition) (*CompositeGraph, error) {
	var cg *CompositeGraph
	_, err := newPropertyGraph(c, a, def, func(g *PropertyGraph) hooks {
		cg = &CompositeGraph{
			PropertyGraph: g,
			deletedParts:  make(map[partKey]bool),
			baseParts:     make(map[uuid.UUID]func()),
		}
		return cg
	})
	if err != nil {
		return nil, err
	}
	for _, d := range cg.Parts() {
		cg.attachOwnerPart(d)
	}
	return cg, nil
}

func (cg *CompositeGraph) partsNode() *ObjectNode {
	m := cg.root.Member(PartsMember)
	if m == nil {
		return nil
	}
	return m.Target()
}

// Parts returns the part designs of the asset.
func (cg *CompositeGraph) Parts() []*value.Object {
	parts := cg.partsNode()
	if parts == nil {
		return nil
	}
	var out []*value.Object
	for _, idx := range parts.Indices() {
		if d, ok := parts.RetrieveAt(idx).(*value.Object); ok && d != nil && d.Type == PartDesignType {
			out = append(out, d)
		}
	}
	return out
}

// Design returns the part design holding the part with the given id.
func (cg *CompositeGraph) Design(partID uuid.UUID) *value.Object {
	for _, d := range cg.Parts() {
		if p := partOf(d); p != nil && p.ID == partID {
			return d
		}
	}
	return nil
}

// attachOwnerPart records design as the owner of every node under it.
func (cg *CompositeGraph) attachOwnerPart(design *value.Object) {
	n := cg.container.nodes.GetOrCreateNode(design)
	cg.newVisitor(func(x Node) { x.SetContent(OwnerPartContent, design) }).Visit(n.graphNode())
}

func (cg *CompositeGraph) findTarget(source, target Node) Node {
	switch s := source.(type) {
	case *ObjectNode:
		obj, ok := s.Retrieve().(*value.Object)
		if !ok || obj == nil {
			return target
		}
		if obj.Type == PartDesignType {
			if d := cg.baseDesign(obj); d != nil {
				return cg.container.nodes.GetOrCreateNode(d)
			}
			// Parts without a base part follow the archetype structurally.
			return target
		}
		if !obj.IsIdentifiable() {
			return target
		}
		design := cg.Design(obj.ID)
		if design == nil {
			return target
		}
		if d := cg.baseDesign(design); d != nil {
			return cg.container.nodes.GetOrCreateNode(partOf(d))
		}
		return target
	case *MemberNode:
		// The link to the base part is local information, never inherited.
		if s.Name() == "Base" && value.TypeName(s.Parent().Retrieve()) == PartDesignType {
			return nil
		}
	}
	return target
}

// baseDesign returns the part design a design was instantiated from, or nil.
func (cg *CompositeGraph) baseDesign(design *value.Object) *value.Object {
	info, ok := partBaseOf(design)
	if !ok {
		return nil
	}
	bg := cg.container.TryGetGraph(info.BasePartAsset.ID)
	if bg == nil || bg.Composite() == nil {
		return nil
	}
	return bg.Composite().Design(info.BasePartID)
}

func (cg *CompositeGraph) canUpdate(*ObjectNode, graph.ChangeType, graph.Index, any) bool {
	return true
}

func (cg *CompositeGraph) newRegistry() BaseToDerivedRegistry { return NewCompositeRegistry(cg.PropertyGraph) }

func (cg *CompositeGraph) onContentChanged(e *MemberChangeEvent) {
	if cg.definition.IsMemberTargetObjectReference(e.Member, e.NewValue) {
		return
	}
	cg.adoptIntoPart(e.Member, e.Member.Target())
}

// adoptIntoPart tags a value newly stored under a part with the part's
// design and relinks it so that it resolves references within its instance.
func (cg *CompositeGraph) adoptIntoPart(owner Node, target *ObjectNode) {
	design, ok := owner.Content(OwnerPartContent).(*value.Object)
	if !ok || target == nil {
		return
	}
	if target.Content(OwnerPartContent) == design {
		return
	}
	cg.newVisitor(func(x Node) { x.SetContent(OwnerPartContent, design) }).Visit(target.graphNode())
	cg.LinkToBase(owner, owner.BaseNode())
}

func (cg *CompositeGraph) onItemChanging(c *ObjectNode, e *graph.ItemChange) {
	if e.Type != graph.CollectionAdd || c != cg.partsNode() {
		return
	}
	if d, ok := e.NewValue.(*value.Object); ok && d != nil && d.Type == PartDesignType {
		cg.attachOwnerPart(d)
	}
}

func (cg *CompositeGraph) onItemChanged(e *ItemChangeEvent) {
	if e.Collection != cg.partsNode() {
		if e.Type != graph.CollectionRemove && !cg.definition.IsTargetItemObjectReference(e.Collection, e.Index, e.NewValue) {
			cg.adoptIntoPart(e.Collection, e.Collection.IndexedTarget(e.Index))
		}
		return
	}
	switch e.Type {
	case graph.CollectionAdd:
		d, ok := e.NewValue.(*value.Object)
		if !ok || d == nil {
			return
		}
		if info, ok := partBaseOf(d); ok {
			delete(cg.deletedParts, partKey{info.BasePartID, info.InstanceID})
			cg.followBaseAsset(info.BasePartAsset.ID)
		}
	case graph.CollectionRemove:
		d, ok := e.OldValue.(*value.Object)
		if !ok || d == nil || cg.updatingFromBase {
			return
		}
		if info, ok := partBaseOf(d); ok {
			cg.deletedParts[partKey{info.BasePartID, info.InstanceID}] = true
		}
	}
}

func (cg *CompositeGraph) finalizeInitialization() error {
	for _, d := range cg.Parts() {
		if info, ok := partBaseOf(d); ok {
			cg.followBaseAsset(info.BasePartAsset.ID)
		}
	}
	return nil
}

func (cg *CompositeGraph) dispose() {
	for id, cancel := range cg.baseParts {
		cancel()
		delete(cg.baseParts, id)
	}
}

// followBaseAsset subscribes to part additions and removals in a base asset.
func (cg *CompositeGraph) followBaseAsset(id uuid.UUID) {
	if _, ok := cg.baseParts[id]; ok {
		return
	}
	bg := cg.container.TryGetGraph(id)
	if bg == nil || bg.Composite() == nil {
		cg.container.logger.Printf("asset %s: base part asset %s not found", cg.asset.Location, id)
		return
	}
	parts := bg.Composite().partsNode()
	if parts == nil {
		return
	}
	cg.baseParts[id] = parts.ItemChanged.Subscribe(func(e *graph.ItemChange) {
		cg.onBasePartsChanged(bg.Composite(), e)
	})
}

// IsPartDeleted reports whether the instance of a base part was removed
// locally, which keeps it from coming back when the base changes.
func (cg *CompositeGraph) IsPartDeleted(basePartID, instanceID uuid.UUID) bool {
	return cg.deletedParts[partKey{basePartID, instanceID}]
}

func (cg *CompositeGraph) onBasePartsChanged(base *CompositeGraph, e *graph.ItemChange) {
	if !cg.container.PropagateChangesFromBase {
		return
	}
	var err error
	switch e.Type {
	case graph.CollectionAdd:
		if d, ok := e.NewValue.(*value.Object); ok && d != nil {
			err = cg.basePartAdded(base, d)
		}
	case graph.CollectionRemove:
		if d, ok := e.OldValue.(*value.Object); ok && d != nil {
			err = cg.basePartRemoved(base, d)
		}
	}
	if err != nil {
		cg.container.logger.Printf("asset %s: propagate parts of %s: %v", cg.asset.Location, base.asset.Location, err)
	}
}

// instancesOf returns the instance ids of the parts instantiated from a
// base asset, in order of first appearance.
func (cg *CompositeGraph) instancesOf(baseAsset uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, d := range cg.Parts() {
		info, ok := partBaseOf(d)
		if !ok || info.BasePartAsset.ID != baseAsset || seen[info.InstanceID] {
			continue
		}
		seen[info.InstanceID] = true
		out = append(out, info.InstanceID)
	}
	return out
}

func (cg *CompositeGraph) hasInstancePart(key partKey) bool {
	for _, d := range cg.Parts() {
		if info, ok := partBaseOf(d); ok && info.BasePartID == key.basePart && info.InstanceID == key.instance {
			return true
		}
	}
	return false
}

func (cg *CompositeGraph) basePartAdded(base *CompositeGraph, baseDesign *value.Object) error {
	basePart := partOf(baseDesign)
	if basePart == nil {
		return nil
	}
	parts := cg.partsNode()
	if parts == nil {
		return nil
	}
	ref := value.ContentRef{ID: base.asset.ID, URL: base.asset.Location}

	prev := cg.updatingFromBase
	cg.updatingFromBase = true
	defer func() { cg.updatingFromBase = prev }()

	for _, instance := range cg.instancesOf(base.asset.ID) {
		key := partKey{basePart.ID, instance}
		if cg.deletedParts[key] || cg.hasInstancePart(key) {
			continue
		}
		part, _ := CloneValueFromBase(basePart).(*value.Object)
		design := NewPartDesign(part, &PartBase{BasePartAsset: ref, BasePartID: basePart.ID, InstanceID: instance})
		if err := parts.Add(design, graph.EmptyIndex); err != nil {
			return err
		}
		if err := cg.reconcileWithBase(cg.container.nodes.GetOrCreateNode(design), nil); err != nil {
			return err
		}
	}
	return nil
}

func (cg *CompositeGraph) basePartRemoved(base *CompositeGraph, baseDesign *value.Object) error {
	basePart := partOf(baseDesign)
	if basePart == nil {
		return nil
	}
	parts := cg.partsNode()
	if parts == nil {
		return nil
	}

	prev := cg.updatingFromBase
	cg.updatingFromBase = true
	defer func() { cg.updatingFromBase = prev }()

	var removed []uuid.UUID
	indices := parts.Indices()
	for i := len(indices) - 1; i >= 0; i-- {
		d, ok := parts.RetrieveAt(indices[i]).(*value.Object)
		if !ok || d == nil {
			continue
		}
		info, ok := partBaseOf(d)
		if !ok || info.BasePartAsset.ID != base.asset.ID || info.BasePartID != basePart.ID {
			continue
		}
		if p := partOf(d); p != nil {
			removed = append(removed, p.ID)
		}
		if err := parts.Remove(indices[i]); err != nil {
			return err
		}
	}
	return cg.ClearReferencesToObjects(removed)
}

// CreatePartInstances copies every part of base into new part designs
// sharing instanceID. References between the copied parts point at the
// copies. The designs are returned, not added; see AddParts.
func (cg *CompositeGraph) CreatePartInstances(base *PropertyGraph, instanceID uuid.UUID) ([]*value.Object, error) {
	bc := base.Composite()
	if bc == nil {
		return nil, fmt.Errorf("create part instances of %s: %w: not a composite asset", base.asset.Location, ErrInvalidArgument)
	}
	if instanceID == uuid.Nil {
		instanceID = uuid.New()
	}
	designs := bc.Parts()
	originals := make([]any, 0, len(designs))
	for _, d := range designs {
		if p := partOf(d); p != nil {
			originals = append(originals, p)
		}
	}
	cloned, _ := value.CloneWithNewIDs(value.NewPlainList(originals...))
	ref := value.ContentRef{ID: base.asset.ID, URL: base.asset.Location}
	out := make([]*value.Object, 0, len(originals))
	for i, c := range cloned.(*value.List).Items() {
		part := c.(*value.Object)
		orig := originals[i].(*value.Object)
		out = append(out, NewPartDesign(part, &PartBase{BasePartAsset: ref, BasePartID: orig.ID, InstanceID: instanceID}))
	}
	return out, nil
}

// AddParts appends part designs to the asset as a local edit.
func (cg *CompositeGraph) AddParts(designs ...*value.Object) error {
	parts := cg.partsNode()
	if parts == nil {
		return fmt.Errorf("add parts to %s: %w: no %s member", cg.asset.Location, ErrInvalidArgument, PartsMember)
	}
	for _, d := range designs {
		if err := parts.Add(d, graph.EmptyIndex); err != nil {
			return err
		}
	}
	return nil
}

// RemovePart removes the part with the given id as a local edit.
func (cg *CompositeGraph) RemovePart(partID uuid.UUID) error {
	parts := cg.partsNode()
	if parts == nil {
		return fmt.Errorf("remove part from %s: %w: no %s member", cg.asset.Location, ErrInvalidArgument, PartsMember)
	}
	for _, idx := range parts.Indices() {
		d, ok := parts.RetrieveAt(idx).(*value.Object)
		if !ok || d == nil {
			continue
		}
		if p := partOf(d); p != nil && p.ID == partID {
			if err := parts.Remove(idx); err != nil {
				return err
			}
			return cg.ClearReferencesToObjects([]uuid.UUID{partID})
		}
	}
	return fmt.Errorf("remove part %s: %w", partID, ErrInvalidArgument)
}
