package asset

import (
	"fmt"

	"github.com/google/uuid"

	"assetgraph/value"
)

// Kind selects the property graph variant created for an asset type.
type Kind int

const (
	KindPlain Kind = iota
	KindComposite
)

func (k Kind) String() string {
	if k == KindComposite {
		return "composite"
	}
	return "plain"
}

// Entry is the registration of an asset type.
type Entry struct {
	Kind       Kind
	Definition Definition
}

// Registry maps asset types, the Type of an asset's root object, to the
// graph variant and reference definition used for them. Unregistered types
// get a plain graph with DefaultDefinition.
type Registry struct {
	entries map[string]Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds an asset type. Each type can be registered once.
func (r *Registry) Register(assetType string, e Entry) error {
	if _, ok := r.entries[assetType]; ok {
		return fmt.Errorf("%w: asset type %q", ErrConflictingRegistration, assetType)
	}
	if e.Definition == nil {
		e.Definition = DefaultDefinition{}
	}
	r.entries[assetType] = e
	return nil
}

// Lookup returns the entry of an asset type.
func (r *Registry) Lookup(assetType string) Entry {
	if e, ok := r.entries[assetType]; ok {
		return e
	}
	return Entry{Kind: KindPlain, Definition: DefaultDefinition{}}
}

// BaseToDerivedRegistry maps base nodes to the derived nodes linked to them,
// so that object references copied from the base can be redirected to the
// derived counterpart of their target.
type BaseToDerivedRegistry interface {
	RegisterBaseToDerived(base, derived Node)
	UnregisterBaseToDerived(base, derived Node)
	// ResolveFromBase returns the derived counterpart of baseObject as seen
	// from derivedReferencer, or nil if there is none.
	ResolveFromBase(baseObject any, derivedReferencer Node) (any, error)
	// Len returns the number of registered pairs.
	Len() int
}

type baseToDerivedRegistry struct {
	g     *PropertyGraph
	pairs map[Node]Node
}

// NewBaseToDerivedRegistry returns the registry used by plain graphs.
func NewBaseToDerivedRegistry(g *PropertyGraph) BaseToDerivedRegistry {
	return newBaseToDerived(g)
}

func newBaseToDerived(g *PropertyGraph) *baseToDerivedRegistry {
	return &baseToDerivedRegistry{g: g, pairs: make(map[Node]Node)}
}

func (r *baseToDerivedRegistry) Len() int { return len(r.pairs) }

func (r *baseToDerivedRegistry) RegisterBaseToDerived(base, derived Node) {
	r.each(base, derived, func(b, d Node) { r.pairs[b] = d })
}

func (r *baseToDerivedRegistry) UnregisterBaseToDerived(base, derived Node) {
	r.each(base, derived, func(b, d Node) {
		if r.pairs[b] == d {
			delete(r.pairs, b)
		}
	})
}

// each calls fn for every pair of nodes that linking base to derived makes
// resolvable: the nodes themselves when they hold an identifiable object, a
// member's owned target, and the owned items of identified collections
// matched by item id.
func (r *baseToDerivedRegistry) each(base, derived Node, fn func(b, d Node)) {
	if base == nil || derived == nil {
		return
	}
	def := r.g.definition
	if v := base.Retrieve(); identifiable(v) {
		fn(base, derived)
		bm, ok1 := base.(*MemberNode)
		dm, ok2 := derived.(*MemberNode)
		if ok1 && ok2 && !def.IsMemberTargetObjectReference(bm, v) {
			if bt, dt := bm.Target(), dm.Target(); bt != nil && dt != nil {
				fn(bt, dt)
			}
		}
	}

	bo, ok1 := base.(*ObjectNode)
	do, ok2 := derived.(*ObjectNode)
	if !ok1 || !ok2 || !bo.HasItemIDs() || !do.HasItemIDs() {
		return
	}
	for _, idx := range do.Indices() {
		id, ok := do.TryIndexToID(idx)
		if !ok {
			continue
		}
		bidx, ok := bo.TryIDToIndex(id)
		if !ok {
			continue
		}
		bv := bo.RetrieveAt(bidx)
		if !identifiable(bv) || def.IsTargetItemObjectReference(bo, bidx, bv) {
			continue
		}
		if bt, dt := bo.IndexedTarget(bidx), do.IndexedTarget(idx); bt != nil && dt != nil {
			fn(bt, dt)
		}
	}
}

func (r *baseToDerivedRegistry) ResolveFromBase(baseObject any, derivedReferencer Node) (any, error) {
	if derivedReferencer == nil {
		return nil, fmt.Errorf("resolve from base: %w", ErrNilArgument)
	}
	if baseObject == nil {
		return nil, nil
	}
	bn := r.g.container.nodes.GetNode(baseObject)
	if bn == nil {
		return nil, nil
	}
	d, ok := r.pairs[bn]
	if !ok {
		return nil, nil
	}
	v := d.Retrieve()
	if !identifiable(v) {
		return nil, nil
	}
	return v, nil
}

// compositeRegistry keeps one base-to-derived map per part instance, so that
// a reference inside one instance of a base asset resolves to the part of
// that same instance.
type compositeRegistry struct {
	g         *PropertyGraph
	instances map[uuid.UUID]*baseToDerivedRegistry
}

// NewCompositeRegistry returns the registry used by composite graphs.
func NewCompositeRegistry(g *PropertyGraph) BaseToDerivedRegistry {
	return &compositeRegistry{g: g, instances: make(map[uuid.UUID]*baseToDerivedRegistry)}
}

func (r *compositeRegistry) instance(derived Node, create bool) *baseToDerivedRegistry {
	id := instanceOf(derived)
	reg, ok := r.instances[id]
	if !ok && create {
		reg = newBaseToDerived(r.g)
		r.instances[id] = reg
	}
	return reg
}

func (r *compositeRegistry) RegisterBaseToDerived(base, derived Node) {
	if derived == nil {
		return
	}
	r.instance(derived, true).RegisterBaseToDerived(base, derived)
}

func (r *compositeRegistry) UnregisterBaseToDerived(base, derived Node) {
	if derived == nil {
		return
	}
	if reg := r.instance(derived, false); reg != nil {
		reg.UnregisterBaseToDerived(base, derived)
	}
}

func (r *compositeRegistry) ResolveFromBase(baseObject any, derivedReferencer Node) (any, error) {
	if derivedReferencer == nil {
		return nil, fmt.Errorf("resolve from base: %w", ErrNilArgument)
	}
	reg := r.instance(derivedReferencer, false)
	if reg == nil {
		return nil, nil
	}
	return reg.ResolveFromBase(baseObject, derivedReferencer)
}

func (r *compositeRegistry) Len() int {
	n := 0
	for _, reg := range r.instances {
		n += reg.Len()
	}
	return n
}

// instanceOf returns the instance id of the part owning a node, or uuid.Nil
// for nodes outside base-linked parts.
func instanceOf(n Node) uuid.UUID {
	design, ok := n.Content(OwnerPartContent).(*value.Object)
	if !ok {
		return uuid.Nil
	}
	info, ok := partBaseOf(design)
	if !ok {
		return uuid.Nil
	}
	return info.InstanceID
}
