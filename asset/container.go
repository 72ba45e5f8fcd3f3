package asset

import (
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"

	"assetgraph/value"
)

// Reference points at another asset by id and location.
type Reference struct {
	ID       uuid.UUID
	Location string
}

// Asset is a unit of content. An asset with an Archetype derives from it and
// inherits every value it does not override.
type Asset struct {
	ID        uuid.UUID
	Location  string
	Archetype *Reference
	Root      *value.Object

	// Overrides and ObjectReferences are the serialized override and
	// reference information, filled by PrepareForSave and consumed when a
	// property graph is created.
	Overrides        *Metadata[OverrideType]
	ObjectReferences *Metadata[uuid.UUID]
}

// Type returns the type of the asset's root object.
func (a *Asset) Type() string {
	if a.Root == nil {
		return ""
	}
	return a.Root.Type
}

// Derive creates an asset deriving from base. The root is copied with fresh
// identities for identifiable objects and the same item ids, so that every
// collection item corresponds to its base item.
func Derive(base *Asset, location string) *Asset {
	root, _ := value.CloneWithNewIDs(base.Root)
	return &Asset{
		ID:        uuid.New(),
		Location:  location,
		Archetype: &Reference{ID: base.ID, Location: base.Location},
		Root:      root.(*value.Object),
	}
}

// Container owns the property graphs of a set of assets and the node
// container they share.
type Container struct {
	// PropagateChangesFromBase enables propagation of base changes to
	// derived assets. When it is false, local edits do not create
	// overrides either.
	PropagateChangesFromBase bool

	nodes    *NodeContainer
	registry *Registry
	graphs   map[uuid.UUID]*PropertyGraph
	logger   *log.Logger
}

// NewContainer creates a container. A nil registry handles every asset as a
// plain asset; a nil logger discards output.
func NewContainer(registry *Registry, logger *log.Logger) *Container {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Container{
		PropagateChangesFromBase: true,
		nodes:                    NewNodeContainer(),
		registry:                 registry,
		graphs:                   make(map[uuid.UUID]*PropertyGraph),
		logger:                   logger,
	}
}

func (c *Container) NodeContainer() *NodeContainer { return c.nodes }

func (c *Container) Logger() *log.Logger { return c.logger }

// TryGetGraph returns the graph of an asset, or nil.
func (c *Container) TryGetGraph(id uuid.UUID) *PropertyGraph {
	return c.graphs[id]
}

// Graphs returns the number of registered graphs.
func (c *Container) Graphs() int { return len(c.graphs) }

// InitializeAsset creates, registers and initializes the property graph of
// an asset. Archetypes must be initialized before the assets deriving from
// them.
func (c *Container) InitializeAsset(a *Asset) (*PropertyGraph, error) {
	g, err := c.CreateGraph(a)
	if err != nil {
		return nil, err
	}
	if err := g.Initialize(); err != nil {
		c.RemoveGraph(a.ID)
		return nil, err
	}
	return g, nil
}

// CreateGraph creates and registers the property graph of an asset without
// initializing it.
func (c *Container) CreateGraph(a *Asset) (*PropertyGraph, error) {
	if a == nil || a.Root == nil {
		return nil, fmt.Errorf("create graph: %w", ErrNilArgument)
	}
	if _, ok := c.graphs[a.ID]; ok {
		return nil, fmt.Errorf("create graph for asset %s: %w", a.ID, ErrAlreadyInitialized)
	}
	entry := c.registry.Lookup(a.Type())
	var g *PropertyGraph
	var err error
	switch entry.Kind {
	case KindComposite:
		var cg *CompositeGraph
		cg, err = newCompositeGraph(c, a, entry.Definition)
		if cg != nil {
			g = cg.PropertyGraph
		}
	default:
		g, err = newPropertyGraph(c, a, entry.Definition, nil)
	}
	if err != nil {
		return nil, err
	}
	c.graphs[a.ID] = g
	return g, nil
}

// RemoveGraph disposes and forgets the graph of an asset.
func (c *Container) RemoveGraph(id uuid.UUID) {
	if g, ok := c.graphs[id]; ok {
		g.Dispose()
		delete(c.graphs, id)
	}
}
