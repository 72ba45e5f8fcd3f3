package graph

import (
	"assetgraph/value"
)

// Container creates object nodes and keeps one node per composite value
// instance, so the same value always yields the same node.
type Container struct {
	nodes map[any]*ObjectNode
}

func NewContainer() *Container {
	return &Container{nodes: make(map[any]*ObjectNode)}
}

// GetNode returns the node already created for v, or nil.
func (c *Container) GetNode(v any) *ObjectNode {
	if !value.IsReference(v) {
		return nil
	}
	return c.nodes[v]
}

// GetOrCreateNode returns the node for v, creating it if needed. It returns
// nil for values that are not composite.
func (c *Container) GetOrCreateNode(v any) *ObjectNode {
	if !value.IsReference(v) {
		return nil
	}
	if n, ok := c.nodes[v]; ok {
		return n
	}
	n := &ObjectNode{container: c, value: v}
	c.nodes[v] = n
	return n
}

// Len returns the number of nodes created so far.
func (c *Container) Len() int {
	return len(c.nodes)
}
