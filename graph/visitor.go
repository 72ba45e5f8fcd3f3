package graph

import (
	"strings"
)

// PathElementKind tells how a Path step moves from one node to the next.
type PathElementKind int

const (
	// PathMember goes from an object node to one of its member nodes.
	PathMember PathElementKind = iota
	// PathTarget goes from a member node to the object node of its value.
	PathTarget
	// PathIndex goes from a collection node to the object node of an item.
	PathIndex
)

// PathElement is one step of a Path.
type PathElement struct {
	Kind  PathElementKind
	Name  string
	Index Index
}

// Path locates a node relative to the node a traversal started from.
type Path struct {
	Elements []PathElement
}

func (p Path) push(e PathElement) Path {
	elems := make([]PathElement, len(p.Elements), len(p.Elements)+1)
	copy(elems, p.Elements)
	return Path{Elements: append(elems, e)}
}

func (p Path) PushMember(name string) Path { return p.push(PathElement{Kind: PathMember, Name: name}) }

func (p Path) PushTarget() Path { return p.push(PathElement{Kind: PathTarget}) }

func (p Path) PushIndex(index Index) Path { return p.push(PathElement{Kind: PathIndex, Index: index}) }

func (p Path) String() string {
	var b strings.Builder
	for _, e := range p.Elements {
		switch e.Kind {
		case PathMember:
			b.WriteByte('.')
			b.WriteString(e.Name)
		case PathTarget:
			b.WriteString("->")
		case PathIndex:
			b.WriteByte('[')
			b.WriteString(e.Index.String())
			b.WriteByte(']')
		}
	}
	return b.String()
}

// Visitor walks a node graph depth-first: an object node, then each of its
// members followed by the member's target, then the targets of its items in
// index order. Each object node is visited at most once.
type Visitor struct {
	// SkipRootNode suppresses the Visiting call for the starting node.
	SkipRootNode bool
	// Visiting is called for every visited node.
	Visiting func(node Node, path Path)
	// ShouldVisitMemberTarget decides whether to descend into the value of
	// a member. Nil means always.
	ShouldVisitMemberTarget func(member *MemberNode) bool
	// ShouldVisitTargetItem decides whether to descend into a collection
	// item. Nil means always.
	ShouldVisitTargetItem func(collection *ObjectNode, index Index) bool
}

type walk struct {
	*Visitor
	visited map[*ObjectNode]bool
}

// Visit walks the graph starting at root.
func (v *Visitor) Visit(root Node) {
	v.VisitFrom(root, Path{})
}

// VisitFrom walks the graph starting at root, reporting paths relative to
// the given initial path.
func (v *Visitor) VisitFrom(root Node, initial Path) {
	w := &walk{Visitor: v, visited: make(map[*ObjectNode]bool)}
	switch n := root.(type) {
	case *ObjectNode:
		w.visitObject(n, initial, true)
	case *MemberNode:
		w.visitMember(n, initial, true)
	}
}

func (v *Visitor) visiting(node Node, path Path, root bool) {
	if root && v.SkipRootNode {
		return
	}
	if v.Visiting != nil {
		v.Visiting(node, path)
	}
}

func (v *walk) visitObject(node *ObjectNode, path Path, root bool) {
	if v.visited[node] {
		return
	}
	v.visited[node] = true
	v.visiting(node, path, root)
	for _, m := range node.Members() {
		v.visitMember(m, path.PushMember(m.Name()), false)
	}
	for _, idx := range node.Indices() {
		target := node.IndexedTarget(idx)
		if target == nil {
			continue
		}
		if v.ShouldVisitTargetItem != nil && !v.ShouldVisitTargetItem(node, idx) {
			continue
		}
		v.visitObject(target, path.PushIndex(idx), false)
	}
}

func (v *walk) visitMember(member *MemberNode, path Path, root bool) {
	v.visiting(member, path, root)
	target := member.Target()
	if target == nil {
		return
	}
	if v.ShouldVisitMemberTarget != nil && !v.ShouldVisitMemberTarget(member) {
		return
	}
	v.visitObject(target, path.PushTarget(), false)
}
