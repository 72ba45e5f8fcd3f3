package graph

import (
	"errors"
	"testing"

	"assetgraph/itemid"
	"assetgraph/value"
)

func simpleObject() *value.Object {
	return value.NewObject("Simple").
		Set("Member1", 3).
		Set("Member2", value.NewObject("Simple").Set("Member1", 0).Set("Member2", nil))
}

func TestVisitorOrderAndPaths(t *testing.T) {
	c := NewContainer()
	root := c.GetOrCreateNode(simpleObject())

	var nodes []Node
	var paths []string
	v := &Visitor{Visiting: func(n Node, p Path) {
		nodes = append(nodes, n)
		paths = append(paths, p.String())
	}}
	v.Visit(root)

	m2 := root.Member("Member2")
	want := []Node{
		root,
		root.Member("Member1"),
		m2,
		m2.Target(),
		m2.Target().Member("Member1"),
		m2.Target().Member("Member2"),
	}
	wantPaths := []string{"", ".Member1", ".Member2", ".Member2->", ".Member2->.Member1", ".Member2->.Member2"}
	if len(nodes) != len(want) {
		t.Fatalf("visited %d nodes, want %d", len(nodes), len(want))
	}
	for i := range want {
		if nodes[i] != want[i] {
			t.Errorf("node %d mismatch", i)
		}
		if paths[i] != wantPaths[i] {
			t.Errorf("path %d = %q, want %q", i, paths[i], wantPaths[i])
		}
	}
}

func TestVisitorStopsOnCycles(t *testing.T) {
	a := value.NewObject("Node")
	b := value.NewObject("Node").Set("Next", a)
	a.Set("Next", b)

	c := NewContainer()
	count := 0
	v := &Visitor{Visiting: func(Node, Path) { count++ }}
	v.Visit(c.GetOrCreateNode(a))
	// a, a.Next, b, b.Next; the walk stops when it gets back to a.
	if count != 4 {
		t.Errorf("visited %d nodes, want 4", count)
	}
}

func TestVisitorSkipsRejectedTargets(t *testing.T) {
	list := value.NewList(value.NewObject("Item"), value.NewObject("Item"))
	root := value.NewObject("Root").Set("Items", list).Set("Ref", value.NewObject("Item"))
	c := NewContainer()
	count := 0
	v := &Visitor{
		SkipRootNode:            true,
		Visiting:                func(Node, Path) { count++ },
		ShouldVisitMemberTarget: func(m *MemberNode) bool { return m.Name() != "Ref" },
		ShouldVisitTargetItem:   func(_ *ObjectNode, idx Index) bool { return idx.Int() == 0 },
	}
	v.Visit(c.GetOrCreateNode(root))
	// Items, Items target, item 0, Ref.
	if count != 4 {
		t.Errorf("visited %d nodes, want 4", count)
	}
}

func TestCollectionOperationsRaiseEvents(t *testing.T) {
	list := value.NewList("a", "b")
	c := NewContainer()
	node := c.GetOrCreateNode(list)

	var changing, changed []ChangeType
	node.ItemChanging.Subscribe(func(e *ItemChange) { changing = append(changing, e.Type) })
	cancel := node.ItemChanged.Subscribe(func(e *ItemChange) { changed = append(changed, e.Type) })

	if err := node.Add("c", EmptyIndex); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := node.AddWithID("z", IntIndex(0), itemid.FromInt(9)); err != nil {
		t.Fatalf("AddWithID: %v", err)
	}
	if err := node.Update("B", IntIndex(2)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := node.Remove(IntIndex(1)); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	cancel()
	cancel()
	if err := node.Remove(IntIndex(0)); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if got := list.Items(); len(got) != 2 || got[0] != "B" || got[1] != "c" {
		t.Errorf("items = %v", got)
	}
	if len(changing) != 5 || len(changed) != 4 {
		t.Errorf("changing=%v changed=%v", changing, changed)
	}
	if node.ItemChanged.Len() != 0 {
		t.Error("handler should be unsubscribed")
	}
}

func TestCollectionErrors(t *testing.T) {
	c := NewContainer()
	dict := c.GetOrCreateNode(value.NewDict().Set("k", 1))
	if err := dict.Add(2, KeyIndex("k")); !errors.Is(err, ErrKeyExists) {
		t.Errorf("duplicate key: got %v", err)
	}
	if err := dict.Remove(KeyIndex("missing")); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("missing key: got %v", err)
	}
	list := c.GetOrCreateNode(value.NewList())
	if err := list.Update(1, IntIndex(3)); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("out of range: got %v", err)
	}
	obj := c.GetOrCreateNode(value.NewObject("X"))
	if err := obj.Add(1, EmptyIndex); !errors.Is(err, ErrNotCollection) {
		t.Errorf("object add: got %v", err)
	}
}

func TestMemberUpdateGeneratesItemIDs(t *testing.T) {
	obj := value.NewObject("X").Set("L", nil)
	c := NewContainer()
	m := c.GetOrCreateNode(obj).Member("L")

	var old, cur any = "unset", "unset"
	m.ValueChanged.Subscribe(func(e *MemberChange) { old, cur = e.OldValue, e.NewValue })

	l := value.NewList("x")
	if err := m.Update(l); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if old != nil || cur != l {
		t.Errorf("event values = %v, %v", old, cur)
	}
	if m.Target() != c.GetNode(l) || m.Target() == nil {
		t.Error("target should be the container node of the new value")
	}
}

func TestLinkerMatchesStructure(t *testing.T) {
	c := NewContainer()
	src := c.GetOrCreateNode(simpleObject())
	dst := c.GetOrCreateNode(value.NewObject("Simple").Set("Member1", 1))

	links := map[Node]Node{}
	l := &Linker{LinkAction: func(s, d Node) { links[s] = d }}
	l.LinkGraph(src, dst)

	if links[src] != dst {
		t.Error("roots should be linked")
	}
	if links[src.Member("Member1")] != dst.Member("Member1") {
		t.Error("Member1 should be linked")
	}
	if links[src.Member("Member2")] != nil {
		t.Error("Member2 has no counterpart")
	}
	inner := src.Member("Member2").Target()
	if d, ok := links[inner]; !ok || d != nil {
		t.Error("inner object should be visited with a nil counterpart")
	}
}
