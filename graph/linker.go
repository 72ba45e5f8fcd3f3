package graph

// Linker walks a source graph and a target graph in parallel and reports
// each source node with its structural counterpart in the target graph, or
// nil when there is none.
type Linker struct {
	// LinkAction receives every visited source node with its counterpart.
	LinkAction func(source, target Node)
	// FindTarget may replace the structural counterpart of a source node.
	// Nil keeps the structural counterpart.
	FindTarget func(source, target Node) Node
	// FindTargetReference returns the counterpart of the item at index of
	// a source collection. Nil matches items by index.
	FindTargetReference func(source, target *ObjectNode, index Index) *ObjectNode
	// ShouldVisitMemberTarget and ShouldVisitTargetItem prune the walk the
	// same way as the Visitor hooks.
	ShouldVisitMemberTarget func(member *MemberNode) bool
	ShouldVisitTargetItem   func(collection *ObjectNode, index Index) bool
}

// LinkGraph links source to target, which may be nil.
func (l *Linker) LinkGraph(source, target Node) {
	l.link(source, target, make(map[*ObjectNode]bool))
}

func (l *Linker) link(source, target Node, visited map[*ObjectNode]bool) {
	if l.FindTarget != nil {
		target = l.FindTarget(source, target)
	}
	switch s := source.(type) {
	case *MemberNode:
		l.LinkAction(s, target)
		st := s.Target()
		if st == nil {
			return
		}
		if l.ShouldVisitMemberTarget != nil && !l.ShouldVisitMemberTarget(s) {
			return
		}
		var tt Node
		if tm, ok := target.(*MemberNode); ok && tm != nil {
			if t := tm.Target(); t != nil {
				tt = t
			}
		}
		l.link(st, tt, visited)
	case *ObjectNode:
		if visited[s] {
			return
		}
		visited[s] = true
		l.LinkAction(s, target)
		to, _ := target.(*ObjectNode)
		for _, m := range s.Members() {
			var tm Node
			if to != nil {
				if x := to.Member(m.Name()); x != nil {
					tm = x
				}
			}
			l.link(m, tm, visited)
		}
		for _, idx := range s.Indices() {
			item := s.IndexedTarget(idx)
			if item == nil {
				continue
			}
			if l.ShouldVisitTargetItem != nil && !l.ShouldVisitTargetItem(s, idx) {
				continue
			}
			var ti Node
			if to != nil {
				if r := l.findTargetReference(s, to, idx); r != nil {
					ti = r
				}
			}
			l.link(item, ti, visited)
		}
	}
}

func (l *Linker) findTargetReference(source, target *ObjectNode, index Index) *ObjectNode {
	if l.FindTargetReference != nil {
		return l.FindTargetReference(source, target, index)
	}
	if !target.HasIndex(index) {
		return nil
	}
	return target.IndexedTarget(index)
}
