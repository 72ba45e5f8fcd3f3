package graph

// ChangeType is the kind of mutation a change event reports.
type ChangeType int

const (
	ValueChange ChangeType = iota
	CollectionUpdate
	CollectionAdd
	CollectionRemove
)

func (c ChangeType) String() string {
	switch c {
	case ValueChange:
		return "value"
	case CollectionUpdate:
		return "update"
	case CollectionAdd:
		return "add"
	case CollectionRemove:
		return "remove"
	}
	return "unknown"
}

// Change is implemented by MemberChange and ItemChange.
type Change interface {
	Kind() ChangeType
	Values() (oldValue, newValue any)
}

// MemberChange describes a new value written to a member node.
type MemberChange struct {
	Member   *MemberNode
	OldValue any
	NewValue any
}

func (e *MemberChange) Kind() ChangeType { return ValueChange }
func (e *MemberChange) Values() (any, any) { return e.OldValue, e.NewValue }

// ItemChange describes an item updated, added to or removed from a
// collection node.
type ItemChange struct {
	Collection *ObjectNode
	Type       ChangeType
	Index      Index
	OldValue   any
	NewValue   any
}

func (e *ItemChange) Kind() ChangeType { return e.Type }
func (e *ItemChange) Values() (any, any) { return e.OldValue, e.NewValue }

// Event is a synchronous list of handlers. Handlers run in subscription
// order.
type Event[T any] struct {
	next     int
	handlers []handler[T]
}

type handler[T any] struct {
	id int
	fn func(T)
}

// Subscribe registers fn and returns the function that removes it. The
// returned function may be called more than once.
func (e *Event[T]) Subscribe(fn func(T)) func() {
	e.next++
	id := e.next
	e.handlers = append(e.handlers, handler[T]{id: id, fn: fn})
	return func() {
		for i, h := range e.handlers {
			if h.id == id {
				e.handlers = append(e.handlers[:i:i], e.handlers[i+1:]...)
				return
			}
		}
	}
}

// Raise calls every handler subscribed when Raise starts.
func (e *Event[T]) Raise(arg T) {
	snapshot := append([]handler[T](nil), e.handlers...)
	for _, h := range snapshot {
		h.fn(arg)
	}
}

// Len returns the number of subscribed handlers.
func (e *Event[T]) Len() int {
	return len(e.handlers)
}
