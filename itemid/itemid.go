// Package itemid provides stable identities for the items of identified
// collections and dictionaries, independent of their position.
package itemid

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// ID identifies one item of a collection. The zero value is Empty and
// denotes a missing or corrupted identity.
type ID uuid.UUID

// Empty is the zero ID.
var Empty ID

// New returns a fresh random ID.
func New() ID {
	return ID(uuid.New())
}

// Parse parses the canonical textual form of an ID.
func Parse(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Empty, fmt.Errorf("parsing item id %q: %w", s, err)
	}
	return ID(u), nil
}

// MustParse is like Parse but panics on malformed input.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// FromInt builds a deterministic ID from an integer. Useful for fixtures
// and tests where ids must be predictable.
func FromInt(n int) ID {
	var id ID
	binary.LittleEndian.PutUint32(id[:4], uint32(n))
	return id
}

// IsEmpty reports whether the ID is the zero ID.
func (id ID) IsEmpty() bool {
	return id == Empty
}

func (id ID) String() string {
	return uuid.UUID(id).String()
}
