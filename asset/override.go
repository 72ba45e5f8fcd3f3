package asset

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"assetgraph/graph"
)

// OverrideType records whether a value is inherited from the base or
// authored locally. Flags combine.
type OverrideType uint8

const (
	// OverrideBase marks an inherited, unmodified value.
	OverrideBase OverrideType = 0
	// OverrideNew marks a value authored locally.
	OverrideNew OverrideType = 1 << 0
	// OverrideSealed marks a value that assets deriving from this one
	// cannot override.
	OverrideSealed OverrideType = 1 << 1
)

// IsNew reports whether the New flag is set.
func (o OverrideType) IsNew() bool { return o&OverrideNew != 0 }

// IsSealed reports whether the Sealed flag is set.
func (o OverrideType) IsSealed() bool { return o&OverrideSealed != 0 }

func (o OverrideType) String() string {
	switch o {
	case OverrideBase:
		return "Base"
	case OverrideNew:
		return "New"
	case OverrideSealed:
		return "Sealed"
	case OverrideNew | OverrideSealed:
		return "New|Sealed"
	}
	return fmt.Sprintf("OverrideType(%d)", uint8(o))
}

// ParseOverrideType parses the text form produced by String.
func ParseOverrideType(s string) (OverrideType, error) {
	var o OverrideType
	for _, part := range strings.Split(s, "|") {
		switch strings.TrimSpace(part) {
		case "Base":
		case "New":
			o |= OverrideNew
		case "Sealed":
			o |= OverrideSealed
		default:
			return OverrideBase, fmt.Errorf("unknown override type %q", s)
		}
	}
	return o, nil
}

func (o OverrideType) MarshalYAML() (interface{}, error) {
	return o.String(), nil
}

func (o *OverrideType) UnmarshalYAML(n *yaml.Node) error {
	parsed, err := ParseOverrideType(n.Value)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// OverrideTarget tells which part of a node an override applies to.
type OverrideTarget int

const (
	TargetContent OverrideTarget = iota
	TargetItem
	TargetKey
)

func (t OverrideTarget) String() string {
	switch t {
	case TargetContent:
		return "content"
	case TargetItem:
		return "item"
	case TargetKey:
		return "key"
	}
	return "unknown"
}

// NodeOverride is an override removed by ClearAllOverrides, kept so that
// RestoreOverrides can put it back.
type NodeOverride struct {
	Node   Node
	Index  graph.Index
	Target OverrideTarget
}
