package asset

import (
	"fmt"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"assetgraph/graph"
	"assetgraph/value"
)

// Definition classifies which values of an asset are references to
// identifiable objects living elsewhere in the same asset, as opposed to
// values the asset owns.
type Definition interface {
	// IsMemberTargetObjectReference reports whether v, the value of member,
	// is a reference.
	IsMemberTargetObjectReference(member *MemberNode, v any) bool
	// IsTargetItemObjectReference reports whether v, the item at index of
	// collection, is a reference.
	IsTargetItemObjectReference(collection *ObjectNode, index graph.Index, v any) bool
}

// DefaultDefinition treats every value as owned.
type DefaultDefinition struct{}

func (DefaultDefinition) IsMemberTargetObjectReference(*MemberNode, any) bool { return false }

func (DefaultDefinition) IsTargetItemObjectReference(*ObjectNode, graph.Index, any) bool {
	return false
}

// itemSegment is the last segment of the match key of a collection item.
const itemSegment = "@item"

// RuleDefinition classifies references with glob patterns. A member is
// matched as "Type/Member", where Type is the type of the object owning the
// field. A collection item is matched as "Type/Member/@item", where
// Type/Member is the field holding the collection.
type RuleDefinition struct {
	Members []string `yaml:"members"`
	Items   []string `yaml:"items"`
}

func (d *RuleDefinition) IsMemberTargetObjectReference(member *MemberNode, v any) bool {
	if member == nil || !identifiable(v) {
		return false
	}
	return matchAny(d.Members, memberKey(member))
}

func (d *RuleDefinition) IsTargetItemObjectReference(collection *ObjectNode, _ graph.Index, v any) bool {
	if collection == nil || !identifiable(v) {
		return false
	}
	key := itemSegment
	if owner := collection.Owner(); owner != nil {
		key = memberKey(owner) + "/" + itemSegment
	}
	return matchAny(d.Items, key)
}

func memberKey(m *MemberNode) string {
	return value.TypeName(m.Parent().Retrieve()) + "/" + m.Name()
}

func matchAny(patterns []string, key string) bool {
	for _, pattern := range patterns {
		match, err := doublestar.Match(pattern, key)
		if err != nil {
			continue
		}
		if match {
			return true
		}
	}
	return false
}

// DefinitionsConfig is the YAML layout of a definitions file.
type DefinitionsConfig struct {
	Assets []AssetTypeConfig `yaml:"assets"`
}

// AssetTypeConfig declares how one asset type is handled.
type AssetTypeConfig struct {
	Type       string         `yaml:"type"`
	Composite  bool           `yaml:"composite"`
	References RuleDefinition `yaml:"references"`
}

// LoadDefinitions reads a definitions file into a registry.
func LoadDefinitions(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading definitions file: %w", err)
	}

	var config DefinitionsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing definitions file: %w", err)
	}

	r := NewRegistry()
	for _, a := range config.Assets {
		kind := KindPlain
		if a.Composite {
			kind = KindComposite
		}
		def := a.References
		if err := r.Register(a.Type, Entry{Kind: kind, Definition: &def}); err != nil {
			return nil, err
		}
	}
	return r, nil
}
