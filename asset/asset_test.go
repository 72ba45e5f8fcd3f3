package asset

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/google/uuid"

	"assetgraph/graph"
	"assetgraph/itemid"
	"assetgraph/value"
)

func newBase(root *value.Object) *Asset {
	return &Asset{ID: uuid.New(), Location: "base", Root: root}
}

// setup initializes a base asset and an asset derived from it.
func setup(t *testing.T, reg *Registry, root *value.Object) (*Container, *PropertyGraph, *PropertyGraph) {
	t.Helper()
	c := NewContainer(reg, nil)
	base := newBase(root)
	bg, err := c.InitializeAsset(base)
	if err != nil {
		t.Fatalf("initialize base: %v", err)
	}
	dg, err := c.InitializeAsset(Derive(base, "derived"))
	if err != nil {
		t.Fatalf("initialize derived: %v", err)
	}
	return c, bg, dg
}

func listOf(t *testing.T, o *value.Object, name string) *value.List {
	t.Helper()
	l, ok := o.Get(name).(*value.List)
	if !ok {
		t.Fatalf("%s is not a list", name)
	}
	return l
}

func stringsOf(l *value.List) []string {
	var out []string
	for _, it := range l.Items() {
		s, _ := it.(string)
		out = append(out, s)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func simpleRoot() *value.Object {
	return value.NewObject("Simple").
		Set("Name", "a").
		Set("Count", 1).
		Set("Strings", value.NewList("String1", "String2"))
}

func TestMemberChangesPropagateUntilOverridden(t *testing.T) {
	_, bg, dg := setup(t, nil, simpleRoot())

	if err := bg.RootNode().Member("Name").Update("b"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	name := dg.RootNode().Member("Name")
	if got := name.Retrieve(); got != "b" {
		t.Errorf("derived Name = %v, want b", got)
	}
	if name.IsContentOverridden() {
		t.Error("propagated value must not be overridden")
	}

	count := dg.RootNode().Member("Count")
	if err := count.Update(5); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !count.IsContentOverridden() {
		t.Fatal("local edit should override")
	}
	if err := bg.RootNode().Member("Count").Update(7); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := count.Retrieve(); got != 5 {
		t.Errorf("overridden Count = %v, want 5", got)
	}
}

func TestChangeEventsCarryOverrides(t *testing.T) {
	_, _, dg := setup(t, nil, simpleRoot())

	var events []*MemberChangeEvent
	dg.Changed.Subscribe(func(e *MemberChangeEvent) { events = append(events, e) })
	if err := dg.RootNode().Member("Name").Update("x"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	e := events[0]
	if e.PreviousOverride != OverrideBase || e.NewOverride != OverrideNew {
		t.Errorf("overrides = %s -> %s", e.PreviousOverride, e.NewOverride)
	}
	if e.OldValue != "a" || e.NewValue != "x" {
		t.Errorf("values = %v -> %v", e.OldValue, e.NewValue)
	}
}

func TestListInsertionsKeepRelativeOrder(t *testing.T) {
	_, bg, dg := setup(t, nil, simpleRoot())
	baseList := bg.RootNode().Member("Strings").Target()
	derivedList := dg.RootNode().Member("Strings").Target()

	if err := baseList.Add("String1.5", graph.IntIndex(1)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := derivedList.Add("Local", graph.EmptyIndex); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !derivedList.IsItemOverridden(graph.IntIndex(3)) {
		t.Error("local addition should be overridden")
	}
	if err := baseList.Add("String0", graph.IntIndex(0)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got := stringsOf(listOf(t, dg.Asset().Root, "Strings"))
	want := []string{"String0", "String1", "String1.5", "String2", "Local"}
	if !equalStrings(got, want) {
		t.Errorf("derived = %v, want %v", got, want)
	}
	for i := 0; i < 4; i++ {
		bid := baseList.IndexToID(graph.IntIndex(i))
		if did := derivedList.IndexToID(graph.IntIndex(i)); did != bid {
			t.Errorf("item %d: derived id %s, base id %s", i, did, bid)
		}
	}
}

func TestBaseRemovalPropagates(t *testing.T) {
	_, bg, dg := setup(t, nil, simpleRoot())
	baseList := bg.RootNode().Member("Strings").Target()
	derivedList := dg.RootNode().Member("Strings").Target()
	removed := baseList.IndexToID(graph.IntIndex(0))

	if err := baseList.Remove(graph.IntIndex(0)); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	got := stringsOf(listOf(t, dg.Asset().Root, "Strings"))
	if !equalStrings(got, []string{"String2"}) {
		t.Errorf("derived = %v", got)
	}
	if derivedList.IsItemDeleted(removed) {
		t.Error("a removal coming from the base must not leave a tombstone")
	}
}

func TestLocallyDeletedItemStaysDeleted(t *testing.T) {
	_, bg, dg := setup(t, nil, simpleRoot())
	baseList := bg.RootNode().Member("Strings").Target()
	derivedList := dg.RootNode().Member("Strings").Target()
	id := derivedList.IndexToID(graph.IntIndex(0))

	if err := derivedList.Remove(graph.IntIndex(0)); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !derivedList.IsItemDeleted(id) {
		t.Fatal("removing an inherited item should leave a tombstone")
	}

	if err := baseList.Update("Changed", graph.IntIndex(0)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := stringsOf(listOf(t, dg.Asset().Root, "Strings")); !equalStrings(got, []string{"String2"}) {
		t.Errorf("deleted item came back: %v", got)
	}
	if !derivedList.IsItemDeleted(id) {
		t.Error("tombstone should survive base updates")
	}

	if err := baseList.Remove(graph.IntIndex(0)); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if derivedList.IsItemDeleted(id) {
		t.Error("tombstone should be dropped once the base item is gone")
	}
}

func TestUpdateOfItemOverridesIt(t *testing.T) {
	_, bg, dg := setup(t, nil, simpleRoot())
	derivedList := dg.RootNode().Member("Strings").Target()
	if err := derivedList.Update("Mine", graph.IntIndex(1)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !derivedList.IsItemOverridden(graph.IntIndex(1)) {
		t.Fatal("item should be overridden")
	}
	baseList := bg.RootNode().Member("Strings").Target()
	if err := baseList.Update("Theirs", graph.IntIndex(1)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := derivedList.RetrieveAt(graph.IntIndex(1)); got != "Mine" {
		t.Errorf("item = %v, want Mine", got)
	}
	if err := baseList.Update("Also", graph.IntIndex(0)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := derivedList.RetrieveAt(graph.IntIndex(0)); got != "Also" {
		t.Errorf("item = %v, want Also", got)
	}
}

func TestDictionaryKeyCollisionTombstonesBaseItem(t *testing.T) {
	root := value.NewObject("Dicts").Set("Map", value.NewDict().Set("A", "a"))
	_, bg, dg := setup(t, nil, root)
	baseMap := bg.RootNode().Member("Map").Target()
	derivedMap := dg.RootNode().Member("Map").Target()

	if err := derivedMap.Add("local", graph.KeyIndex("K")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := baseMap.Add("base", graph.KeyIndex("K")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := derivedMap.RetrieveAt(graph.KeyIndex("K")); got != "local" {
		t.Errorf("K = %v, want local", got)
	}
	baseID := baseMap.IndexToID(graph.KeyIndex("K"))
	if !derivedMap.IsItemDeleted(baseID) {
		t.Error("colliding base item should be tombstoned")
	}
}

func TestDictionaryFollowsBaseKey(t *testing.T) {
	root := value.NewObject("Dicts").Set("Map", value.NewDict().Set("A", "v"))
	_, bg, dg := setup(t, nil, root)
	baseDict := bg.Asset().Root.Get("Map").(*value.Dict)
	id, _ := baseDict.IDs().Get("A")

	// Rename the key in the base without raising events, then reconcile.
	v, _ := baseDict.Remove("A")
	baseDict.AddWithID("B", v, id)
	if err := dg.ReconcileWithBase(); err != nil {
		t.Fatalf("ReconcileWithBase: %v", err)
	}

	derivedMap := dg.RootNode().Member("Map").Target()
	if derivedMap.HasIndex(graph.KeyIndex("A")) || !derivedMap.HasIndex(graph.KeyIndex("B")) {
		t.Fatalf("keys = %v", derivedMap.Indices())
	}
	if got := derivedMap.IndexToID(graph.KeyIndex("B")); got != id {
		t.Errorf("item id = %s, want %s", got, id)
	}
	if derivedMap.IsItemDeleted(id) {
		t.Error("moved item must not be tombstoned")
	}
}

func holderRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	if err := reg.Register("Holder", Entry{Definition: &RuleDefinition{Members: []string{"Holder/Ref"}}}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return reg
}

func holderRoot() *value.Object {
	t0 := value.NewIdentifiable("Thing", uuid.Nil).Set("Name", "t0")
	t1 := value.NewIdentifiable("Thing", uuid.Nil).Set("Name", "t1")
	return value.NewObject("Holder").Set("Items", value.NewList(t0, t1)).Set("Ref", t0)
}

func TestObjectReferenceResolvesToDerivedObject(t *testing.T) {
	_, bg, dg := setup(t, holderRegistry(t), holderRoot())
	items := listOf(t, dg.Asset().Root, "Items")
	if dg.Asset().Root.Get("Ref") != items.At(0) {
		t.Fatal("derived reference should point at the derived item")
	}

	t1 := listOf(t, bg.Asset().Root, "Items").At(1)
	if err := bg.RootNode().Member("Ref").Update(t1); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if dg.Asset().Root.Get("Ref") != items.At(1) {
		t.Error("reference should follow the base to the derived counterpart")
	}
	if dg.RootNode().Member("Ref").IsContentOverridden() {
		t.Error("resolved reference must not be overridden")
	}

	// Items of the derived list still follow the base.
	baseItem := bg.RootNode().Member("Items").Target().IndexedTarget(graph.IntIndex(0))
	if err := baseItem.Member("Name").Update("renamed"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := items.At(0).(*value.Object).Get("Name"); got != "renamed" {
		t.Errorf("derived item name = %v", got)
	}
}

func TestUnlinkLeavesNoSubscriptions(t *testing.T) {
	c := NewContainer(holderRegistry(t), nil)
	base := newBase(holderRoot())
	bg, err := c.InitializeAsset(base)
	if err != nil {
		t.Fatalf("initialize base: %v", err)
	}
	ref := bg.RootNode().Member("Ref")
	items := bg.RootNode().Member("Items").Target()
	refHandlers, itemHandlers := ref.ValueChanged.Len(), items.ItemChanged.Len()

	dg, err := c.InitializeAsset(Derive(base, "derived"))
	if err != nil {
		t.Fatalf("initialize derived: %v", err)
	}
	if dg.BaseLinks() == 0 || dg.Registry().Len() == 0 {
		t.Fatal("derived graph should be linked")
	}
	if ref.ValueChanged.Len() != refHandlers+1 {
		t.Errorf("base Ref has %d handlers, want %d", ref.ValueChanged.Len(), refHandlers+1)
	}

	dg.UnlinkFromBase(dg.RootNode())
	if n := dg.BaseLinks(); n != 0 {
		t.Errorf("%d base links left", n)
	}
	if n := dg.Registry().Len(); n != 0 {
		t.Errorf("%d registry entries left", n)
	}
	if ref.ValueChanged.Len() != refHandlers || items.ItemChanged.Len() != itemHandlers {
		t.Error("base nodes still have handlers of the derived graph")
	}
	if dg.RootNode().Member("Ref").BaseNode() != nil {
		t.Error("base node should be cleared")
	}
}

func TestClearAndRestoreOverrides(t *testing.T) {
	_, _, dg := setup(t, nil, simpleRoot())
	list := dg.RootNode().Member("Strings").Target()
	if err := dg.RootNode().Member("Name").Update("local"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := list.Update("mine", graph.IntIndex(0)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	before := GenerateOverridesForSerialization(dg.RootNode())
	if before.Len() != 2 {
		t.Fatalf("got %d overrides, want 2", before.Len())
	}

	cleared, err := dg.ClearAllOverrides()
	if err != nil {
		t.Fatalf("ClearAllOverrides: %v", err)
	}
	if len(cleared) != 2 {
		t.Errorf("cleared %d overrides, want 2", len(cleared))
	}
	if n := GenerateOverridesForSerialization(dg.RootNode()).Len(); n != 0 {
		t.Errorf("%d overrides left", n)
	}
	if got := dg.RootNode().Member("Name").Retrieve(); got != "local" {
		t.Errorf("clearing overrides changed a value: %v", got)
	}

	if err := dg.RestoreOverrides(cleared); err != nil {
		t.Fatalf("RestoreOverrides: %v", err)
	}
	after := GenerateOverridesForSerialization(dg.RootNode())
	if after.Len() != before.Len() {
		t.Fatalf("restored %d overrides, want %d", after.Len(), before.Len())
	}
	before.Each(func(p Path, ov OverrideType) {
		if got, ok := after.Get(p); !ok || got != ov {
			t.Errorf("%s: got %s, want %s", p, got, ov)
		}
	})
}

func TestResetOverrides(t *testing.T) {
	_, _, dg := setup(t, nil, simpleRoot())
	name := dg.RootNode().Member("Name")
	list := dg.RootNode().Member("Strings").Target()
	if err := name.Update("local"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := list.Update("mine", graph.IntIndex(0)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := list.Add("extra", graph.EmptyIndex); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := dg.ResetAllOverridesRecursively(name, graph.EmptyIndex); err != nil {
		t.Fatalf("reset member: %v", err)
	}
	if name.Retrieve() != "a" || name.IsContentOverridden() {
		t.Errorf("Name = %v, overridden %v", name.Retrieve(), name.IsContentOverridden())
	}

	if err := dg.ResetAllOverridesRecursively(list, graph.IntIndex(0)); err != nil {
		t.Fatalf("reset item: %v", err)
	}
	if err := dg.ResetAllOverridesRecursively(list, graph.IntIndex(2)); err != nil {
		t.Fatalf("reset added item: %v", err)
	}
	if got := stringsOf(listOf(t, dg.Asset().Root, "Strings")); !equalStrings(got, []string{"String1", "String2"}) {
		t.Errorf("Strings = %v", got)
	}

	if err := dg.ResetAllOverridesRecursively(name, graph.IntIndex(1)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("member reset with index: got %v", err)
	}
}

func TestApplyOverridesFromMetadata(t *testing.T) {
	c := NewContainer(nil, nil)
	base := newBase(simpleRoot())
	if _, err := c.InitializeAsset(base); err != nil {
		t.Fatalf("initialize base: %v", err)
	}
	derived := Derive(base, "derived")
	derived.Root.Set("Name", "kept")
	strings := listOf(t, derived.Root, "Strings")
	id, _ := strings.IDs().Get(1)
	strings.Set(1, "also kept")

	derived.Overrides = NewMetadata[OverrideType]()
	derived.Overrides.Set(Path{}.Member("Name"), OverrideNew)
	derived.Overrides.Set(Path{}.Member("Strings").WithItemID(id), OverrideNew)
	derived.Overrides.Set(Path{}.Member("Missing"), OverrideNew)

	dg, err := c.InitializeAsset(derived)
	if err != nil {
		t.Fatalf("initialize derived: %v", err)
	}
	if got := derived.Root.Get("Name"); got != "kept" {
		t.Errorf("Name = %v", got)
	}
	if got := stringsOf(strings); !equalStrings(got, []string{"String1", "also kept"}) {
		t.Errorf("Strings = %v", got)
	}
	if !dg.RootNode().Member("Strings").Target().IsItemOverridden(graph.IntIndex(1)) {
		t.Error("item override not applied")
	}
}

func TestResolveObjectPath(t *testing.T) {
	c := NewContainer(nil, nil)
	m := value.NewDict().Set("k", value.NewObject("Leaf").Set("X", 1))
	root := value.NewObject("Root").
		Set("Strings", value.NewList("a", "b")).
		Set("Map", m).
		Set("Child", value.NewObject("Leaf").Set("X", 2))
	node := c.NodeContainer().GetOrCreateNode(root)
	id, _ := listOf(t, root, "Strings").IDs().Get(1)

	n, idx, onKey, err := ResolveObjectPath(node, Path{}.Member("Strings").WithItemID(id))
	if err != nil || n != node.Member("Strings").Target() || idx != graph.IntIndex(1) || onKey {
		t.Errorf("item id path: %v %v %v %v", n, idx, onKey, err)
	}
	n, idx, onKey, err = ResolveObjectPath(node, Path{}.Member("Map").WithIndex("k"))
	if err != nil || n != node.Member("Map").Target() || idx != graph.KeyIndex("k") || !onKey {
		t.Errorf("key path: %v %v %v %v", n, idx, onKey, err)
	}
	n, _, _, err = ResolveObjectPath(node, Path{}.Member("Map").WithIndex("k").Member("X"))
	leaf := node.Member("Map").Target().IndexedTarget(graph.KeyIndex("k"))
	if err != nil || n != leaf.Member("X") {
		t.Errorf("member under key: %v %v", n, err)
	}
	n, _, _, err = ResolveObjectPath(node, Path{}.Member("Strings").WithItemID(itemid.New()))
	if err != nil || n != nil {
		t.Errorf("unknown item id should not resolve: %v %v", n, err)
	}

	for _, p := range []Path{
		Path{}.Member("Strings").Member("Len"),
		Path{}.Member("Child").WithIndex(0),
	} {
		if _, _, _, err := ResolveObjectPath(node, p); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("%s: got %v, want ErrInvalidPath", p, err)
		}
	}
}

func TestPrepareForSave(t *testing.T) {
	var buf bytes.Buffer
	c := NewContainer(nil, log.New(&buf, "", 0))
	root := simpleRoot()
	strings := listOf(t, root, "Strings")
	first, _ := strings.IDs().Get(0)
	strings.IDs().Set(1, first)

	a := newBase(root)
	g, err := c.InitializeAsset(a)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := g.PrepareForSave(a); err != nil {
		t.Fatalf("PrepareForSave: %v", err)
	}
	second, _ := strings.IDs().Get(1)
	if second == first || second.IsEmpty() {
		t.Error("duplicate item id should be replaced")
	}
	if buf.Len() == 0 {
		t.Error("fix should be logged")
	}
	if a.Overrides == nil || a.ObjectReferences == nil {
		t.Error("metadata should be generated")
	}
	if err := g.PrepareForSave(newBase(simpleRoot())); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("foreign asset: got %v", err)
	}
}

func TestObjectReferencesForSerialization(t *testing.T) {
	_, _, dg := setup(t, holderRegistry(t), holderRoot())
	refs := dg.GenerateObjectReferencesForSerialization(dg.RootNode())
	if refs.Len() != 1 {
		t.Fatalf("got %d references, want 1", refs.Len())
	}
	id, ok := refs.Get(Path{}.Member("Ref"))
	item := listOf(t, dg.Asset().Root, "Items").At(0).(*value.Object)
	if !ok || id != item.ID {
		t.Errorf("Ref = %s, want %s", id, item.ID)
	}

	if err := dg.ClearReferencesToObjects([]uuid.UUID{item.ID}); err != nil {
		t.Fatalf("ClearReferencesToObjects: %v", err)
	}
	if dg.Asset().Root.Get("Ref") != nil {
		t.Error("reference should be cleared")
	}
	if listOf(t, dg.Asset().Root, "Items").Len() != 2 {
		t.Error("owned items must not be touched")
	}
}

func TestPropagationDisabled(t *testing.T) {
	c, bg, dg := setup(t, nil, simpleRoot())
	c.PropagateChangesFromBase = false

	if err := bg.RootNode().Member("Name").Update("b"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	name := dg.RootNode().Member("Name")
	if name.Retrieve() != "a" {
		t.Errorf("change propagated: %v", name.Retrieve())
	}
	if err := name.Update("c"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if name.IsContentOverridden() {
		t.Error("no override while propagation is disabled")
	}
}

func TestInitializeErrors(t *testing.T) {
	c := NewContainer(nil, nil)
	orphan := &Asset{
		ID:        uuid.New(),
		Location:  "orphan",
		Archetype: &Reference{ID: uuid.New(), Location: "missing"},
		Root:      simpleRoot(),
	}
	if _, err := c.InitializeAsset(orphan); !errors.Is(err, ErrArchetypeNotFound) {
		t.Errorf("missing archetype: got %v", err)
	}
	if c.TryGetGraph(orphan.ID) != nil {
		t.Error("failed graph should not stay registered")
	}

	g, err := c.InitializeAsset(newBase(simpleRoot()))
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := g.Initialize(); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second Initialize: got %v", err)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("A", Entry{Kind: KindComposite}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register("A", Entry{}); !errors.Is(err, ErrConflictingRegistration) {
		t.Errorf("duplicate: got %v", err)
	}
	if e := r.Lookup("A"); e.Kind != KindComposite || e.Definition == nil {
		t.Errorf("Lookup = %+v", e)
	}
	if e := r.Lookup("B"); e.Kind != KindPlain {
		t.Errorf("fallback kind = %s", e.Kind)
	}
}

func lettersRoot() *value.Object {
	return value.NewObject("Simple").Set("Strings", value.NewList("A", "B", "C"))
}

func TestReconcileRemovalAndInsertionInOneRevision(t *testing.T) {
	_, bg, dg := setup(t, nil, lettersRoot())
	baseStrings := listOf(t, bg.Asset().Root, "Strings")

	// Drop B and insert D after A without raising events, then reconcile.
	_, removed := baseStrings.RemoveAt(1)
	baseStrings.Insert(1, "D")
	if err := dg.ReconcileWithBase(); err != nil {
		t.Fatalf("ReconcileWithBase: %v", err)
	}

	derived := listOf(t, dg.Asset().Root, "Strings")
	if got := stringsOf(derived); !equalStrings(got, []string{"A", "D", "C"}) {
		t.Fatalf("derived = %v, want [A D C]", got)
	}
	for i := 0; i < 3; i++ {
		bid, _ := baseStrings.IDs().Get(i)
		if did, _ := derived.IDs().Get(i); did != bid {
			t.Errorf("item %d: derived id %s, base id %s", i, did, bid)
		}
	}
	if dg.RootNode().Member("Strings").Target().IsItemDeleted(removed) {
		t.Error("an item dropped by the base must not leave a tombstone")
	}
}

func TestBaseReorderKeepsLocalDeletion(t *testing.T) {
	_, bg, dg := setup(t, nil, lettersRoot())
	derivedList := dg.RootNode().Member("Strings").Target()
	b := derivedList.IndexToID(graph.IntIndex(1))
	if err := derivedList.Remove(graph.IntIndex(1)); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	baseStrings := listOf(t, bg.Asset().Root, "Strings")
	v, id := baseStrings.RemoveAt(1)
	baseStrings.InsertWithID(0, v, id)
	if err := dg.ReconcileWithBase(); err != nil {
		t.Fatalf("ReconcileWithBase: %v", err)
	}

	if got := stringsOf(listOf(t, dg.Asset().Root, "Strings")); !equalStrings(got, []string{"A", "C"}) {
		t.Errorf("derived = %v, want [A C]", got)
	}
	if !derivedList.IsItemDeleted(b) {
		t.Error("local deletion should survive a base reorder")
	}
}

func TestReferenceToObjectAddedInSameRevision(t *testing.T) {
	_, bg, dg := setup(t, holderRegistry(t), holderRoot())

	q := value.NewIdentifiable("Thing", uuid.Nil).Set("Name", "q")
	listOf(t, bg.Asset().Root, "Items").Append(q)
	bg.Asset().Root.Set("Ref", q)
	if err := dg.ReconcileWithBase(); err != nil {
		t.Fatalf("ReconcileWithBase: %v", err)
	}

	items := listOf(t, dg.Asset().Root, "Items")
	if items.Len() != 3 {
		t.Fatalf("derived has %d items, want 3", items.Len())
	}
	dq, ok := items.At(2).(*value.Object)
	if !ok || dq.Get("Name") != "q" {
		t.Fatalf("new item = %v", items.At(2))
	}
	if dq.ID == q.ID {
		t.Error("derived copy needs a fresh identity")
	}
	if dg.Asset().Root.Get("Ref") != dq {
		t.Error("reference should point at the derived copy of the new object")
	}
	if dg.RootNode().Member("Ref").IsContentOverridden() {
		t.Error("resolved reference must not be overridden")
	}
}

func TestChangingEventsPrecedeChanges(t *testing.T) {
	_, _, dg := setup(t, nil, simpleRoot())

	var members []*MemberChangeEvent
	dg.Changing.Subscribe(func(e *MemberChangeEvent) {
		if dg.RootNode().Member("Name").Retrieve() != "a" {
			t.Error("Changing raised after the value was written")
		}
		members = append(members, e)
	})
	if err := dg.RootNode().Member("Name").Update("x"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(members) != 1 || members[0].OldValue != "a" || members[0].NewValue != "x" || members[0].PreviousOverride != OverrideBase {
		t.Fatalf("Changing events = %+v", members)
	}

	list := dg.RootNode().Member("Strings").Target()
	first := list.IndexToID(graph.IntIndex(0))
	var items []*ItemChangeEvent
	dg.ItemChanging.Subscribe(func(e *ItemChangeEvent) { items = append(items, e) })
	if err := list.Remove(graph.IntIndex(0)); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(items) != 1 || items[0].Type != graph.CollectionRemove || items[0].ItemID != first {
		t.Errorf("ItemChanging events = %+v", items)
	}
}
