package itemid

import "testing"

func TestFromIntIsStable(t *testing.T) {
	if FromInt(3) != FromInt(3) {
		t.Fatal("FromInt should be deterministic")
	}
	if FromInt(3) == FromInt(4) {
		t.Fatal("FromInt should not collide for distinct inputs")
	}
	if !FromInt(0).IsEmpty() {
		t.Error("FromInt(0) is the empty id")
	}
	if New().IsEmpty() {
		t.Error("New should never return the empty id")
	}
}

func TestParseRoundTrip(t *testing.T) {
	id := New()
	parsed, err := Parse(id.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed != id {
		t.Errorf("got %s, want %s", parsed, id)
	}
	if _, err := Parse("not-an-id"); err == nil {
		t.Error("expected error for malformed id")
	}
}

func TestInsertShiftsFollowingPositions(t *testing.T) {
	ids := NewIdentifiers()
	ids.Set(0, FromInt(1))
	ids.Set(1, FromInt(2))
	ids.Insert(1, FromInt(3))

	tests := []struct {
		key  int
		want ID
	}{
		{0, FromInt(1)},
		{1, FromInt(3)},
		{2, FromInt(2)},
	}
	for _, tt := range tests {
		got, ok := ids.Get(tt.key)
		if !ok || got != tt.want {
			t.Errorf("Get(%d) = %s, %v; want %s", tt.key, got, ok, tt.want)
		}
	}
}

func TestDeleteAndShift(t *testing.T) {
	ids := NewIdentifiers()
	ids.Set(0, FromInt(1))
	ids.Set(1, FromInt(2))
	ids.Set(2, FromInt(3))

	removed := ids.DeleteAndShift(1, true)
	if removed != FromInt(2) {
		t.Fatalf("removed %s, want %s", removed, FromInt(2))
	}
	if !ids.IsDeleted(FromInt(2)) {
		t.Error("removed id should be marked as deleted")
	}
	if got, _ := ids.Get(1); got != FromInt(3) {
		t.Errorf("position 1 = %s, want %s", got, FromInt(3))
	}
	if ids.Len() != 2 {
		t.Errorf("Len = %d, want 2", ids.Len())
	}
	if _, ok := ids.KeyOf(FromInt(2)); ok {
		t.Error("deleted id should not resolve to a key")
	}
}

func TestSetClearsTombstone(t *testing.T) {
	ids := NewIdentifiers()
	ids.MarkAsDeleted(FromInt(5))
	ids.Set("key", FromInt(5))
	if ids.IsDeleted(FromInt(5)) {
		t.Error("a live id must not stay deleted")
	}
	key, ok := ids.KeyOf(FromInt(5))
	if !ok || key != "key" {
		t.Errorf("KeyOf = %v, %v", key, ok)
	}
}

func TestDictionaryDelete(t *testing.T) {
	ids := NewIdentifiers()
	ids.Set("a", FromInt(1))
	ids.Set("b", FromInt(2))
	ids.Delete("a", false)
	if ids.IsDeleted(FromInt(1)) {
		t.Error("Delete without mark should not tombstone")
	}
	keys := ids.Keys()
	if len(keys) != 1 || keys[0] != "b" {
		t.Errorf("Keys = %v", keys)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	ids := NewIdentifiers()
	ids.Set(0, FromInt(1))
	ids.MarkAsDeleted(FromInt(9))
	c := ids.Clone()
	c.Set(1, FromInt(2))
	c.UnmarkAsDeleted(FromInt(9))
	if ids.Len() != 1 || !ids.IsDeleted(FromInt(9)) {
		t.Error("clone mutations leaked into the original")
	}
}

func TestKeyOfFollowsEdits(t *testing.T) {
	ids := NewIdentifiers()
	for i := 0; i < 4; i++ {
		ids.Set(i, FromInt(i+1))
	}
	if k, ok := ids.KeyOf(FromInt(3)); !ok || k != 2 {
		t.Fatalf("KeyOf = %v, %v", k, ok)
	}

	ids.Insert(0, FromInt(9))
	if k, _ := ids.KeyOf(FromInt(3)); k != 3 {
		t.Errorf("after insert KeyOf = %v, want 3", k)
	}
	ids.DeleteAndShift(1, false)
	if k, _ := ids.KeyOf(FromInt(3)); k != 2 {
		t.Errorf("after delete KeyOf = %v, want 2", k)
	}
	if ids.Contains(FromInt(1)) {
		t.Error("removed id should not be found")
	}

	// Duplicated ids resolve to the lowest position.
	ids.Set(3, FromInt(2))
	if k, _ := ids.KeyOf(FromInt(2)); k != 1 {
		t.Errorf("duplicate KeyOf = %v, want 1", k)
	}
	ids.Delete(1, false)
	if k, _ := ids.KeyOf(FromInt(2)); k != 3 {
		t.Errorf("after deleting the first holder KeyOf = %v, want 3", k)
	}

	keys := ids.Keys()
	if len(keys) != 3 || keys[0] != 0 || keys[1] != 2 || keys[2] != 3 {
		t.Errorf("Keys = %v", keys)
	}
	if ids.Len() != 3 {
		t.Errorf("Len = %d, want 3", ids.Len())
	}
}
