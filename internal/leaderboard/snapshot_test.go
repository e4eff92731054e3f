package leaderboard

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEscapeUnescapeUserID_RoundTrips(t *testing.T) {
	t.Parallel()

	cases := []string{
		`plain`,
		`has"quote`,
		`has\backslash`,
		`both\and"together`,
		``,
	}

	for _, c := range cases {
		escaped := escapeUserID(c)
		got, err := unescapeUserID(escaped)
		if err != nil {
			t.Fatalf("unescape(%q): %v", escaped, err)
		}
		if got != c {
			t.Fatalf("round-trip mismatch: want %q, got %q", c, got)
		}
	}
}

func TestMarshalUnmarshalSnapshot_RoundTrips(t *testing.T) {
	t.Parallel()

	doc := snapshotDocument{
		DecayFactor: 0.95,
		MaxUsers:    100,
		Entries: []snapshotEntry{
			{UserID: "alice", Score: 30, LastUpdate: 1696284800},
			{UserID: `weird"user\name`, Score: -5.5, LastUpdate: 42},
		},
	}

	data := marshalSnapshot(doc)
	got, err := unmarshalSnapshot(data)
	if err != nil {
		t.Fatalf("unmarshalSnapshot: %v\ndocument:\n%s", err, data)
	}

	if got.DecayFactor != doc.DecayFactor || got.MaxUsers != doc.MaxUsers {
		t.Fatalf("header mismatch: got %+v, want %+v", got, doc)
	}
	if len(got.Entries) != len(doc.Entries) {
		t.Fatalf("expected %d entries, got %d", len(doc.Entries), len(got.Entries))
	}
	for i, e := range doc.Entries {
		if got.Entries[i] != e {
			t.Fatalf("entry %d mismatch: got %+v, want %+v", i, got.Entries[i], e)
		}
	}
}

func TestUnmarshalSnapshot_TolerantOfWhitespace(t *testing.T) {
	t.Parallel()

	raw := []byte(`
	{


		"decay_factor"   :   0.9   ,
		"max_users": 0,
		"entries"   : [
			{ "user_id" : "a" , "score" : 1 , "last_update" : 10 }
		]
	}
	`)

	doc, err := unmarshalSnapshot(raw)
	if err != nil {
		t.Fatalf("unmarshalSnapshot: %v", err)
	}
	if doc.DecayFactor != 0.9 || doc.MaxUsers != 0 || len(doc.Entries) != 1 {
		t.Fatalf("unexpected parse result: %+v", doc)
	}
}

func TestUnmarshalSnapshot_RejectsMalformedDocument(t *testing.T) {
	t.Parallel()

	cases := []string{
		`not json at all`,
		`{"decay_factor": 0.9}`,
		`{"decay_factor": 0.9, "max_users": -1, "entries": []}`,
		`{"decay_factor": 0.9, "max_users": 0, "entries": [{"user_id": "a"}]}`,
	}

	for _, raw := range cases {
		if _, err := unmarshalSnapshot([]byte(raw)); err == nil {
			t.Fatalf("expected error for malformed document %q", raw)
		}
	}
}

// TestEngine_SnapshotRoundTrip covers scenario S6: saving then loading into
// a fresh engine with the same decay factor reproduces the same top-k
// ordering, and invariant 8 (exact (user_id -> score, last_update) mapping
// plus decay_factor and max_users equality).
func TestEngine_SnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	const ts = int64(1696284800)

	original, err := New(Config{DecayFactor: 0.95, MaxUsers: 0})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	original.SetClock(fixedClock(ts))
	original.UpdateUser("a", 10, ts)
	original.UpdateUser("b", 20, ts)
	original.UpdateUser("c", 30, ts)

	path := filepath.Join(t.TempDir(), "lb.json")
	if err := original.SaveToJSON(path); err != nil {
		t.Fatalf("SaveToJSON: %v", err)
	}

	restored, err := New(Config{DecayFactor: 0.95})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := restored.LoadFromJSON(path); err != nil {
		t.Fatalf("LoadFromJSON: %v", err)
	}
	restored.SetClock(fixedClock(ts))

	if restored.DecayFactor() != original.DecayFactor() {
		t.Fatalf("decay factor mismatch: got %v, want %v", restored.DecayFactor(), original.DecayFactor())
	}
	if restored.MaxUsers() != original.MaxUsers() {
		t.Fatalf("max users mismatch: got %v, want %v", restored.MaxUsers(), original.MaxUsers())
	}

	originalTop := original.GetTopUsers(3)
	restoredTop := restored.GetTopUsers(3)
	if len(originalTop) != len(restoredTop) {
		t.Fatalf("top-k length mismatch: got %d, want %d", len(restoredTop), len(originalTop))
	}
	for i := range originalTop {
		if originalTop[i].UserID != restoredTop[i].UserID || originalTop[i].Score != restoredTop[i].Score {
			t.Fatalf("top-k entry %d mismatch: got %+v, want %+v", i, restoredTop[i], originalTop[i])
		}
	}

	for _, id := range []string{"a", "b", "c"} {
		want, err := original.GetUserRank(id)
		if err != nil {
			t.Fatalf("GetUserRank(%q) on original: %v", id, err)
		}
		got, err := restored.GetUserRank(id)
		if err != nil {
			t.Fatalf("GetUserRank(%q) on restored: %v", id, err)
		}
		if got.Score != want.Score || got.LastUpdate != want.LastUpdate {
			t.Fatalf("user %q mismatch: got %+v, want %+v", id, got, want)
		}
	}
}

func TestEngine_LoadFromJSON_MissingFileLeavesEngineUnchanged(t *testing.T) {
	t.Parallel()

	e, err := New(Config{DecayFactor: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.UpdateUser("alice", 10, 1000)

	if err := e.LoadFromJSON(filepath.Join(t.TempDir(), "does-not-exist.json")); err == nil {
		t.Fatalf("expected error loading missing file")
	}

	if got := e.Size(); got != 1 {
		t.Fatalf("expected engine state unchanged after failed load, got size %d", got)
	}
}

func TestEngine_LoadFromJSON_MalformedFileLeavesEngineUnchanged(t *testing.T) {
	t.Parallel()

	e, err := New(Config{DecayFactor: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.UpdateUser("alice", 10, 1000)

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("not a valid document"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := e.LoadFromJSON(path); err == nil {
		t.Fatalf("expected error loading malformed file")
	}

	if got := e.Size(); got != 1 {
		t.Fatalf("expected engine state unchanged after failed load, got size %d", got)
	}
	if _, err := e.GetUserRank("alice"); err != nil {
		t.Fatalf("expected alice to still be present after failed load: %v", err)
	}
}
