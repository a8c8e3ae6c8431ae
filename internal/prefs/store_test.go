package prefs

import (
	"testing"
)

func TestStoreFloatPersistsAcrossReload(t *testing.T) {
	root := t.TempDir()

	store, err := Open(root, "music")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.SetFloat("volume", 0.4); err != nil {
		t.Fatalf("set: %v", err)
	}

	reloaded, err := Open(root, "music")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reloaded.GetFloat("volume", 1.0); got != 0.4 {
		t.Fatalf("expected persisted volume 0.4, got %v", got)
	}
}

func TestStoreToggleSet(t *testing.T) {
	store, err := Open(t.TempDir(), "music")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	on, err := store.Toggle("favorites", "track:1")
	if err != nil || !on {
		t.Fatalf("expected toggle on, got %v %v", on, err)
	}
	if !store.Contains("favorites", "track:1") {
		t.Fatalf("expected membership")
	}

	off, err := store.Toggle("favorites", "track:1")
	if err != nil || off {
		t.Fatalf("expected toggle off, got %v %v", off, err)
	}
	if store.Contains("favorites", "track:1") {
		t.Fatalf("expected removal")
	}
}

func TestStoreMembersSorted(t *testing.T) {
	store, err := Open(t.TempDir(), "search")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, member := range []string{"footnote", "chapter", "text"} {
		if _, err := store.Toggle("hidden", member); err != nil {
			t.Fatalf("toggle: %v", err)
		}
	}
	members := store.Members("hidden")
	if len(members) != 3 || members[0] != "chapter" || members[2] != "text" {
		t.Fatalf("unexpected members: %v", members)
	}
}

func TestStoreUnknownKeyFallbacks(t *testing.T) {
	store, err := Open(t.TempDir(), "verse")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := store.GetString("loopMode", "off"); got != "off" {
		t.Fatalf("expected fallback, got %s", got)
	}
	if store.GetBool("buffering", false) {
		t.Fatalf("expected false fallback")
	}
}
