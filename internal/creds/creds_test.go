package creds

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoadDelete(t *testing.T) {
	d := NewDir(t.TempDir())

	if d.Exists(1) {
		t.Fatal("bundle should not exist yet")
	}
	if _, err := d.Load(1); err == nil {
		t.Fatal("Load of missing bundle should fail")
	}

	if err := d.Save(1, []byte(`{"k":"v"}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !d.Exists(1) {
		t.Fatal("bundle should exist after Save")
	}
	data, err := d.Load(1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(data) != `{"k":"v"}` {
		t.Fatalf("loaded %q", data)
	}

	// Sessions are isolated from each other.
	if d.Exists(2) {
		t.Fatal("bundle leaked to another session id")
	}

	if err := d.Delete(1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if d.Exists(1) {
		t.Fatal("bundle should be gone after Delete")
	}
	// Deleting again is not an error.
	if err := d.Delete(1); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestSaveOverwrites(t *testing.T) {
	d := NewDir(t.TempDir())
	if err := d.Save(3, []byte("v1")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := d.Save(3, []byte("v2")); err != nil {
		t.Fatalf("Save (rotate): %v", err)
	}
	data, err := d.Load(3)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(data) != "v2" {
		t.Fatalf("loaded %q, want rotated bundle", data)
	}
}

func TestDeleteRemovesSessionDir(t *testing.T) {
	root := t.TempDir()
	d := NewDir(root)
	if err := d.Save(5, []byte("v")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Transports may drop extra state files next to the bundle; Delete must
	// take the whole directory with it.
	extra := filepath.Join(root, "session-5", "app-state.json")
	if err := os.WriteFile(extra, []byte("{}"), 0o600); err != nil {
		t.Fatalf("write extra state: %v", err)
	}

	if err := d.Delete(5); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "session-5")); !os.IsNotExist(err) {
		t.Fatalf("session dir still present: %v", err)
	}
}
