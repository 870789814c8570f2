// Package creds maps session ids to durable credential bundles on disk.
//
// Layout mirrors the upload path of the provisioning layer:
// <root>/session-<id>/creds.json. Deleting a session's bundle removes the
// whole per-session directory (the transport may have written extra state
// files next to creds.json).
package creds

import (
	"fmt"
	"os"
	"path/filepath"
)

const bundleFile = "creds.json"

// Dir is a directory-backed credential store.
type Dir struct {
	root string
}

func NewDir(root string) *Dir {
	return &Dir{root: root}
}

func (d *Dir) sessionDir(id int64) string {
	return filepath.Join(d.root, fmt.Sprintf("session-%d", id))
}

// Exists reports whether a credential bundle is present for the session.
func (d *Dir) Exists(id int64) bool {
	_, err := os.Stat(filepath.Join(d.sessionDir(id), bundleFile))
	return err == nil
}

// Load reads the session's credential bundle.
func (d *Dir) Load(id int64) ([]byte, error) {
	return os.ReadFile(filepath.Join(d.sessionDir(id), bundleFile))
}

// Save writes the session's credential bundle, creating the directory if
// needed. The transport calls this when it rotates credentials mid-session.
func (d *Dir) Save(id int64, data []byte) error {
	dir := d.sessionDir(id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, bundleFile), data, 0o600)
}

// Delete removes the session's bundle and any transport state next to it.
// Deleting a missing bundle is not an error.
func (d *Dir) Delete(id int64) error {
	return os.RemoveAll(d.sessionDir(id))
}
