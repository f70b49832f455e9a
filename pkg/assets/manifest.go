// Package assets fingerprints theme resources so browsers can cache them
// indefinitely.
//
// Build walks a theme file system and maps every resource to a name
// carrying the hash of its contents:
//
//	{
//	  "default/styles.css": "default/styles.3f9a0c1d2e4b5a67.css",
//	  "default/logo.png":   "default/logo.0b1c2d3e4f5a6b7c.png"
//	}
//
// The servlet links the fingerprinted names from its bootstrap page and
// maps them back to the source resource when serving:
//
//	manifest, _ := assets.Build(themes)
//	resolver := assets.NewResolver(manifest, "/THEME/")
//	resolver.Asset("default/styles.css")
//	// "/THEME/default/styles.3f9a0c1d2e4b5a67.css"
package assets

import (
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Manifest holds the mapping from source resource paths to fingerprinted
// paths. It is safe for concurrent use.
type Manifest struct {
	mu      sync.RWMutex
	entries map[string]string
	sources map[string]string
}

// NewManifest creates an empty manifest.
// Use Build() to create a manifest from a file system.
func NewManifest() *Manifest {
	return &Manifest{
		entries: make(map[string]string),
		sources: make(map[string]string),
	}
}

// Build hashes every regular file of fsys and returns the manifest of
// their fingerprinted names.
func Build(fsys fs.FS) (*Manifest, error) {
	m := NewManifest()
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		sum, err := hashFile(fsys, p)
		if err != nil {
			return fmt.Errorf("assets: hash %s: %w", p, err)
		}
		m.Set(p, Fingerprint(p, sum))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func hashFile(fsys fs.FS, name string) (uint64, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// Fingerprint inserts sum before the extension of p.
func Fingerprint(p string, sum uint64) string {
	ext := path.Ext(p)
	return fmt.Sprintf("%s.%016x%s", strings.TrimSuffix(p, ext), sum, ext)
}

// Resolve returns the fingerprinted path for the given source path.
// If not found, returns the original path unchanged.
func (m *Manifest) Resolve(source string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if resolved, ok := m.entries[source]; ok {
		return resolved
	}
	return source
}

// Source returns the source path of a fingerprinted path.
func (m *Manifest) Source(fingerprinted string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	source, ok := m.sources[fingerprinted]
	return source, ok
}

// Has returns true if the manifest contains the given source path.
func (m *Manifest) Has(source string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.entries[source]
	return ok
}

// Set adds or updates an entry in the manifest.
func (m *Manifest) Set(source, resolved string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.entries[source]; ok {
		delete(m.sources, old)
	}
	m.entries[source] = resolved
	m.sources[resolved] = source
}

// Len returns the number of entries in the manifest.
func (m *Manifest) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}

// All returns a copy of all manifest entries.
func (m *Manifest) All() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]string, len(m.entries))
	for k, v := range m.entries {
		result[k] = v
	}
	return result
}
