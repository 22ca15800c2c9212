// Package storage defines the corpus file-system abstraction.
package storage

import "github.com/starford/ansuz/internal/models"

// Provider is the interface for corpus file operations.
type Provider interface {
	// List walks dir (relative to the corpus root) and returns metadata for
	// every matching file. Files that cannot be read are returned in skipped
	// rather than failing the whole scan.
	List(dir string) (metas []models.DocumentMeta, skipped []string, err error)
	// Read returns the raw bytes of the file at path (relative to the corpus root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to the corpus root).
	Write(path string, content []byte) error
	// Delete removes the file at path (relative to the corpus root).
	Delete(path string) error
	// Accepts reports whether a file name matches the corpus extensions.
	Accepts(name string) bool
}
