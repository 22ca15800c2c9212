// Package models holds shared domain types.
package models

import "time"

// DocumentMeta describes a corpus file on disk: its path relative to the
// corpus root, its content fingerprint, and the file modification time.
type DocumentMeta struct {
	Path      string
	Checksum  string
	UpdatedAt time.Time
}
