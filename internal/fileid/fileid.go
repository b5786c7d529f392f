// Package fileid provides deterministic identifiers for image paths and image contents.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const (
	pathPrefix    = "img:"
	contentPrefix = "sha256:"
)

// PathID returns a stable identifier for the given path.
// Same cleaned path always yields the same ID.
func PathID(path string) string {
	normalized := filepath.Clean(path)
	hash := sha256.Sum256([]byte(normalized))
	return pathPrefix + hex.EncodeToString(hash[:])
}

// ContentID returns an identifier for raw image bytes. Identical bytes share an ID
// regardless of file name, which makes it usable as an embedding cache key.
func ContentID(data []byte) string {
	hash := sha256.Sum256(data)
	return contentPrefix + hex.EncodeToString(hash[:])
}
