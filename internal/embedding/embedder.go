// Package embedding turns encoded images into unit-length feature vectors.
package embedding

import "context"

// Embedder produces a unit L2 norm embedding for an encoded image (JPEG, PNG, GIF, or BMP).
// Implementations must be safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, image []byte) ([]float32, error)
	Dimensions() int
	Name() string
	Close() error
}
