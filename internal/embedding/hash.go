package embedding

import (
	"context"
	"hash/fnv"
	"image"

	"github.com/hyperjump/kagami/pkg/utils"
	"golang.org/x/image/draw"
)

// hashGrid is the side of the thumbnail the hash embedder samples.
const hashGrid = 16

// HashEmbedder is a deterministic embedder with no model dependency. It decodes the image,
// downsamples it to a small RGB thumbnail, and folds the pixels into a fixed-dimension unit
// vector. Visually close images land close together. Used as a fallback when the ONNX model
// cannot be loaded, and in tests.
type HashEmbedder struct {
	dimensions int
	signs      []float32
	buckets    []int
}

// NewHashEmbedder returns a hash embedder producing vectors of the given dimension.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 512
	}
	n := hashGrid * hashGrid * 3
	e := &HashEmbedder{
		dimensions: dimensions,
		signs:      make([]float32, n),
		buckets:    make([]int, n),
	}
	for i := 0; i < n; i++ {
		h := fnv.New32a()
		_, _ = h.Write([]byte{byte(i), byte(i >> 8), 0x6b})
		sum := h.Sum32()
		e.buckets[i] = int(sum % uint32(dimensions))
		if sum&(1<<31) != 0 {
			e.signs[i] = -1
		} else {
			e.signs[i] = 1
		}
	}
	return e
}

// Embed decodes image and returns its folded thumbnail features.
func (e *HashEmbedder) Embed(ctx context.Context, data []byte) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, _, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return e.embedImage(img), nil
}

func (e *HashEmbedder) embedImage(img image.Image) []float32 {
	thumb := resizeTo(img, hashGrid, hashGrid, draw.ApproxBiLinear)
	emb := make([]float32, e.dimensions)
	i := 0
	for y := 0; y < hashGrid; y++ {
		for x := 0; x < hashGrid; x++ {
			off := thumb.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := float32(thumb.Pix[off+c])/255 - 0.5
				emb[e.buckets[i]] += e.signs[i] * v
				i++
			}
		}
	}
	// Mid-grey images fold to zero; give them a fixed direction so the norm contract holds.
	var sum float32
	for _, v := range emb {
		sum += v * v
	}
	if sum == 0 {
		emb[0] = 1
	}
	utils.NormalizeL2(emb)
	return emb
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Name identifies the embedder in stats and logs.
func (e *HashEmbedder) Name() string {
	return "hash"
}

// Close is a no-op for HashEmbedder.
func (e *HashEmbedder) Close() error {
	return nil
}
