package embedding

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/hyperjump/kagami/internal/models"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// CLIP image normalization constants.
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// DecodeImage decodes JPEG, PNG, GIF, or BMP bytes. Failures wrap models.ErrDecodeFailure.
func DecodeImage(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty input", models.ErrDecodeFailure)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", models.ErrDecodeFailure, err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, "", fmt.Errorf("%w: zero-sized %s image", models.ErrDecodeFailure, format)
	}
	return img, format, nil
}

// resizeTo scales img to exactly w x h.
func resizeTo(img image.Image, w, h int, scaler draw.Scaler) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	scaler.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// centerCrop scales the shorter side of img to size and crops the center square.
func centerCrop(img image.Image, size int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	var sw, sh int
	if w < h {
		sw, sh = size, max(size, h*size/w)
	} else {
		sw, sh = max(size, w*size/h), size
	}
	scaled := resizeTo(img, sw, sh, draw.CatmullRom)
	x0, y0 := (sw-size)/2, (sh-size)/2
	out := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(out, out.Bounds(), scaled, image.Pt(x0, y0), draw.Src)
	return out
}

// PixelValues converts img into a CLIP-style [3][size][size] tensor in channel-major order,
// normalized with the CLIP mean and standard deviation.
func PixelValues(img image.Image, size int) []float32 {
	rgba := centerCrop(img, size)
	plane := size * size
	out := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := rgba.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := float32(rgba.Pix[off+c]) / 255
				out[c*plane+y*size+x] = (v - clipMean[c]) / clipStd[c]
			}
		}
	}
	return out
}
