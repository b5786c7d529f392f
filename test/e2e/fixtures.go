package e2e

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/bmp"
)

// SupportedFileExtensions is the list of image extensions used in E2E tests.
var SupportedFileExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp"}

// EncodeImage encodes img in the format matching ext.
func EncodeImage(ext string, img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch ext {
	case ".png":
		err = png.Encode(&buf, img)
	case ".jpg", ".jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	case ".gif":
		err = gif.Encode(&buf, img, nil)
	case ".bmp":
		err = bmp.Encode(&buf, img)
	default:
		return nil, fmt.Errorf("unsupported extension %s", ext)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
