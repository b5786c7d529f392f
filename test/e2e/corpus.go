// Package e2e provides end-to-end tests over a generated image collection.
package e2e

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
)

// E2EImage is one reference image in the generated collection.
type E2EImage struct {
	Class string
	Name  string
	Base  color.RGBA
	// Stripe is the period of the diagonal pattern; it makes every image distinct.
	Stripe int
}

// RelPath returns the image path relative to the collection root.
func (i E2EImage) RelPath() string {
	return filepath.Join(i.Class, i.Name)
}

// Render draws the image at the given size.
func (i E2EImage) Render(size int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := i.Base
			if ((x+y)/i.Stripe)%2 == 1 {
				c = color.RGBA{R: c.R / 2, G: c.G / 2, B: c.B / 2, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

// Corpus is a class-folder image collection.
type Corpus struct {
	Images      []E2EImage
	Classes     []string
	TotalImages int
}

var corpusClasses = []struct {
	name string
	base color.RGBA
}{
	{"crimson", color.RGBA{R: 220, G: 20, B: 60, A: 255}},
	{"forest", color.RGBA{R: 34, G: 139, B: 34, A: 255}},
	{"ocean", color.RGBA{R: 0, G: 105, B: 200, A: 255}},
	{"sunflower", color.RGBA{R: 250, G: 210, B: 20, A: 255}},
	{"violet", color.RGBA{R: 140, G: 40, B: 200, A: 255}},
}

// BuildCorpus returns perClass images for each of the five classes, rotating through
// every supported file extension.
func BuildCorpus(perClass int) *Corpus {
	c := &Corpus{}
	n := 0
	for _, cls := range corpusClasses {
		c.Classes = append(c.Classes, cls.name)
		for j := 0; j < perClass; j++ {
			ext := SupportedFileExtensions[n%len(SupportedFileExtensions)]
			c.Images = append(c.Images, E2EImage{
				Class:  cls.name,
				Name:   fmt.Sprintf("%s_%02d%s", cls.name, j, ext),
				Base:   cls.base,
				Stripe: 4 + 3*j,
			})
			n++
		}
	}
	c.TotalImages = len(c.Images)
	return c
}

// WriteTo writes every image under root and returns their absolute paths in corpus order.
func (c *Corpus) WriteTo(root string, size int) ([]string, error) {
	paths := make([]string, 0, len(c.Images))
	for _, img := range c.Images {
		path := filepath.Join(root, img.RelPath())
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		data, err := EncodeImage(filepath.Ext(img.Name), img.Render(size))
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", img.Name, err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
