// Package raster converts between image files and dense row-major pixel
// buffers.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// Raster is a dense row-major pixel buffer of Height*Width*Channels bytes
type Raster struct {
	Height   int
	Width    int
	Channels int
	Pix      []byte
}

// LoadRGB decodes an image file into a 3-channel raster. Grayscale and
// paletted sources are expanded, alpha is dropped.
func LoadRGB(path string) (*Raster, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return RGB(img), nil
}

// RGB copies img into a 3-channel raster
func RGB(img image.Image) *Raster {
	nrgba := imaging.Clone(img)
	b := nrgba.Bounds()
	h, w := b.Dy(), b.Dx()

	r := &Raster{Height: h, Width: w, Channels: 3, Pix: make([]byte, h*w*3)}
	for y := 0; y < h; y++ {
		src := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		dst := r.Pix[y*w*3 : (y+1)*w*3]
		for x := 0; x < w; x++ {
			dst[x*3] = src[x*4]
			dst[x*3+1] = src[x*4+1]
			dst[x*3+2] = src[x*4+2]
		}
	}
	return r
}

// LoadMask decodes a label image into a 1-channel raster. Paletted images
// keep their palette indices so VOC-style masks load as class ids.
func LoadMask(path string) (*Raster, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode mask %s: %w", path, err)
	}
	return Mask(img), nil
}

// Mask copies img into a 1-channel raster
func Mask(img image.Image) *Raster {
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()
	r := &Raster{Height: h, Width: w, Channels: 1, Pix: make([]byte, h*w)}

	switch m := img.(type) {
	case *image.Gray:
		for y := 0; y < h; y++ {
			off := y * m.Stride
			copy(r.Pix[y*w:(y+1)*w], m.Pix[off:off+w])
		}
	case *image.Paletted:
		for y := 0; y < h; y++ {
			off := y * m.Stride
			copy(r.Pix[y*w:(y+1)*w], m.Pix[off:off+w])
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				g := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
				r.Pix[y*w+x] = g.Y
			}
		}
	}
	return r
}

// Gray wraps a 1-channel buffer as an image without copying
func Gray(height, width int, pix []byte) *image.Gray {
	return &image.Gray{
		Pix:    pix,
		Stride: width,
		Rect:   image.Rect(0, 0, width, height),
	}
}

// NRGBA expands a 3-channel raster into an opaque image
func (r *Raster) NRGBA() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, r.Width, r.Height))
	for i, j := 0, 0; i < len(r.Pix); i, j = i+3, j+4 {
		img.Pix[j] = r.Pix[i]
		img.Pix[j+1] = r.Pix[i+1]
		img.Pix[j+2] = r.Pix[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}

// Save writes img to path, creating the parent directory. The format follows
// the file extension.
func Save(img image.Image, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save image %s: %w", path, err)
	}
	return nil
}
