package mask

import (
	"fmt"
	"image"
	"image/color"

	"github.com/lehigh-university-libraries/segprep/internal/coco"
	"github.com/llgcode/draw2d/draw2dimg"
)

// Coverage is a row-major boolean mask of the pixels an annotation covers
type Coverage struct {
	Height int
	Width  int
	Bits   []bool
}

// Count returns the number of covered pixels
func (c *Coverage) Count() int {
	n := 0
	for _, b := range c.Bits {
		if b {
			n++
		}
	}
	return n
}

// PolygonCoverage fills every polygon onto a height x width canvas. A pixel
// is covered when at least half of it lies inside a polygon. Multiple
// polygons are unioned.
func PolygonCoverage(polys [][]float64, height, width int) (*Coverage, error) {
	if len(polys) == 0 {
		return nil, fmt.Errorf("%w: no polygons", coco.ErrMalformedGeometry)
	}
	for i, p := range polys {
		if err := coco.ValidatePolygon(p); err != nil {
			return nil, fmt.Errorf("polygon %d: %w", i, err)
		}
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	gc := draw2dimg.NewGraphicContext(canvas)
	gc.SetFillColor(color.RGBA{0xff, 0xff, 0xff, 0xff})

	// each polygon is filled on its own so opposite windings still union
	for _, p := range polys {
		gc.BeginPath()
		gc.MoveTo(p[0], p[1])
		for i := 2; i < len(p); i += 2 {
			gc.LineTo(p[i], p[i+1])
		}
		gc.Close()
		gc.Fill()
	}

	cov := &Coverage{Height: height, Width: width, Bits: make([]bool, height*width)}
	for y := 0; y < height; y++ {
		row := canvas.Pix[y*canvas.Stride:]
		for x := 0; x < width; x++ {
			cov.Bits[y*width+x] = row[x*4+3] >= 0x80
		}
	}
	return cov, nil
}

// RLECoverage decodes a run-length encoded mask of the given size
func RLECoverage(rle coco.RLE, height, width int) (*Coverage, error) {
	bits, err := rle.Decode(height, width)
	if err != nil {
		return nil, err
	}
	return &Coverage{Height: height, Width: width, Bits: bits}, nil
}

// AnnotationCoverage converts an annotation's segmentation into a coverage
// mask for an image of the given size.
func AnnotationCoverage(ann coco.Annotation, height, width int) (*Coverage, error) {
	seg := ann.Segmentation
	switch {
	case seg.RLE != nil:
		return RLECoverage(*seg.RLE, height, width)
	case len(seg.Polygons) > 0:
		return PolygonCoverage(seg.Polygons, height, width)
	default:
		return nil, fmt.Errorf("%w: empty segmentation", coco.ErrMalformedGeometry)
	}
}
