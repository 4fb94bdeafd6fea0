package mask

import (
	"image"

	"github.com/lehigh-university-libraries/segprep/internal/raster"
)

// LabelMask holds one category id per pixel, row-major. Zero is background.
type LabelMask struct {
	Height int
	Width  int
	Pix    []uint8
}

// NewLabelMask returns an all-background mask
func NewLabelMask(height, width int) *LabelMask {
	return &LabelMask{Height: height, Width: width, Pix: make([]uint8, height*width)}
}

// Paint overwrites every covered pixel with category. Later paints win.
func (m *LabelMask) Paint(cov *Coverage, category uint8) int {
	painted := 0
	for i, covered := range cov.Bits {
		if covered {
			m.Pix[i] = category
			painted++
		}
	}
	return painted
}

// At returns the label at column x, row y
func (m *LabelMask) At(x, y int) uint8 {
	return m.Pix[y*m.Width+x]
}

// Image exposes the mask as an 8-bit grayscale image sharing its pixels
func (m *LabelMask) Image() *image.Gray {
	return raster.Gray(m.Height, m.Width, m.Pix)
}
