package coco

import (
	"fmt"
)

// DecodeCounts decodes the compact string form of RLE counts used by COCO
// crowd annotations. Each count is a sequence of 6-bit groups offset by '0';
// bit 0x20 marks a continuation and bit 0x10 of the last group is the sign.
// From the third count on, values are stored as a delta to the count two
// positions earlier.
func DecodeCounts(s string) ([]uint32, error) {
	counts := make([]uint32, 0, len(s)/2)
	var prev [2]int64

	p := 0
	for p < len(s) {
		var x int64
		k := 0
		more := true
		for more {
			if p >= len(s) {
				return nil, fmt.Errorf("%w: truncated rle string", ErrMalformedGeometry)
			}
			c := int64(s[p]) - 48
			if c < 0 || c > 63 {
				return nil, fmt.Errorf("%w: invalid rle character %q", ErrMalformedGeometry, s[p])
			}
			x |= (c & 0x1f) << (5 * k)
			more = c&0x20 != 0
			p++
			k++
			if !more && c&0x10 != 0 {
				x |= -1 << (5 * k)
			}
		}

		m := len(counts)
		if m > 2 {
			x += prev[m%2]
		}
		if x < 0 || x > int64(^uint32(0)) {
			return nil, fmt.Errorf("%w: rle count %d out of range", ErrMalformedGeometry, x)
		}
		prev[m%2] = x
		counts = append(counts, uint32(x))
	}
	return counts, nil
}

// EncodeCounts is the inverse of DecodeCounts.
func EncodeCounts(counts []uint32) string {
	buf := make([]byte, 0, len(counts)*2)
	for i, c := range counts {
		x := int64(c)
		if i > 2 {
			x -= int64(counts[i-2])
		}
		more := true
		for more {
			b := x & 0x1f
			x >>= 5
			if b&0x10 != 0 {
				more = x != -1
			} else {
				more = x != 0
			}
			if more {
				b |= 0x20
			}
			buf = append(buf, byte(b+48))
		}
	}
	return string(buf)
}

// Area returns the number of pixels set in the mask.
func (r RLE) Area() int {
	area := 0
	for i := 1; i < len(r.Counts); i += 2 {
		area += int(r.Counts[i])
	}
	return area
}

// Decode expands the mask into a row-major boolean slice of height*width.
// The mask size must equal the requested size and the counts must cover
// every pixel exactly.
func (r RLE) Decode(height, width int) ([]bool, error) {
	if r.Size[0] != height || r.Size[1] != width {
		return nil, fmt.Errorf("%w: rle size %dx%d does not match image %dx%d",
			ErrMalformedGeometry, r.Size[0], r.Size[1], height, width)
	}

	total := 0
	for _, c := range r.Counts {
		total += int(c)
	}
	if total != height*width {
		return nil, fmt.Errorf("%w: rle counts cover %d pixels, want %d",
			ErrMalformedGeometry, total, height*width)
	}

	bits := make([]bool, height*width)
	pos := 0
	for i, c := range r.Counts {
		if i%2 == 1 {
			for j := pos; j < pos+int(c); j++ {
				// column-major index j -> row j%height, column j/height
				bits[(j%height)*width+j/height] = true
			}
		}
		pos += int(c)
	}
	return bits, nil
}
