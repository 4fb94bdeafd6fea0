package records

import (
	"errors"
	"fmt"
	"hash/crc32"
	"image"

	"github.com/lehigh-university-libraries/segprep/internal/raster"
)

const (
	// Magic opens every container file
	Magic = "SGRC"
	// Version1 is the only container format so far
	Version1 uint16 = 1

	headerSize        = 8
	payloadHeaderSize = 16
	crcMaskDelta      = 0xa282ead8
)

var (
	// ErrCorrupt is returned when a record fails its checksum or framing
	ErrCorrupt = errors.New("corrupt record")
	// ErrShapeMismatch is returned when an image and its mask differ in size
	ErrShapeMismatch = errors.New("image and mask shapes differ")
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func maskedCRC(data []byte) uint32 {
	return mask(crc32.Checksum(data, castagnoli))
}

func mask(crc uint32) uint32 {
	return ((crc >> 15) | (crc << 17)) + crcMaskDelta
}

// Record is one image/mask pair with the shape needed to rebuild it
type Record struct {
	Height        int
	Width         int
	ImageChannels int
	MaskChannels  int
	// Image is Height*Width*ImageChannels bytes, row-major
	Image []byte
	// Mask is Height*Width*MaskChannels bytes, row-major
	Mask []byte
}

// NewRecord builds a record from an image raster and a mask raster
func NewRecord(img, msk *raster.Raster) (Record, error) {
	if img.Height != msk.Height || img.Width != msk.Width {
		return Record{}, fmt.Errorf("%w: image %dx%d, mask %dx%d",
			ErrShapeMismatch, img.Height, img.Width, msk.Height, msk.Width)
	}
	rec := Record{
		Height:        img.Height,
		Width:         img.Width,
		ImageChannels: img.Channels,
		MaskChannels:  msk.Channels,
		Image:         img.Pix,
		Mask:          msk.Pix,
	}
	return rec, rec.Validate()
}

// Validate checks that the pixel buffers match the declared shape
func (r Record) Validate() error {
	if r.Height <= 0 || r.Width <= 0 || r.ImageChannels <= 0 || r.MaskChannels <= 0 {
		return fmt.Errorf("invalid record shape %dx%d, channels %d/%d",
			r.Height, r.Width, r.ImageChannels, r.MaskChannels)
	}
	if len(r.Image) != r.Height*r.Width*r.ImageChannels {
		return fmt.Errorf("image has %d bytes, shape needs %d", len(r.Image), r.Height*r.Width*r.ImageChannels)
	}
	if len(r.Mask) != r.Height*r.Width*r.MaskChannels {
		return fmt.Errorf("mask has %d bytes, shape needs %d", len(r.Mask), r.Height*r.Width*r.MaskChannels)
	}
	return nil
}

// payloadSize is the encoded payload length in bytes
func (r Record) payloadSize() int {
	return payloadHeaderSize + len(r.Image) + len(r.Mask)
}

// ImageRaster returns the image as an opaque NRGBA image. Only 3-channel
// records can be converted.
func (r Record) ImageRaster() (image.Image, error) {
	if r.ImageChannels != 3 {
		return nil, fmt.Errorf("cannot render %d-channel image", r.ImageChannels)
	}
	rs := &raster.Raster{Height: r.Height, Width: r.Width, Channels: 3, Pix: r.Image}
	return rs.NRGBA(), nil
}

// MaskRaster returns the mask as a grayscale image sharing the record's bytes
func (r Record) MaskRaster() (image.Image, error) {
	if r.MaskChannels != 1 {
		return nil, fmt.Errorf("cannot render %d-channel mask", r.MaskChannels)
	}
	return raster.Gray(r.Height, r.Width, r.Mask), nil
}

// ShapeMismatchError reports an image/mask pair whose sizes differ
type ShapeMismatchError struct {
	ImagePath   string
	MaskPath    string
	ImageHeight int
	ImageWidth  int
	MaskHeight  int
	MaskWidth   int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("image %s is %dx%d but mask %s is %dx%d",
		e.ImagePath, e.ImageHeight, e.ImageWidth, e.MaskPath, e.MaskHeight, e.MaskWidth)
}

func (e *ShapeMismatchError) Unwrap() error { return ErrShapeMismatch }

// FileError reports an input file that could not be read
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string { return fmt.Sprintf("unreadable file %s: %v", e.Path, e.Err) }

func (e *FileError) Unwrap() error { return e.Err }
