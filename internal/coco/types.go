package coco

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Image is the image metadata entry of an annotation file
type Image struct {
	ID       int64  `json:"id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileName string `json:"file_name"`
}

// Category is a named object class
type Category struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Supercategory string `json:"supercategory"`
}

// Annotation is one object instance on one image
type Annotation struct {
	ID           int64        `json:"id"`
	ImageID      int64        `json:"image_id"`
	CategoryID   int          `json:"category_id"`
	Segmentation Segmentation `json:"segmentation"`
	Area         float64      `json:"area"`
	BBox         []float64    `json:"bbox"`
	IsCrowd      int          `json:"iscrowd"`
}

// Caption is an entry of a captions annotation file
type Caption struct {
	ID      int64  `json:"id"`
	ImageID int64  `json:"image_id"`
	Caption string `json:"caption"`
}

// Segmentation holds either a list of polygons or a run-length encoded mask.
// Polygons are flat [x1, y1, x2, y2, ...] vertex lists in pixel coordinates.
type Segmentation struct {
	Polygons [][]float64
	RLE      *RLE
}

// Empty reports whether the segmentation carries no geometry at all
func (s Segmentation) Empty() bool {
	return len(s.Polygons) == 0 && s.RLE == nil
}

func (s *Segmentation) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '[':
		return json.Unmarshal(data, &s.Polygons)
	case '{':
		var rle RLE
		if err := json.Unmarshal(data, &rle); err != nil {
			return err
		}
		s.RLE = &rle
		return nil
	default:
		return fmt.Errorf("unexpected segmentation value %.20q", data)
	}
}

func (s Segmentation) MarshalJSON() ([]byte, error) {
	if s.RLE != nil {
		return json.Marshal(s.RLE)
	}
	if s.Polygons == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.Polygons)
}

// RLE is a column-major run-length encoded binary mask. Counts alternate
// between runs of zeros and ones, starting with zeros.
type RLE struct {
	// Size is [height, width]
	Size   [2]int
	Counts []uint32
}

type rleJSON struct {
	Size   [2]int          `json:"size"`
	Counts json.RawMessage `json:"counts"`
}

func (r *RLE) UnmarshalJSON(data []byte) error {
	var raw rleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Size = raw.Size

	counts := bytes.TrimSpace(raw.Counts)
	if len(counts) == 0 {
		return fmt.Errorf("rle has no counts")
	}
	if counts[0] == '"' {
		var s string
		if err := json.Unmarshal(counts, &s); err != nil {
			return err
		}
		decoded, err := DecodeCounts(s)
		if err != nil {
			return err
		}
		r.Counts = decoded
		return nil
	}
	return json.Unmarshal(counts, &r.Counts)
}

func (r RLE) MarshalJSON() ([]byte, error) {
	counts, err := json.Marshal(EncodeCounts(r.Counts))
	if err != nil {
		return nil, err
	}
	return json.Marshal(rleJSON{Size: r.Size, Counts: counts})
}
