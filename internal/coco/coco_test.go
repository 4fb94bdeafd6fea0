package coco

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDecodeCounts(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []uint32
	}{
		{"single digits", "34", []uint32{3, 4}},
		{"continuation group", "X1", []uint32{40}},
		{"positive delta", "1233", []uint32{1, 2, 3, 5}},
		{"negative delta", "153M", []uint32{1, 5, 3, 2}},
		{"empty", "", []uint32{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCounts(tt.input)
			if err != nil {
				t.Fatalf("DecodeCounts(%q) failed: %v", tt.input, err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("DecodeCounts(%q) = %v, expected %v", tt.input, got, tt.expected)
			}
			if enc := EncodeCounts(tt.expected); enc != tt.input {
				t.Errorf("EncodeCounts(%v) = %q, expected %q", tt.expected, enc, tt.input)
			}
		})
	}
}

func TestDecodeCountsErrors(t *testing.T) {
	for _, input := range []string{"X", "\x01", "M"} {
		_, err := DecodeCounts(input)
		if !errors.Is(err, ErrMalformedGeometry) {
			t.Errorf("DecodeCounts(%q): expected ErrMalformedGeometry, got %v", input, err)
		}
	}
}

func TestRLEDecodeColumnMajor(t *testing.T) {
	// 2x3 mask, column-major: skip column 0, set column 1, skip column 2
	rle := RLE{Size: [2]int{2, 3}, Counts: []uint32{2, 2, 2}}

	bits, err := rle.Decode(2, 3)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	expected := []bool{
		false, true, false,
		false, true, false,
	}
	if !reflect.DeepEqual(bits, expected) {
		t.Errorf("Decode = %v, expected %v", bits, expected)
	}
	if rle.Area() != 2 {
		t.Errorf("expected area 2, got %d", rle.Area())
	}
}

func TestRLEDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		rle  RLE
	}{
		{"counts too short", RLE{Size: [2]int{2, 3}, Counts: []uint32{2, 2}}},
		{"counts too long", RLE{Size: [2]int{2, 3}, Counts: []uint32{2, 2, 3}}},
		{"size mismatch", RLE{Size: [2]int{3, 2}, Counts: []uint32{6}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.rle.Decode(2, 3)
			if !errors.Is(err, ErrMalformedGeometry) {
				t.Errorf("expected ErrMalformedGeometry, got %v", err)
			}
		})
	}
}

func TestValidatePolygon(t *testing.T) {
	tests := []struct {
		name    string
		poly    []float64
		wantErr bool
	}{
		{"triangle", []float64{0, 0, 4, 0, 0, 4}, false},
		{"square", []float64{1, 1, 4, 1, 4, 3, 1, 3}, false},
		{"closed with repeated first vertex", []float64{1, 1, 4, 1, 4, 3, 1, 3, 1, 1}, false},
		{"repeated consecutive vertex", []float64{1, 1, 4, 1, 4, 1, 4, 3, 1, 3}, false},
		{"bowtie", []float64{0, 0, 2, 2, 2, 0, 0, 2}, true},
		{"odd coordinates", []float64{0, 0, 4, 0, 0}, true},
		{"two vertices", []float64{0, 0, 4, 4}, true},
		{"degenerate after compaction", []float64{0, 0, 0, 0, 4, 4}, true},
		{"nan", []float64{0, 0, 4, 0, 0, nan()}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePolygon(tt.poly)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePolygon() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMalformedGeometry) {
				t.Errorf("expected ErrMalformedGeometry, got %v", err)
			}
		})
	}
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func TestSegmentationUnmarshal(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		polygons  int
		rle       bool
		wantEmpty bool
	}{
		{"polygons", `[[1,1,4,1,4,3],[5,5,6,5,6,6]]`, 2, false, false},
		{"uncompressed rle", `{"size":[2,3],"counts":[2,2,2]}`, 0, true, false},
		{"compressed rle", `{"size":[2,3],"counts":"222"}`, 0, true, false},
		{"empty list", `[]`, 0, false, true},
		{"null", `null`, 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seg Segmentation
			if err := json.Unmarshal([]byte(tt.input), &seg); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if len(seg.Polygons) != tt.polygons {
				t.Errorf("expected %d polygons, got %d", tt.polygons, len(seg.Polygons))
			}
			if (seg.RLE != nil) != tt.rle {
				t.Errorf("expected rle=%v, got %+v", tt.rle, seg.RLE)
			}
			if seg.Empty() != tt.wantEmpty {
				t.Errorf("expected Empty()=%v", tt.wantEmpty)
			}
			if tt.rle && !reflect.DeepEqual(seg.RLE.Counts, []uint32{2, 2, 2}) {
				t.Errorf("unexpected counts %v", seg.RLE.Counts)
			}
		})
	}
}

func TestSegmentationUnmarshalInvalid(t *testing.T) {
	var seg Segmentation
	if err := json.Unmarshal([]byte(`"polygon"`), &seg); err == nil {
		t.Error("expected error for string segmentation")
	}
	if err := json.Unmarshal([]byte(`{"size":[2,3]}`), &seg); err == nil {
		t.Error("expected error for rle without counts")
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "annotations.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	return path
}

func TestLoadInstances(t *testing.T) {
	path := writeFile(t, `{
		"images": [{"id": 7, "width": 6, "height": 4, "file_name": "a.jpg"}],
		"categories": [{"id": 3, "name": "cat", "supercategory": "animal"}],
		"annotations": [
			{"id": 1, "image_id": 7, "category_id": 3, "segmentation": [[1,1,4,1,4,3,1,3]], "area": 6, "iscrowd": 0},
			{"id": 2, "image_id": 7, "category_id": 3, "segmentation": {"size":[4,6],"counts":[24]}, "iscrowd": 1}
		]
	}`)

	src, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if src.Kind() != KindInstances {
		t.Fatalf("expected instances, got %s", src.Kind())
	}
	if src.Path() != path {
		t.Errorf("expected path %s, got %s", path, src.Path())
	}

	inst := src.(*InstanceAnnotations)
	if len(inst.Annotations) != 2 {
		t.Fatalf("expected 2 annotations, got %d", len(inst.Annotations))
	}
	if inst.Annotations[1].Segmentation.RLE == nil {
		t.Error("expected second annotation to carry an RLE")
	}
	if img, ok := inst.ImageIndex()[7]; !ok || img.FileName != "a.jpg" {
		t.Errorf("unexpected image index entry %+v", img)
	}
}

func TestLoadLegacyInstancesKey(t *testing.T) {
	path := writeFile(t, `{
		"images": [{"id": 1, "width": 2, "height": 2, "file_name": "b.jpg"}],
		"instances": [{"id": 1, "image_id": 1, "category_id": 1, "segmentation": [[0,0,2,0,2,2]]}]
	}`)

	src, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if src.Kind() != KindInstances {
		t.Errorf("expected instances, got %s", src.Kind())
	}
}

func TestLoadClassification(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected Kind
	}{
		{
			name:     "captions",
			content:  `{"images": [], "annotations": [{"id": 1, "image_id": 1, "caption": "a cat"}]}`,
			expected: KindCaptions,
		},
		{
			name:     "legacy sentences",
			content:  `{"images": [], "sentences": [{"id": 1}]}`,
			expected: KindCaptions,
		},
		{
			name:     "keypoints only",
			content:  `{"images": [], "annotations": [{"id": 1, "image_id": 1, "category_id": 1, "keypoints": [1,2,2]}]}`,
			expected: KindUnknown,
		},
		{
			name:     "image info",
			content:  `{"images": [{"id": 1, "width": 2, "height": 2, "file_name": "c.jpg"}]}`,
			expected: KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := Load(writeFile(t, tt.content))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if src.Kind() != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, src.Kind())
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load("/nonexistent/path/annotations.json"); err == nil {
		t.Error("Expected error for non-existent file, got nil")
	}
	if _, err := Load(writeFile(t, `{"images": [`)); err == nil {
		t.Error("Expected error for truncated JSON, got nil")
	}
}
