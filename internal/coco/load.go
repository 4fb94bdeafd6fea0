package coco

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// Kind identifies what an annotation file contains
type Kind int

const (
	KindUnknown Kind = iota
	KindInstances
	KindCaptions
)

func (k Kind) String() string {
	switch k {
	case KindInstances:
		return "instances"
	case KindCaptions:
		return "captions"
	default:
		return "unknown"
	}
}

// Source is a loaded annotation file. It is always one of
// *InstanceAnnotations, *CaptionAnnotations or *UnknownAnnotations.
type Source interface {
	Kind() Kind
	Path() string
	source()
}

// InstanceAnnotations is a file with per-object polygon or RLE segmentations
type InstanceAnnotations struct {
	path        string
	Images      []Image
	Categories  []Category
	Annotations []Annotation
}

func (*InstanceAnnotations) Kind() Kind     { return KindInstances }
func (s *InstanceAnnotations) Path() string { return s.path }
func (*InstanceAnnotations) source()        {}

// ImageIndex maps image ids to their metadata
func (s *InstanceAnnotations) ImageIndex() map[int64]Image {
	idx := make(map[int64]Image, len(s.Images))
	for _, img := range s.Images {
		idx[img.ID] = img
	}
	return idx
}

// CaptionAnnotations is a file with free-text captions only
type CaptionAnnotations struct {
	path     string
	Images   []Image
	Captions []Caption
}

func (*CaptionAnnotations) Kind() Kind     { return KindCaptions }
func (s *CaptionAnnotations) Path() string { return s.path }
func (*CaptionAnnotations) source()        {}

// UnknownAnnotations is any file without instance or caption entries, such
// as image info files or keypoint-only annotations.
type UnknownAnnotations struct {
	path   string
	Images []Image
	Reason string
}

func (*UnknownAnnotations) Kind() Kind     { return KindUnknown }
func (s *UnknownAnnotations) Path() string { return s.path }
func (*UnknownAnnotations) source()        {}

type rawFile struct {
	Images      []Image           `json:"images"`
	Categories  []Category        `json:"categories"`
	Annotations []rawAnnotation   `json:"annotations"`
	Instances   []rawAnnotation   `json:"instances"`
	Sentences   []json.RawMessage `json:"sentences"`
}

type rawAnnotation struct {
	Annotation
	Caption *string `json:"caption"`
}

// Load reads an annotation file and classifies it.
func Load(path string) (Source, error) {
	slog.Debug("Opening annotation file", "path", path)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open annotation file: %w", err)
	}
	defer file.Close()

	var raw rawFile
	if err := json.NewDecoder(bufio.NewReaderSize(file, 1<<20)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse annotation file %s: %w", path, err)
	}

	src := classify(path, &raw)
	slog.Debug("Loaded annotation file",
		"path", path,
		"kind", src.Kind().String(),
		"images", len(raw.Images),
		"annotations", len(raw.Annotations)+len(raw.Instances))
	return src, nil
}

func classify(path string, raw *rawFile) Source {
	anns := raw.Annotations
	if len(raw.Instances) > 0 {
		anns = raw.Instances
	}

	segmented, captioned := 0, 0
	for i := range anns {
		if !anns[i].Segmentation.Empty() {
			segmented++
		}
		if anns[i].Caption != nil {
			captioned++
		}
	}

	switch {
	case segmented > 0:
		out := make([]Annotation, len(anns))
		for i := range anns {
			out[i] = anns[i].Annotation
		}
		return &InstanceAnnotations{
			path:        path,
			Images:      raw.Images,
			Categories:  raw.Categories,
			Annotations: out,
		}
	case captioned > 0 || len(raw.Sentences) > 0:
		captions := make([]Caption, 0, captioned)
		for i := range anns {
			if anns[i].Caption == nil {
				continue
			}
			captions = append(captions, Caption{
				ID:      anns[i].ID,
				ImageID: anns[i].ImageID,
				Caption: *anns[i].Caption,
			})
		}
		return &CaptionAnnotations{path: path, Images: raw.Images, Captions: captions}
	case len(anns) > 0:
		return &UnknownAnnotations{path: path, Images: raw.Images, Reason: "annotations carry no segmentation"}
	default:
		return &UnknownAnnotations{path: path, Images: raw.Images, Reason: "no annotations"}
	}
}
