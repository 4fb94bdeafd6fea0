package mask

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Report summarizes one rasterizer run over an annotation file
type Report struct {
	Split              string `yaml:"split,omitempty"`
	AnnotationFile     string `yaml:"annotationfile"`
	Kind               string `yaml:"kind"`
	MaskDir            string `yaml:"maskdir"`
	Skipped            bool   `yaml:"skipped"`
	SkipReason         string `yaml:"skipreason,omitempty"`
	Images             int    `yaml:"images"`
	MasksWritten       int    `yaml:"maskswritten"`
	AnnotationsPainted int    `yaml:"annotationspainted"`
	AnnotationsSkipped int    `yaml:"annotationsskipped"`
	AnnotationsDropped int    `yaml:"annotationsdropped"`
	Timestamp          string `yaml:"timestamp"`
}

// SaveReport writes the report as YAML
func SaveReport(report *Report, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	if report.Timestamp == "" {
		report.Timestamp = time.Now().Format("2006-01-02_15-04-05")
	}

	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}

// LoadReport reads a report written by SaveReport
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report file: %w", err)
	}

	var report Report
	if err := yaml.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report file: %w", err)
	}
	return &report, nil
}
