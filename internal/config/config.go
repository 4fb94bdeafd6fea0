package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variable overrides
const EnvPrefix = "SEGPREP_"

// Archive is a remote file to download, paired with its published md5 sum
type Archive struct {
	URL string `yaml:"url"`
	MD5 string `yaml:"md5,omitempty"`
}

// Filename returns the base name of the archive URL
func (a Archive) Filename() string {
	u, err := url.Parse(a.URL)
	if err != nil || u.Path == "" {
		return path.Base(a.URL)
	}
	return path.Base(u.Path)
}

// Split describes one dataset split. Paths are relative to the dataset path
// unless absolute.
type Split struct {
	Name        string `yaml:"name"`
	Annotations string `yaml:"annotations"`
	Images      string `yaml:"images"`
	Masks       string `yaml:"masks"`
	Records     string `yaml:"records"`
}

// Config is built once per command and passed by value.
type Config struct {
	DatasetRoot       string    `yaml:"dataset_root"`
	DatasetPath       string    `yaml:"dataset_path"`
	Workers           int       `yaml:"workers"`
	Verbose           bool      `yaml:"verbose"`
	ForceDownload     bool      `yaml:"force_download"`
	IncludeEmptyMasks bool      `yaml:"include_empty_masks"`
	Manifest          bool      `yaml:"manifest"`
	ImageExt          string    `yaml:"image_ext"`
	MaskExt           string    `yaml:"mask_ext"`
	Archives          []Archive `yaml:"archives"`
	Splits            []Split   `yaml:"splits"`
}

// Default returns the COCO 2014 configuration rooted at ~/datasets/coco.
func Default() Config {
	root := filepath.Join(homeDir(), "datasets")
	return Config{
		DatasetRoot: root,
		DatasetPath: filepath.Join(root, "coco"),
		Workers:     1,
		Manifest:    true,
		ImageExt:    ".jpg",
		MaskExt:     ".png",
		Archives: []Archive{
			{URL: "http://msvocds.blob.core.windows.net/coco2014/train2014.zip", MD5: "0da8c0bd3d6becc4dcb32757491aca88"},
			{URL: "http://msvocds.blob.core.windows.net/coco2014/val2014.zip", MD5: "a3d79f5ed8d289b7a7554ce06a5782b3"},
			{URL: "http://msvocds.blob.core.windows.net/coco2014/test2014.zip", MD5: "04127eef689ceac55e3a572c2c92f264"},
			{URL: "http://msvocds.blob.core.windows.net/coco2015/test2015.zip", MD5: "65562e58af7d695cc47356951578c041"},
			{URL: "http://msvocds.blob.core.windows.net/annotations-1-0-3/instances_train-val2014.zip", MD5: "59582776b8dd745d649cd249ada5acf7"},
			{URL: "http://msvocds.blob.core.windows.net/annotations-1-0-3/person_keypoints_trainval2014.zip", MD5: "926b9df843c698817ee62e0e049e3753"},
			{URL: "http://msvocds.blob.core.windows.net/annotations-1-0-4/image_info_test2014.zip", MD5: "f3366b66dc90d8ae0764806c95e43c86"},
			{URL: "http://msvocds.blob.core.windows.net/annotations-1-0-4/image_info_test2015.zip", MD5: "8a5ad1a903b7896df7f8b34833b61757"},
			{URL: "http://msvocds.blob.core.windows.net/annotations-1-0-3/captions_train-val2014.zip", MD5: "5750999c8c964077e3c81581170be65b"},
		},
		Splits: []Split{
			defaultSplit("train2014"),
			defaultSplit("val2014"),
		},
	}
}

func defaultSplit(name string) Split {
	return Split{
		Name:        name,
		Annotations: filepath.Join("annotations", "instances_"+name+".json"),
		Images:      name,
		Masks:       filepath.Join("seg_mask", name),
		Records:     name + ".segrec",
	}
}

// LoadFromFile loads configuration from a YAML file on top of Default.
// A file that sets dataset_root without dataset_path gets <root>/coco.
func LoadFromFile(p string) (Config, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	var fc Config
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	if fc.DatasetRoot != "" && fc.DatasetPath == "" {
		fc.DatasetPath = filepath.Join(fc.DatasetRoot, "coco")
	}

	// manifest defaults to true, so only an explicit false may turn it off
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err == nil {
		if v, ok := raw["manifest"].(bool); ok {
			cfg.Manifest = v
		}
	}

	return cfg.Merge(fc), nil
}

// LoadFromEnv applies SEGPREP_* environment variables.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv(EnvPrefix + "DATASET_ROOT"); v != "" {
		c.DatasetRoot = v
		if os.Getenv(EnvPrefix+"DATASET_PATH") == "" {
			c.DatasetPath = filepath.Join(v, "coco")
		}
	}
	if v := os.Getenv(EnvPrefix + "DATASET_PATH"); v != "" {
		c.DatasetPath = v
	}
	if v := os.Getenv(EnvPrefix + "WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sWORKERS: %w", EnvPrefix, err)
		}
		c.Workers = n
	}
	if v := os.Getenv(EnvPrefix + "VERBOSE"); v != "" {
		c.Verbose = parseBool(v)
	}
	if v := os.Getenv(EnvPrefix + "FORCE_DOWNLOAD"); v != "" {
		c.ForceDownload = parseBool(v)
	}
	if v := os.Getenv(EnvPrefix + "INCLUDE_EMPTY_MASKS"); v != "" {
		c.IncludeEmptyMasks = parseBool(v)
	}
	if v := os.Getenv(EnvPrefix + "MANIFEST"); v != "" {
		c.Manifest = parseBool(v)
	}
	return nil
}

func parseBool(v string) bool {
	return v == "true" || v == "1"
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.DatasetPath == "" {
		return errors.New("config: dataset_path is required")
	}
	if c.Workers <= 0 {
		return errors.New("config: workers must be positive")
	}
	if !strings.HasPrefix(c.ImageExt, ".") || !strings.HasPrefix(c.MaskExt, ".") {
		return errors.New("config: image_ext and mask_ext must start with a dot")
	}
	seen := make(map[string]bool, len(c.Splits))
	for i, s := range c.Splits {
		if s.Name == "" {
			return fmt.Errorf("config: split %d has no name", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("config: duplicate split %q", s.Name)
		}
		seen[s.Name] = true
		if s.Images == "" || s.Masks == "" {
			return fmt.Errorf("config: split %q needs images and masks", s.Name)
		}
	}
	for i, a := range c.Archives {
		if a.URL == "" {
			return fmt.Errorf("config: archive %d has no url", i)
		}
	}
	return nil
}

// Merge returns c with the non-zero values of override applied.
// Slices are replaced, never shared.
func (c Config) Merge(override Config) Config {
	if override.DatasetRoot != "" {
		c.DatasetRoot = override.DatasetRoot
	}
	if override.DatasetPath != "" {
		c.DatasetPath = override.DatasetPath
	}
	if override.Workers != 0 {
		c.Workers = override.Workers
	}
	if override.Verbose {
		c.Verbose = true
	}
	if override.ForceDownload {
		c.ForceDownload = true
	}
	if override.IncludeEmptyMasks {
		c.IncludeEmptyMasks = true
	}
	if override.Manifest {
		c.Manifest = true
	}
	if override.ImageExt != "" {
		c.ImageExt = override.ImageExt
	}
	if override.MaskExt != "" {
		c.MaskExt = override.MaskExt
	}
	if override.Archives != nil {
		c.Archives = override.Archives
	}
	if override.Splits != nil {
		c.Splits = override.Splits
	}
	c.Archives = append([]Archive(nil), c.Archives...)
	c.Splits = append([]Split(nil), c.Splits...)
	return c
}

// Resolve makes p absolute against the dataset path. A leading ~ expands to
// the home directory.
func (c Config) Resolve(p string) string {
	p = expandHome(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(expandHome(c.DatasetPath), p)
}

// DatasetDir is the dataset path with ~ expanded.
func (c Config) DatasetDir() string {
	return expandHome(c.DatasetPath)
}

// Split looks up a split by name.
func (c Config) Split(name string) (Split, bool) {
	for _, s := range c.Splits {
		if s.Name == name {
			return s, true
		}
	}
	return Split{}, false
}

// ArchivePaths returns the local path of every configured archive.
func (c Config) ArchivePaths() []string {
	paths := make([]string, 0, len(c.Archives))
	for _, a := range c.Archives {
		paths = append(paths, c.Resolve(a.Filename()))
	}
	return paths
}

func expandHome(p string) string {
	if p == "~" {
		return homeDir()
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(homeDir(), p[2:])
	}
	return p
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
