package cococmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lehigh-university-libraries/segprep/internal/config"
	"github.com/spf13/cobra"
)

// loadConfig builds the run configuration: defaults, then the --config file,
// then SEGPREP_* environment variables, then flags set on the command line.
// It also installs the slog handler for the run.
func loadConfig(cmd *cobra.Command, flags func(*config.Config)) (config.Config, error) {
	cfg := config.Default()

	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		fileCfg, err := config.LoadFromFile(path)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = fileCfg
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Verbose = true
	}
	if flags != nil {
		flags(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	setupLogging(cfg.Verbose)
	slog.Debug("Loaded configuration", "dataset_path", cfg.DatasetPath, "workers", cfg.Workers, "splits", len(cfg.Splits))
	return cfg, nil
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// selectSplits returns the named splits, or every configured split when
// names is empty.
func selectSplits(cfg config.Config, names []string) ([]config.Split, error) {
	if len(names) == 0 {
		return cfg.Splits, nil
	}
	splits := make([]config.Split, 0, len(names))
	for _, name := range names {
		s, ok := cfg.Split(name)
		if !ok {
			return nil, fmt.Errorf("unknown split %q", name)
		}
		splits = append(splits, s)
	}
	return splits, nil
}

// reportPath is where the rasterizer report for a split is written
func reportPath(cfg config.Config, s config.Split) string {
	return cfg.Resolve(s.Masks) + ".report.yaml"
}

// datasetFlags holds the flags shared by the dataset commands
type datasetFlags struct {
	datasetPath string
	workers     int
	splits      []string
}

func (f *datasetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.datasetPath, "dataset-path", "", "Dataset directory (overrides config)")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Number of parallel workers (overrides config)")
	cmd.Flags().StringSliceVar(&f.splits, "split", nil, "Split to process (repeatable, default all configured splits)")
}

func (f *datasetFlags) apply(cfg *config.Config) {
	*cfg = cfg.Merge(config.Config{DatasetPath: f.datasetPath, Workers: f.workers})
}
