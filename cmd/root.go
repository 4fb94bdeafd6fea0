package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "segprep",
		Short: "COCO segmentation dataset preparation tool",
		Long: `Segprep prepares the COCO dataset for semantic segmentation training.

It downloads and verifies the dataset archives, rasterizes instance annotations
into per-pixel label masks and packs image/mask pairs into record containers.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	cmd.PersistentFlags().Bool("verbose", false, "Verbose logging")

	// Add subcommands
	cmd.AddCommand(newCocoCmd())
	cmd.AddCommand(newRecordsCmd())

	return cmd
}
