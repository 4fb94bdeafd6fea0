package cmd

import (
	"github.com/lehigh-university-libraries/segprep/internal/cococmd"
	"github.com/spf13/cobra"
)

func newCocoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coco",
		Short: "COCO dataset preparation",
		Long: `Download the COCO 2014 archives, rasterize instance annotations into label
masks and encode image/mask pairs into record containers.

Settings come from the built-in defaults, an optional --config YAML file,
SEGPREP_* environment variables (a .env file is loaded if present) and flags,
in that order.`,
	}

	cmd.AddCommand(cococmd.NewFilesCmd())
	cmd.AddCommand(cococmd.NewDownloadCmd())
	cmd.AddCommand(cococmd.NewMasksCmd())
	cmd.AddCommand(cococmd.NewRecordsCmd())
	cmd.AddCommand(cococmd.NewSetupCmd())

	return cmd
}
