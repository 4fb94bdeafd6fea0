package cmd

import (
	"github.com/lehigh-university-libraries/segprep/internal/cococmd"
	"github.com/spf13/cobra"
)

func newRecordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Record container tools",
	}

	cmd.AddCommand(cococmd.NewInspectCmd())

	return cmd
}
