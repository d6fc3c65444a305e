package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the fixtures release.
const Version = "0.1.0"

const modulePath = "github.com/mesh-intelligence/fixtures"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the fixtures version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "fixtures v%s\nmodule: %s\n", Version, modulePath)
			return nil
		},
	}
}
