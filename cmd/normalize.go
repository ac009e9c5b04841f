package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/webscout/internal/urlnorm"
)

// newNormalizeCmd creates the 'normalize' subcommand.
func newNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <url>",
		Short: "Prints the canonical form of a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			normalized, err := urlnorm.Normalize(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), normalized)
			return err
		},
	}
}
