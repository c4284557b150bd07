package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newLeadTimeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lead-time [minutes]",
		Short: "Show or set how many minutes before an event its reminder fires",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := apiClient()
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				minutes, err := c.LeadTime(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%d minutes\n", minutes)
				return nil
			}

			minutes, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("minutes must be a whole number: %q", args[0])
			}
			if err := c.SetLeadTime(cmd.Context(), minutes); err != nil {
				return err
			}
			fmt.Fprintf(out, "Lead time set to %d minutes.\n", minutes)
			return nil
		},
	}
}
