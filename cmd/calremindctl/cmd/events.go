package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newEventsCmd() *cobra.Command {
	var hours, limit int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List upcoming calendar events",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := apiClient().Events(cmd.Context(), hours, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(resp.Events) == 0 {
				fmt.Fprintln(out, "No upcoming events.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tTITLE\tLOCATION")
			for _, ev := range resp.Events {
				when := "all day " + ev.Date
				if ev.Start != nil {
					when = ev.Start.Local().Format("Mon 15:04")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", when, ev.Title, ev.Location)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&hours, "hours", 24, "how many hours ahead to look")
	cmd.Flags().IntVar(&limit, "limit", 5, "maximum number of events (0 for all)")
	return cmd
}
