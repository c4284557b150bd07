package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show calremindd status",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := apiClient().Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Status:        %s\n", resp.Status)
			fmt.Fprintf(out, "Uptime:        %s\n", resp.Uptime)
			fmt.Fprintf(out, "Started At:    %s\n", resp.StartedAt.Local().Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "Source:        %s\n", resp.CalendarSource)
			fmt.Fprintf(out, "Store:         %s\n", resp.StoreBackend)
			fmt.Fprintf(out, "NATS Running:  %v\n", resp.NATSRunning)
			fmt.Fprintf(out, "Signed In:     %v\n", resp.Authenticated)
			fmt.Fprintf(out, "Lead Time:     %d min\n", resp.LeadMinutes)
			if resp.LastPoll != nil {
				fmt.Fprintf(out, "Last Poll:     %s\n", resp.LastPoll.Local().Format("15:04:05"))
			} else {
				fmt.Fprintf(out, "Last Poll:     never\n")
			}
			if resp.LastPollError != "" {
				fmt.Fprintf(out, "Poll Error:    %s\n", resp.LastPollError)
			}
			fmt.Fprintf(out, "Polls:         %d\n", resp.Polls)
			fmt.Fprintf(out, "Notified:      %d\n", resp.Notified)
			fmt.Fprintf(out, "Pending:       %d\n", resp.PendingReminders)
			return nil
		},
	}
}
