package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sekia-ai/calremind/pkg/protocol"
)

// parseStart accepts RFC 3339 or "+<duration>" relative to now.
func parseStart(value string, now time.Time) (time.Time, error) {
	if rel, ok := strings.CutPrefix(value, "+"); ok {
		d, err := time.ParseDuration(rel)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse relative start: %w", err)
		}
		return now.Add(d), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("start must be RFC 3339 or +duration: %w", err)
	}
	return t, nil
}

func newRemindCmd() *cobra.Command {
	var title, start, location string

	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Remind me one minute before an event starts",
		Example: `  calremindctl remind --title "Dentist" --start 2026-10-19T14:00:00+02:00
  calremindctl remind --title "Call Sam" --start +45m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			startAt, err := parseStart(start, time.Now())
			if err != nil {
				return err
			}

			resp, err := apiClient().ScheduleReminder(cmd.Context(), protocol.ScheduleReminderRequest{
				Title:    title,
				Start:    startAt.Format(time.RFC3339),
				Location: location,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !resp.Scheduled {
				fmt.Fprintln(out, "Event starts within a minute; no reminder scheduled.")
				return nil
			}
			fmt.Fprintf(out, "Reminder %s scheduled for %s.\n",
				resp.Reminder.ID, resp.Reminder.FireAt.Local().Format("Mon 15:04"))
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "event title")
	cmd.Flags().StringVar(&start, "start", "", "event start (RFC 3339 or +duration)")
	cmd.Flags().StringVar(&location, "location", "", "event location")
	cmd.MarkFlagRequired("start")
	return cmd
}

func newRemindersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reminders",
		Short: "List pending one-off reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := apiClient().Reminders(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(resp.Reminders) == 0 {
				fmt.Fprintln(out, "No pending reminders.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FIRES\tTITLE\tLOCATION\tID")
			for _, r := range resp.Reminders {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					r.FireAt.Local().Format("Mon 15:04"), r.Title, r.Location, r.ID)
			}
			return w.Flush()
		},
	}
}

func newTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Show a test reminder in five seconds",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := apiClient().TestNotification(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Test notification %s fires in 5s.\n", resp.ID)
			return nil
		},
	}
}
