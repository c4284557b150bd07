package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sekia-ai/calremind/internal/google"
)

const loginPollInterval = 2 * time.Second

func newLoginCmd() *cobra.Command {
	var (
		noBrowser bool
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to Google Calendar",
		Long: `Starts sign-in on the daemon, opens the consent page in your browser and
waits until the daemon has stored the tokens.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := apiClient()
			resp, err := c.Login(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Open this URL to sign in:\n\n  %s\n\n", resp.AuthURL)
			if !noBrowser {
				if err := google.OpenBrowser(resp.AuthURL); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "could not open browser: %v\n", err)
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			ticker := time.NewTicker(loginPollInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return errors.New("timed out waiting for sign-in")
				case <-ticker.C:
					auth, err := c.Auth(ctx)
					if err != nil {
						return err
					}
					if auth.Authenticated {
						fmt.Fprintln(out, "Signed in.")
						return nil
					}
				}
			}
		},
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "print the URL without opening a browser")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "how long to wait for sign-in")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and revoke the stored tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient().Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}
