package cmd

import (
	"github.com/spf13/cobra"

	"github.com/sekia-ai/calremind/pkg/client"
	"github.com/sekia-ai/calremind/pkg/sockpath"
)

var (
	socketPath string

	// Version is set by the main package via ldflags.
	Version = "dev"
)

// NewRootCmd creates the root calremindctl command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "calremindctl",
		Short:        "calremind CLI: control the calremindd daemon",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", sockpath.DefaultSocketPath(), "calremindd Unix socket path")

	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newEventsCmd())
	rootCmd.AddCommand(newLeadTimeCmd())
	rootCmd.AddCommand(newRemindCmd())
	rootCmd.AddCommand(newRemindersCmd())
	rootCmd.AddCommand(newTestCmd())
	rootCmd.AddCommand(newSecretsCmd())

	return rootCmd
}

func apiClient() *client.Client {
	return client.New(socketPath)
}
