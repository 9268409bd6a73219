package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/intentiond/internal/control"
)

var (
	// client is the control-plane client, initialized in PersistentPreRunE.
	client *control.Client

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// socketPath is the intentiond control socket this client connects to.
	socketPath string
)

// rootCmd is the top-level cobra command for intentionctl.
var rootCmd = &cobra.Command{
	Use:   "intentionctl",
	Short: "CLI client for the intentiond cross-device interaction service",
	Long:  "intentionctl communicates with the intentiond daemon over its Unix-socket control plane to manage coordination sessions and drags.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		client = control.NewClient(control.DialUnix(socketPath), "http://intentiond")
		return nil
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "/run/intentiond/control.sock",
		"intentiond control plane Unix socket path")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(cooperateCmd())
	rootCmd.AddCommand(dragCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(monitorCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
