package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/intentiond/internal/control"
)

// errRemoteNetworkIDRequired is returned when --remote is missing from a
// cooperate start invocation.
var errRemoteNetworkIDRequired = errors.New("--remote flag is required")

func cooperateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cooperate",
		Short: "Manage cross-device keyboard/mouse coordination sessions",
	}

	cmd.AddCommand(cooperateStartCmd())
	cmd.AddCommand(cooperateStopCmd())
	cmd.AddCommand(cooperateStateCmd())

	return cmd
}

func cooperateStartCmd() *cobra.Command {
	var (
		remoteNetworkID string
		startDeviceID   string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start coordination with a remote device",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if remoteNetworkID == "" {
				return errRemoteNetworkIDRequired
			}

			resp, err := client.StartCooperate(context.Background(), &control.StartCooperateRequest{
				RemoteNetworkID: remoteNetworkID,
				StartDeviceID:   startDeviceID,
			})
			if err != nil {
				return fmt.Errorf("start cooperate: %w", err)
			}

			fmt.Printf("Result: %s\n", resp.Message)
			fmt.Printf("State:  %s\n", resp.State)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&remoteNetworkID, "remote", "", "remote device networkId (required)")
	flags.StringVar(&startDeviceID, "device", "", "input device id that triggered the start")

	return cmd
}

func cooperateStopCmd() *cobra.Command {
	var networkID string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop an active coordination session",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			_, err := client.StopCooperate(context.Background(), &control.StopCooperateRequest{
				NetworkID: networkID,
			})
			if err != nil {
				return fmt.Errorf("stop cooperate: %w", err)
			}

			fmt.Println("Coordination stopped.")
			return nil
		},
	}

	cmd.Flags().StringVar(&networkID, "network", "", "networkId of the coordination to stop")

	return cmd
}

func cooperateStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the current coordination state",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := client.GetCoordinationState(context.Background(), &control.GetCoordinationStateRequest{})
			if err != nil {
				return fmt.Errorf("get coordination state: %w", err)
			}

			out, err := formatCoordinationState(resp, outputFormat)
			if err != nil {
				return fmt.Errorf("format coordination state: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}
}
