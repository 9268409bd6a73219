package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/intentiond/internal/control"
)

// monitorPollInterval is how often "monitor" polls the control plane for
// state changes. The control plane has no streaming RPC, so this command
// diffs successive polls instead of consuming a server-side stream.
const monitorPollInterval = 500 * time.Millisecond

func monitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Watch coordination and drag state changes",
		Long:  "Polls the intentiond control plane and prints coordination/drag state transitions until interrupted (Ctrl+C).",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return watchStates(ctx)
		},
	}

	return cmd
}

func watchStates(ctx context.Context) error {
	var lastCoordState, lastDragState string

	ticker := time.NewTicker(monitorPollInterval)
	defer ticker.Stop()

	for {
		coordResp, err := client.GetCoordinationState(ctx, &control.GetCoordinationStateRequest{})
		if err == nil && coordResp.State != lastCoordState {
			fmt.Printf("[%s] coordination: %s -> %s\n", time.Now().Format(time.RFC3339), lastCoordState, coordResp.State)
			lastCoordState = coordResp.State
		}

		dragResp, err := client.GetDragState(ctx, &control.GetDragStateRequest{})
		if err == nil && dragResp.State != lastDragState {
			fmt.Printf("[%s] drag: %s -> %s\n", time.Now().Format(time.RFC3339), lastDragState, dragResp.State)
			lastDragState = dragResp.State
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
