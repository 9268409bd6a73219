package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/intentiond/internal/control"
)

func dragCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drag",
		Short: "Inspect and manage the cross-device drag-and-drop state",
	}

	cmd.AddCommand(dragStateCmd())
	cmd.AddCommand(dragCancelCmd())

	return cmd
}

func dragCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Force-cancel the active drag",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := client.ForceCancelDrag(context.Background(), &control.ForceCancelDragRequest{})
			if err != nil {
				return fmt.Errorf("force cancel drag: %w", err)
			}

			fmt.Printf("Drag cancelled. State: %s\n", resp.State)
			return nil
		},
	}
}

func dragStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the current drag state",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := client.GetDragState(context.Background(), &control.GetDragStateRequest{})
			if err != nil {
				return fmt.Errorf("get drag state: %w", err)
			}

			out, err := formatDragState(resp, outputFormat)
			if err != nil {
				return fmt.Errorf("format drag state: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}
}
