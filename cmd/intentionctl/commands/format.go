// Package commands implements the intentionctl CLI commands.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dantte-lp/intentiond/internal/control"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatSessions renders a slice of connected local IPC clients in the
// requested format.
func formatSessions(sessions []control.SessionInfo, format string) (string, error) {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(sessions, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal sessions to JSON: %w", err)
		}
		return string(data), nil
	case formatTable:
		return formatSessionsTable(sessions), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatSessionsTable(sessions []control.SessionInfo) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FD\tPID\tUID\tPROGRAM\tTOKEN-TYPE")

	for _, s := range sessions {
		fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\n", s.Fd, s.Pid, s.Uid, s.ProgramName, s.TokenType)
	}

	_ = w.Flush()
	return buf.String()
}

// formatCoordinationState renders a coordination state response.
func formatCoordinationState(resp *control.GetCoordinationStateResponse, format string) (string, error) {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal coordination state to JSON: %w", err)
		}
		return string(data), nil
	case formatTable:
		return fmt.Sprintf("State: %s\n", resp.State), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatDragState renders a drag state response.
func formatDragState(resp *control.GetDragStateResponse, format string) (string, error) {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal drag state to JSON: %w", err)
		}
		return string(data), nil
	case formatTable:
		var buf strings.Builder
		w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "State:\t%s\n", resp.State)
		fmt.Fprintf(w, "Target Pid:\t%d\n", resp.TargetPid)
		fmt.Fprintf(w, "UD Key:\t%s\n", resp.UDKey)
		_ = w.Flush()
		return buf.String(), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}
