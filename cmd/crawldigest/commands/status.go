package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dshills/crawldigest/internal/mcp"
	"github.com/dshills/crawldigest/internal/storage"
)

// NewStatusCmd creates the status command
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print pipeline counts as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			status, err := a.store.GetStatus(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), mcp.StatusResponse(status))
		},
	}
}

// NewSummaryCmd creates the summary command
func NewSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <url>",
		Short: "Print the final summary for a URL as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			url := args[0]
			summary, err := a.store.GetSummaryByURL(cmd.Context(), url)
			if errors.Is(err, storage.ErrNotFound) {
				item, itemErr := a.store.GetContentItemByURL(cmd.Context(), url)
				if itemErr != nil {
					return fmt.Errorf("%s has not been ingested", url)
				}
				return fmt.Errorf("%s has no summary yet (status: %s)", url, item.Status)
			}
			if err != nil {
				return fmt.Errorf("failed to get summary: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), mcp.SummaryResponse(summary))
		},
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
