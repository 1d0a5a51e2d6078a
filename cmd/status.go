package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tidewatch/tidewatch/pkg/config"
	"github.com/tidewatch/tidewatch/pkg/logger"
	"github.com/tidewatch/tidewatch/pkg/session"
	"github.com/tidewatch/tidewatch/pkg/transport"
)

var statusCmd = &cobra.Command{
	Use:   "status [session-id]",
	Short: "Show the server-side state of a session's workflow run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := initRuntime(); err != nil {
			return err
		}
		defer logger.Close()
		settings := config.Get()

		sessionID := ""
		if len(args) > 0 {
			sessionID = args[0]
		} else {
			sessionID = session.NewCursorFile(settings.Session.StateFile).Load().SessionID
		}
		if sessionID == "" {
			fmt.Println("No session.")
			return nil
		}

		client := transport.NewClientWithTimeout(settings.Server.URL, settings.Server.StatusTimeout)
		ctx, cancel := context.WithTimeout(cmd.Context(), settings.Server.StatusTimeout)
		defer cancel()

		status, err := client.QueryRunStatus(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("status query failed: %w", err)
		}

		fmt.Printf("session: %s\nstatus:  %s\nevents:  %d\n", sessionID, status.Status, status.EventCount)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
