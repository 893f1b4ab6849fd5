package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vijayvir/ScreenAiClient-sub000/internal/diag"
	"github.com/vijayvir/ScreenAiClient-sub000/internal/domain"
)

var (
	roomPassword string
	requireOK    bool
)

var hostCmd = &cobra.Command{
	Use:   "host [roomID]",
	Short: "Share your screen in a room",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID := ""
		if len(args) == 1 {
			roomID = args[0]
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		diag.Serve(ctx, app, app.Cfg.DiagPort)

		go printAccessCode(ctx)
		return app.Host(ctx, roomID, domain.Security{
			Password:        roomPassword,
			RequireApproval: requireOK,
		})
	},
}

var viewCmd = &cobra.Command{
	Use:   "view <roomID>",
	Short: "Watch a room's stream",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		diag.Serve(ctx, app, app.Cfg.DiagPort)
		return app.View(ctx, args[0], roomPassword)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show credential and connection state",
	Run: func(cmd *cobra.Command, args []string) {
		st := app.Status()
		if st.LoggedIn {
			fmt.Printf("Logged in as %s\n", st.Username)
		} else {
			fmt.Println("Not logged in")
		}
		fmt.Printf("Connected: %v\n", st.Connected)
	},
}

// printAccessCode surfaces the server-issued code for password rooms once
// the room is up.
func printAccessCode(ctx context.Context) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := app.Status()
			if st.Session != nil && st.Session.AccessCode != "" {
				fmt.Fprintf(os.Stderr, "Access code: %s\n", st.Session.AccessCode)
				return
			}
		}
	}
}

func init() {
	hostCmd.Flags().StringVar(&roomPassword, "room-password", "", "protect the room with a password")
	hostCmd.Flags().BoolVar(&requireOK, "approve", false, "require approval before viewers join")
	viewCmd.Flags().StringVar(&roomPassword, "room-password", "", "room password, if protected")
	rootCmd.AddCommand(hostCmd, viewCmd, statusCmd)
}
