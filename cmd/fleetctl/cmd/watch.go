package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/eshaffer321/fleetclient-go/pkg/fleet"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the session alive and print lifecycle events",
	Long: `Runs the token lifecycle in the foreground. Each line typed on stdin counts
as user activity; without activity the session ends after the inactivity timeout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		feed := fleet.NewActivityFeed()
		s, err := openSession(cmd, &terminalNavigator{w: cmd.ErrOrStderr()}, feed)
		if err != nil {
			return err
		}
		defer s.Close()

		if !s.client.Auth.IsAuthenticated() {
			return fmt.Errorf("not logged in")
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		out := cmd.OutOrStdout()
		s.client.Auth.Subscribe(func(e fleet.Event) {
			fmt.Fprintln(out, describeEvent(e))
			if e.Type == fleet.EventLogout {
				cancel()
			}
		})

		go readActivity(ctx, cmd.InOrStdin(), feed)

		s.client.Start(ctx)
		fmt.Fprintln(out, "Watching session, press Ctrl+C to stop")
		<-ctx.Done()
		return nil
	},
}

func readActivity(ctx context.Context, r io.Reader, feed *fleet.ActivityFeed) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		feed.Emit(fleet.SignalKeyPress)
	}
}

func describeEvent(e fleet.Event) string {
	switch e.Type {
	case fleet.EventTokenRefreshed:
		return "Token refreshed"
	case fleet.EventTokenWarning:
		return fmt.Sprintf("Session expires in %d minute(s)", e.MinutesLeft)
	case fleet.EventLogout:
		return fmt.Sprintf("Logged out: %s", e.Reason)
	}
	return string(e.Type)
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
