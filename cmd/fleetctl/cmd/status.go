package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/eshaffer321/fleetclient-go/pkg/fleet"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd, nil, nil)
		if err != nil {
			return err
		}
		defer s.Close()

		printStatus(cmd.OutOrStdout(), s.client.Auth, time.Now())
		return nil
	},
}

func printStatus(w io.Writer, a fleet.AuthService, now time.Time) {
	if !a.IsAuthenticated() {
		fmt.Fprintln(w, "Not logged in")
		return
	}
	claims, err := a.Claims()
	if err != nil {
		fmt.Fprintln(w, "Not logged in")
		return
	}
	fmt.Fprintf(w, "Subject:    %s\n", claims.Subject)
	fmt.Fprintf(w, "State:      %s\n", a.State())
	fmt.Fprintf(w, "Expires in: %s\n", claims.ExpiresAt.Sub(now).Truncate(time.Second))
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
