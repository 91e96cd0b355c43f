package cmd

import (
	"fmt"

	"github.com/eshaffer321/fleetclient-go/pkg/fleet"
	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the API is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd, nil, nil)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.client.Ping(cmd.Context()); err != nil {
			return fmt.Errorf("%s", fleet.UserMessage(err))
		}
		fmt.Fprintln(cmd.OutOrStdout(), "OK")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
