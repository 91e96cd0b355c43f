package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/eshaffer321/fleetclient-go/pkg/fleet"
	"github.com/spf13/cobra"
)

var rawOutput bool

var getCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Send an authenticated GET request and print the response",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd, &terminalNavigator{w: cmd.ErrOrStderr()}, nil)
		if err != nil {
			return err
		}
		defer s.Close()

		resp, err := s.client.Send(cmd.Context(), &fleet.Request{Method: http.MethodGet, URL: args[0]})
		if err != nil {
			return fmt.Errorf("%s", fleet.UserMessage(err))
		}

		out := resp.Body
		if !rawOutput {
			var buf bytes.Buffer
			if json.Indent(&buf, resp.Body, "", "  ") == nil {
				out = buf.Bytes()
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().BoolVar(&rawOutput, "raw", false, "Print the body without formatting")
}
