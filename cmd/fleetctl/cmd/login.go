package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/eshaffer321/fleetclient-go/pkg/fleet"
	"github.com/spf13/cobra"
)

var (
	email    string
	password string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if email == "" {
			return fmt.Errorf("--email is required")
		}
		if password == "" {
			fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read password: %w", err)
			}
			password = strings.TrimSpace(line)
		}

		s, err := openSession(cmd, nil, nil)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.client.Auth.Login(cmd.Context(), email, password); err != nil {
			return fmt.Errorf("login failed: %s", fleet.UserMessage(err))
		}

		claims, err := s.client.Auth.Claims()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s, token valid until %s\n",
			claims.Subject, claims.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVarP(&email, "email", "e", os.Getenv("FLEET_EMAIL"), "Account email")
	loginCmd.Flags().StringVarP(&password, "password", "p", os.Getenv("FLEET_PASSWORD"), "Account password (prompted when empty)")
}
