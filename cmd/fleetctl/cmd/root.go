package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/eshaffer321/fleetclient-go/pkg/fleet"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var (
	baseURL     string
	authBase    string
	sessionFile string
	boltPath    string
	sentryDSN   string
	language    string
	requestRate float64
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "fleetctl",
	Short: "fleetctl talks to the fleet API",
	Long: `A command line client for the fleet API. It logs in, keeps the session
token fresh and sends authenticated requests with automatic retries.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&baseURL, "base-url", envOr("FLEET_BASE_URL", fleet.DefaultBaseURL), "API base URL")
	flags.StringVar(&authBase, "auth-base", "", "Auth endpoint base URL (default <base-url>/auth)")
	flags.StringVar(&sessionFile, "session-file", defaultSessionFile(), "Path of the session file")
	flags.StringVar(&boltPath, "bolt", "", "Keep the session in a bbolt database at this path instead of the session file")
	flags.StringVar(&sentryDSN, "sentry-dsn", os.Getenv("SENTRY_DSN"), "Report errors to Sentry")
	flags.StringVar(&language, "lang", envOr("FLEET_LANG", ""), "Language of error messages")
	flags.Float64Var(&requestRate, "rate", 0, "Maximum requests per second (0 disables limiting)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log requests to stderr")
}

// session bundles a client with the resources it holds
type session struct {
	client *fleet.Client
	store  *fleet.BoltStore
}

func (s *session) Close() {
	s.client.Close()
	if s.store != nil {
		s.store.Close()
	}
}

func openSession(cmd *cobra.Command, nav fleet.Navigator, src fleet.ActivitySource) (*session, error) {
	opts := &fleet.ClientOptions{
		BaseURL:        baseURL,
		AuthBaseURL:    authBase,
		SessionFile:    sessionFile,
		Token:          os.Getenv("FLEET_TOKEN"),
		SentryDSN:      sentryDSN,
		Language:       language,
		Logger:         newLogger(cmd.ErrOrStderr()),
		Navigator:      nav,
		ActivitySource: src,
	}
	if requestRate > 0 {
		opts.RateLimiter = rate.NewLimiter(rate.Limit(requestRate), 1)
	}

	s := &session{}
	if boltPath != "" {
		store, err := fleet.OpenBoltStore(boltPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open session database: %w", err)
		}
		s.store = store
		opts.Store = store
	}

	client, err := fleet.NewClient(opts)
	if err != nil {
		if s.store != nil {
			s.store.Close()
		}
		return nil, err
	}
	s.client = client
	return s, nil
}

func newLogger(w io.Writer) fleet.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return fleet.NewSlogLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".fleetctl-session.json"
	}
	return filepath.Join(dir, "fleetctl", "session.json")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// terminalNavigator tells the user to log in again
type terminalNavigator struct {
	w io.Writer
}

func (n *terminalNavigator) Location() string {
	return ""
}

func (n *terminalNavigator) Navigate(target string) {
	fmt.Fprintf(n.w, "Session ended (%s). Run `fleetctl login` to sign in again.\n", target)
}
