package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonandersen/tda/internal/config"
	"github.com/jonandersen/tda/pkg/tdapi"
)

var Version = "dev"

var (
	// jsonOutput controls whether output is formatted as JSON
	jsonOutput bool
	// configFile overrides the default config path
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "tda",
	Short: "TD Ameritrade API CLI",
	Long: `A CLI for the TD Ameritrade API that keeps your OAuth credentials fresh.

Run 'tda configure' once, then 'tda login' to authorize the CLI.`,
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default $XDG_CONFIG_HOME/tda/config.yaml)")
}

// GetJSONMode returns whether JSON output mode is enabled.
func GetJSONMode() bool {
	return jsonOutput
}

// configPath returns the --config value or the default path.
func configPath() string {
	if configFile != "" {
		return configFile
	}
	return config.ConfigPath()
}

// apiErrorHint suggests what to do about a failed API call, or returns "".
func apiErrorHint(err error) string {
	var apiErr *tdapi.APIError
	if !errors.As(err, &apiErr) {
		return ""
	}
	switch {
	case apiErr.IsUnauthorized():
		return "The API rejected the access token. Run 'tda login' to sign in again."
	case apiErr.IsRateLimited():
		wait := "a minute"
		if apiErr.RetryAfter > 0 {
			wait = apiErr.RetryAfter.String()
		}
		return fmt.Sprintf("Request limit reached (%d per minute). Try again in %s.", tdapi.DefaultRequestsPerMinute, wait)
	}
	return ""
}

func Execute() {
	err := rootCmd.Execute()
	closeSessions()
	if err != nil {
		if hint := apiErrorHint(err); hint != "" {
			_, _ = fmt.Fprintln(os.Stderr, hint)
		}
		os.Exit(1)
	}
}
