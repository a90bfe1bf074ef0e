package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonandersen/tda/internal/auth"
	"github.com/jonandersen/tda/internal/output"
)

// tokenOptions holds dependencies for the token commands.
type tokenOptions struct {
	manager  managerFactory
	now      func() time.Time
	jsonMode func() bool
}

// tokenStatus is the JSON form of 'tda token status'.
type tokenStatus struct {
	Status                    string `json:"status"`
	LoggedIn                  bool   `json:"loggedIn"`
	ClientID                  string `json:"clientId"`
	AccessTokenExpiry         int64  `json:"accessTokenExpiry"`
	SecondsUntilAccessExpiry  int64  `json:"secondsUntilAccessExpiry"`
	RefreshTokenExpiry        int64  `json:"refreshTokenExpiry"`
	SecondsUntilRefreshExpiry int64  `json:"secondsUntilRefreshExpiry"`
}

func newTokenStatus(rec auth.TokenRecord, now time.Time) tokenStatus {
	return tokenStatus{
		Status:                    auth.Classify(rec, now).String(),
		LoggedIn:                  rec.HasCredentials(),
		ClientID:                  rec.ClientID,
		AccessTokenExpiry:         rec.AccessTokenExpiry,
		SecondsUntilAccessExpiry:  rec.SecondsUntilAccessExpiry(now),
		RefreshTokenExpiry:        rec.RefreshTokenExpiry,
		SecondsUntilRefreshExpiry: rec.SecondsUntilRefreshExpiry(now),
	}
}

// newTokenCmd creates the token command with the given options.
func newTokenCmd(opts tokenOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect and renew the stored tokens",
		Long: `Inspect and renew the stored OAuth tokens.

Examples:
  tda token status
  tda token refresh
  tda token refresh --force`,
	}

	cmd.AddCommand(newTokenStatusCmd(opts))
	cmd.AddCommand(newTokenRefreshCmd(opts))

	return cmd
}

func newTokenStatusCmd(opts tokenOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show token expiry and renewal status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := opts.manager(cmd, nil)
			if err != nil {
				return err
			}
			return printTokenStatus(cmd, opts, manager.Snapshot())
		},
	}

	cmd.SilenceUsage = true

	return cmd
}

func printTokenStatus(cmd *cobra.Command, opts tokenOptions, rec auth.TokenRecord) error {
	st := newTokenStatus(rec, opts.now())

	clientID := st.ClientID
	if clientID == "" {
		clientID = "Not configured"
	}

	formatter := output.New(cmd.OutOrStdout(), opts.jsonMode())
	return formatter.Detail(st, []output.Field{
		{Name: "Status", Value: st.Status},
		{Name: "Logged in", Value: strconv.FormatBool(st.LoggedIn)},
		{Name: "Client ID", Value: clientID},
		{Name: "Access token expires", Value: formatRemaining(st.AccessTokenExpiry, st.SecondsUntilAccessExpiry)},
		{Name: "Refresh token expires", Value: formatRemaining(st.RefreshTokenExpiry, st.SecondsUntilRefreshExpiry)},
	})
}

// formatRemaining renders an expiry and the time left until it.
func formatRemaining(expiry, seconds int64) string {
	if expiry <= 0 {
		return "-"
	}
	if seconds == 0 {
		return formatExpiry(expiry) + " (expired)"
	}
	return fmt.Sprintf("%s (in %s)", formatExpiry(expiry), time.Duration(seconds)*time.Second)
}

func newTokenRefreshCmd(opts tokenOptions) *cobra.Command {
	var flagForce bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Renew tokens that are close to expiry",
		Long: `Renew whichever tokens are close to expiry. With --force a new access
token is requested even if the current one is still valid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := opts.manager(cmd, nil)
			if err != nil {
				return err
			}
			if manager.Status().NeedsReauth() {
				return auth.ErrNotLoggedIn
			}

			ctx := cmdContext(cmd)
			if flagForce {
				if _, err := manager.RefreshToken(ctx); err != nil {
					return fmt.Errorf("failed to refresh access token: %w", err)
				}
			} else {
				status, err := manager.Renew(ctx)
				if err != nil {
					return fmt.Errorf("failed to renew tokens: %w", err)
				}
				if status == auth.StatusOK && !opts.jsonMode() {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Tokens are fresh, nothing to renew.")
				}
			}
			return printTokenStatus(cmd, opts, manager.Snapshot())
		},
	}

	cmd.Flags().BoolVar(&flagForce, "force", false, "Request a new access token even if the current one is valid")
	cmd.SilenceUsage = true

	return cmd
}

func init() {
	rootCmd.AddCommand(newTokenCmd(tokenOptions{
		manager:  sessionManager,
		now:      time.Now,
		jsonMode: GetJSONMode,
	}))
}
