package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonandersen/tda/internal/auth"
)

// loginOptions holds dependencies for the login and logout commands.
type loginOptions struct {
	manager managerFactory
	in      io.Reader
}

// newLoginCmd creates the login command with the given options.
func newLoginCmd(opts loginOptions) *cobra.Command {
	var (
		flagCallback bool
		flagListen   string
		flagTimeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize the CLI with your TD Ameritrade account",
		Long: `Log in through the TD Ameritrade login page and store new tokens.

By default the login URL is printed and you paste back the URL the browser
was redirected to. With --callback the CLI listens on the redirect URI and
captures the code itself; use an http:// redirect URI for that.

Examples:
  tda login
  tda login --callback
  tda login --callback --listen 127.0.0.1:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var authorizer auth.Authorizer
			if flagCallback {
				authorizer = &auth.CallbackAuthorizer{Out: cmd.OutOrStdout(), Addr: flagListen}
			} else {
				authorizer = &auth.PasteAuthorizer{In: opts.in, Out: cmd.OutOrStdout()}
			}
			return runLogin(cmd, opts, authorizer, flagTimeout)
		},
	}

	cmd.Flags().BoolVar(&flagCallback, "callback", false, "Capture the redirect with a local HTTP listener")
	cmd.Flags().StringVar(&flagListen, "listen", "", "Listen address for --callback (default: host of the redirect URI)")
	cmd.Flags().DurationVar(&flagTimeout, "timeout", auth.DefaultAuthorizeTimeout, "How long to wait for the login to complete")
	cmd.SilenceUsage = true

	return cmd
}

func runLogin(cmd *cobra.Command, opts loginOptions, authorizer auth.Authorizer, timeout time.Duration) error {
	manager, err := opts.manager(cmd, authorizer)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdContext(cmd), timeout)
	defer cancel()

	if err := manager.Bootstrap(ctx); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	rec := manager.Snapshot()
	_, _ = fmt.Fprintln(cmd.OutOrStdout())
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Login successful!")
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Access token valid until %s\n", formatExpiry(rec.AccessTokenExpiry))
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Refresh token valid until %s\n", formatExpiry(rec.RefreshTokenExpiry))
	return nil
}

// newLogoutCmd creates the logout command with the given options.
func newLogoutCmd(opts loginOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored tokens",
		Long: `Remove the stored access and refresh tokens.

The client ID and redirect URI are kept, so 'tda login' works right away.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := opts.manager(cmd, nil)
			if err != nil {
				return err
			}
			if err := manager.Logout(cmdContext(cmd)); err != nil {
				return fmt.Errorf("logout failed: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}

	cmd.SilenceUsage = true

	return cmd
}

// formatExpiry renders a unix expiry for humans.
func formatExpiry(expiry int64) string {
	if expiry <= 0 {
		return "-"
	}
	return time.Unix(expiry, 0).Local().Format(time.RFC3339)
}

func init() {
	opts := loginOptions{manager: sessionManager, in: os.Stdin}
	rootCmd.AddCommand(newLoginCmd(opts))
	rootCmd.AddCommand(newLogoutCmd(opts))
}
