package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonandersen/tda/internal/logging"
	"github.com/jonandersen/tda/internal/output"
	"github.com/jonandersen/tda/internal/stream"
	"github.com/jonandersen/tda/pkg/tdapi"
)

// streamOptions holds dependencies for the stream commands.
type streamOptions struct {
	client    *tdapi.Client
	streamURL string
	logger    logging.Logger
	jsonMode  bool
}

// streamCheck is the JSON form of 'tda stream check'.
type streamCheck struct {
	URL     string `json:"url"`
	Account string `json:"account"`
	Login   bool   `json:"login"`
	QOS     *int   `json:"qos,omitempty"`
}

// newStreamCmd creates the stream command with the given options.
func newStreamCmd(opts *streamOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Streaming server commands",
	}

	cmd.AddCommand(newStreamCheckCmd(opts))

	return cmd
}

func newStreamCheckCmd(opts *streamOptions) *cobra.Command {
	var flagQOS int

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Log in to the streaming server and log out again",
		Long: `Fetch the streamer credentials, log in to the streaming server and log
out again. Useful to verify that the account can stream.

Examples:
  tda stream check
  tda stream check --qos 0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagQOS > int(stream.QOSDelayed) {
				return fmt.Errorf("--qos must be between 0 and %d", stream.QOSDelayed)
			}
			return runStreamCheck(cmd, opts, flagQOS)
		},
	}

	cmd.Flags().IntVar(&flagQOS, "qos", -1, "Also request this quality of service level (0 fastest, 5 slowest)")
	cmd.SilenceUsage = true

	return cmd
}

func runStreamCheck(cmd *cobra.Command, opts *streamOptions, qos int) error {
	ctx, cancel := context.WithTimeout(cmdContext(cmd), 30*time.Second)
	defer cancel()

	principals, err := opts.client.GetUserPrincipals(ctx, tdapi.FieldStreamerConnectionInfo)
	if err != nil {
		return fmt.Errorf("failed to fetch streamer info: %w", err)
	}

	dialOpts := []stream.Option{stream.WithLogger(opts.logger)}
	url := opts.streamURL
	if url != "" {
		dialOpts = append(dialOpts, stream.WithURL(url))
	} else if principals.StreamerInfo != nil {
		url = stream.SocketURL(principals.StreamerInfo)
	}

	conn, err := stream.Dial(ctx, principals, dialOpts...)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	if err := conn.Login(ctx); err != nil {
		return fmt.Errorf("stream login failed: %w", err)
	}

	result := streamCheck{URL: url, Account: principals.Accounts[0].AccountID, Login: true}
	fields := []output.Field{
		{Name: "Server", Value: result.URL},
		{Name: "Account", Value: result.Account},
		{Name: "Login", Value: "OK"},
	}

	if qos >= 0 {
		if err := conn.SetQOS(ctx, stream.QOSLevel(qos)); err != nil {
			return fmt.Errorf("failed to set QOS: %w", err)
		}
		result.QOS = &qos
		fields = append(fields, output.Field{Name: "QOS", Value: fmt.Sprintf("%d", qos)})
	}

	if err := conn.Logout(ctx); err != nil {
		return fmt.Errorf("stream logout failed: %w", err)
	}

	formatter := output.New(cmd.OutOrStdout(), opts.jsonMode)
	return formatter.Detail(result, fields)
}

func init() {
	opts := &streamOptions{}
	streamCmd := newStreamCmd(opts)
	streamCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		client, cfg, err := sessionClient(cmd)
		if err != nil {
			return err
		}
		opts.client = client
		opts.streamURL = cfg.StreamURL
		opts.logger = logging.New(cmd.ErrOrStderr(), cfg.LogLevel)
		opts.jsonMode = GetJSONMode()
		return nil
	}

	rootCmd.AddCommand(streamCmd)
}
