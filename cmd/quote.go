package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonandersen/tda/internal/output"
	"github.com/jonandersen/tda/pkg/tdapi"
)

// quoteOptions holds dependencies for the quote command.
type quoteOptions struct {
	client   *tdapi.Client
	jsonMode bool
}

// newQuoteCmd creates the quote command with the given options.
func newQuoteCmd(opts *quoteOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote SYMBOL [SYMBOL...]",
		Short: "Get quotes",
		Long: `Get quotes for one or more equity or option symbols.

Examples:
  tda quote AAPL                    # Get quote for Apple
  tda quote AAPL MSFT .AAPL210528C126  # Equities and an option
  tda quote AAPL --json             # Output in JSON format`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuote(cmd, opts, args)
		},
	}

	cmd.SilenceUsage = true

	return cmd
}

func runQuote(cmd *cobra.Command, opts *quoteOptions, symbols []string) error {
	ctx, cancel := context.WithTimeout(cmdContext(cmd), 30*time.Second)
	defer cancel()

	quotes, err := opts.client.GetQuotes(ctx, symbols)
	if err != nil {
		return fmt.Errorf("failed to fetch quotes: %w", err)
	}

	if len(quotes) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No quotes returned")
		return nil
	}

	formatter := output.New(cmd.OutOrStdout(), opts.jsonMode)
	headers := []string{"Symbol", "Last", "Change", "Bid", "Ask", "Volume"}
	rows := make([][]string, 0, len(quotes))
	for _, k := range sortedKeys(quotes) {
		q := quotes[k]
		rows = append(rows, []string{
			k,
			formatPrice(q.LastPrice),
			tdapi.FormatChange(q.NetChange),
			formatPrice(q.BidPrice),
			formatPrice(q.AskPrice),
			tdapi.FormatVolume(q.TotalVolume),
		})
	}

	return formatter.Table(headers, rows)
}

func formatPrice(p float64) string {
	if p == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", p)
}

func init() {
	opts := &quoteOptions{}
	quoteCmd := newQuoteCmd(opts)
	quoteCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		client, _, err := sessionClient(cmd)
		if err != nil {
			return err
		}
		opts.client = client
		opts.jsonMode = GetJSONMode()
		return nil
	}

	rootCmd.AddCommand(quoteCmd)
}
