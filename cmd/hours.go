package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonandersen/tda/internal/output"
	"github.com/jonandersen/tda/pkg/tdapi"
)

// hoursOptions holds dependencies for the hours command.
type hoursOptions struct {
	client   *tdapi.Client
	jsonMode bool
	now      func() time.Time
}

// newHoursCmd creates the hours command with the given options.
func newHoursCmd(opts *hoursOptions) *cobra.Command {
	var flagDate string

	cmd := &cobra.Command{
		Use:   "hours [MARKET...]",
		Short: "View market hours",
		Long: `View trading hours for one or more markets.

Markets are EQUITY, OPTION, FUTURE, BOND and FOREX. Defaults to EQUITY today.

Examples:
  tda hours
  tda hours EQUITY OPTION --date 2021-05-28`,
		RunE: func(cmd *cobra.Command, args []string) error {
			markets := args
			if len(markets) == 0 {
				markets = []string{"EQUITY"}
			}

			date := opts.now()
			if flagDate != "" {
				var err error
				date, err = time.Parse(historyDateLayout, flagDate)
				if err != nil {
					return fmt.Errorf("invalid --date %q (want YYYY-MM-DD)", flagDate)
				}
			}
			return runHours(cmd, opts, markets, date)
		},
	}

	cmd.Flags().StringVar(&flagDate, "date", "", "Date (YYYY-MM-DD, default today)")
	cmd.SilenceUsage = true

	return cmd
}

func runHours(cmd *cobra.Command, opts *hoursOptions, markets []string, date time.Time) error {
	ctx, cancel := context.WithTimeout(cmdContext(cmd), 30*time.Second)
	defer cancel()

	hours, err := opts.client.GetMarketHours(ctx, markets, date)
	if err != nil {
		return fmt.Errorf("failed to fetch market hours: %w", err)
	}

	formatter := output.New(cmd.OutOrStdout(), opts.jsonMode)
	if opts.jsonMode {
		return formatter.Print(hours)
	}

	headers := []string{"Market", "Product", "Open", "Regular Session"}
	var rows [][]string
	for _, market := range sortedKeys(hours) {
		products := hours[market]
		for _, product := range sortedKeys(products) {
			h := products[product]
			rows = append(rows, []string{
				market,
				product,
				yesNo(h.IsOpen),
				formatSession(h.SessionHours["regularMarket"]),
			})
		}
	}

	if len(rows) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No market hours returned")
		return nil
	}
	return formatter.Table(headers, rows)
}

func formatSession(intervals []tdapi.Hours) string {
	if len(intervals) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(intervals))
	for _, iv := range intervals {
		parts = append(parts, iv.Start+" - "+iv.End)
	}
	return strings.Join(parts, ", ")
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	opts := &hoursOptions{now: time.Now}
	hoursCmd := newHoursCmd(opts)
	hoursCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		client, _, err := sessionClient(cmd)
		if err != nil {
			return err
		}
		opts.client = client
		opts.jsonMode = GetJSONMode()
		return nil
	}

	rootCmd.AddCommand(hoursCmd)
}
