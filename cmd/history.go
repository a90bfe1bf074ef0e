package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonandersen/tda/internal/output"
	"github.com/jonandersen/tda/pkg/tdapi"
)

// historyOptions holds dependencies for the history command.
type historyOptions struct {
	client   *tdapi.Client
	jsonMode bool
}

// historyFlags are the command line values of the history command.
type historyFlags struct {
	periodType    string
	period        int
	frequencyType string
	frequency     int
	start         string
	end           string
	extended      bool
}

const historyDateLayout = "2006-01-02"

// priceHistoryOptions converts the flags into request options.
func (f historyFlags) priceHistoryOptions() (tdapi.PriceHistoryOptions, error) {
	opts := tdapi.PriceHistoryOptions{
		PeriodType:            tdapi.PeriodType(f.periodType),
		Period:                f.period,
		FrequencyType:         tdapi.FrequencyType(f.frequencyType),
		Frequency:             f.frequency,
		NeedExtendedHoursData: f.extended,
	}
	if f.start != "" {
		t, err := time.Parse(historyDateLayout, f.start)
		if err != nil {
			return opts, fmt.Errorf("invalid --start date %q (want YYYY-MM-DD)", f.start)
		}
		opts.StartDate = t
	}
	if f.end != "" {
		t, err := time.Parse(historyDateLayout, f.end)
		if err != nil {
			return opts, fmt.Errorf("invalid --end date %q (want YYYY-MM-DD)", f.end)
		}
		opts.EndDate = t
	}
	return opts, opts.Validate()
}

// newHistoryCmd creates the history command with the given options.
func newHistoryCmd(opts *historyOptions) *cobra.Command {
	var flags historyFlags

	cmd := &cobra.Command{
		Use:   "history SYMBOL",
		Short: "View price history",
		Long: `View price history candles for a symbol.

Period types and their frequency types:
  day    minute (1, 5, 10, 15, 30)
  month  daily, weekly
  year   daily, weekly, monthly
  ytd    daily, weekly

Examples:
  tda history AAPL                                           # 10 days of 1-minute bars
  tda history AAPL --period-type month --period 1 --frequency-type daily
  tda history AAPL --period-type year --frequency-type weekly --start 2021-01-01 --end 2021-06-01`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqOpts, err := flags.priceHistoryOptions()
			if err != nil {
				return err
			}
			return runHistory(cmd, opts, args[0], reqOpts)
		},
	}

	cmd.Flags().StringVar(&flags.periodType, "period-type", string(tdapi.PeriodDay), "Period type: day, month, year or ytd")
	cmd.Flags().IntVar(&flags.period, "period", 10, "Number of periods")
	cmd.Flags().StringVar(&flags.frequencyType, "frequency-type", string(tdapi.FrequencyMinute), "Frequency type: minute, daily, weekly or monthly")
	cmd.Flags().IntVar(&flags.frequency, "frequency", 1, "Number of frequency units per candle")
	cmd.Flags().StringVar(&flags.start, "start", "", "Start date (YYYY-MM-DD), overrides --period")
	cmd.Flags().StringVar(&flags.end, "end", "", "End date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&flags.extended, "extended", false, "Include extended hours data")
	cmd.SilenceUsage = true

	return cmd
}

func runHistory(cmd *cobra.Command, opts *historyOptions, symbol string, reqOpts tdapi.PriceHistoryOptions) error {
	ctx, cancel := context.WithTimeout(cmdContext(cmd), 30*time.Second)
	defer cancel()

	history, err := opts.client.GetPriceHistory(ctx, symbol, reqOpts)
	if err != nil {
		return fmt.Errorf("failed to fetch price history: %w", err)
	}

	formatter := output.New(cmd.OutOrStdout(), opts.jsonMode)
	if history.Empty || len(history.Candles) == 0 {
		if opts.jsonMode {
			return formatter.Print(history)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No price history found")
		return nil
	}

	headers := []string{"Time", "Open", "High", "Low", "Close", "Volume"}
	rows := make([][]string, 0, len(history.Candles))
	for _, c := range history.Candles {
		rows = append(rows, []string{
			time.UnixMilli(c.Datetime).UTC().Format("2006-01-02 15:04"),
			fmt.Sprintf("%.2f", c.Open),
			fmt.Sprintf("%.2f", c.High),
			fmt.Sprintf("%.2f", c.Low),
			fmt.Sprintf("%.2f", c.Close),
			tdapi.FormatVolume(c.Volume),
		})
	}

	return formatter.Table(headers, rows)
}

func init() {
	opts := &historyOptions{}
	historyCmd := newHistoryCmd(opts)
	historyCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		client, _, err := sessionClient(cmd)
		if err != nil {
			return err
		}
		opts.client = client
		opts.jsonMode = GetJSONMode()
		return nil
	}

	rootCmd.AddCommand(historyCmd)
}
