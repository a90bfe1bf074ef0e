package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonandersen/tda/internal/output"
	"github.com/jonandersen/tda/pkg/tdapi"
)

// accountOptions holds dependencies for the account command.
type accountOptions struct {
	client           *tdapi.Client
	jsonMode         bool
	defaultAccountID string
}

// newAccountCmd creates the account command with the given options.
func newAccountCmd(opts *accountOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "View account information",
		Long: `View your TD Ameritrade accounts, balances, and positions.

Examples:
  tda account              # List all accounts
  tda account portfolio    # View positions (requires --account or default account)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAccountList(cmd, opts)
		},
	}

	cmd.SilenceUsage = true

	// Add portfolio subcommand
	cmd.AddCommand(newPortfolioCmd(opts))

	return cmd
}

func runAccountList(cmd *cobra.Command, opts *accountOptions) error {
	ctx, cancel := context.WithTimeout(cmdContext(cmd), 30*time.Second)
	defer cancel()

	accounts, err := opts.client.GetAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch accounts: %w", err)
	}

	if len(accounts) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No accounts found")
		return nil
	}

	formatter := output.New(cmd.OutOrStdout(), opts.jsonMode)
	if opts.jsonMode {
		return formatter.Print(accounts)
	}

	headers := []string{"Account ID", "Type", "Day Trader", "Round Trips", "Liquidation Value"}
	rows := make([][]string, 0, len(accounts))
	for _, acc := range accounts {
		liquidation := "-"
		if acc.CurrentBalances != nil {
			liquidation = formatMoney(acc.CurrentBalances.LiquidationVal)
		}
		rows = append(rows, []string{
			acc.AccountID,
			acc.Type,
			yesNo(acc.IsDayTrader),
			strconv.Itoa(acc.RoundTrips),
			liquidation,
		})
	}

	return formatter.Table(headers, rows)
}

func newPortfolioCmd(opts *accountOptions) *cobra.Command {
	var flagAccountID string

	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "View positions and balances",
		Long: `View the balances and positions of an account.

Uses the default account from config if --account is not specified.

Examples:
  tda account portfolio                     # Use default account
  tda account portfolio --account 123456789`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID := flagAccountID
			if accountID == "" {
				accountID = opts.defaultAccountID
			}
			if accountID == "" {
				return fmt.Errorf("account ID is required (use --account flag or set account_id in the config file)")
			}
			return runPortfolio(cmd, opts, accountID)
		},
	}

	cmd.Flags().StringVarP(&flagAccountID, "account", "a", "", "Account ID (uses default if configured)")
	cmd.SilenceUsage = true

	return cmd
}

func runPortfolio(cmd *cobra.Command, opts *accountOptions, accountID string) error {
	ctx, cancel := context.WithTimeout(cmdContext(cmd), 30*time.Second)
	defer cancel()

	account, err := opts.client.GetAccount(ctx, accountID, "positions")
	if err != nil {
		return fmt.Errorf("failed to fetch portfolio: %w", err)
	}

	formatter := output.New(cmd.OutOrStdout(), opts.jsonMode)
	if opts.jsonMode {
		return formatter.Print(account)
	}

	out := cmd.OutOrStdout()
	if b := account.CurrentBalances; b != nil {
		_, _ = fmt.Fprintf(out, "Liquidation Value: %s\n", formatMoney(b.LiquidationVal))
		_, _ = fmt.Fprintf(out, "Cash Balance: %s\n", formatMoney(b.CashBalance))
		_, _ = fmt.Fprintf(out, "Buying Power: %s\n\n", formatMoney(b.BuyingPower))
	}

	if len(account.Positions) == 0 {
		_, _ = fmt.Fprintln(out, "No positions")
		return nil
	}

	headers := []string{"Symbol", "Type", "Qty", "Avg Price", "Value"}
	rows := make([][]string, 0, len(account.Positions))
	for _, pos := range account.Positions {
		qty := pos.LongQuantity - pos.ShortQuantity
		rows = append(rows, []string{
			pos.Instrument.Symbol,
			pos.Instrument.AssetType,
			strconv.FormatFloat(qty, 'f', -1, 64),
			fmt.Sprintf("%.2f", pos.AveragePrice),
			formatMoney(pos.MarketValue),
		})
	}

	return formatter.Table(headers, rows)
}

func formatMoney(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return fmt.Sprintf("$%.2f", v)
}

func init() {
	opts := &accountOptions{}
	accountCmd := newAccountCmd(opts)
	accountCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		client, cfg, err := sessionClient(cmd)
		if err != nil {
			return err
		}
		opts.client = client
		opts.jsonMode = GetJSONMode()
		opts.defaultAccountID = cfg.AccountID
		return nil
	}

	rootCmd.AddCommand(accountCmd)
}
