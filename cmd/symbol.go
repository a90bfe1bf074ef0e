package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jonandersen/tda/internal/output"
	"github.com/jonandersen/tda/pkg/tdapi"
)

// newSymbolCmd creates the symbol command.
func newSymbolCmd(jsonMode func() bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "symbol SYMBOL [SYMBOL...]",
		Short: "Show how symbols are sent to the API",
		Long: `Classify symbols and print the form the API expects.

Options use the dotted form .UNDERLYINGYYMMDD[C|P]STRIKE and are
rewritten to UNDERLYING_MMDDYY[C|P]STRIKE. Futures keep their leading slash.

Examples:
  tda symbol aapl
  tda symbol .AAPL210528C126
  tda symbol ./ESZ23`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0, len(args))
			for _, arg := range args {
				parsed, err := tdapi.ClassifySymbol(arg)
				if err != nil {
					return err
				}
				rows = append(rows, []string{arg, parsed.Type.String(), parsed.Wire})
			}

			formatter := output.New(cmd.OutOrStdout(), jsonMode())
			return formatter.Table([]string{"Input", "Type", "Symbol"}, rows)
		},
	}

	cmd.SilenceUsage = true

	return cmd
}

func init() {
	rootCmd.AddCommand(newSymbolCmd(GetJSONMode))
}
