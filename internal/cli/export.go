package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"crypto-price-tracker/internal/app"
)

var (
	exportFrom      string
	exportTo        string
	exportTokens    []string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export price samples as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens, err := parseTokens(exportTokens)
		if err != nil {
			return err
		}

		opts := app.ExportOptions{
			Tokens:    tokens,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}

		if exportFrom != "" {
			from, err := time.Parse(time.RFC3339, exportFrom)
			if err != nil {
				return fmt.Errorf("invalid --from value: %w", err)
			}
			opts.From = &from
		}

		if exportTo != "" {
			to, err := time.Parse(time.RFC3339, exportTo)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
			opts.To = &to
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Start timestamp (RFC3339, inclusive, defaults to 24h before --to)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "End timestamp (RFC3339, exclusive, defaults to now)")
	exportCmd.Flags().StringSliceVar(&exportTokens, "token", nil, "Tokens to export (defaults to all)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points per token (defaults to config)")
}
