package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"crypto-price-tracker/internal/app"
)

var (
	showLimit int
	showToken string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent price samples",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit: showLimit,
			Token: showToken,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Display pending target alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListAlerts(cmd.Context())
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of samples to display")
	showCmd.Flags().StringVar(&showToken, "token", "", "Only show samples for this token (ethereum or matic)")
}
