package cli

import (
	"github.com/spf13/cobra"

	"crypto-price-tracker/internal/app"
)

var sampleSkipAlerts bool

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Fetch and store prices once, then evaluate alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Sample(cmd.Context(), app.SampleOptions{SkipAlerts: sampleSkipAlerts})
	},
}

func init() {
	sampleCmd.Flags().BoolVar(&sampleSkipAlerts, "skip-alerts", false, "Store samples without evaluating alerts")
}
