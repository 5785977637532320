package cli

import (
	"github.com/spf13/cobra"
)

var testEmailTo string

var testEmailCmd = &cobra.Command{
	Use:   "test-email",
	Short: "Send the test email through the configured SMTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SendTestEmail(cmd.Context(), testEmailTo)
	},
}

func init() {
	testEmailCmd.Flags().StringVar(&testEmailTo, "to", "", "Recipient address (defaults to alerting.default_recipient)")
}
