package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fanbilling",
	Short: "Fan subscription billing service",
	Long:  "Reconciles invoice, App Store and Google Play payment events into one order ledger and serves entitlement reads.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
