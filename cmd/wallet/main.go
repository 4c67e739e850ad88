// Package main: custodial wallet service.
//
// serve runs the RESTful API and the webhook endpoint, explore re-queries pending transfers at an interval and
// events logs the wallet events consumed from the message broker. balance, tx and reconcile are one-shot commands
// for operators.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // command line flags
var (
	confPath string
	monitor  bool
)

var rootCmd = &cobra.Command{ //nolint:gochecknoglobals // cobra root command
	Use:          "wallet",
	Short:        "Custodial wallet service",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&confPath, "config", "c", "", "get configuration from json file")
	rootCmd.PersistentFlags().BoolVarP(&monitor, "monitor", "m", false,
		"serve Prometheus metrics at http://localhost:9100/metrics")

	rootCmd.AddCommand(serveCmd, exploreCmd, eventsCmd, balanceCmd, txCmd, reconcileCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
