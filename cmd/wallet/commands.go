package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tarancss/custody/explorer"
	"github.com/tarancss/custody/lib/logger"
	"github.com/tarancss/custody/lib/msg"
	"github.com/tarancss/custody/wallet"
)

var serveCmd = &cobra.Command{ //nolint:gochecknoglobals // cobra command
	Use:   "serve",
	Short: "Serve the RESTful API and the webhook endpoint",
	RunE: func(_ *cobra.Command, _ []string) error {
		conf, w, err := load()
		if err != nil {
			return err
		}
		defer logger.Sync()

		// capture CTRL+C or docker's SIGTERM for gracious exit
		finish := make(chan struct{})

		go func() {
			sigchan := make(chan os.Signal, 1)
			signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
			<-sigchan
			logger.Log.Info("program killed")
			// do last actions and wait for all write operations to end
			w.StopWallet()
			close(finish)
		}()

		// init RESTful API, wait for its return and log response
		logger.Log.Info("wallet stopped",
			zap.String("result", w.Init(conf.RestfulEndpoint, conf.Port, conf.SSLPort, conf.SSLCert, conf.SSLKey)))

		<-finish

		return nil
	},
}

var exploreCmd = &cobra.Command{ //nolint:gochecknoglobals // cobra command
	Use:   "explore",
	Short: "Re-query pending transfers at an interval until stopped",
	RunE: func(cmd *cobra.Command, _ []string) error {
		every, _ := cmd.Flags().GetDuration("every")
		batch, _ := cmd.Flags().GetInt("batch")

		_, w, err := load()
		if err != nil {
			return err
		}
		defer logger.Sync()
		defer w.StopWallet()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		e := explorer.New(w, every, batch)
		ret := e.Explore(ctx)

		logger.Log.Info("explorer stopped", zap.String("result", <-ret))

		return nil
	},
}

var eventsCmd = &cobra.Command{ //nolint:gochecknoglobals // cobra command
	Use:   "events",
	Short: "Log the wallet events consumed from the message broker",
	RunE: func(_ *cobra.Command, _ []string) error {
		_, w, err := load()
		if err != nil {
			return err
		}
		defer logger.Sync()
		defer w.StopWallet()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return w.ManageEvents(ctx, func(e msg.Event) {
			logger.Log.Info("wallet event", zap.String("kind", e.Kind), zap.String("net", e.Net),
				zap.String("hash", e.Hash), zap.String("prev", e.Prev), zap.String("status", e.Status),
				zap.Time("time", e.Time))
		})
	},
}

// oneShot loads the wallet service, runs f with a bounded context and prints its result as JSON.
func oneShot(cmd *cobra.Command, f func(ctx context.Context, w *wallet.Wallet) (interface{}, error)) error {
	conf, w, err := load()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer w.StopWallet()

	ctx, cancel := context.WithTimeout(cmd.Context(), 4*conf.CallTimeout())
	defer cancel()

	res, err := f(ctx, w)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	return enc.Encode(res)
}

var balanceCmd = &cobra.Command{ //nolint:gochecknoglobals // cobra command
	Use:   "balance <address>",
	Short: "Print the live balance of an address, saving it when it is a custodial wallet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return oneShot(cmd, func(ctx context.Context, w *wallet.Wallet) (interface{}, error) {
			return w.Refresh(ctx, args[0])
		})
	},
}

var txCmd = &cobra.Command{ //nolint:gochecknoglobals // cobra command
	Use:   "tx <hash>",
	Short: "Print the details of a transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return oneShot(cmd, func(ctx context.Context, w *wallet.Wallet) (interface{}, error) {
			return w.Transaction(ctx, args[0])
		})
	},
}

var reconcileCmd = &cobra.Command{ //nolint:gochecknoglobals // cobra command
	Use:   "reconcile",
	Short: "Re-query pending transfers once and record the ones mined or failed",
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		return oneShot(cmd, func(ctx context.Context, w *wallet.Wallet) (interface{}, error) {
			n, err := w.ReconcilePending(ctx, limit)

			return map[string]int{"changed": n}, err
		})
	},
}

func init() {
	exploreCmd.Flags().Duration("every", explorer.IntervalDefault, "time between reconciliation rounds")
	exploreCmd.Flags().Int("batch", explorer.BatchDefault, "pending transfers re-queried per round")
	reconcileCmd.Flags().Int("limit", wallet.DefaultReconcileLimit, "pending transfers re-queried")
}
