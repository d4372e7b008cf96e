package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ThreeSixtyGiving/Dashboard/internal/amqp"
	"github.com/ThreeSixtyGiving/Dashboard/internal/format"
	"github.com/ThreeSixtyGiving/Dashboard/internal/log"
)

var (
	refreshReason  string
	refreshWait    bool
	refreshTimeout time.Duration
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Ask the refresh worker to download the registry now",
	Long: `Publish a refresh request for registry-worker. With --wait the command
blocks until the worker announces the refresh it made for this request.

Requires AMQP_URL.

Examples:
  registryctl refresh
  registryctl refresh --wait --timeout 2m --reason "publisher asked for update"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.AMQPURL == "" {
			return errors.New("AMQP_URL is not set: refresh requests need a broker")
		}

		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			return fmt.Errorf("connect to broker: %w", err)
		}
		defer client.Close()

		ctx := cmd.Context()
		var events <-chan *amqp.RegistryRefreshed
		if refreshWait {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, refreshTimeout)
			defer cancel()
			// Subscribe before publishing so a fast worker is not missed.
			events, err = client.SubscribeRefreshed(ctx)
			if err != nil {
				return fmt.Errorf("subscribe to refresh events: %w", err)
			}
		}

		requestedBy, _ := os.Hostname()
		msg := amqp.NewRefreshRequest(refreshReason, requestedBy)
		if err := client.PublishRefreshRequest(ctx, msg); err != nil {
			return fmt.Errorf("publish refresh request: %w", err)
		}
		logger.Info("Refresh requested", "id", msg.ID, log.FieldOperation, log.OpPublish)
		fmt.Fprintf(cmd.OutOrStdout(), "Refresh requested (id %s)\n", msg.ID)

		if !refreshWait {
			return nil
		}
		for {
			select {
			case <-ctx.Done():
				return fmt.Errorf("no refresh announced within %v", refreshTimeout)
			case ev, ok := <-events:
				if !ok {
					if ctx.Err() != nil {
						return fmt.Errorf("no refresh announced within %v", refreshTimeout)
					}
					return errors.New("broker connection closed before the refresh was announced")
				}
				if ev.RequestID != msg.ID {
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registry refreshed: %s from %s, fetched %s\n",
					format.Plural(ev.Records, "file"), ev.URL, format.Ago(ev.FetchedAt, time.Now()))
				if ev.Malformed > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s could not be parsed\n", format.Plural(ev.Malformed, "date"))
				}
				return nil
			}
		}
	},
}

func init() {
	refreshCmd.Flags().StringVar(&refreshReason, "reason", "manual", "reason recorded with the request")
	refreshCmd.Flags().BoolVarP(&refreshWait, "wait", "w", false, "wait for the worker to announce the refresh")
	refreshCmd.Flags().DurationVar(&refreshTimeout, "timeout", time.Minute, "how long --wait waits")
	rootCmd.AddCommand(refreshCmd)
}
