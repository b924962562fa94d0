/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/assignhub/apiserver/config"
	"github.com/assignhub/apiserver/internal/mq"
	"github.com/assignhub/apiserver/types"
	"github.com/spf13/cobra"
)

var eventsChannel string

// eventsCmd groups assignment event tooling.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect assignment events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print assignment events from the configured broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if queue == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer queue.Close()

		channel := eventsChannel
		if channel == "" {
			channel = cfg.MQ.UploadedChannel
		}

		out := json.NewEncoder(cmd.OutOrStdout())
		err = queue.Subscribe(ctx, channel, func(ctx context.Context, msg mq.Message) error {
			var event types.AssignmentEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipping message %s: %v\n", msg.ID, err)
				return nil
			}
			return out.Encode(event)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)

	eventsTailCmd.Flags().StringVar(&eventsChannel, "channel", "", "channel to tail (defaults to MQ_UPLOADED_CHANNEL)")
}
