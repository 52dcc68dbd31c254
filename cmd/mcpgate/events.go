package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/mcpgate/internal/events"
	"github.com/alfredjeanlab/mcpgate/internal/ui"
)

var eventsCmd = &cobra.Command{
	Use:     "events [topic]",
	Short:   "Stream gateway events from NATS",
	GroupID: "system",
	Long: `Print gateway events as they are published. The topic defaults to every
gateway topic (` + events.TopicAll + `); NATS wildcards are accepted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL, _ := cmd.Flags().GetString("nats-url")
		if natsURL == "" {
			return errors.New("no NATS URL (set --nats-url or MCPGATE_NATS_URL)")
		}
		topic := events.TopicAll
		if len(args) == 1 {
			topic = args[0]
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		sub, err := events.NewNATSSubscriber(natsURL,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				log.Printf("nats: disconnected: %v", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				log.Printf("nats: reconnected")
			}),
		)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer sub.Close()

		ch, cancel, err := sub.Subscribe(topic)
		if err != nil {
			return fmt.Errorf("subscribing to events: %w", err)
		}
		defer cancel()

		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-ch:
				if !ok {
					return nil
				}
				if jsonOutput {
					fmt.Println(string(msg.Data))
					continue
				}
				fmt.Printf("%s %s %s\n",
					ui.RenderMuted(time.Now().Format("15:04:05")),
					ui.RenderAccent(msg.Topic),
					msg.Data,
				)
			}
		}
	},
}

func init() {
	eventsCmd.Flags().String("nats-url", os.Getenv("MCPGATE_NATS_URL"), "NATS server URL")
}
