package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/knotx-labs/knotx-relayer/config"
	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/spf13/cobra"
)

// transactionCmd represents the tx command
func transactionCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Relay Transaction Commands",
		Long:  "Commands to push messages through the orchestrator without a listener",
		RunE:  noCommand,
	}

	cmd.AddCommand(
		relayMessageCmd(ctx),
	)

	return cmd
}

func relayMessageCmd(ctx *config.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "relay [message-json-file]",
		Short: "Validate, persist and deliver one message",
		Long: "Reads a message in its JSON form and relays it exactly as a listener would. " +
			"An empty message_id is derived from source_chain and nonce.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := readMessage(args[0])
			if err != nil {
				return err
			}

			r, err := newRelayer(cmd.Context(), ctx, false)
			if err != nil {
				return err
			}
			defer r.Close()

			outcome := r.orchestrator.Relay(cmd.Context(), msg)
			if err := printJSON(cmd, outcome); err != nil {
				return err
			}
			if !outcome.Success {
				return fmt.Errorf("message %s was not delivered: %s", outcome.MessageID, outcome.Error)
			}
			return nil
		},
	}
}

func readMessage(path string) (*core.CanonicalMessage, error) {
	bz, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var msg core.CanonicalMessage
	if err := json.Unmarshal(bz, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode message %s: %w", path, err)
	}
	if msg.MessageID == "" {
		msg.MessageID = core.MessageIDFor(msg.SourceChain, msg.Nonce)
	}
	if msg.PayloadHash == "" {
		msg.PayloadHash = core.PayloadHash(msg.Payload)
	}
	if msg.ObservedAt.IsZero() {
		msg.ObservedAt = time.Now().UTC()
	}
	return &msg, nil
}
