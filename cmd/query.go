package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/knotx-labs/knotx-relayer/config"
	"github.com/knotx-labs/knotx-relayer/core"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// messagesCmd represents the messages command
func messagesCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "messages",
		Aliases: []string{"msg"},
		Short:   "Query the persisted messages",
		RunE:    noCommand,
	}

	cmd.AddCommand(
		getMessageCmd(ctx),
		listMessagesCmd(ctx),
	)

	return cmd
}

func getMessageCmd(ctx *config.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "get [message-id]",
		Short: "Show one message by its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStoreOnly(cmd.Context(), ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			m, err := st.GetMessage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, m)
		},
	}
}

func listMessagesCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List messages, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := messageFilter(cmd.Flags())
			if err != nil {
				return err
			}

			st, err := openStoreOnly(cmd.Context(), ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			msgs, err := st.ListMessages(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printJSON(cmd, msgs)
		},
	}
	cmd.Flags().String(flagSource, "", "source chain name")
	cmd.Flags().String(flagDestination, "", "destination chain name")
	return limitFlags(statusFlag(cmd, "PENDING, DELIVERED or FAILED"), 100)
}

func messageFilter(fs *pflag.FlagSet) (core.MessageFilter, error) {
	status, _ := fs.GetString(flagStatus)
	source, _ := fs.GetString(flagSource)
	destination, _ := fs.GetString(flagDestination)
	limit, _ := fs.GetInt(flagLimit)
	offset, _ := fs.GetInt(flagOffset)

	filter := core.MessageFilter{
		Status:           core.MessageStatus(strings.ToUpper(status)),
		SourceChain:      source,
		DestinationChain: destination,
		Limit:            limit,
		Offset:           offset,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return filter, fmt.Errorf("unknown status %q", status)
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return filter, fmt.Errorf("limit and offset must not be negative")
	}
	return filter, nil
}

func cursorsCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cursors",
		Short: "Query the listener cursors",
		RunE:  noCommand,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the cursor of every source chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStoreOnly(cmd.Context(), ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			cursors, err := st.ListCursors(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, cursors)
		},
	})
	return cmd
}

func deadLettersCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deadletters",
		Aliases: []string{"dl"},
		Short:   "Inspect and close dead letters",
		RunE:    noCommand,
	}
	cmd.AddCommand(
		listDeadLettersCmd(ctx),
		resolveDeadLetterCmd(ctx),
	)
	return cmd
}

func listDeadLettersCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead letters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString(flagStatus)
			chain, _ := cmd.Flags().GetString(flagChain)
			limit, _ := cmd.Flags().GetInt(flagLimit)

			st, err := openStoreOnly(cmd.Context(), ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			dls, err := st.ListDeadLetters(cmd.Context(), core.DeadLetterFilter{
				Chain:  chain,
				Status: core.DeadLetterStatus(strings.ToUpper(status)),
				Limit:  limit,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, dls)
		},
	}
	cmd.Flags().String(flagChain, "", "source chain name")
	cmd.Flags().Int(flagLimit, 100, "maximum number of entries to return")
	return statusFlag(cmd, "OPEN or RESOLVED")
}

func resolveDeadLetterCmd(ctx *config.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [chain] [nonce]",
		Short: "Mark a dead letter as resolved so the listener stops retrying it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			nonce, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid nonce %q: %w", args[1], err)
			}

			st, err := openStoreOnly(cmd.Context(), ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.ResolveDeadLetter(cmd.Context(), args[0], nonce); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dead letter %s/%d resolved\n", args[0], nonce)
			return nil
		},
	}
}
