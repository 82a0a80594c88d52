package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/protomem/chatik/internal/models"
)

var messagesCmd = &cobra.Command{
	Use:   "messages [channel-id]",
	Short: "Show the messages of a channel",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if err := selectChannel(cmd.Context(), a, args[0]); err != nil {
			return err
		}
		for _, msg := range a.client.State().Messages() {
			printMessage(cmd.OutOrStdout(), msg)
		}
		return nil
	}),
}

var messagesSendCmd = &cobra.Command{
	Use:   "send [channel-id] [content]",
	Short: "Post a message",
	Args:  cobra.MinimumNArgs(2),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if err := selectChannel(cmd.Context(), a, args[0]); err != nil {
			return err
		}
		msg, err := a.client.SendMessage(cmd.Context(), strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent %s\n", msg.ID)
		return nil
	}),
}

var messagesDeleteCmd = &cobra.Command{
	Use:   "delete [channel-id] [message-id]",
	Short: "Delete a message",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if err := selectChannel(cmd.Context(), a, args[0]); err != nil {
			return err
		}
		id, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid message id %q", args[1])
		}
		if err := a.client.DeleteMessage(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted message %s\n", id)
		return nil
	}),
}

func init() {
	messagesCmd.AddCommand(messagesSendCmd, messagesDeleteCmd)
}

// selectChannel loads the channel list and makes rawID current.
func selectChannel(ctx context.Context, a *app, rawID string) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid channel id %q", rawID)
	}
	if err := a.client.Refresh(ctx); err != nil {
		return err
	}
	return a.client.SelectChannel(ctx, id)
}

func printMessage(w io.Writer, msg models.Message) {
	fmt.Fprintf(w, "%s  %-12s %s\n", msg.CreatedAt.Local().Format("15:04:05"), msg.Author.Nickname, msg.Content)
}
