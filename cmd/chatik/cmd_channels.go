package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List channels",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if err := a.requireSession(); err != nil {
			return err
		}
		if err := a.client.Refresh(cmd.Context()); err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tOWNER\tCREATED")
		for _, ch := range a.client.State().Channels() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ch.ID, ch.Title, ch.Owner.Nickname, ch.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	}),
}

var channelsCreateCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a channel",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if err := a.requireSession(); err != nil {
			return err
		}
		ch, err := a.client.CreateChannel(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created channel %q (%s)\n", ch.Title, ch.ID)
		return nil
	}),
}

var channelsDeleteCmd = &cobra.Command{
	Use:   "delete [channel-id]",
	Short: "Delete a channel you own",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		if err := a.requireSession(); err != nil {
			return err
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid channel id %q", args[0])
		}
		if err := a.client.DeleteChannel(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted channel %s\n", id)
		return nil
	}),
}

func init() {
	channelsCmd.AddCommand(channelsCreateCmd, channelsDeleteCmd)
}
