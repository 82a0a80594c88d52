package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/protomem/chatik/internal/models"
)

var transportCmd = &cobra.Command{
	Use:   "transport",
	Short: "Show the preferred stream transport",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), a.client.Transport())
		return nil
	}),
}

var transportSetCmd = &cobra.Command{
	Use:       "set [sse|ws]",
	Short:     "Choose the stream transport for the next connection",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"sse", "ws", "SSE", "WEBSOCKET"},
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		t, err := models.ParseTransport(args[0])
		if err != nil {
			return err
		}
		if err := a.client.SetTransport(t); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Transport set to %s\n", t)
		return nil
	}),
}

func init() {
	transportCmd.AddCommand(transportSetCmd)
}
