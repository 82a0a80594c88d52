package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/protomem/chatik/client"
	"github.com/protomem/chatik/internal/state"
	"github.com/protomem/chatik/internal/stream"
)

var (
	watchChannel string
	watchBridge  bool
	watchAddr    string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the live event stream",
	Long: `Connects the event stream with the preferred transport and prints new
messages of the selected channel as they arrive.

With --bridge, a local HTTP server exposes the state to other front ends:
  GET  /api/state                  current snapshot
  GET  /ws                         snapshot push on every change
  GET  /api/preferences/transport  stream transport preference (PUT to change)
  POST /api/channels/{id}/select   select a channel
  POST /api/refresh                reload channels and messages
  GET  /metrics, /health`,
	RunE: withApp(runWatch),
}

func init() {
	watchCmd.Flags().StringVar(&watchChannel, "channel", "", "Channel ID to follow")
	watchCmd.Flags().BoolVar(&watchBridge, "bridge", false, "Serve the local HTTP bridge")
	watchCmd.Flags().StringVar(&watchAddr, "addr", "", "Bridge listen address (default from config)")
}

func runWatch(cmd *cobra.Command, a *app, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if err := a.requireSession(); err != nil {
		return err
	}
	if err := a.client.Refresh(ctx); err != nil {
		return err
	}
	if watchChannel != "" {
		id, err := uuid.Parse(watchChannel)
		if err != nil {
			return fmt.Errorf("invalid channel id %q", watchChannel)
		}
		if err := a.client.SelectChannel(ctx, id); err != nil {
			return err
		}
	}

	initial := a.client.State().Snapshot()
	for _, msg := range initial.Messages {
		printMessage(out, msg)
	}
	printer := newMessagePrinter(initial)
	a.client.State().Subscribe(func(s state.Snapshot) {
		printer.print(out, s)
	})
	a.client.OnStreamStateChange(func(s stream.State) {
		a.logger.Info().Stringer("state", s).Msg("stream")
	})

	var httpServer *http.Server
	if watchBridge {
		addr := watchAddr
		if addr == "" {
			addr = a.cfg.BridgeAddr
		}
		bridge := client.NewBridge(a.client, a.logger)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("bridge listen: %w", err)
		}
		httpServer = &http.Server{
			Handler:           bridge.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error().Err(err).Msg("bridge server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			bridge.CloseClients()
			httpServer.Shutdown(shutdownCtx)
		}()
		a.logger.Info().Str("addr", ln.Addr().String()).Msg("bridge listening")
	}

	if err := a.client.Connect(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		a.logger.Info().Msg("shutting down")
	case <-a.client.StreamDone():
		// Without reconnect a closed stream stays closed.
		if httpServer == nil {
			return fmt.Errorf("event stream %s", a.client.StreamState())
		}
		a.logger.Warn().Msg("event stream ended; bridge keeps serving the last state")
		<-ctx.Done()
	}
	return nil
}

// messagePrinter prints messages the first time a snapshot contains them.
type messagePrinter struct {
	mu   sync.Mutex
	seen map[uuid.UUID]bool
}

func newMessagePrinter(initial state.Snapshot) *messagePrinter {
	p := &messagePrinter{seen: make(map[uuid.UUID]bool)}
	for _, msg := range initial.Messages {
		p.seen[msg.ID] = true
	}
	return p
}

func (p *messagePrinter) print(w io.Writer, s state.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, msg := range s.Messages {
		if p.seen[msg.ID] {
			continue
		}
		p.seen[msg.ID] = true
		printMessage(w, msg)
	}
}
