// Package tailnet runs an embedded tsnet node so the client can reach a
// chatik API that is only exposed inside a tailnet.
package tailnet

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"tailscale.com/tsnet"
)

// Node is a running tailnet node.
type Node struct {
	srv    *tsnet.Server
	logger zerolog.Logger
}

// Start brings a node up as hostname, keeping its state under dataDir.
func Start(ctx context.Context, hostname, dataDir string, logger zerolog.Logger) (*Node, error) {
	logger = logger.With().Str("component", "tailnet").Str("hostname", hostname).Logger()

	srv := &tsnet.Server{
		Hostname: hostname,
		Dir:      filepath.Join(dataDir, "tailnet-state"),
		Logf: func(format string, args ...any) {
			logger.Debug().Msgf(format, args...)
		},
	}

	logger.Info().Msg("starting tailnet node")
	if _, err := srv.Up(ctx); err != nil {
		srv.Close()
		return nil, fmt.Errorf("tailnet up: %w", err)
	}
	return &Node{srv: srv, logger: logger}, nil
}

// HTTPClient returns a client whose connections go through the tailnet.
func (n *Node) HTTPClient(timeout time.Duration) *http.Client {
	hc := n.srv.HTTPClient()
	hc.Timeout = timeout
	return hc
}

// Dialer returns a WebSocket dialer whose connections go through the tailnet.
func (n *Node) Dialer() *websocket.Dialer {
	return &websocket.Dialer{
		NetDialContext:   n.srv.Dial,
		HandshakeTimeout: 45 * time.Second,
	}
}

// Close shuts the node down.
func (n *Node) Close() error {
	n.logger.Info().Msg("stopping tailnet node")
	return n.srv.Close()
}
