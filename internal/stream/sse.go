package stream

import (
	"context"
	"fmt"
	"net/http"

	"github.com/r3labs/sse/v2"
	backoffv1 "gopkg.in/cenkalti/backoff.v1"
)

type sseTransport struct {
	httpClient *http.Client
}

func newSSETransport(httpClient *http.Client) *sseTransport {
	hc := &http.Client{}
	if httpClient != nil {
		copied := *httpClient
		hc = &copied
	}
	// The stream is long-lived; a client timeout would cut it off.
	hc.Timeout = 0
	return &sseTransport{httpClient: hc}
}

func (t *sseTransport) run(ctx context.Context, endpoint string, opened func(), onFrame func([]byte)) error {
	client := sse.NewClient(endpoint)
	client.Connection = t.httpClient
	// Reconnects are owned by Client.Run.
	client.ReconnectStrategy = &backoffv1.StopBackOff{}
	client.ResponseValidator = func(_ *sse.Client, resp *http.Response) error {
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("unexpected status %s", resp.Status)
		}
		opened()
		return nil
	}

	return client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
		if len(msg.Data) == 0 {
			return
		}
		onFrame(msg.Data)
	})
}
