// Package api is the typed REST client for the chatik API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/protomem/chatik/internal/apperr"
	"github.com/protomem/chatik/internal/metrics"
)

// TokenSource yields the bearer token for authenticated calls; "" means
// there is no session.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

// Options configures a Client.
type Options struct {
	HTTPClient *http.Client
	CacheTTL   time.Duration // 0 disables the query cache
	Logger     zerolog.Logger
}

// Client is a chatik API client. Every call is a single request/response:
// no retries, no backoff.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     zerolog.Logger

	cache *queryCache
	group singleflight.Group
}

// NewClient creates a new API client rooted at baseURL (for example
// http://localhost:8080/api/v1).
func NewClient(baseURL string, tokens TokenSource, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		tokens:     tokens,
		logger:     opts.Logger.With().Str("component", "api").Logger(),
		cache:      newQueryCache(opts.CacheTTL),
	}
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// InvalidateCache drops every cached query result.
func (c *Client) InvalidateCache() {
	c.cache.invalidate("")
}

// InvalidateChannels drops the cached channel list.
func (c *Client) InvalidateChannels() {
	c.cache.invalidate(channelsKey)
}

// InvalidateMessages drops the cached message list of a channel, or of every
// channel when channelID is uuid.Nil.
func (c *Client) InvalidateMessages(channelID uuid.UUID) {
	if channelID == uuid.Nil {
		c.cache.invalidate(channelsKey + "/")
		return
	}
	c.cache.invalidate(messagesKey(channelID))
}

type errorResponse struct {
	Error string `json:"error"`
}

// request describes one API call.
type request struct {
	op     string // metric/log label, e.g. "channels.list"
	method string
	path   string
	body   any
	authed bool
	auth   bool // auth endpoint: client errors mean bad credentials
}

// do performs an HTTP request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, r request, out any) error {
	var token string
	if r.authed {
		token = c.tokens.Token()
		if token == "" {
			return fmt.Errorf("%s: %w", r.op, apperr.ErrUnauthenticated)
		}
	}

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", r.op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", r.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.APIRequestDuration.WithLabelValues(r.op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues(r.op, "error").Inc()
		c.logger.Debug().Err(err).Str("op", r.op).Msg("request failed")
		return apperr.Wrap(apperr.CodeNetwork, r.op+": request failed", err)
	}
	defer resp.Body.Close()
	metrics.APIRequestsTotal.WithLabelValues(r.op, strconv.Itoa(resp.StatusCode)).Inc()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrap(apperr.CodeNetwork, r.op+": read response", err)
	}

	if resp.StatusCode >= 400 {
		return c.statusError(r, resp.StatusCode, respBody)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return apperr.Wrap(apperr.CodeServer, r.op+": invalid response", err)
	}
	return nil
}

func (c *Client) statusError(r request, status int, body []byte) error {
	var errResp errorResponse
	_ = json.Unmarshal(body, &errResp)
	msg := errResp.Error
	if msg == "" {
		msg = http.StatusText(status)
	}
	msg = fmt.Sprintf("%s: %s", r.op, msg)

	c.logger.Debug().Str("op", r.op).Int("status", status).Msg(msg)

	var code apperr.Code
	switch {
	case status >= 500:
		code = apperr.CodeServer
	case r.auth:
		code = apperr.CodeAuth
	case status == http.StatusUnauthorized:
		code = apperr.CodeUnauthenticated
	case status == http.StatusNotFound:
		code = apperr.CodeNotFound
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		code = apperr.CodeInvalidArgument
	default:
		code = apperr.CodeServer
	}
	return apperr.WithStatus(code, status, msg)
}

// cachedQuery serves a list query from the cache, or fetches it once for all
// concurrent callers with the same token and key. A fresh query always goes
// to the server and only shares the cache as a write target.
func cachedQuery[T any](ctx context.Context, c *Client, op, key string, fresh bool, fetch func(ctx context.Context) ([]T, error)) ([]T, error) {
	token := c.tokens.Token()
	if token == "" {
		return nil, fmt.Errorf("%s: %w", op, apperr.ErrUnauthenticated)
	}

	if fresh {
		gen := c.cache.generation()
		items, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.cache.put(key, token, items, gen)
		return slices.Clone(items), nil
	}

	if v, ok := c.cache.get(key, token); ok {
		metrics.APICacheHits.WithLabelValues(op).Inc()
		return slices.Clone(v.([]T)), nil
	}

	v, err, _ := c.group.Do(token+"|"+key, func() (any, error) {
		gen := c.cache.generation()
		items, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.cache.put(key, token, items, gen)
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]T)), nil
}
