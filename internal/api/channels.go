package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/protomem/chatik/internal/apperr"
	"github.com/protomem/chatik/internal/models"
)

const channelsKey = "channels"

type ChannelsResponse struct {
	Channels []models.Channel `json:"channels"`
}

type CreateChannelRequest struct {
	Title string `json:"title"`
}

type ChannelResponse struct {
	Channel models.Channel `json:"channel"`
}

// ListChannels returns every channel visible to the session, from the query
// cache when enabled.
func (c *Client) ListChannels(ctx context.Context) ([]models.Channel, error) {
	return cachedQuery(ctx, c, "channels.list", channelsKey, false, c.fetchChannels)
}

// RefetchChannels skips the query cache and refreshes it with the result.
func (c *Client) RefetchChannels(ctx context.Context) ([]models.Channel, error) {
	return cachedQuery(ctx, c, "channels.list", channelsKey, true, c.fetchChannels)
}

func (c *Client) fetchChannels(ctx context.Context) ([]models.Channel, error) {
	var resp ChannelsResponse
	err := c.do(ctx, request{
		op:     "channels.list",
		method: http.MethodGet,
		path:   "/channels",
		authed: true,
	}, &resp)
	if errors.Is(err, apperr.ErrNotFound) {
		// The API answers an empty list with 404.
		return []models.Channel{}, nil
	}
	if err != nil {
		return nil, err
	}
	if resp.Channels == nil {
		resp.Channels = []models.Channel{}
	}
	return resp.Channels, nil
}

// CreateChannel creates a channel owned by the session user.
func (c *Client) CreateChannel(ctx context.Context, title string) (*models.Channel, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.InvalidArg("channel title is required")
	}

	var resp ChannelResponse
	err := c.do(ctx, request{
		op:     "channels.create",
		method: http.MethodPost,
		path:   "/channels",
		body:   CreateChannelRequest{Title: title},
		authed: true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	c.cache.invalidate(channelsKey)
	return &resp.Channel, nil
}

// DeleteChannel deletes a channel.
func (c *Client) DeleteChannel(ctx context.Context, id uuid.UUID) error {
	err := c.do(ctx, request{
		op:     "channels.delete",
		method: http.MethodDelete,
		path:   "/channels/" + id.String(),
		authed: true,
	}, nil)
	if err != nil {
		return err
	}
	c.cache.invalidate(channelsKey)
	return nil
}
