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

func messagesPath(channelID uuid.UUID) string {
	return "/channels/" + channelID.String() + "/messages"
}

func messagesKey(channelID uuid.UUID) string {
	return channelsKey + "/" + channelID.String() + "/messages"
}

type MessagesResponse struct {
	Messages []models.Message `json:"messages"`
}

type CreateMessageRequest struct {
	Content string `json:"content"`
}

type MessageResponse struct {
	Message models.Message `json:"message"`
}

// ListMessages returns the full message list of a channel, from the query
// cache when enabled.
func (c *Client) ListMessages(ctx context.Context, channelID uuid.UUID) ([]models.Message, error) {
	return cachedQuery(ctx, c, "messages.list", messagesKey(channelID), false, c.messagesFetcher(channelID))
}

// RefetchMessages skips the query cache and refreshes it with the result.
func (c *Client) RefetchMessages(ctx context.Context, channelID uuid.UUID) ([]models.Message, error) {
	return cachedQuery(ctx, c, "messages.list", messagesKey(channelID), true, c.messagesFetcher(channelID))
}

func (c *Client) messagesFetcher(channelID uuid.UUID) func(context.Context) ([]models.Message, error) {
	return func(ctx context.Context) ([]models.Message, error) {
		var resp MessagesResponse
		err := c.do(ctx, request{
			op:     "messages.list",
			method: http.MethodGet,
			path:   messagesPath(channelID),
			authed: true,
		}, &resp)
		if errors.Is(err, apperr.ErrNotFound) {
			// Same as channels: no messages is a 404.
			return []models.Message{}, nil
		}
		if err != nil {
			return nil, err
		}
		if resp.Messages == nil {
			resp.Messages = []models.Message{}
		}
		return resp.Messages, nil
	}
}

// CreateMessage posts a message to a channel.
func (c *Client) CreateMessage(ctx context.Context, channelID uuid.UUID, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.InvalidArg("message content is required")
	}

	var resp MessageResponse
	err := c.do(ctx, request{
		op:     "messages.create",
		method: http.MethodPost,
		path:   messagesPath(channelID),
		body:   CreateMessageRequest{Content: content},
		authed: true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	c.cache.invalidate(messagesKey(channelID))
	return &resp.Message, nil
}

// DeleteMessage deletes a message from a channel.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID uuid.UUID) error {
	err := c.do(ctx, request{
		op:     "messages.delete",
		method: http.MethodDelete,
		path:   messagesPath(channelID) + "/" + messageID.String(),
		authed: true,
	}, nil)
	if err != nil {
		return err
	}
	c.cache.invalidate(messagesKey(channelID))
	return nil
}
