// Package protocol defines the frames pushed by the chatik event stream.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/protomem/chatik/internal/apperr"
	"github.com/protomem/chatik/internal/models"
)

// EventType identifies the kind of a stream frame.
type EventType string

const (
	TypeNewMessage    EventType = "newMessage"
	TypeRemoveMessage EventType = "removeMessage"
	TypeNewChannel    EventType = "newChannel"
	TypeRemoveChannel EventType = "removeChannel"
)

// Envelope wraps every stream frame with a type field.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is one of NewMessage, RemoveMessage, NewChannel or RemoveChannel.
// The set is closed: the unexported method keeps other packages from adding
// kinds, and Apply routes each kind to its own Handler method.
type Event interface {
	Type() EventType
	Apply(Handler)
	validate() error
}

// Handler receives decoded events. Implementations must handle every kind,
// so adding a kind here breaks every reconciler at compile time.
type Handler interface {
	HandleNewMessage(NewMessage)
	HandleRemoveMessage(RemoveMessage)
	HandleNewChannel(NewChannel)
	HandleRemoveChannel(RemoveChannel)
}

// NewMessage is pushed when a message is posted to any channel.
type NewMessage struct {
	Message models.Message `json:"message"`
}

// RemoveMessage is pushed when a message is deleted.
type RemoveMessage struct {
	MessageID uuid.UUID `json:"messageId"`
}

// NewChannel is pushed when a channel is created.
type NewChannel struct {
	Channel models.Channel `json:"channel"`
}

// RemoveChannel is pushed when a channel is deleted.
type RemoveChannel struct {
	ChannelID uuid.UUID `json:"channelId"`
}

func (NewMessage) Type() EventType    { return TypeNewMessage }
func (RemoveMessage) Type() EventType { return TypeRemoveMessage }
func (NewChannel) Type() EventType    { return TypeNewChannel }
func (RemoveChannel) Type() EventType { return TypeRemoveChannel }

func (e NewMessage) Apply(h Handler)    { h.HandleNewMessage(e) }
func (e RemoveMessage) Apply(h Handler) { h.HandleRemoveMessage(e) }
func (e NewChannel) Apply(h Handler)    { h.HandleNewChannel(e) }
func (e RemoveChannel) Apply(h Handler) { h.HandleRemoveChannel(e) }

func (e NewMessage) validate() error {
	if e.Message.ID == uuid.Nil || e.Message.ChannelID == uuid.Nil {
		return errors.New("message id and channel id are required")
	}
	return nil
}

func (e RemoveMessage) validate() error {
	if e.MessageID == uuid.Nil {
		return errors.New("messageId is required")
	}
	return nil
}

func (e NewChannel) validate() error {
	if e.Channel.ID == uuid.Nil {
		return errors.New("channel id is required")
	}
	return nil
}

func (e RemoveChannel) validate() error {
	if e.ChannelID == uuid.Nil {
		return errors.New("channelId is required")
	}
	return nil
}

type decoder func(json.RawMessage) (Event, error)

// decoders is the dispatch table keyed on the frame type.
var decoders = map[EventType]decoder{
	TypeNewMessage:    decodeAs[NewMessage],
	TypeRemoveMessage: decodeAs[RemoveMessage],
	TypeNewChannel:    decodeAs[NewChannel],
	TypeRemoveChannel: decodeAs[RemoveChannel],
}

func decodeAs[E Event](raw json.RawMessage) (Event, error) {
	var e E
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return e, nil
}

// Decode parses one frame. Every failure wraps apperr.ErrMalformedEvent.
func Decode(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, apperr.Malformed("invalid frame", err)
	}

	decode, ok := decoders[env.Type]
	if !ok {
		return nil, apperr.Malformed(fmt.Sprintf("unknown event type %q", env.Type), nil)
	}

	payload := bytes.TrimSpace(env.Payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return nil, apperr.Malformed(fmt.Sprintf("%s: missing payload", env.Type), nil)
	}

	event, err := decode(payload)
	if err != nil {
		return nil, apperr.Malformed(fmt.Sprintf("%s: invalid payload", env.Type), err)
	}
	if err := event.validate(); err != nil {
		return nil, apperr.Malformed(fmt.Sprintf("%s: invalid payload", env.Type), err)
	}
	return event, nil
}

// NewEnvelope creates an envelope for the given event.
func NewEnvelope(e Event) (*Envelope, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Type:    e.Type(),
		Payload: raw,
	}, nil
}

// Encode marshals an event into a wire frame.
func Encode(e Event) ([]byte, error) {
	env, err := NewEnvelope(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}
