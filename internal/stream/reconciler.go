package stream

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/protomem/chatik/internal/metrics"
	"github.com/protomem/chatik/internal/models"
	"github.com/protomem/chatik/internal/protocol"
)

// Target is the part of the local state the reconciler writes to.
// *state.Store satisfies it.
type Target interface {
	AddMessage(models.Message) bool
	RemoveMessage(uuid.UUID) bool
	AddChannel(models.Channel) bool
	RemoveChannel(uuid.UUID) bool
}

// Reconciler folds stream events into local state.
type Reconciler struct {
	target Target
	logger zerolog.Logger
}

var _ protocol.Handler = (*Reconciler)(nil)

func NewReconciler(target Target, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		target: target,
		logger: logger.With().Str("component", "reconciler").Logger(),
	}
}

// ApplyFrame decodes one frame and applies it. A malformed frame is logged,
// counted and returned as an error; it never changes state.
func (r *Reconciler) ApplyFrame(frame []byte) error {
	event, err := protocol.Decode(frame)
	if err != nil {
		metrics.StreamMalformedEvents.Inc()
		r.logger.Warn().Err(err).Int("size", len(frame)).Msg("ignoring malformed stream frame")
		return err
	}
	event.Apply(r)
	metrics.StreamEventsTotal.WithLabelValues(string(event.Type())).Inc()
	return nil
}

// HandleNewMessage adds the message only when it belongs to the current
// channel; the store enforces that under its lock.
func (r *Reconciler) HandleNewMessage(e protocol.NewMessage) {
	if !r.target.AddMessage(e.Message) {
		r.logger.Debug().
			Str("message_id", e.Message.ID.String()).
			Str("channel_id", e.Message.ChannelID.String()).
			Msg("new message not applied")
	}
}

// HandleRemoveMessage removes the message by id regardless of its channel.
func (r *Reconciler) HandleRemoveMessage(e protocol.RemoveMessage) {
	r.target.RemoveMessage(e.MessageID)
}

func (r *Reconciler) HandleNewChannel(e protocol.NewChannel) {
	r.target.AddChannel(e.Channel)
}

// HandleRemoveChannel removes the channel; if it was current the store also
// clears the selection and the message set.
func (r *Reconciler) HandleRemoveChannel(e protocol.RemoveChannel) {
	r.target.RemoveChannel(e.ChannelID)
}
