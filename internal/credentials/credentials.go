// Package credentials persists the session token, the cached user profile and
// the preferred stream transport across restarts.
package credentials

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/protomem/chatik/internal/models"
)

// Storage keys, shared by every backend.
const (
	KeyAccessToken = "accessToken"
	KeyCurrentUser = "currentUser"
	KeyEventsType  = "eventsType"
)

// Store is the durable credential store. Get never fails: missing or
// malformed data reads back as an empty Session. Set and Clear write through
// immediately.
type Store interface {
	Get() models.Session
	Set(models.Session) error
	Clear() error

	Transport() models.Transport
	SetTransport(models.Transport) error
}

// kv is the minimal key/value surface the backends share.
type kv interface {
	get(key string) (string, error)
	set(values map[string]string) error
	del(keys ...string) error
}

// kvStore implements Store on top of any kv backend.
type kvStore struct {
	kv     kv
	logger zerolog.Logger
}

func (s *kvStore) Get() models.Session {
	token, err := s.kv.get(KeyAccessToken)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read access token")
		return models.Session{}
	}
	if token == "" {
		return models.Session{}
	}

	raw, err := s.kv.get(KeyCurrentUser)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read current user")
		return models.Session{}
	}
	if raw == "" {
		return models.Session{Token: token}
	}

	var user models.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		s.logger.Warn().Err(err).Msg("stored user is malformed, ignoring")
		return models.Session{Token: token}
	}
	return models.Session{Token: token, User: &user}
}

func (s *kvStore) Set(session models.Session) error {
	values := map[string]string{KeyAccessToken: session.Token}
	if session.User != nil {
		data, err := json.Marshal(session.User)
		if err != nil {
			return err
		}
		values[KeyCurrentUser] = string(data)
	} else if err := s.kv.del(KeyCurrentUser); err != nil {
		return err
	}
	return s.kv.set(values)
}

func (s *kvStore) Clear() error {
	return s.kv.del(KeyAccessToken, KeyCurrentUser)
}

func (s *kvStore) Transport() models.Transport {
	raw, err := s.kv.get(KeyEventsType)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read transport preference")
		return models.DefaultTransport
	}
	if raw == "" {
		return models.DefaultTransport
	}
	t, err := models.ParseTransport(raw)
	if err != nil {
		s.logger.Warn().Str("value", raw).Msg("unknown stored transport, using default")
		return models.DefaultTransport
	}
	return t
}

func (s *kvStore) SetTransport(t models.Transport) error {
	return s.kv.set(map[string]string{KeyEventsType: string(t)})
}
