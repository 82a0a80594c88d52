package credentials

import (
	"errors"

	"github.com/rs/zerolog"
	"github.com/zalando/go-keyring"
)

// KeyringService is the service name entries are stored under.
const KeyringService = "chatik"

type keyringKV struct {
	service string
}

func (k keyringKV) get(key string) (string, error) {
	value, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	return value, err
}

func (k keyringKV) set(values map[string]string) error {
	for key, value := range values {
		if err := keyring.Set(k.service, key, value); err != nil {
			return err
		}
	}
	return nil
}

func (k keyringKV) del(keys ...string) error {
	for _, key := range keys {
		if err := keyring.Delete(k.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return err
		}
	}
	return nil
}

// NewKeyringStore returns a Store backed by the operating system keyring.
func NewKeyringStore(service string, logger zerolog.Logger) Store {
	if service == "" {
		service = KeyringService
	}
	return &kvStore{
		kv:     keyringKV{service: service},
		logger: logger.With().Str("component", "credentials").Str("backend", "keyring").Logger(),
	}
}
