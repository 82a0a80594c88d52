package credentials

import (
	"github.com/rs/zerolog"

	"github.com/protomem/chatik/internal/db"
)

type dbKV struct {
	db *db.ClientDB
}

func (d dbKV) get(key string) (string, error)       { return d.db.GetPreference(key) }
func (d dbKV) set(values map[string]string) error { return d.db.SetPreferences(values) }
func (d dbKV) del(keys ...string) error            { return d.db.DeletePreferences(keys...) }

// NewDBStore returns a Store backed by the sqlite client database.
func NewDBStore(database *db.ClientDB, logger zerolog.Logger) Store {
	return &kvStore{
		kv:     dbKV{db: database},
		logger: logger.With().Str("component", "credentials").Str("backend", "sqlite").Logger(),
	}
}
