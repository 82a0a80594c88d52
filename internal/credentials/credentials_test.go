package credentials

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/protomem/chatik/internal/db"
	"github.com/protomem/chatik/internal/models"
)

func testUser() *models.User {
	return &models.User{
		ID:        uuid.New(),
		Nickname:  "alice",
		Email:     "alice@example.com",
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func backends(t *testing.T) map[string]Store {
	t.Helper()

	cdb, err := db.NewClientDB(filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cdb.Close() })

	keyring.MockInit()

	return map[string]Store{
		"memory":  NewMemoryStore(),
		"sqlite":  NewDBStore(cdb, zerolog.Nop()),
		"keyring": NewKeyringStore("chatik-test", zerolog.Nop()),
	}
}

func TestStore_SetGetClear(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.True(t, store.Get().IsZero())

			user := testUser()
			require.NoError(t, store.Set(models.Session{Token: "t", User: user}))

			got := store.Get()
			assert.Equal(t, "t", got.Token)
			require.NotNil(t, got.User)
			assert.Equal(t, *user, *got.User)

			require.NoError(t, store.Clear())
			got = store.Get()
			assert.Equal(t, "", got.Token)
			assert.Nil(t, got.User)
		})
	}
}

func TestStore_SetWithoutUserDropsStaleProfile(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Set(models.Session{Token: "old", User: testUser()}))
			require.NoError(t, store.Set(models.Session{Token: "new"}))

			got := store.Get()
			assert.Equal(t, "new", got.Token)
			assert.Nil(t, got.User)
		})
	}
}

func TestStore_TransportPreference(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, models.TransportSSE, store.Transport())

			require.NoError(t, store.SetTransport(models.TransportWebSocket))
			assert.Equal(t, models.TransportWebSocket, store.Transport())
		})
	}
}

func TestStore_GetFailsSoft(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
		want   models.Session
	}{
		{
			name:   "empty",
			values: nil,
			want:   models.Session{},
		},
		{
			name:   "user without token",
			values: map[string]string{KeyCurrentUser: `{"nickname":"x"}`},
			want:   models.Session{},
		},
		{
			name:   "malformed user",
			values: map[string]string{KeyAccessToken: "t", KeyCurrentUser: "{not json"},
			want:   models.Session{Token: "t"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStoreWith(tt.values, zerolog.Nop())
			assert.Equal(t, tt.want, store.Get())
		})
	}
}

func TestStore_UnknownTransportFallsBack(t *testing.T) {
	store := NewMemoryStoreWith(map[string]string{KeyEventsType: "CARRIER_PIGEON"}, zerolog.Nop())
	assert.Equal(t, models.DefaultTransport, store.Transport())
}
