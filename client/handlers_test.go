package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protomem/chatik/internal/models"
)

type stateResponse struct {
	Type  string `json:"type"`
	State struct {
		Version        uint64           `json:"version"`
		User           *models.User     `json:"user"`
		Channels       []models.Channel `json:"channels"`
		CurrentChannel *models.Channel  `json:"currentChannel"`
	} `json:"state"`
	Stream string `json:"stream"`
}

func newBridge(t *testing.T, f *fixture) *httptest.Server {
	b := NewBridge(f.client, zerolog.Nop())
	srv := httptest.NewServer(b.Routes())
	t.Cleanup(func() {
		b.CloseClients()
		srv.Close()
	})
	return srv
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestBridge_Health(t *testing.T) {
	f := newFixture(t)
	srv := newBridge(t, f)

	resp := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBridge_Metrics(t *testing.T) {
	f := newFixture(t)
	srv := newBridge(t, f)

	resp := do(t, http.MethodGet, srv.URL+"/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "chatik_stream_state")
}

func TestBridge_RefreshSelectAndState(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	general := f.srv.SeedChannel(f.user, "general")
	srv := newBridge(t, f)

	resp := do(t, http.MethodPost, srv.URL+"/api/refresh", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/api/channels/"+general.ID.String()+"/select", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/state", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got stateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "state", got.Type)
	assert.Equal(t, "disconnected", got.Stream)
	require.Len(t, got.State.Channels, 1)
	require.NotNil(t, got.State.CurrentChannel)
	assert.Equal(t, general.ID, got.State.CurrentChannel.ID)
	require.NotNil(t, got.State.User)
	assert.Equal(t, "alice", got.State.User.Nickname)
}

func TestBridge_SelectErrors(t *testing.T) {
	f := newFixture(t)
	srv := newBridge(t, f)

	resp := do(t, http.MethodPost, srv.URL+"/api/channels/not-a-uuid/select", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/api/channels/"+uuid.NewString()+"/select", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBridge_RefreshWithoutSession(t *testing.T) {
	f := newFixture(t)
	srv := newBridge(t, f)

	resp := do(t, http.MethodPost, srv.URL+"/api/refresh", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "UNAUTHENTICATED", body["code"])
}

func TestBridge_TransportPreference(t *testing.T) {
	f := newFixture(t)
	srv := newBridge(t, f)

	resp := do(t, http.MethodGet, srv.URL+"/api/preferences/transport", "")
	var pref transportPreference
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pref))
	assert.Equal(t, models.TransportSSE, pref.Transport)

	resp = do(t, http.MethodPut, srv.URL+"/api/preferences/transport", `{"transport":"ws"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pref))
	assert.Equal(t, models.TransportWebSocket, pref.Transport)
	assert.Equal(t, models.TransportWebSocket, f.client.Transport())

	resp = do(t, http.MethodPut, srv.URL+"/api/preferences/transport", `{"transport":"smoke"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBridge_WebSocketPushesSnapshots(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	srv := newBridge(t, f)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.DialContext(context.Background(), wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() stateResponse {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var frame stateResponse
		require.NoError(t, conn.ReadJSON(&frame))
		return frame
	}

	initial := read()
	assert.Equal(t, "state", initial.Type)
	assert.Empty(t, initial.State.Channels)

	ch := f.srv.SeedChannel(f.user, "general")
	f.client.State().AddChannel(ch)

	next := read()
	assert.Equal(t, "state", next.Type)
	assert.Greater(t, next.State.Version, initial.State.Version)
	require.Len(t, next.State.Channels, 1)
	assert.Equal(t, ch.ID, next.State.Channels[0].ID)
}
