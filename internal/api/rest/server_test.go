package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sndworks/boombox/internal/app/session"
	"github.com/sndworks/boombox/internal/app/stats"
	"github.com/sndworks/boombox/internal/domain/playlist"
	"github.com/sndworks/boombox/internal/domain/track"
	"github.com/sndworks/boombox/internal/infra/cloud"
)

type fakeBackend struct {
	nextErr error
}

func (b *fakeBackend) StartSession(ctx context.Context, playerID, playlistID, format string) (string, *track.Track, error) {
	return "S1", &track.Track{ID: "T1", Title: "First", AssetKey: "k1"}, nil
}

func (b *fakeBackend) NextTrack(ctx context.Context, playerID string, req cloud.TransitionRequest) (*track.Track, error) {
	if b.nextErr != nil {
		return nil, b.nextErr
	}
	return &track.Track{ID: "T2", Title: "Second", AssetKey: "k2"}, nil
}

func (b *fakeBackend) SkipTrack(ctx context.Context, playerID string, req cloud.TransitionRequest) (*track.Track, error) {
	return b.NextTrack(ctx, playerID, req)
}

func (b *fakeBackend) GetPlaylists(ctx context.Context, playerID string) ([]playlist.Playlist, error) {
	return []playlist.Playlist{{ID: "P1", Name: "Synthwave", TrackCount: 40}}, nil
}

type noopEntitlements struct{}

func (noopEntitlements) Ensure(ctx context.Context, playerID string) error { return nil }

type passthroughSealer struct{}

func (passthroughSealer) SealFor(playerID, rawKey string) (string, error) {
	return "sealed-" + rawKey, nil
}

type fakeTokens struct {
	invalidated []string
}

func (f *fakeTokens) Invalidate(playerID string) {
	f.invalidated = append(f.invalidated, playerID)
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeBackend, *fakeTokens) {
	t.Helper()
	backend := &fakeBackend{}
	mgr := session.NewManager(backend, noopEntitlements{}, passthroughSealer{}, stats.NewTracker(), "opus_96")
	tokens := &fakeTokens{}
	server := httptest.NewServer(NewServer(mgr, tokens).Router())
	t.Cleanup(server.Close)
	return server, backend, tokens
}

func doRequest(t *testing.T, server *httptest.Server, method, path, player string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, server.URL+path, reader)
	require.NoError(t, err)
	if player != "" {
		req.Header.Set("X-Player-ID", player)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func startSession(t *testing.T, server *httptest.Server, player string) {
	t.Helper()
	resp := doRequest(t, server, http.MethodGet, "/v1/playlists", player, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, server, http.MethodPost, "/v1/session/start", player, map[string]string{"playlistId": "P1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMissingPlayerHeader(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := doRequest(t, server, http.MethodGet, "/v1/playlists", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetPlaylists(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := doRequest(t, server, http.MethodGet, "/v1/playlists", "42", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Playlists []struct {
			PlaylistID string `json:"playlistId"`
			Name       string `json:"name"`
		} `json:"playlists"`
	}
	decodeJSON(t, resp, &body)
	require.Len(t, body.Playlists, 1)
	assert.Equal(t, "P1", body.Playlists[0].PlaylistID)
}

func TestStartSession(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := doRequest(t, server, http.MethodGet, "/v1/playlists", "42", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, server, http.MethodPost, "/v1/session/start", "42", map[string]string{"playlistId": "P1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view session.View
	decodeJSON(t, resp, &view)
	assert.Equal(t, "S1", view.SessionID)
	assert.Equal(t, 1, view.TracksPlayed)
	assert.Equal(t, "sealed-k1", view.Track.SealedKey)
}

func TestStartSession_UnknownPlaylist(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := doRequest(t, server, http.MethodGet, "/v1/playlists", "42", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, server, http.MethodPost, "/v1/session/start", "42", map[string]string{"playlistId": "P9"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartSession_MissingPlaylistID(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := doRequest(t, server, http.MethodPost, "/v1/session/start", "42", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetSession(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := doRequest(t, server, http.MethodGet, "/v1/session", "42", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	startSession(t, server, "42")

	resp = doRequest(t, server, http.MethodGet, "/v1/session", "42", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view session.View
	decodeJSON(t, resp, &view)
	assert.Equal(t, "S1", view.SessionID)
	assert.Equal(t, "P1", view.PlaylistID)
}

func TestNextTrack(t *testing.T) {
	server, _, _ := newTestServer(t)
	startSession(t, server, "42")

	resp := doRequest(t, server, http.MethodPost, "/v1/session/next", "42", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view session.View
	decodeJSON(t, resp, &view)
	assert.Equal(t, 2, view.TracksPlayed)
	assert.Equal(t, "T2", view.Track.ID)
}

func TestNextTrack_NoSession(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := doRequest(t, server, http.MethodPost, "/v1/session/next", "42", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body struct {
		Code string `json:"code"`
	}
	decodeJSON(t, resp, &body)
	assert.Equal(t, "no_active_session", body.Code)
}

func TestNextTrack_BackendFailure(t *testing.T) {
	server, backend, _ := newTestServer(t)
	startSession(t, server, "42")

	backend.nextErr = &cloud.APIError{Status: 503, Message: "unavailable"}
	resp := doRequest(t, server, http.MethodPost, "/v1/session/next", "42", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestClientEvent(t *testing.T) {
	server, _, _ := newTestServer(t)
	startSession(t, server, "42")

	resp := doRequest(t, server, http.MethodPost, "/v1/session/event", "42", map[string]string{"event": "PAUSED"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Double pause is an invalid state
	resp = doRequest(t, server, http.MethodPost, "/v1/session/event", "42", map[string]string{"event": "PAUSED"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestClientEvent_UnknownEvent(t *testing.T) {
	server, _, _ := newTestServer(t)
	startSession(t, server, "42")

	resp := doRequest(t, server, http.MethodPost, "/v1/session/event", "42", map[string]string{"event": "REWOUND"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEndSession(t *testing.T) {
	server, _, tokens := newTestServer(t)
	startSession(t, server, "42")

	resp := doRequest(t, server, http.MethodDelete, "/v1/session", "42", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"42"}, tokens.invalidated)

	// Session is gone
	resp = doRequest(t, server, http.MethodPost, "/v1/session/next", "42", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
