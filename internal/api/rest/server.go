// Package rest exposes the host-facing HTTP API consumed by the game server.
package rest

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	zlog "github.com/rs/zerolog/log"

	"github.com/sndworks/boombox/internal/app/session"
	"github.com/sndworks/boombox/internal/app/stats"
	"github.com/sndworks/boombox/internal/infra/cloud"
)

// playerHeader carries the player identity assigned by the game server.
const playerHeader = "X-Player-ID"

// TokenCache is the subset of the auth provider the server needs.
type TokenCache interface {
	Invalidate(playerID string)
}

// Server holds the HTTP handlers for the playback API.
type Server struct {
	session *session.Manager
	tokens  TokenCache
}

// NewServer creates a new API server.
func NewServer(sm *session.Manager, tokens TokenCache) *Server {
	return &Server{
		session: sm,
		tokens:  tokens,
	}
}

// Router builds the chi router for the API.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/v1/playlists", s.handleGetPlaylists)
	r.Get("/v1/session", s.handleGetSession)
	r.Post("/v1/session/start", s.handleStartSession)
	r.Post("/v1/session/next", s.handleNextTrack)
	r.Post("/v1/session/skip", s.handleSkipTrack)
	r.Post("/v1/session/event", s.handleClientEvent)
	r.Delete("/v1/session", s.handleEndSession)

	return r
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			zlog.Error().Msgf("failed to encode response: %v", err)
		}
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// writeCoreError maps core errors to HTTP statuses.
func writeCoreError(w http.ResponseWriter, err error) {
	var apiErr *cloud.APIError
	switch {
	case errors.Is(err, session.ErrNoActiveSession):
		writeError(w, http.StatusNotFound, "no_active_session", err.Error())
	case errors.Is(err, session.ErrPlaylistNotFound):
		writeError(w, http.StatusNotFound, "playlist_not_found", err.Error())
	case errors.Is(err, stats.ErrAlreadyTracking):
		writeError(w, http.StatusConflict, "already_tracking", err.Error())
	case errors.Is(err, stats.ErrNotTracking):
		writeError(w, http.StatusConflict, "not_tracking", err.Error())
	case errors.Is(err, stats.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, cloud.ErrMissingField):
		writeError(w, http.StatusBadGateway, "malformed_backend_response", err.Error())
	case errors.As(err, &apiErr):
		writeError(w, http.StatusBadGateway, "backend_error", err.Error())
	default:
		zlog.Error().Msgf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func playerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(playerHeader)
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing_player_id", "missing "+playerHeader+" header")
		return "", false
	}
	return id, true
}

func (s *Server) handleGetPlaylists(w http.ResponseWriter, r *http.Request) {
	player, ok := playerID(w, r)
	if !ok {
		return
	}

	playlists, err := s.session.GetPlaylists(r.Context(), player)
	if err != nil {
		writeCoreError(w, err)
		return
	}

	type playlistEntry struct {
		PlaylistID  string `json:"playlistId"`
		Name        string `json:"name"`
		Description string `json:"description"`
		TrackCount  int    `json:"trackCount"`
		ImageURL    string `json:"imageUrl"`
	}
	entries := make([]playlistEntry, 0, len(playlists))
	for _, p := range playlists {
		entries = append(entries, playlistEntry{
			PlaylistID:  p.ID,
			Name:        p.Name,
			Description: p.Description,
			TrackCount:  p.TrackCount,
			ImageURL:    p.ImageURL,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"playlists": entries})
}

type startSessionRequest struct {
	PlaylistID string `json:"playlistId"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	player, ok := playerID(w, r)
	if !ok {
		return
	}

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlaylistID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "playlistId is required")
		return
	}

	view, err := s.session.StartPlaylistSession(r.Context(), player, req.PlaylistID)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	player, ok := playerID(w, r)
	if !ok {
		return
	}

	view, err := s.session.GetSession(player)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleNextTrack(w http.ResponseWriter, r *http.Request) {
	player, ok := playerID(w, r)
	if !ok {
		return
	}

	view, err := s.session.RequestNextTrack(r.Context(), player)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSkipTrack(w http.ResponseWriter, r *http.Request) {
	player, ok := playerID(w, r)
	if !ok {
		return
	}

	view, err := s.session.SkipTrack(r.Context(), player)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type clientEventRequest struct {
	Event string `json:"event"`
}

func (s *Server) handleClientEvent(w http.ResponseWriter, r *http.Request) {
	player, ok := playerID(w, r)
	if !ok {
		return
	}

	var req clientEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	event, err := stats.ParseEvent(req.Event)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown_event", err.Error())
		return
	}

	if err := s.session.RecordClientEvent(player, event); err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	player, ok := playerID(w, r)
	if !ok {
		return
	}

	if err := s.session.EndSession(player); err != nil {
		writeCoreError(w, err)
		return
	}
	s.tokens.Invalidate(player)
	writeJSON(w, http.StatusNoContent, nil)
}
