// Package session owns per-player playlist sessions and drives the
// start/next/skip protocol against the licensing backend.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/sndworks/boombox/internal/app/stats"
	"github.com/sndworks/boombox/internal/domain/playlist"
	"github.com/sndworks/boombox/internal/domain/telemetry"
	"github.com/sndworks/boombox/internal/domain/track"
	"github.com/sndworks/boombox/internal/infra/cloud"
)

var (
	ErrNoActiveSession  = errors.New("no active playlist session for player")
	ErrPlaylistNotFound = errors.New("playlist not in player catalog")
)

// Backend is the subset of the cloud client the manager needs.
type Backend interface {
	StartSession(ctx context.Context, playerID, playlistID, format string) (string, *track.Track, error)
	NextTrack(ctx context.Context, playerID string, req cloud.TransitionRequest) (*track.Track, error)
	SkipTrack(ctx context.Context, playerID string, req cloud.TransitionRequest) (*track.Track, error)
	GetPlaylists(ctx context.Context, playerID string) ([]playlist.Playlist, error)
}

// Entitlements confirms a player's bundle entitlement.
type Entitlements interface {
	Ensure(ctx context.Context, playerID string) error
}

// Sealer encrypts raw asset keys per player.
type Sealer interface {
	SealFor(playerID, rawKey string) (string, error)
}

// Session represents one player's active playlist session.
type Session struct {
	ID           string      // Session ID issued by the backend
	PlaylistID   string      // Active playlist
	Track        track.Track // Current track, raw
	TracksPlayed int         // Monotonically increasing
}

// View is the host-facing projection of a session. The track carries the
// player-sealed asset key instead of the raw one.
type View struct {
	SessionID    string            `json:"sessionId"`
	PlaylistID   string            `json:"playlistId"`
	TracksPlayed int               `json:"tracksPlayed"`
	Track        track.ClientTrack `json:"track"`
}

// playerState holds one player's session and catalog. Its mutex serializes
// session transitions for that player; the HTTP surface gives no
// single-in-flight guarantee.
type playerState struct {
	mu      sync.Mutex
	session *Session
	catalog playlist.Catalog
}

// Manager mediates all session-transition calls against the backend, pairing
// a telemetry payload from the tracker with each transition.
type Manager struct {
	mu      sync.Mutex
	players map[string]*playerState

	tracker      *stats.Tracker
	backend      Backend
	entitlements Entitlements
	sealer       Sealer
	format       string
	now          func() time.Time
}

// NewManager creates a new session manager.
func NewManager(backend Backend, entitlements Entitlements, sealer Sealer, tracker *stats.Tracker, format string) *Manager {
	return &Manager{
		players:      make(map[string]*playerState),
		tracker:      tracker,
		backend:      backend,
		entitlements: entitlements,
		sealer:       sealer,
		format:       format,
		now:          time.Now,
	}
}

// SetClock injects a clock. Tests only.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

func (m *Manager) player(playerID string) *playerState {
	m.mu.Lock()
	defer m.mu.Unlock()

	ps, ok := m.players[playerID]
	if !ok {
		ps = &playerState{}
		m.players[playerID] = ps
	}
	return ps
}

// GetPlaylists confirms the player's entitlement, fetches the playlist
// catalog and stores it for later session validation.
func (m *Manager) GetPlaylists(ctx context.Context, playerID string) ([]playlist.Playlist, error) {
	if err := m.entitlements.Ensure(ctx, playerID); err != nil {
		return nil, errors.Wrap(err, "entitlement check failed")
	}

	playlists, err := m.backend.GetPlaylists(ctx, playerID)
	if err != nil {
		return nil, err
	}

	catalog := make(playlist.Catalog, len(playlists))
	for _, p := range playlists {
		catalog[p.ID] = p
	}

	ps := m.player(playerID)
	ps.mu.Lock()
	ps.catalog = catalog
	ps.mu.Unlock()

	zlog.Info().Msgf("catalog fetched: player_id=%s playlist_count=%d", playerID, len(playlists))
	return playlists, nil
}

// StartPlaylistSession starts a playlist session for a player. The playlist
// must be present in the player's catalog. An already-active session is
// superseded; the backend defines no terminate call for the old one.
func (m *Manager) StartPlaylistSession(ctx context.Context, playerID, playlistID string) (*View, error) {
	ps := m.player(playerID)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.catalog.Contains(playlistID) {
		return nil, errors.Wrapf(ErrPlaylistNotFound, "playlist %s", playlistID)
	}

	if ps.session != nil {
		zlog.Warn().Msgf("superseding active session: player_id=%s old_session_id=%s", playerID, ps.session.ID)
	}

	sessionID, first, err := m.backend.StartSession(ctx, playerID, playlistID, m.format)
	if err != nil {
		return nil, err
	}

	// Local state changes only after the backend confirms.
	m.tracker.Discard(playerID)
	if err := m.tracker.StartTrack(playerID); err != nil {
		return nil, err
	}

	ps.session = &Session{
		ID:           sessionID,
		PlaylistID:   playlistID,
		Track:        *first,
		TracksPlayed: 1,
	}

	zlog.Info().Msgf("session started: player_id=%s session_id=%s playlist_id=%s track_id=%s", playerID, sessionID, playlistID, first.ID)
	return m.viewLocked(playerID, ps.session)
}

// RequestNextTrack finalizes the current track's statistics, reports them
// with endStreamReason "completed" and advances to the next track.
func (m *Manager) RequestNextTrack(ctx context.Context, playerID string) (*View, error) {
	return m.transition(ctx, playerID, telemetry.EndReasonCompleted)
}

// SkipTrack is identical to RequestNextTrack except the statistics carry
// endStreamReason "skip" and a distinct backend endpoint is used.
func (m *Manager) SkipTrack(ctx context.Context, playerID string) (*View, error) {
	return m.transition(ctx, playerID, telemetry.EndReasonSkip)
}

func (m *Manager) transition(ctx context.Context, playerID string, reason telemetry.EndStreamReason) (*View, error) {
	ps := m.player(playerID)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.session == nil {
		return nil, errors.Wrapf(ErrNoActiveSession, "player %s", playerID)
	}
	if !ps.catalog.Contains(ps.session.PlaylistID) {
		return nil, errors.Wrapf(ErrPlaylistNotFound, "playlist %s", ps.session.PlaylistID)
	}

	// Snapshot without consuming, so a failed backend call loses nothing and
	// the transition can simply be retried.
	snap, err := m.tracker.Snapshot(playerID)
	if err != nil {
		return nil, err
	}

	req := cloud.TransitionRequest{
		SessionID: ps.session.ID,
		Format:    m.format,
		Statistics: []telemetry.Statistic{{
			TrackID:               ps.session.Track.ID,
			PlaylistID:            ps.session.PlaylistID,
			Start:                 snap.Started.Format(time.RFC3339),
			Duration:              telemetry.ISODuration(int64(snap.Duration.Seconds())),
			UseType:               telemetry.UseTypeStreaming,
			Autoplay:              true,
			IsMuted:               false,
			EndStreamReason:       reason,
			ClientTimestampOffset: telemetry.ClockOffset(m.now()),
			PlaylistSessionID:     ps.session.ID,
		}},
	}

	var next *track.Track
	if reason == telemetry.EndReasonSkip {
		next, err = m.backend.SkipTrack(ctx, playerID, req)
	} else {
		next, err = m.backend.NextTrack(ctx, playerID, req)
	}
	if err != nil {
		return nil, err
	}

	// Backend acknowledged; consume the record and start timing the new track.
	m.tracker.Discard(playerID)
	if err := m.tracker.StartTrack(playerID); err != nil {
		return nil, err
	}

	ps.session.Track = *next
	ps.session.TracksPlayed++

	zlog.Info().Msgf("track transition: player_id=%s session_id=%s reason=%s track_id=%s tracks_played=%d duration=%s",
		playerID, ps.session.ID, reason, next.ID, ps.session.TracksPlayed, req.Statistics[0].Duration)
	return m.viewLocked(playerID, ps.session)
}

// RecordClientEvent applies a client playback event to the tracker.
func (m *Manager) RecordClientEvent(playerID string, event stats.Event) error {
	return m.tracker.RecordEvent(playerID, event)
}

// GetSession returns the player's active session view.
func (m *Manager) GetSession(playerID string) (*View, error) {
	ps := m.player(playerID)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.session == nil {
		return nil, errors.Wrapf(ErrNoActiveSession, "player %s", playerID)
	}
	return m.viewLocked(playerID, ps.session)
}

// EndSession drops all local state for a player on disconnect or explicit
// stop. The protocol defines no remote terminate call, so the backend-side
// session is simply abandoned.
func (m *Manager) EndSession(playerID string) error {
	ps := m.player(playerID)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.session == nil {
		return errors.Wrapf(ErrNoActiveSession, "player %s", playerID)
	}

	zlog.Info().Msgf("session ended locally: player_id=%s session_id=%s tracks_played=%d", playerID, ps.session.ID, ps.session.TracksPlayed)
	ps.session = nil
	m.tracker.Discard(playerID)

	m.mu.Lock()
	delete(m.players, playerID)
	m.mu.Unlock()
	return nil
}

func (m *Manager) viewLocked(playerID string, s *Session) (*View, error) {
	sealed, err := m.sealer.SealFor(playerID, s.Track.AssetKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to seal asset key")
	}

	return &View{
		SessionID:    s.ID,
		PlaylistID:   s.PlaylistID,
		TracksPlayed: s.TracksPlayed,
		Track:        s.Track.Project(sealed),
	}, nil
}
