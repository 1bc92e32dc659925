package stats

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	ErrAlreadyTracking = errors.New("already tracking playback for player")
	ErrNotTracking     = errors.New("no playback being tracked for player")
	ErrInvalidState    = errors.New("invalid playback event for current state")
)

// record holds the timing state of one active track for one player.
type record struct {
	started     time.Time
	ended       *time.Time
	paused      *time.Time
	totalPaused time.Duration
}

// Snapshot is a finalized view of one track's playback timing. Duration is
// wall-clock listening time net of paused time.
type Snapshot struct {
	Started  time.Time
	Ended    time.Time
	Duration time.Duration
}

// Tracker records play/pause/resume/end events per player and computes
// engaged listening duration. Wall-clock timestamps are used because the
// backend requires calendar timestamps for telemetry; negative durations from
// clock changes surface as errors rather than being clamped.
type Tracker struct {
	mu      sync.Mutex
	records map[string]*record
	now     func() time.Time
}

// NewTracker creates a tracker using the system clock.
func NewTracker() *Tracker {
	return NewTrackerWithClock(time.Now)
}

// NewTrackerWithClock creates a tracker with an injected clock.
func NewTrackerWithClock(now func() time.Time) *Tracker {
	return &Tracker{
		records: make(map[string]*record),
		now:     now,
	}
}

// StartTrack begins tracking a new track for a player. At most one record may
// exist per player at a time.
func (t *Tracker) StartTrack(playerID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.records[playerID]; ok {
		return errors.Wrapf(ErrAlreadyTracking, "player %s", playerID)
	}
	t.records[playerID] = &record{started: t.now()}
	return nil
}

// IsTracking reports whether a record exists for the player.
func (t *Tracker) IsTracking(playerID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.records[playerID]
	return ok
}

// RecordEvent applies a playback event to the player's active record.
func (t *Tracker) RecordEvent(playerID string, event Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[playerID]
	if !ok {
		return errors.Wrapf(ErrNotTracking, "player %s", playerID)
	}

	now := t.now()
	switch event {
	case EventPlayed:
		if rec.ended != nil {
			return errors.Wrap(ErrInvalidState, "playback already ended")
		}
		rec.started = now

	case EventPaused:
		if rec.paused != nil {
			return errors.Wrap(ErrInvalidState, "playback already paused")
		}
		rec.paused = &now

	case EventResumed:
		if rec.paused == nil {
			return errors.Wrap(ErrInvalidState, "playback not paused")
		}
		elapsed := now.Sub(*rec.paused)
		if elapsed < 0 {
			return errors.Wrap(ErrInvalidState, "pause interval is negative")
		}
		rec.totalPaused += elapsed
		rec.paused = nil

	case EventEnded:
		if rec.started.IsZero() {
			return errors.Wrap(ErrInvalidState, "playback never started")
		}
		if now.Before(rec.started) {
			return errors.Wrap(ErrInvalidState, "end time precedes start time")
		}
		rec.ended = &now

	default:
		return errors.Wrapf(ErrInvalidState, "unknown event %d", int(event))
	}

	return nil
}

// Snapshot returns the finalized statistics for a player's active record
// without consuming it. Used so a failed transition call can be retried
// without losing the telemetry.
func (t *Tracker) Snapshot(playerID string) (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(playerID)
}

// EndTrack removes the player's record and returns its finalized statistics.
func (t *Tracker) EndTrack(playerID string) (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap, err := t.snapshotLocked(playerID)
	if err != nil {
		return Snapshot{}, err
	}
	delete(t.records, playerID)
	return snap, nil
}

// Discard drops the player's record, if any, without finalizing.
func (t *Tracker) Discard(playerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, playerID)
}

func (t *Tracker) snapshotLocked(playerID string) (Snapshot, error) {
	rec, ok := t.records[playerID]
	if !ok {
		return Snapshot{}, errors.Wrapf(ErrNotTracking, "player %s", playerID)
	}

	ended := t.now()
	if rec.ended != nil {
		ended = *rec.ended
	}

	duration := ended.Sub(rec.started) - rec.totalPaused
	if duration < 0 {
		// A negative duration means the bookkeeping is broken; surface it
		// instead of clamping so the bug is visible.
		return Snapshot{}, errors.Wrapf(ErrInvalidState, "negative engaged duration %v for player %s", duration, playerID)
	}

	return Snapshot{
		Started:  rec.started,
		Ended:    ended,
		Duration: duration,
	}, nil
}
