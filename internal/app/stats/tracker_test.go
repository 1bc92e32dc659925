package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock steps through a scripted sequence of instants.
type fakeClock struct {
	t time.Time
}

func newFakeClock(unix int64) *fakeClock {
	return &fakeClock{t: time.Unix(unix, 0)}
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) set(unix int64) { c.t = time.Unix(unix, 0) }

func TestTracker_StartTrack(t *testing.T) {
	clock := newFakeClock(1000)
	tracker := NewTrackerWithClock(clock.now)

	require.NoError(t, tracker.StartTrack("p1"))
	assert.True(t, tracker.IsTracking("p1"))

	// Second start for the same player fails
	err := tracker.StartTrack("p1")
	assert.ErrorIs(t, err, ErrAlreadyTracking)

	// Distinct players are independent
	require.NoError(t, tracker.StartTrack("p2"))
}

func TestTracker_RecordEvent_NotTracking(t *testing.T) {
	tracker := NewTracker()

	for _, event := range []Event{EventPlayed, EventPaused, EventResumed, EventEnded} {
		t.Run(event.String(), func(t *testing.T) {
			err := tracker.RecordEvent("ghost", event)
			assert.ErrorIs(t, err, ErrNotTracking)
		})
	}
}

func TestTracker_PauseResumeAccounting(t *testing.T) {
	clock := newFakeClock(1000)
	tracker := NewTrackerWithClock(clock.now)
	require.NoError(t, tracker.StartTrack("p1"))

	clock.set(1050)
	require.NoError(t, tracker.RecordEvent("p1", EventPaused))

	// Pausing twice without a resume fails
	clock.set(1055)
	err := tracker.RecordEvent("p1", EventPaused)
	assert.ErrorIs(t, err, ErrInvalidState)

	clock.set(1060)
	require.NoError(t, tracker.RecordEvent("p1", EventResumed))

	// Resume without a pause fails
	err = tracker.RecordEvent("p1", EventResumed)
	assert.ErrorIs(t, err, ErrInvalidState)

	// Second pause interval
	clock.set(1070)
	require.NoError(t, tracker.RecordEvent("p1", EventPaused))
	clock.set(1075)
	require.NoError(t, tracker.RecordEvent("p1", EventResumed))

	clock.set(1100)
	snap, err := tracker.EndTrack("p1")
	require.NoError(t, err)

	// (1100-1000) - (10 + 5) = 85 seconds engaged
	assert.Equal(t, 85*time.Second, snap.Duration)
	assert.Equal(t, time.Unix(1000, 0), snap.Started)
	assert.Equal(t, time.Unix(1100, 0), snap.Ended)
	assert.False(t, tracker.IsTracking("p1"))
}

func TestTracker_EndedEvent(t *testing.T) {
	clock := newFakeClock(1000)
	tracker := NewTrackerWithClock(clock.now)
	require.NoError(t, tracker.StartTrack("p1"))

	clock.set(1080)
	require.NoError(t, tracker.RecordEvent("p1", EventEnded))

	// PLAYED after ENDED is rejected
	err := tracker.RecordEvent("p1", EventPlayed)
	assert.ErrorIs(t, err, ErrInvalidState)

	// Snapshot uses the explicit end time, not now
	clock.set(1200)
	snap, err := tracker.EndTrack("p1")
	require.NoError(t, err)
	assert.Equal(t, 80*time.Second, snap.Duration)
	assert.Equal(t, time.Unix(1080, 0), snap.Ended)
}

func TestTracker_EndedBeforeStartedRejected(t *testing.T) {
	clock := newFakeClock(1000)
	tracker := NewTrackerWithClock(clock.now)
	require.NoError(t, tracker.StartTrack("p1"))

	// Clock went backwards
	clock.set(900)
	err := tracker.RecordEvent("p1", EventEnded)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestTracker_ResumeWithClockSkewRejected(t *testing.T) {
	clock := newFakeClock(1000)
	tracker := NewTrackerWithClock(clock.now)
	require.NoError(t, tracker.StartTrack("p1"))

	clock.set(1050)
	require.NoError(t, tracker.RecordEvent("p1", EventPaused))

	clock.set(1040)
	err := tracker.RecordEvent("p1", EventResumed)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestTracker_PlayedResetsStart(t *testing.T) {
	clock := newFakeClock(1000)
	tracker := NewTrackerWithClock(clock.now)
	require.NoError(t, tracker.StartTrack("p1"))

	// Client re-enters play at 1030; engaged time counts from there
	clock.set(1030)
	require.NoError(t, tracker.RecordEvent("p1", EventPlayed))

	clock.set(1090)
	snap, err := tracker.EndTrack("p1")
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, snap.Duration)
}

func TestTracker_SnapshotDoesNotConsume(t *testing.T) {
	clock := newFakeClock(1000)
	tracker := NewTrackerWithClock(clock.now)
	require.NoError(t, tracker.StartTrack("p1"))

	clock.set(1090)
	snap, err := tracker.Snapshot("p1")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, snap.Duration)
	assert.True(t, tracker.IsTracking("p1"))

	// A later snapshot sees more elapsed time
	clock.set(1100)
	snap, err = tracker.Snapshot("p1")
	require.NoError(t, err)
	assert.Equal(t, 100*time.Second, snap.Duration)
}

func TestTracker_EndTrackNotTracking(t *testing.T) {
	tracker := NewTracker()
	_, err := tracker.EndTrack("ghost")
	assert.ErrorIs(t, err, ErrNotTracking)
}

func TestTracker_NegativeDurationSurfaces(t *testing.T) {
	clock := newFakeClock(1000)
	tracker := NewTrackerWithClock(clock.now)
	require.NoError(t, tracker.StartTrack("p1"))

	// Accumulate more paused time than wall time via skew: pause at 1010,
	// resume at 1200, then the clock jumps back to 1020.
	clock.set(1010)
	require.NoError(t, tracker.RecordEvent("p1", EventPaused))
	clock.set(1200)
	require.NoError(t, tracker.RecordEvent("p1", EventResumed))

	clock.set(1020)
	_, err := tracker.Snapshot("p1")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		input   string
		want    Event
		wantErr bool
	}{
		{input: "PLAYED", want: EventPlayed},
		{input: "PAUSED", want: EventPaused},
		{input: "RESUMED", want: EventResumed},
		{input: "ENDED", want: EventEnded},
		{input: "played", wantErr: true},
		{input: "", wantErr: true},
		{input: "STOPPED", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseEvent(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.input, got.String())
		})
	}
}
