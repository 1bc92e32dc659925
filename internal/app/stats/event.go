// Package stats tracks per-player playback timing for telemetry reporting.
package stats

import "github.com/cockroachdb/errors"

// Event represents a playback event reported by the game client.
type Event int

const (
	EventPlayed Event = iota
	EventPaused
	EventResumed
	EventEnded
)

// String returns the string representation of the event.
func (e Event) String() string {
	switch e {
	case EventPlayed:
		return "PLAYED"
	case EventPaused:
		return "PAUSED"
	case EventResumed:
		return "RESUMED"
	case EventEnded:
		return "ENDED"
	default:
		return "unknown"
	}
}

// ParseEvent parses a client-supplied event name.
func ParseEvent(s string) (Event, error) {
	switch s {
	case "PLAYED":
		return EventPlayed, nil
	case "PAUSED":
		return EventPaused, nil
	case "RESUMED":
		return EventResumed, nil
	case "ENDED":
		return EventEnded, nil
	default:
		return 0, errors.Newf("unknown playback event %q", s)
	}
}
