// Package telemetry provides the track-play statistics submitted to the
// licensing backend for royalty accounting.
package telemetry

import (
	"fmt"
	"time"
)

// EndStreamReason tells the backend why a track stopped streaming.
type EndStreamReason string

const (
	EndReasonCompleted EndStreamReason = "completed"
	EndReasonSkip      EndStreamReason = "skip"
)

// Statistic is the per-track usage record carried by session transition calls.
type Statistic struct {
	TrackID               string          `json:"trackId"`
	PlaylistID            string          `json:"playlistId"`
	Start                 string          `json:"start"` // RFC 3339
	Duration              string          `json:"duration"`
	UseType               string          `json:"useType"`
	Autoplay              bool            `json:"autoplay"`
	IsMuted               bool            `json:"isMuted"`
	EndStreamReason       EndStreamReason `json:"endStreamReason"`
	ClientTimestampOffset string          `json:"clientTimestampOffset"`
	PlaylistSessionID     string          `json:"playlistSessionId"`
}

// UseTypeStreaming is the only use type this integration reports.
const UseTypeStreaming = "streaming"

// ISODuration encodes whole seconds as an ISO-8601 duration.
func ISODuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	if seconds < 60 {
		return fmt.Sprintf("PT%dS", seconds)
	}
	m := seconds / 60
	s := seconds % 60
	if s == 0 {
		return fmt.Sprintf("PT%dM", m)
	}
	return fmt.Sprintf("PT%dM%dS", m, s)
}

// ClockOffset returns the signed UTC offset of t as "+hh:mm" / "-hh:mm".
func ClockOffset(t time.Time) string {
	_, offsetSec := t.Zone()
	sign := "+"
	if offsetSec < 0 {
		sign = "-"
		offsetSec = -offsetSec
	}
	return fmt.Sprintf("%s%02d:%02d", sign, offsetSec/3600, (offsetSec%3600)/60)
}
