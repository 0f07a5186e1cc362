package util

import (
	"fmt"
	"time"
)

// FormatDuration formats a duration as m:ss, or h:mm:ss from one hour up.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	h := total / 3600
	m := total % 3600 / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// TrackLength prefers the decoded length and falls back to the catalog's
// declared length in seconds.
func TrackLength(decoded time.Duration, declaredSeconds int) time.Duration {
	if decoded > 0 {
		return decoded
	}
	if declaredSeconds > 0 {
		return time.Duration(declaredSeconds) * time.Second
	}
	return 0
}

// FormatProgress renders "elapsed / length", or just elapsed when the length
// is unknown.
func FormatProgress(pos, length time.Duration) string {
	if length <= 0 {
		return FormatDuration(pos)
	}
	return FormatDuration(pos) + " / " + FormatDuration(length)
}
