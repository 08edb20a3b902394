// Package playback implements the receiver-side reconciliation policy
// applied when a video-state-change event arrives: a client hard-seeks
// only when its local clock has drifted beyond a threshold, while
// play/pause transitions are applied unconditionally. The decision logic
// lives server-side so both ends of the protocol agree on it.
package playback

import "math"

// DriftThreshold is the maximum tolerated difference in seconds between
// the local playback position and an incoming one. Small differences are
// left alone to avoid seek jitter from frequent corrections.
const DriftThreshold = 2.0

// Action describes what a receiver should do with an incoming state.
type Action struct {
	Seek   bool
	SeekTo float64
	// Play and Pause are mutually exclusive; both false means the
	// local play state already matches the incoming one.
	Play  bool
	Pause bool
}

// Reconcile compares local playback against an incoming snapshot and
// returns the adjustments the receiver should apply. Last writer wins:
// there is no merging, only catching up.
func Reconcile(localTime float64, localPlaying bool, incomingTime float64, incomingPlaying bool) Action {
	var a Action

	if math.Abs(localTime-incomingTime) > DriftThreshold {
		a.Seek = true
		a.SeekTo = incomingTime
	}

	if incomingPlaying && !localPlaying {
		a.Play = true
	} else if !incomingPlaying && localPlaying {
		a.Pause = true
	}

	return a
}
