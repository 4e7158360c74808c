// Package audio defines the playback side of the speech pipeline: the
// [VoicePlayer] capability, the [Unit] of synthesised audio that flows to it,
// and PCM format helpers.
package audio

import (
	"context"
	"errors"
)

// ErrNotConnected is returned by [VoicePlayer.Play] when the player has no
// live voice connection.
var ErrNotConnected = errors.New("audio: player not connected")

// VoicePlayer plays audio into one voice session.
//
// Play blocks until the unit has been played completely, ctx is cancelled, or
// the connection fails. Implementations serialise concurrent Play calls, so a
// caller that starts a second unit waits for the first to finish.
type VoicePlayer interface {
	// Connected reports whether the player currently has a usable voice
	// connection.
	Connected() bool

	// Playing reports whether audio is being output right now.
	Playing() bool

	// Play outputs u and returns once playback completed or failed. It does
	// not release u; the caller owns the buffer.
	Play(ctx context.Context, u *Unit) error
}
