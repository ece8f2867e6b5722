package playback

import "errors"

var (
	// ErrAutoplayBlocked is returned by Play until a user gesture unlocks output.
	ErrAutoplayBlocked = errors.New("playback: autoplay blocked")

	// ErrNoSource is returned by Play before any source was set.
	ErrNoSource = errors.New("playback: no source")

	// ErrEmptyAudio is returned when a source decodes to zero samples.
	ErrEmptyAudio = errors.New("playback: empty audio")
)
