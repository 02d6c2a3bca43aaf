package playback

import "errors"

var (
	ErrResolutionFailed    = errors.New("could not find a playable audio source")
	ErrNotConnected        = errors.New("not connected to a voice channel")
	ErrChannelMismatch     = errors.New("requester is in a different voice channel")
	ErrPlaybackStartFailed = errors.New("playback failed to start")
	ErrNothingPlaying      = errors.New("nothing is currently playing")
	ErrAlreadyPaused       = errors.New("playback is already paused")
	ErrNotPaused           = errors.New("playback is not paused")
	ErrDispatchTimeout     = errors.New("completion dispatch timed out")
	ErrClosed              = errors.New("player is closed")
)
