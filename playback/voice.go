package playback

import "risubot/audio"

// Voice is the per-guild view of the media transport. The transport owns
// playback state; the controller only queries and commands it.
type Voice interface {
	Connected(guildID string) bool
	Playing(guildID string) bool
	Paused(guildID string) bool
	// Play starts url and calls done exactly once when it ends. A non-nil
	// return means playback never started and done will not be called.
	Play(guildID, url string, done func(error)) error
	Stop(guildID string) bool
	Pause(guildID string) bool
	Resume(guildID string) bool
	Disconnect(guildID string) error
}

// Notifier delivers best-effort status messages. Notify must not block.
type Notifier interface {
	Notify(origin audio.Origin, message string) error
}

// Phase is the playback state of a guild.
type Phase int

const (
	Idle Phase = iota
	Playing
	Paused
)

func (p Phase) String() string {
	switch p {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "idle"
	}
}

// Status is a point-in-time view of a guild's player.
type Status struct {
	Phase   Phase
	Current *audio.Track
}
