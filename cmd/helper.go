package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"risubot/audio"
)

// userVoiceChannelID returns the voice channel the user sits in, or "".
func userVoiceChannelID(state *discordgo.State, guildID, userID string) string {
	guild, _ := state.Guild(guildID)
	if guild == nil {
		return ""
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID
		}
	}
	return ""
}

// channelName falls back to the ID when the channel is not cached.
func channelName(state *discordgo.State, channelID string) string {
	if ch, err := state.Channel(channelID); err == nil && ch.Name != "" {
		return ch.Name
	}
	return channelID
}

func renderQueue(tracks []*audio.Track, limit int) string {
	if len(tracks) == 0 {
		return "The music queue is empty."
	}
	if limit < 1 {
		limit = 1
	}

	var b strings.Builder
	b.WriteString("**🎶 Current Music Queue:**\n")
	for i, t := range tracks {
		if i == limit {
			fmt.Fprintf(&b, "... and %d more.\n", len(tracks)-limit)
			break
		}
		fmt.Fprintf(&b, "%d. %s", i+1, t.Title)
		if t.Duration > 0 {
			fmt.Fprintf(&b, " (%s)", formatDuration(t.Duration))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// formatDuration renders m:ss, or h:mm:ss for long tracks.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func describeTrack(t *audio.Track) string {
	msg := fmt.Sprintf("**%s**", t.Title)
	if t.Uploader != "" {
		msg += " by " + t.Uploader
	}
	if t.Duration > 0 {
		msg += " [" + formatDuration(t.Duration) + "]"
	}
	return msg
}
