package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"risubot/audio"
	"risubot/playback"
	"risubot/resolver"
)

// Player is the part of *playback.Controller the commands drive.
type Player interface {
	Enqueue(ctx context.Context, t *audio.Track) (int, error)
	Skip(ctx context.Context, from audio.Origin) (*audio.Track, error)
	Stop(ctx context.Context, guildID string) (bool, error)
	Pause(ctx context.Context, guildID string) error
	Resume(ctx context.Context, guildID string) error
	Leave(ctx context.Context, guildID string) error
	Status(ctx context.Context, guildID string) (playback.Status, error)
	Snapshot(guildID string) []*audio.Track
}

// Voice is the part of *vc.VoiceManager the commands need.
type Voice interface {
	Join(s *discordgo.Session, guildID, channelID string) (*discordgo.VoiceConnection, error)
	ChannelID(guildID string) (string, bool)
}

// Deps are shared by every command invocation.
type Deps struct {
	Voice    Voice
	Player   Player
	Resolver resolver.Resolver
	Notifier playback.Notifier
	// Typing shows the typing indicator while a query resolves. May be nil.
	Typing func(channelID string) error

	ResolveTimeout time.Duration
	QueueDisplay   int
	Log            zerolog.Logger
}

type BotCommand struct {
	Session *discordgo.Session
	Message *discordgo.MessageCreate
	*Deps
}

func NewBotCommand(s *discordgo.Session, m *discordgo.MessageCreate, deps *Deps) *BotCommand {
	return &BotCommand{
		Session: s,
		Message: m,
		Deps:    deps,
	}
}

func (cmd *BotCommand) origin() audio.Origin {
	return audio.Origin{
		GuildID:   cmd.Message.GuildID,
		ChannelID: cmd.Message.ChannelID,
		UserID:    cmd.Message.Author.ID,
	}
}

// Reply sends a message back to the channel the command came from. It goes
// through the notifier so it stays ordered with playback notices.
func (cmd *BotCommand) Reply(format string, args ...any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	if err := cmd.Notifier.Notify(cmd.origin(), msg); err != nil {
		cmd.Log.Warn().Err(err).Str("guild", cmd.Message.GuildID).Msg("reply dropped")
	}
}

func (cmd *BotCommand) getUserVoiceChannelID() string {
	return userVoiceChannelID(cmd.Session.State, cmd.Message.GuildID, cmd.Message.Author.ID)
}

func (cmd *BotCommand) Join(ctx context.Context) {
	userChannelID := cmd.getUserVoiceChannelID()
	if userChannelID == "" {
		cmd.Reply("%s is not connected to a voice channel.", cmd.Message.Author.Username)
		return
	}

	if _, err := cmd.Voice.Join(cmd.Session, cmd.Message.GuildID, userChannelID); err != nil {
		cmd.Log.Error().Err(err).Str("guild", cmd.Message.GuildID).Msg("join failed")
		cmd.Reply("Failed to join your voice channel: %v", err)
		return
	}
	cmd.Reply("Joined **%s**", channelName(cmd.Session.State, userChannelID))
}

func (cmd *BotCommand) Leave(ctx context.Context) {
	err := cmd.Player.Leave(ctx, cmd.Message.GuildID)
	switch {
	case errors.Is(err, playback.ErrNotConnected):
		cmd.Reply("I'm not in a voice channel.")
	case err != nil:
		cmd.Log.Error().Err(err).Str("guild", cmd.Message.GuildID).Msg("leave failed")
		cmd.Reply("Left the voice channel, but the disconnect reported an error.")
	default:
		cmd.Reply("Left the voice channel and cleared the queue.")
	}
}

func (cmd *BotCommand) Play(ctx context.Context, query string) {
	guildID := cmd.Message.GuildID
	userChannelID := cmd.getUserVoiceChannelID()
	if userChannelID == "" {
		cmd.Reply("You need to be in a voice channel to play music.")
		return
	}

	if err := cmd.ensureVoice(userChannelID); err != nil {
		if errors.Is(err, playback.ErrChannelMismatch) {
			current, _ := cmd.Voice.ChannelID(guildID)
			cmd.Reply("You need to be in the same voice channel as me. I am in **%s**.", channelName(cmd.Session.State, current))
			return
		}
		cmd.Log.Error().Err(err).Str("guild", guildID).Msg("join failed")
		cmd.Reply("Failed to join your voice channel: %v", err)
		return
	}

	track, err := cmd.resolve(ctx, query)
	if err != nil {
		cmd.Log.Warn().Err(err).Str("guild", guildID).Str("query", query).Msg("resolution failed")
		cmd.Reply("Could not find a playable audio source for '%s'.", query)
		return
	}

	if _, err := cmd.Player.Enqueue(ctx, track); err != nil {
		cmd.Log.Error().Err(err).Str("guild", guildID).Str("track", track.ID).Msg("enqueue failed")
		cmd.Reply("An error occurred with the `play` command. Please check the console for details.")
	}
}

// ensureVoice connects to channelID when the bot is not in voice yet. It
// fails with playback.ErrChannelMismatch when the bot is elsewhere.
func (cmd *BotCommand) ensureVoice(channelID string) error {
	guildID := cmd.Message.GuildID
	if current, ok := cmd.Voice.ChannelID(guildID); ok {
		if current != channelID {
			return playback.ErrChannelMismatch
		}
		return nil
	}

	if _, err := cmd.Voice.Join(cmd.Session, guildID, channelID); err != nil {
		return err
	}
	cmd.Reply("Joined **%s**", channelName(cmd.Session.State, channelID))
	return nil
}

func (cmd *BotCommand) resolve(ctx context.Context, query string) (*audio.Track, error) {
	if cmd.Typing != nil {
		if err := cmd.Typing(cmd.Message.ChannelID); err != nil {
			cmd.Log.Debug().Err(err).Msg("typing indicator failed")
		}
	}

	if cmd.ResolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.ResolveTimeout)
		defer cancel()
	}

	res, err := cmd.Resolver.Resolve(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", playback.ErrResolutionFailed, err)
	}

	track := audio.NewTrack(res.URL, res.Title, cmd.origin())
	track.Page = res.Page
	track.Duration = res.Duration
	track.Uploader = res.Uploader
	return track, nil
}

func (cmd *BotCommand) Stop(ctx context.Context) {
	guildID := cmd.Message.GuildID
	_, connected := cmd.Voice.ChannelID(guildID)

	active, err := cmd.Player.Stop(ctx, guildID)
	switch {
	case err != nil:
		cmd.Log.Error().Err(err).Str("guild", guildID).Msg("stop failed")
		cmd.Reply("An error occurred with the `stop` command. Please check the console for details.")
	case !connected:
		cmd.Reply("I'm not in a voice channel.")
	case active:
		cmd.Reply("Music stopped and queue cleared.")
	default:
		cmd.Reply("Nothing was playing, but queue has been cleared.")
	}
}

func (cmd *BotCommand) Skip(ctx context.Context) {
	_, err := cmd.Player.Skip(ctx, cmd.origin())
	switch {
	case errors.Is(err, playback.ErrNothingPlaying):
		cmd.Reply("Nothing is currently playing to skip.")
	case err != nil:
		cmd.Log.Error().Err(err).Str("guild", cmd.Message.GuildID).Msg("skip failed")
		cmd.Reply("An error occurred with the `skip` command. Please check the console for details.")
	}
}

func (cmd *BotCommand) Pause(ctx context.Context) {
	err := cmd.Player.Pause(ctx, cmd.Message.GuildID)
	switch {
	case err == nil:
		cmd.Reply("Music paused.")
	case errors.Is(err, playback.ErrAlreadyPaused):
		cmd.Reply("Music is already paused.")
	case errors.Is(err, playback.ErrNothingPlaying):
		cmd.Reply("Nothing is currently playing to pause.")
	default:
		cmd.Log.Error().Err(err).Str("guild", cmd.Message.GuildID).Msg("pause failed")
		cmd.Reply("An error occurred with the `pause` command. Please check the console for details.")
	}
}

func (cmd *BotCommand) Resume(ctx context.Context) {
	err := cmd.Player.Resume(ctx, cmd.Message.GuildID)
	switch {
	case err == nil:
		cmd.Reply("Music resumed.")
	case errors.Is(err, playback.ErrNotPaused):
		cmd.Reply("Music is already playing.")
	case errors.Is(err, playback.ErrNothingPlaying):
		cmd.Reply("Nothing to resume.")
	default:
		cmd.Log.Error().Err(err).Str("guild", cmd.Message.GuildID).Msg("resume failed")
		cmd.Reply("An error occurred with the `resume` command. Please check the console for details.")
	}
}

func (cmd *BotCommand) Queue(ctx context.Context) {
	cmd.Reply(renderQueue(cmd.Player.Snapshot(cmd.Message.GuildID), cmd.QueueDisplay))
}

func (cmd *BotCommand) NowPlaying(ctx context.Context) {
	st, err := cmd.Player.Status(ctx, cmd.Message.GuildID)
	if err != nil {
		cmd.Log.Error().Err(err).Str("guild", cmd.Message.GuildID).Msg("status failed")
		cmd.Reply("An error occurred with the `nowplaying` command. Please check the console for details.")
		return
	}
	if st.Current == nil {
		cmd.Reply("Nothing is playing.")
		return
	}
	prefix := "Now playing"
	if st.Phase == playback.Paused {
		prefix = "Paused"
	}
	cmd.Reply("%s: %s", prefix, describeTrack(st.Current))
}
