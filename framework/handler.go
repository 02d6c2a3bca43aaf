package framework

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"unicode"

	"github.com/bwmarrin/discordgo"

	commands "risubot/cmd"
)

var aliases = map[string]string{
	"dc": "leave",
	"p":  "play",
	"s":  "skip",
	"q":  "queue",
	"np": "nowplaying",
}

type usage struct {
	name, args, help string
}

var helpTopics = []usage{
	{"join", "", "Tells the bot to join the voice channel you are in."},
	{"leave", "", "Tells the bot to leave the voice channel. Alias: dc"},
	{"play", "<URL or search query>", "Plays a song or adds to queue. Alias: p"},
	{"stop", "", "Stops the music and clears the queue."},
	{"skip", "", "Skips the current song. Alias: s"},
	{"pause", "", "Pauses the current song."},
	{"resume", "", "Resumes the paused song."},
	{"queue", "", "Displays the current music queue. Alias: q"},
	{"nowplaying", "", "Shows the current song. Alias: np"},
	{"ping", "", "Responds with Pong!"},
	{"help", "[command]", "Displays this help message."},
}

// parseCommand splits "!play some song" into "play" and "some song".
func parseCommand(prefix, content string) (name, args string, ok bool) {
	content = strings.TrimSpace(content)
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(content, prefix)
	name = rest
	if i := strings.IndexFunc(rest, unicode.IsSpace); i >= 0 {
		name, args = rest[:i], rest[i:]
	}
	if name == "" {
		return "", "", false
	}
	name = strings.ToLower(name)
	if full, ok := aliases[name]; ok {
		name = full
	}
	return name, strings.TrimSpace(args), true
}

func helpText(prefix, topic string) string {
	topic = strings.TrimPrefix(strings.ToLower(topic), prefix)
	if full, ok := aliases[topic]; ok {
		topic = full
	}

	var b strings.Builder
	if topic != "" {
		for _, u := range helpTopics {
			if u.name == topic {
				fmt.Fprintf(&b, "`%s%s", prefix, u.name)
				if u.args != "" {
					b.WriteString(" " + u.args)
				}
				fmt.Fprintf(&b, "` - %s", u.help)
				return b.String()
			}
		}
		return fmt.Sprintf("No command called `%s`. Try `%shelp` to see available commands.", topic, prefix)
	}

	b.WriteString("Available commands:\n")
	for _, u := range helpTopics {
		fmt.Fprintf(&b, "`%s%s` - %s\n", prefix, u.name, u.help)
	}
	return b.String()
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	if s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	name, args, ok := parseCommand(b.cfg.Prefix, m.Content)
	if !ok {
		return
	}

	cmd := commands.NewBotCommand(s, m, b.deps)
	log := b.log.With().Str("guild", m.GuildID).Str("command", name).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("command panicked")
			cmd.Reply("An error occurred with the `%s` command. Please check the console for details.", name)
		}
	}()
	log.Debug().Str("user", m.Author.ID).Str("args", args).Msg("command")

	ctx := b.ctx
	switch name {
	case "ping":
		cmd.Reply("Pong!")
	case "help":
		cmd.Reply(helpText(b.cfg.Prefix, args))
	case "join":
		cmd.Join(ctx)
	case "leave":
		cmd.Leave(ctx)
	case "play":
		if args == "" {
			cmd.Reply("Missing arguments for command `play`. Check `%shelp play` for usage.", b.cfg.Prefix)
			return
		}
		cmd.Play(ctx, args)
	case "stop":
		cmd.Stop(ctx)
	case "skip":
		cmd.Skip(ctx)
	case "pause":
		cmd.Pause(ctx)
	case "resume":
		cmd.Resume(ctx)
	case "queue":
		cmd.Queue(ctx)
	case "nowplaying":
		cmd.NowPlaying(ctx)
	default:
		cmd.Reply("Invalid command. Try `%shelp` to see available commands.", b.cfg.Prefix)
	}
}

// onVoiceStateUpdate notices when the bot was dropped from voice without a
// leave command, e.g. kicked by a moderator or the channel was deleted.
func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if s.State.User == nil || v.UserID != s.State.User.ID || v.ChannelID != "" {
		return
	}
	if _, ok := b.voice.Get(v.GuildID); !ok {
		return
	}

	b.log.Warn().Str("guild", v.GuildID).Msg("voice connection closed externally")
	b.voice.Forget(v.GuildID)
	if err := b.player.Release(context.WithoutCancel(b.ctx), v.GuildID); err != nil {
		b.log.Error().Err(err).Str("guild", v.GuildID).Msg("release failed")
	}
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info().
		Str("user", r.User.Username).
		Str("id", r.User.ID).
		Str("prefix", b.cfg.Prefix).
		Int("guilds", len(r.Guilds)).
		Msg("bot is ready to play music")
}
