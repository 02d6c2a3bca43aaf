package framework

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"risubot/audio"
	commands "risubot/cmd"
	"risubot/config"
	"risubot/playback"
	"risubot/resolver"
	"risubot/vc"
)

// Bot wires the Discord session to the player of every guild.
type Bot struct {
	cfg *config.Config
	ctx context.Context
	log zerolog.Logger

	session  *discordgo.Session
	voice    *vc.VoiceManager
	player   *playback.Controller
	notifier *Notifier
	deps     *commands.Deps
}

func New(cfg *config.Config, logger zerolog.Logger) (*Bot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent

	b := &Bot{
		cfg:     cfg,
		log:     logger,
		session: session,
	}
	b.voice = vc.NewVoiceManager(audio.FFmpegOpener(cfg.FFmpegPath), logger.With().Str("component", "voice").Logger())
	b.notifier = NewNotifier(session, rate.Limit(cfg.NoticeRate), cfg.NoticeBuffer, logger.With().Str("component", "notifier").Logger())
	b.player = playback.New(b.voice, b.notifier, audio.NewQueueManager(), playback.Options{
		DispatchTimeout:  cfg.DispatchTimeout,
		MaxStartFailures: cfg.MaxStartFailures,
	}, logger.With().Str("component", "player").Logger())

	b.deps = &commands.Deps{
		Voice:    b.voice,
		Player:   b.player,
		Resolver: resolver.Default(cfg.YTDLPPath, rate.Limit(cfg.ResolveRate), logger.With().Str("component", "resolver").Logger()),
		Notifier: b.notifier,
		Typing: func(channelID string) error {
			return session.ChannelTyping(channelID)
		},
		ResolveTimeout: cfg.ResolveTimeout,
		QueueDisplay:   cfg.QueueDisplay,
		Log:            logger.With().Str("component", "commands").Logger(),
	}

	session.AddHandler(b.onReady)
	session.AddHandler(b.onMessageCreate)
	session.AddHandler(b.onVoiceStateUpdate)
	return b, nil
}

// Run connects to Discord and serves commands until ctx is canceled.
func (b *Bot) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	b.ctx = ctx

	go b.notifier.Run(ctx)

	if err := b.session.Open(); err != nil {
		b.player.Close()
		return fmt.Errorf("open gateway: %w", err)
	}
	b.log.Info().Msg("bot is running")

	<-ctx.Done()
	b.log.Info().Msg("shutting down")

	// The player goes first so completions from the torn down streams do not
	// start the next track.
	b.player.Close()
	b.voice.LeaveAll()
	return b.session.Close()
}
