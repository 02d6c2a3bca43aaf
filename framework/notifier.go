package framework

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"risubot/audio"
)

var ErrNoticeDropped = errors.New("notice buffer full")

// sender is the part of *discordgo.Session the notifier needs.
type sender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type notice struct {
	channelID string
	content   string
}

// Notifier sends status messages from a single worker so callers never
// block on Discord. Messages keep their order.
type Notifier struct {
	send    sender
	queue   chan notice
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewNotifier(s sender, limit rate.Limit, buffer int, logger zerolog.Logger) *Notifier {
	if buffer < 1 {
		buffer = 1
	}
	burst := 1
	if limit != rate.Inf && limit > 1 {
		burst = int(limit)
	}
	return &Notifier{
		send:    s,
		queue:   make(chan notice, buffer),
		limiter: rate.NewLimiter(limit, burst),
		log:     logger,
	}
}

func (n *Notifier) Notify(origin audio.Origin, message string) error {
	if origin.ChannelID == "" {
		return errors.New("notice without channel")
	}
	select {
	case n.queue <- notice{channelID: origin.ChannelID, content: message}:
		return nil
	default:
		n.log.Warn().Str("channel", origin.ChannelID).Msg("notice dropped")
		return ErrNoticeDropped
	}
}

// Run delivers queued notices until ctx is canceled.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case nt := <-n.queue:
			if err := n.limiter.Wait(ctx); err != nil {
				return
			}
			if _, err := n.send.ChannelMessageSend(nt.channelID, nt.content); err != nil {
				n.log.Warn().Err(err).Str("channel", nt.channelID).Msg("failed to send notice")
			}
		}
	}
}
