package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"risubot/audio"
	"risubot/playback"
	"risubot/resolver"
)

const (
	guildID      = "g1"
	textChannel  = "c1"
	musicChannel = "v1"
	otherChannel = "v2"
)

type fakePlayer struct {
	mu       sync.Mutex
	enqueued []*audio.Track
	pending  []*audio.Track
	status   playback.Status

	skipErr   error
	stopped   bool
	pauseErr  error
	resumeErr error
	leaveErr  error
}

func (p *fakePlayer) Enqueue(ctx context.Context, t *audio.Track) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enqueued = append(p.enqueued, t)
	return len(p.enqueued), nil
}

func (p *fakePlayer) Skip(ctx context.Context, from audio.Origin) (*audio.Track, error) {
	return p.status.Current, p.skipErr
}

func (p *fakePlayer) Stop(ctx context.Context, guildID string) (bool, error) {
	p.stopped = true
	return p.status.Current != nil, nil
}

func (p *fakePlayer) Pause(ctx context.Context, guildID string) error  { return p.pauseErr }
func (p *fakePlayer) Resume(ctx context.Context, guildID string) error { return p.resumeErr }
func (p *fakePlayer) Leave(ctx context.Context, guildID string) error  { return p.leaveErr }

func (p *fakePlayer) Status(ctx context.Context, guildID string) (playback.Status, error) {
	return p.status, nil
}

func (p *fakePlayer) Snapshot(guildID string) []*audio.Track { return p.pending }

type fakeVoice struct {
	channels map[string]string
	joinErr  error
	joins    int
}

func (v *fakeVoice) Join(s *discordgo.Session, guildID, channelID string) (*discordgo.VoiceConnection, error) {
	v.joins++
	if v.joinErr != nil {
		return nil, v.joinErr
	}
	v.channels[guildID] = channelID
	return &discordgo.VoiceConnection{GuildID: guildID, ChannelID: channelID}, nil
}

func (v *fakeVoice) ChannelID(guildID string) (string, bool) {
	ch, ok := v.channels[guildID]
	return ch, ok
}

type replies struct {
	mu   sync.Mutex
	sent []string
}

func (r *replies) Notify(origin audio.Origin, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, message)
	return nil
}

func (r *replies) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

type stubResolver struct {
	res   *resolver.Result
	err   error
	query string
}

func (s *stubResolver) Resolve(ctx context.Context, query string) (*resolver.Result, error) {
	s.query = query
	return s.res, s.err
}

type harness struct {
	player   *fakePlayer
	voice    *fakeVoice
	replies  *replies
	resolver *stubResolver
	deps     *Deps
	session  *discordgo.Session
}

// newHarness puts user u1 in the music channel of guild g1.
func newHarness(t *testing.T) *harness {
	t.Helper()
	state := discordgo.NewState()
	err := state.GuildAdd(&discordgo.Guild{
		ID: guildID,
		Channels: []*discordgo.Channel{
			{ID: musicChannel, GuildID: guildID, Name: "Music", Type: discordgo.ChannelTypeGuildVoice},
			{ID: otherChannel, GuildID: guildID, Name: "Lounge", Type: discordgo.ChannelTypeGuildVoice},
		},
		VoiceStates: []*discordgo.VoiceState{
			{GuildID: guildID, UserID: "u1", ChannelID: musicChannel},
		},
	})
	if err != nil {
		t.Fatalf("GuildAdd: %v", err)
	}

	h := &harness{
		player:   &fakePlayer{},
		voice:    &fakeVoice{channels: map[string]string{}},
		replies:  &replies{},
		resolver: &stubResolver{},
		session:  &discordgo.Session{State: state},
	}
	h.deps = &Deps{
		Voice:          h.voice,
		Player:         h.player,
		Resolver:       h.resolver,
		Notifier:       h.replies,
		ResolveTimeout: time.Second,
		QueueDisplay:   16,
		Log:            zerolog.Nop(),
	}
	return h
}

func (h *harness) command(userID string) *BotCommand {
	m := &discordgo.MessageCreate{Message: &discordgo.Message{
		GuildID:   guildID,
		ChannelID: textChannel,
		Author:    &discordgo.User{ID: userID, Username: "user-" + userID},
	}}
	return NewBotCommand(h.session, m, h.deps)
}

func (h *harness) expect(t *testing.T, want ...string) {
	t.Helper()
	got := h.replies.all()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("replies = %q, want %q", got, want)
	}
}

func TestPlayRequiresVoiceChannel(t *testing.T) {
	h := newHarness(t)
	h.command("u2").Play(context.Background(), "song")

	h.expect(t, "You need to be in a voice channel to play music.")
	if h.voice.joins != 0 || len(h.player.enqueued) != 0 {
		t.Fatal("play without voice channel changed state")
	}
}

func TestPlayAutoJoinsAndEnqueues(t *testing.T) {
	h := newHarness(t)
	h.resolver.res = &resolver.Result{URL: "https://cdn/a", Title: "A", Duration: 90 * time.Second, Uploader: "Band"}

	h.command("u1").Play(context.Background(), "some song")

	h.expect(t, "Joined **Music**")
	if h.resolver.query != "some song" {
		t.Fatalf("resolved %q", h.resolver.query)
	}
	if len(h.player.enqueued) != 1 {
		t.Fatalf("enqueued %d tracks", len(h.player.enqueued))
	}
	tr := h.player.enqueued[0]
	if tr.URL != "https://cdn/a" || tr.Title != "A" || tr.Uploader != "Band" || tr.Duration != 90*time.Second {
		t.Fatalf("track = %+v", tr)
	}
	want := audio.Origin{GuildID: guildID, ChannelID: textChannel, UserID: "u1"}
	if tr.Origin != want {
		t.Fatalf("origin = %+v, want %+v", tr.Origin, want)
	}
}

func TestPlayInSameChannelDoesNotRejoin(t *testing.T) {
	h := newHarness(t)
	h.voice.channels[guildID] = musicChannel
	h.resolver.res = &resolver.Result{URL: "u", Title: "A"}

	h.command("u1").Play(context.Background(), "a")

	h.expect(t)
	if h.voice.joins != 0 || len(h.player.enqueued) != 1 {
		t.Fatalf("joins=%d enqueued=%d", h.voice.joins, len(h.player.enqueued))
	}
}

func TestPlayChannelMismatch(t *testing.T) {
	h := newHarness(t)
	h.voice.channels[guildID] = otherChannel

	h.command("u1").Play(context.Background(), "a")

	h.expect(t, "You need to be in the same voice channel as me. I am in **Lounge**.")
	if len(h.player.enqueued) != 0 {
		t.Fatal("mismatched play enqueued a track")
	}
}

func TestPlayJoinFailure(t *testing.T) {
	h := newHarness(t)
	h.voice.joinErr = errors.New("timeout waiting for voice")

	h.command("u1").Play(context.Background(), "a")

	h.expect(t, "Failed to join your voice channel: timeout waiting for voice")
}

func TestPlayResolutionFailure(t *testing.T) {
	h := newHarness(t)
	h.voice.channels[guildID] = musicChannel
	h.resolver.err = resolver.ErrNotFound

	h.command("u1").Play(context.Background(), "nothing 100%")

	h.expect(t, "Could not find a playable audio source for 'nothing 100%'.")
	if len(h.player.enqueued) != 0 {
		t.Fatal("failed resolution enqueued a track")
	}
}

func TestStopReplies(t *testing.T) {
	tests := []struct {
		name      string
		connected bool
		current   *audio.Track
		want      string
	}{
		{"not connected", false, nil, "I'm not in a voice channel."},
		{"idle", true, nil, "Nothing was playing, but queue has been cleared."},
		{"playing", true, &audio.Track{Title: "A"}, "Music stopped and queue cleared."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.connected {
				h.voice.channels[guildID] = musicChannel
			}
			h.player.status.Current = tt.current

			h.command("u1").Stop(context.Background())

			h.expect(t, tt.want)
			if !h.player.stopped {
				t.Fatal("queue was not cleared")
			}
		})
	}
}

func TestPlayerErrorReplies(t *testing.T) {
	tests := []struct {
		name  string
		setup func(p *fakePlayer)
		run   func(cmd *BotCommand)
		want  []string
	}{
		{"skip idle", func(p *fakePlayer) { p.skipErr = playback.ErrNothingPlaying }, func(c *BotCommand) { c.Skip(context.Background()) }, []string{"Nothing is currently playing to skip."}},
		{"skip playing", func(p *fakePlayer) {}, func(c *BotCommand) { c.Skip(context.Background()) }, nil},
		{"pause", func(p *fakePlayer) {}, func(c *BotCommand) { c.Pause(context.Background()) }, []string{"Music paused."}},
		{"pause twice", func(p *fakePlayer) { p.pauseErr = playback.ErrAlreadyPaused }, func(c *BotCommand) { c.Pause(context.Background()) }, []string{"Music is already paused."}},
		{"pause idle", func(p *fakePlayer) { p.pauseErr = playback.ErrNothingPlaying }, func(c *BotCommand) { c.Pause(context.Background()) }, []string{"Nothing is currently playing to pause."}},
		{"resume", func(p *fakePlayer) {}, func(c *BotCommand) { c.Resume(context.Background()) }, []string{"Music resumed."}},
		{"resume playing", func(p *fakePlayer) { p.resumeErr = playback.ErrNotPaused }, func(c *BotCommand) { c.Resume(context.Background()) }, []string{"Music is already playing."}},
		{"resume idle", func(p *fakePlayer) { p.resumeErr = playback.ErrNothingPlaying }, func(c *BotCommand) { c.Resume(context.Background()) }, []string{"Nothing to resume."}},
		{"leave", func(p *fakePlayer) {}, func(c *BotCommand) { c.Leave(context.Background()) }, []string{"Left the voice channel and cleared the queue."}},
		{"leave idle", func(p *fakePlayer) { p.leaveErr = playback.ErrNotConnected }, func(c *BotCommand) { c.Leave(context.Background()) }, []string{"I'm not in a voice channel."}},
		{"closed", func(p *fakePlayer) { p.pauseErr = playback.ErrClosed }, func(c *BotCommand) { c.Pause(context.Background()) }, []string{"An error occurred with the `pause` command. Please check the console for details."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h.player)
			tt.run(h.command("u1"))
			h.expect(t, tt.want...)
		})
	}
}

func TestJoinReplies(t *testing.T) {
	h := newHarness(t)
	h.command("u1").Join(context.Background())
	h.command("u2").Join(context.Background())

	h.expect(t, "Joined **Music**", "user-u2 is not connected to a voice channel.")
	if ch, _ := h.voice.ChannelID(guildID); ch != musicChannel {
		t.Fatalf("joined %q", ch)
	}
}

func TestNowPlaying(t *testing.T) {
	h := newHarness(t)
	h.command("u1").NowPlaying(context.Background())

	h.player.status = playback.Status{Phase: playback.Paused, Current: &audio.Track{Title: "A", Uploader: "Band", Duration: 61 * time.Second}}
	h.command("u1").NowPlaying(context.Background())

	h.expect(t, "Nothing is playing.", "Paused: **A** by Band [1:01]")
}

func TestRenderQueue(t *testing.T) {
	if got := renderQueue(nil, 16); got != "The music queue is empty." {
		t.Fatalf("empty queue = %q", got)
	}

	var tracks []*audio.Track
	for i := 1; i <= 20; i++ {
		tracks = append(tracks, &audio.Track{Title: fmt.Sprintf("T%d", i)})
	}
	tracks[0].Duration = 3*time.Minute + 5*time.Second

	got := renderQueue(tracks, 16)
	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	if len(lines) != 18 {
		t.Fatalf("got %d lines:\n%s", len(lines), got)
	}
	if lines[0] != "**🎶 Current Music Queue:**" || lines[1] != "1. T1 (3:05)" || lines[16] != "16. T16" {
		t.Fatalf("unexpected rendering:\n%s", got)
	}
	if lines[17] != "... and 4 more." {
		t.Fatalf("tail = %q", lines[17])
	}

	if got := renderQueue(tracks[:16], 16); strings.Contains(got, "more.") {
		t.Fatalf("exact fit rendered a remainder:\n%s", got)
	}
}

func TestQueueCommand(t *testing.T) {
	h := newHarness(t)
	h.player.pending = []*audio.Track{{Title: "A"}, {Title: "B"}}
	h.command("u1").Queue(context.Background())

	h.expect(t, "**🎶 Current Music Queue:**\n1. A\n2. B\n")
}

func TestFormatDuration(t *testing.T) {
	tests := map[time.Duration]string{
		0:                                         "0:00",
		59 * time.Second:                          "0:59",
		61*time.Second + 400*time.Millisecond:     "1:01",
		time.Hour + 2*time.Minute + 3*time.Second: "1:02:03",
	}
	for in, want := range tests {
		if got := formatDuration(in); got != want {
			t.Errorf("formatDuration(%v) = %q, want %q", in, got, want)
		}
	}
}
