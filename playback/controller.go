// Package playback runs the per-guild player: one track at a time, handing
// off to the next queued track when the current one ends, fails or is
// skipped.
//
// Every guild is owned by a single goroutine that processes a mailbox of
// operations. User commands and transport completion signals are both
// posted to that mailbox, so the hand-off logic never runs concurrently
// with itself for the same guild.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"risubot/audio"
)

const (
	DefaultDispatchTimeout  = 5 * time.Second
	DefaultMaxStartFailures = 5
	defaultMailbox          = 32
)

type Options struct {
	// DispatchTimeout bounds how long a transport goroutine waits for the
	// guild mailbox to accept a completion signal before handing the post
	// off to a background retry.
	DispatchTimeout time.Duration
	// MaxStartFailures is the number of consecutive tracks that may fail to
	// start before the player gives up and waits for the next command.
	MaxStartFailures int
	Mailbox          int
}

func (o Options) withDefaults() Options {
	if o.DispatchTimeout <= 0 {
		o.DispatchTimeout = DefaultDispatchTimeout
	}
	if o.MaxStartFailures <= 0 {
		o.MaxStartFailures = DefaultMaxStartFailures
	}
	if o.Mailbox <= 0 {
		o.Mailbox = defaultMailbox
	}
	return o
}

var errOperationPanicked = errors.New("player operation panicked")

type Controller struct {
	voice  Voice
	notify Notifier
	queues *audio.QueueManager
	opts   Options
	log    zerolog.Logger

	mu     sync.Mutex
	guilds map[string]*guild
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// guild is owned by its run goroutine; fields are only touched from ops.
type guild struct {
	id  string
	ops chan func(*guild)
	log zerolog.Logger

	phase    Phase
	current  *audio.Track
	gen      uint64 // identifies the playback started last
	failures int    // consecutive start failures
}

func New(voice Voice, notify Notifier, queues *audio.QueueManager, opts Options, logger zerolog.Logger) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		voice:  voice,
		notify: notify,
		queues: queues,
		opts:   opts.withDefaults(),
		log:    logger,
		guilds: make(map[string]*guild),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Close stops every guild goroutine. Pending operations fail with ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

func (c *Controller) guild(guildID string) (*guild, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	g, ok := c.guilds[guildID]
	if !ok {
		g = &guild{
			id:  guildID,
			ops: make(chan func(*guild), c.opts.Mailbox),
			log: c.log.With().Str("guild", guildID).Logger(),
		}
		c.guilds[guildID] = g
		c.wg.Add(1)
		go c.run(g)
	}
	return g, nil
}

func (c *Controller) run(g *guild) {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case op := <-g.ops:
			c.exec(g, op)
		}
	}
}

func (c *Controller) exec(g *guild, op func(*guild)) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error().Interface("panic", r).Msg("player operation panicked")
		}
	}()
	op(g)
}

// do runs fn on the guild's goroutine and waits for it to finish. When do
// returns an error, fn may still be running, so callers must not read what
// fn writes.
func (c *Controller) do(ctx context.Context, guildID string, fn func(*guild)) error {
	g, err := c.guild(guildID)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	completed := false
	op := func(g *guild) {
		defer close(done)
		fn(g)
		completed = true
	}

	select {
	case g.ops <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrClosed
	}

	select {
	case <-done:
		if !completed {
			return errOperationPanicked
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrClosed
	}
}

// dispatch posts op from outside the guild goroutine, typically from a
// transport callback.
func (c *Controller) dispatch(g *guild, op func(*guild)) {
	timer := time.NewTimer(c.opts.DispatchTimeout)
	defer timer.Stop()

	select {
	case g.ops <- op:
		return
	case <-c.ctx.Done():
		return
	case <-timer.C:
	}

	g.log.Warn().Err(ErrDispatchTimeout).Dur("timeout", c.opts.DispatchTimeout).Msg("retrying completion hand-off in background")
	go func() {
		select {
		case g.ops <- op:
		case <-c.ctx.Done():
		}
	}()
}

func (c *Controller) notice(origin audio.Origin, message string) {
	if err := c.notify.Notify(origin, message); err != nil {
		c.log.Debug().Err(err).Str("channel", origin.ChannelID).Msg("notice not delivered")
	}
}

// Enqueue appends t to its guild's queue and returns the queue position. If
// the guild is idle and its voice session is connected, playback starts.
func (c *Controller) Enqueue(ctx context.Context, t *audio.Track) (int, error) {
	var position int
	err := c.do(ctx, t.Origin.GuildID, func(g *guild) {
		position = c.queues.Enqueue(g.id, t)
		g.log.Info().Str("track", t.ID).Str("title", t.Title).Int("position", position).Msg("track enqueued")
		c.notice(t.Origin, fmt.Sprintf("Added to queue: **%s** (Position: %d)", t.Title, position))

		if g.current == nil && c.voice.Connected(g.id) {
			c.advance(g, t.Origin)
		}
	})
	if err != nil {
		return 0, err
	}
	return position, nil
}

// advance starts the next queued track or settles the guild into Idle.
// origin receives the notice when the queue runs dry.
func (c *Controller) advance(g *guild, origin audio.Origin) {
	for {
		t, ok := c.queues.DequeueFront(g.id)
		if !ok {
			g.phase = Idle
			g.failures = 0
			g.log.Info().Msg("queue finished")
			if c.voice.Connected(g.id) {
				c.notice(origin, "Queue finished.")
			}
			return
		}

		if !c.voice.Connected(g.id) {
			c.queues.Clear(g.id)
			g.phase = Idle
			g.failures = 0
			g.log.Warn().Str("track", t.ID).Msg("voice session gone, queue cleared")
			return
		}

		if g.current != nil || c.voice.Playing(g.id) || c.voice.Paused(g.id) {
			c.queues.PushFront(g.id, t)
			g.log.Debug().Str("track", t.ID).Msg("playback already active, track requeued")
			return
		}

		g.gen++
		if err := c.voice.Play(g.id, t.URL, c.completion(g, g.gen, t)); err != nil {
			err = fmt.Errorf("%w: %w", ErrPlaybackStartFailed, err)
			g.failures++
			g.log.Error().Err(err).Str("track", t.ID).Str("title", t.Title).Int("failures", g.failures).Msg("track failed to start")
			c.notice(t.Origin, fmt.Sprintf("An error occurred before playing '%s': %v", t.Title, err))

			if g.failures >= c.opts.MaxStartFailures {
				g.phase = Idle
				g.failures = 0
				g.log.Error().Int("remaining", c.queues.Len(g.id)).Msg("too many start failures, playback halted")
				c.notice(t.Origin, "Too many tracks in a row failed to start. Playback halted; play a song to try again.")
				return
			}
			origin = t.Origin
			continue
		}

		g.failures = 0
		g.current = t
		g.phase = Playing
		g.log.Info().Str("track", t.ID).Str("title", t.Title).Msg("now playing")
		c.notice(t.Origin, fmt.Sprintf("Now playing: **%s**", t.Title))
		return
	}
}

// completion returns the hook handed to the transport for one playback.
func (c *Controller) completion(g *guild, gen uint64, t *audio.Track) func(error) {
	var once sync.Once
	return func(err error) {
		once.Do(func() {
			c.dispatch(g, func(g *guild) { c.finished(g, gen, t, err) })
		})
	}
}

func (c *Controller) finished(g *guild, gen uint64, t *audio.Track, err error) {
	if gen != g.gen || g.current == nil {
		// Already torn down by stop, leave or skip recovery. Only pick up
		// tracks queued since then, which would otherwise wait forever.
		g.log.Debug().Str("track", t.ID).Msg("late completion ignored")
		if g.current == nil && c.queues.Len(g.id) > 0 && c.voice.Connected(g.id) {
			c.advance(g, t.Origin)
		}
		return
	}

	g.current = nil
	g.phase = Idle
	if err != nil {
		g.log.Warn().Err(err).Str("track", t.ID).Str("title", t.Title).Msg("player error")
		c.notice(t.Origin, fmt.Sprintf("Playback error for '%s': %v", t.Title, err))
	}
	c.advance(g, t.Origin)
}

// reset drops the active track. A completion still in flight for it is
// ignored afterwards.
func (c *Controller) reset(g *guild) {
	g.current = nil
	g.phase = Idle
	g.failures = 0
	g.gen++
}

// Skip halts the current track; the next one starts from the completion
// path. The announcement goes to from before the next track is announced.
// It returns the skipped track.
func (c *Controller) Skip(ctx context.Context, from audio.Origin) (*audio.Track, error) {
	var skipped *audio.Track
	var serr error
	err := c.do(ctx, from.GuildID, func(g *guild) {
		if g.current == nil {
			serr = ErrNothingPlaying
			return
		}
		skipped = g.current
		g.log.Info().Str("track", skipped.ID).Msg("skipping")
		c.notice(from, "Skipping song...")

		if c.voice.Stop(g.id) || c.voice.Playing(g.id) || c.voice.Paused(g.id) {
			return
		}
		// The transport has nothing running, so no completion is coming
		// for the current generation.
		c.reset(g)
		c.advance(g, skipped.Origin)
	})
	if err != nil {
		return nil, err
	}
	return skipped, serr
}

// Stop clears the queue and halts playback. It reports whether a track was
// active.
func (c *Controller) Stop(ctx context.Context, guildID string) (bool, error) {
	var active bool
	err := c.do(ctx, guildID, func(g *guild) {
		c.queues.Clear(g.id)
		active = g.current != nil
		c.reset(g)
		c.voice.Stop(g.id)
		g.log.Info().Bool("active", active).Msg("stopped")
	})
	if err != nil {
		return false, err
	}
	return active, nil
}

func (c *Controller) Pause(ctx context.Context, guildID string) error {
	var perr error
	err := c.do(ctx, guildID, func(g *guild) {
		switch g.phase {
		case Paused:
			perr = ErrAlreadyPaused
			return
		case Idle:
			perr = ErrNothingPlaying
			return
		}
		if !c.voice.Pause(g.id) {
			perr = ErrNothingPlaying
			return
		}
		g.phase = Paused
	})
	if err != nil {
		return err
	}
	return perr
}

func (c *Controller) Resume(ctx context.Context, guildID string) error {
	var rerr error
	err := c.do(ctx, guildID, func(g *guild) {
		switch g.phase {
		case Playing:
			rerr = ErrNotPaused
			return
		case Idle:
			rerr = ErrNothingPlaying
			return
		}
		if !c.voice.Resume(g.id) {
			rerr = ErrNothingPlaying
			return
		}
		g.phase = Playing
	})
	if err != nil {
		return err
	}
	return rerr
}

// Leave clears the queue, halts playback and releases the voice session.
// ErrNotConnected is returned when there was no session, after the queue
// has been cleared anyway.
func (c *Controller) Leave(ctx context.Context, guildID string) error {
	var lerr error
	err := c.do(ctx, guildID, func(g *guild) {
		connected := c.voice.Connected(g.id)
		c.queues.Clear(g.id)
		c.reset(g)
		c.voice.Stop(g.id)

		derr := c.voice.Disconnect(g.id)
		switch {
		case !connected:
			lerr = ErrNotConnected
		case derr != nil:
			lerr = fmt.Errorf("disconnect: %w", derr)
		}
		g.log.Info().Bool("connected", connected).Msg("left voice")
	})
	if err != nil {
		return err
	}
	return lerr
}

// Release handles a voice session that went away without a leave command.
func (c *Controller) Release(ctx context.Context, guildID string) error {
	return c.do(ctx, guildID, func(g *guild) {
		dropped := c.queues.Len(g.id)
		c.queues.Clear(g.id)
		c.reset(g)
		c.voice.Stop(g.id)
		g.log.Warn().Int("dropped", dropped).Msg("voice session released")
	})
}

func (c *Controller) Status(ctx context.Context, guildID string) (Status, error) {
	var st Status
	err := c.do(ctx, guildID, func(g *guild) {
		st = Status{Phase: g.phase, Current: g.current}
	})
	if err != nil {
		return Status{}, err
	}
	return st, nil
}

// Snapshot returns the pending tracks of a guild in play order.
func (c *Controller) Snapshot(guildID string) []*audio.Track {
	return c.queues.Snapshot(guildID)
}
