package audio

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Origin is where a track was requested from. Status messages about the
// track are sent back to this channel.
type Origin struct {
	GuildID   string
	ChannelID string
	UserID    string
}

type Track struct {
	ID       string
	URL      string // direct stream locator handed to the transport
	Page     string // page the stream was resolved from, if any
	Title    string
	Duration time.Duration
	Uploader string
	Origin   Origin
}

// NewTrack returns a track with a fresh ID.
func NewTrack(url, title string, origin Origin) *Track {
	if title == "" {
		title = "Unknown Title"
	}
	return &Track{
		ID:     ulid.Make().String(),
		URL:    url,
		Title:  title,
		Origin: origin,
	}
}

// Queue is a FIFO of pending tracks for one guild.
type Queue struct {
	sync.Mutex
	tracks []*Track
}

// Enqueue appends t and returns the new queue length.
func (q *Queue) Enqueue(t *Track) int {
	q.Lock()
	defer q.Unlock()
	q.tracks = append(q.tracks, t)
	return len(q.tracks)
}

// PushFront puts t back at the head of the queue.
func (q *Queue) PushFront(t *Track) {
	q.Lock()
	defer q.Unlock()
	q.tracks = append([]*Track{t}, q.tracks...)
}

func (q *Queue) Dequeue() *Track {
	q.Lock()
	defer q.Unlock()

	if len(q.tracks) == 0 {
		return nil
	}
	track := q.tracks[0]
	q.tracks[0] = nil
	q.tracks = q.tracks[1:]
	return track
}

func (q *Queue) List() []*Track {
	q.Lock()
	defer q.Unlock()
	return append([]*Track(nil), q.tracks...)
}

func (q *Queue) Len() int {
	q.Lock()
	defer q.Unlock()
	return len(q.tracks)
}

func (q *Queue) Clear() {
	q.Lock()
	defer q.Unlock()
	q.tracks = nil
}
