package audio

import "sync"

// QueueManager owns one Queue per guild. Queues are created on first use and
// each one carries its own lock, so guilds never wait on each other.
type QueueManager struct {
	queues map[string]*Queue // guildID → Queue
	sync.RWMutex
}

func NewQueueManager() *QueueManager {
	return &QueueManager{
		queues: make(map[string]*Queue),
	}
}

func (qm *QueueManager) Get(guildID string) *Queue {
	qm.RLock()
	q, ok := qm.queues[guildID]
	qm.RUnlock()
	if ok {
		return q
	}

	qm.Lock()
	defer qm.Unlock()
	if _, ok := qm.queues[guildID]; !ok {
		qm.queues[guildID] = &Queue{}
	}
	return qm.queues[guildID]
}

// lookup returns the guild's queue without creating it.
func (qm *QueueManager) lookup(guildID string) (*Queue, bool) {
	qm.RLock()
	defer qm.RUnlock()
	q, ok := qm.queues[guildID]
	return q, ok
}

// Enqueue appends t to the guild's queue and returns the new length.
func (qm *QueueManager) Enqueue(guildID string, t *Track) int {
	return qm.Get(guildID).Enqueue(t)
}

// DequeueFront removes and returns the head of the guild's queue.
func (qm *QueueManager) DequeueFront(guildID string) (*Track, bool) {
	q, ok := qm.lookup(guildID)
	if !ok {
		return nil, false
	}
	t := q.Dequeue()
	return t, t != nil
}

// PushFront undoes a DequeueFront.
func (qm *QueueManager) PushFront(guildID string, t *Track) {
	qm.Get(guildID).PushFront(t)
}

func (qm *QueueManager) Clear(guildID string) {
	if q, ok := qm.lookup(guildID); ok {
		q.Clear()
	}
}

// Snapshot returns a copy of the guild's pending tracks in play order.
func (qm *QueueManager) Snapshot(guildID string) []*Track {
	q, ok := qm.lookup(guildID)
	if !ok {
		return nil
	}
	return q.List()
}

func (qm *QueueManager) Len(guildID string) int {
	q, ok := qm.lookup(guildID)
	if !ok {
		return 0
	}
	return q.Len()
}
