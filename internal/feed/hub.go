package feed

import (
	"sync"

	"github.com/crowvale/taskdeck/internal/workflow"
)

const defaultSnapshotBuffer = 8

// Hub is the server-side fan-out for the task feed. The mutation gateway
// publishes the full task list after every successful write; every subscriber
// gets its own cloned snapshot. Sends never block: a subscriber that cannot
// keep up misses intermediate snapshots but the next publish carries the full
// state anyway, so nothing is lost for long.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan []workflow.Task
	nextID int
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSnapshotBuffer
	}
	return &Hub{
		subs:   make(map[int]chan []workflow.Task),
		buffer: buffer,
	}
}

// Subscribe registers a snapshot channel. The returned teardown closes the
// channel and is safe to call more than once.
func (h *Hub) Subscribe() (<-chan []workflow.Task, Teardown) {
	ch := make(chan []workflow.Task, h.buffer)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = ch
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
}

// Publish delivers snapshot to every subscriber.
func (h *Hub) Publish(snapshot []workflow.Task) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		out := make([]workflow.Task, len(snapshot))
		for i, t := range snapshot {
			out[i] = t.Clone()
		}
		select {
		case ch <- out:
		default:
		}
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
