package bot

import (
	"sync"

	"PokerPilot/store"
)

// dispatcher serializes work per session key: updates for the same
// (chat, topic) run in arrival order on one worker goroutine, while
// independent sessions proceed concurrently. This is what allows the session
// manager and stores to assume a single writer per key.
type dispatcher struct {
	mu     sync.Mutex
	queues map[string]chan func()
	wg     sync.WaitGroup
	closed bool
}

const queueDepth = 64

func newDispatcher() *dispatcher {
	return &dispatcher{queues: map[string]chan func(){}}
}

// submit enqueues fn for the session key. Blocks only when the key's queue
// is full, which back-pressures the polling loop instead of interleaving
// mutations. The send happens under the mutex so close cannot slip in
// between the closed check and the send; workers drain without the mutex,
// so a full queue still empties.
func (d *dispatcher) submit(chatID int64, topicID int, fn func()) {
	key := store.Key(chatID, topicID)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	q, ok := d.queues[key]
	if !ok {
		q = make(chan func(), queueDepth)
		d.queues[key] = q
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for fn := range q {
				fn()
			}
		}()
	}
	q <- fn
}

// close drains all workers. Call after the update channel is closed.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
