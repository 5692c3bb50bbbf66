package governance

import (
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/XiaoConstantine/govern-go/pkg/core"
)

// notifier fans committed-transition notifications out to subscribers. Sends
// never block: a subscriber that falls behind misses notifications rather
// than stalling the engine, and re-fetches state on its next poll.
type notifier struct {
	mu   sync.RWMutex
	next int
	subs map[int]chan core.Notification
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[int]chan core.Notification)}
}

// subscribe registers a buffered channel and returns its cancel token.
func (n *notifier) subscribe(buffer int) (int, <-chan core.Notification) {
	if buffer < 1 {
		buffer = 16
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.next
	n.next++
	ch := make(chan core.Notification, buffer)
	n.subs[id] = ch
	return id, ch
}

// unsubscribe removes and closes a subscriber channel.
func (n *notifier) unsubscribe(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if ch, ok := n.subs[id]; ok {
		delete(n.subs, id)
		close(ch)
	}
}

// publish delivers a notification to all current subscribers concurrently.
// The read lock is held across the sends so an unsubscribe cannot close a
// channel mid-send; sends are non-blocking, so the lock is held briefly.
func (n *notifier) publish(event core.Notification) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if len(n.subs) == 0 {
		return
	}

	p := pool.New()
	for _, ch := range n.subs {
		ch := ch
		p.Go(func() {
			select {
			case ch <- event:
			default: // slow subscriber, drop
			}
		})
	}
	p.Wait()
}

func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
}
