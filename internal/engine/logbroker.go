package engine

import "sync"

// subscriberBufferSize is the channel buffer for each log subscriber.
// Lines are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// LogBroker fans out the output lines of running records to subscribers.
// It is safe for concurrent use.
//
// Closed topics are kept as markers so that a subscriber arriving after a
// record finished gets a closed channel instead of blocking. Forget drops
// the marker once the record itself is gone.
type LogBroker struct {
	mu     sync.Mutex
	topics map[string]*logTopic
}

type logTopic struct {
	subs   map[int]chan string
	nextID int
	closed bool
}

// NewLogBroker creates a new log broker.
func NewLogBroker() *LogBroker {
	return &LogBroker{
		topics: make(map[string]*logTopic),
	}
}

// Subscribe returns a channel that receives output lines for the given record
// and an unsubscribe function. If the record has already finished (Close was
// called), the returned channel is immediately closed.
func (b *LogBroker) Subscribe(recordID string) (<-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[recordID]
	if !ok {
		t = &logTopic{subs: make(map[int]chan string)}
		b.topics[recordID] = t
	}

	ch := make(chan string, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends a line to all subscribers of the given record.
// Lines are dropped for subscribers whose buffers are full.
func (b *LogBroker) Publish(recordID string, line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[recordID]
	if !ok || t.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- line:
		default:
			// Slow subscriber; drop.
		}
	}
}

// Close signals that no more lines will be published for the given record.
// All subscriber channels are closed and future Subscribe calls return a
// closed channel. Closing twice is a no-op.
func (b *LogBroker) Close(recordID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[recordID]
	if !ok {
		// Create a closed marker so late subscribers get a closed channel.
		b.topics[recordID] = &logTopic{subs: make(map[int]chan string), closed: true}
		return
	}

	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}

// Forget drops all state for a record, including its closed marker.
func (b *LogBroker) Forget(recordID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.topics[recordID]; ok {
		for id, ch := range t.subs {
			close(ch)
			delete(t.subs, id)
		}
		delete(b.topics, recordID)
	}
}

// Len returns the number of tracked topics, open or closed.
func (b *LogBroker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}
