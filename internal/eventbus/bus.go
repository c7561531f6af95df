package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Task lifecycle event types.
const (
	TaskCreated = "task.created"
	TaskRemoved = "task.removed"
	TaskFired   = "task.fired"
	// PollCompleted carries a PollSummary.
	PollCompleted = "scheduler.poll"
)

// Event is a lightweight in-memory signal, consumed by the GUI/history layer.
//
// Publish never blocks: subscribers get buffered channels and slow ones drop
// events.
type Event struct {
	Type   string
	Time   time.Time
	TaskID string
	Data   any
}

// PollSummary is the Data of a PollCompleted event.
type PollSummary struct {
	Fired         int
	CallbackFails int
	PersistErr    string
	Took          time.Duration
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Deliver under the read lock so unsubscribe (which closes the channel
	// under the write lock) can never race a send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}

// Nop discards everything. Components use it when no bus is wired.
func Nop() Bus { return nopBus{} }

type nopBus struct{}

func (nopBus) Publish(Event) {}

func (nopBus) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}
