package events

import (
	"sync"

	"github.com/gogotex/docflow/pkg/logger"
)

// Handler receives events. Handlers run synchronously on the publishing
// goroutine and must not block; slow consumers should hand off to their own
// goroutine.
type Handler func(Event)

// Bus is an in-process publish/subscribe hub.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]Handler
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]Handler)}
}

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = h
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers events to every subscriber in order. A panicking handler
// is logged and skipped so one bad subscriber cannot break the others.
func (b *Bus) Publish(evs ...Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()
	for _, ev := range evs {
		for _, h := range handlers {
			deliver(h, ev)
		}
	}
}

func deliver(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("event handler panic on %s for %s: %v", ev.Type, ev.DocumentID, r)
		}
	}()
	h(ev)
}

// Stream subscribes a buffered channel that only receives events for
// documentID. Events are dropped when the buffer is full.
func (b *Bus) Stream(documentID string, buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	var once sync.Once
	var mu sync.Mutex
	closed := false
	unsub := b.Subscribe(func(ev Event) {
		if ev.DocumentID != documentID {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- ev:
		default:
			logger.Warnf("event stream for %s is full, dropping %s", documentID, ev.Type)
		}
	})
	return ch, func() {
		once.Do(func() {
			unsub()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
}
