// Package events carries in-process state-change notifications to observers.
package events

import (
	"sync"

	"github.com/vytor/hanziflash/internal/logger"
)

type subscription[E any] struct {
	id uint64
	fn func(E)
}

// Bus is a synchronous multi-subscriber notifier. Listeners run to
// completion in subscription order within Emit. Nothing is buffered: a
// listener only sees events emitted after it subscribed.
type Bus[E any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscription[E]
	log    *logger.Logger
}

// NewBus creates an empty bus. Panicking listeners are reported through log.
func NewBus[E any](log *logger.Logger) *Bus[E] {
	if log == nil {
		log = logger.Default()
	}
	return &Bus[E]{log: log.WithPrefix("events")}
}

// Subscribe registers fn and returns a function that removes it. Calling
// the returned function more than once is harmless.
func (b *Bus[E]) Subscribe(fn func(E)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription[E]{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus[E]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Emit delivers ev to every current listener.
func (b *Bus[E]) Emit(ev E) {
	b.mu.Lock()
	subs := b.subs
	b.mu.Unlock()

	for _, s := range subs {
		b.deliver(s, ev)
	}
}

func (b *Bus[E]) deliver(s subscription[E], ev E) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("listener %d panicked: %v", s.id, r)
		}
	}()
	s.fn(ev)
}

// Len reports the number of registered listeners.
func (b *Bus[E]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
