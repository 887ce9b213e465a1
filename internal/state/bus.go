package state

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

type subscriber struct {
	id uint64
	fn func(Event)
}

// Bus delivers events synchronously, in subscription order, on the
// publishing goroutine. A handler that panics is logged and skipped.
//
// Handlers run on the coordinator. They may read any Value, but must use
// the Async forms of Refresh and Set: the blocking forms wait for the
// coordinator and would deadlock.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[Kind][]subscriber
	all      []subscriber
	log      zerolog.Logger
}

// NewBus creates an empty bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[Kind][]subscriber),
		log:      log,
	}
}

// Subscribe registers handler for the concrete event type E and returns a
// function that removes it.
func Subscribe[E Event](b *Bus, handler func(E)) (unsubscribe func()) {
	switch reflect.TypeFor[E]().Kind() {
	case reflect.Interface, reflect.Pointer:
		panic(fmt.Sprintf("state: Subscribe needs a concrete event type, got %s, use SubscribeAll for Event", reflect.TypeFor[E]()))
	}
	var zero E
	return b.add(zero.Kind(), func(ev Event) {
		if e, ok := ev.(E); ok {
			handler(e)
		}
	})
}

// SubscribeAll registers handler for every event kind.
func (b *Bus) SubscribeAll(handler func(Event)) (unsubscribe func()) {
	return b.add(0, handler)
}

func (b *Bus) add(kind Kind, fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s := subscriber{id: b.nextID, fn: fn}
	if kind == 0 {
		b.all = append(b.all, s)
	} else {
		b.handlers[kind] = append(b.handlers[kind], s)
	}

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(kind, s.id) })
	}
}

func (b *Bus) remove(kind Kind, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if kind == 0 {
		b.all = without(b.all, id)
		return
	}
	b.handlers[kind] = without(b.handlers[kind], id)
	if len(b.handlers[kind]) == 0 {
		delete(b.handlers, kind)
	}
}

func without(subs []subscriber, id uint64) []subscriber {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// Publish delivers ev to every handler subscribed at the time of the call.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := make([]subscriber, 0, len(b.handlers[ev.Kind()])+len(b.all))
	subs = append(subs, b.handlers[ev.Kind()]...)
	subs = append(subs, b.all...)
	b.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })
	for _, s := range subs {
		b.deliver(s, ev)
	}
}

func (b *Bus) deliver(s subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			l := b.log.Error().
				Str("event", ev.Kind().String()).
				Str("panic", fmt.Sprint(r))
			if w := ev.Window(); w != nil {
				l = l.Stringer("window", w.Handle())
			}
			l.Msg("Event handler panicked")
		}
	}()
	s.fn(ev)
}
