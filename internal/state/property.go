package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/bryanchriswhite/winsync/internal/driver"
)

// Delegate performs the platform read for one property.
type Delegate[T comparable] interface {
	Read(ctx context.Context) (T, error)
}

// WriteDelegate performs the platform read and write for one property.
type WriteDelegate[T comparable] interface {
	Delegate[T]
	Write(ctx context.Context, value T) error
}

// Result carries the outcome of an asynchronous Refresh or Set.
type Result[T any] struct {
	Value T
	Err   error
}

// Property caches one attribute of a tracked window. The cached value is
// only changed on the coordinator goroutine.
type Property[T comparable] struct {
	owner    *Window
	name     driver.Attribute
	delegate Delegate[T]
	event    func(Change[T]) Event

	mu          sync.RWMutex
	value       T
	initialized bool
}

func newProperty[T comparable](owner *Window, name driver.Attribute, d Delegate[T], event func(Change[T]) Event) *Property[T] {
	return &Property[T]{owner: owner, name: name, delegate: d, event: event}
}

// Name returns the attribute this property mirrors.
func (p *Property[T]) Name() driver.Attribute { return p.name }

// Value returns the last known value without doing I/O.
func (p *Property[T]) Value() T {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.initialized {
		panic(fmt.Sprintf("state: %s of window %s read before initialization", p.name, p.owner.handle))
	}
	return p.value
}

// Initialize sets the first value. It publishes nothing and may be called
// once.
func (p *Property[T]) Initialize(v T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		panic(fmt.Sprintf("state: %s of window %s initialized twice", p.name, p.owner.handle))
	}
	p.value = v
	p.initialized = true
}

// Refresh re-reads the attribute and waits for the result to be applied.
// Do not call it from an event handler; use RefreshAsync there.
func (p *Property[T]) Refresh(ctx context.Context) (T, error) {
	return await(ctx, p.RefreshAsync(ctx))
}

// RefreshAsync re-reads the attribute. The channel receives exactly one
// result after the new value (if any) has been applied and its event
// published.
func (p *Property[T]) RefreshAsync(ctx context.Context) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	p.refresh(ctx, func(v T, err error) { ch <- Result[T]{Value: v, Err: err} })
	return ch
}

func (p *Property[T]) refresh(ctx context.Context, done func(T, error)) {
	p.mustBeInitialized()
	w := p.owner
	if !w.Valid() {
		done(p.current(), sourceInvalid(w, nil))
		return
	}
	w.lane.run(func() {
		if !w.Valid() {
			w.state.apply(
				func() { done(p.current(), sourceInvalid(w, nil)) },
				func() { done(p.current(), ErrClosed) },
			)
			return
		}
		v, err := p.delegate.Read(ctx)
		w.state.apply(
			func() { done(p.completeRead(v, err)) },
			func() { done(p.current(), ErrClosed) },
		)
	})
}

// completeRead runs on the coordinator.
func (p *Property[T]) completeRead(v T, err error) (T, error) {
	w := p.owner
	if !w.Valid() {
		return p.current(), sourceInvalid(w, nil)
	}
	if err != nil {
		return p.current(), w.state.driverFailed(w, p.name, "read", err)
	}
	p.update(v, true)
	return v, nil
}

// update stores v and publishes a change event if it differs from the
// cached value. Runs on the coordinator.
func (p *Property[T]) update(v T, external bool) {
	p.mu.Lock()
	old := p.value
	if old == v {
		p.mu.Unlock()
		return
	}
	p.value = v
	p.mu.Unlock()

	p.owner.publish(p.event(Change[T]{Win: p.owner, External: external, Old: old, New: v}))
}

func (p *Property[T]) current() T {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.value
}

func (p *Property[T]) mustBeInitialized() {
	p.mu.RLock()
	ok := p.initialized
	p.mu.RUnlock()
	if !ok {
		panic(fmt.Sprintf("state: %s of window %s used before initialization", p.name, p.owner.handle))
	}
}

// WriteableProperty is a Property that can also be set.
type WriteableProperty[T comparable] struct {
	*Property[T]
	writer WriteDelegate[T]
}

func newWriteableProperty[T comparable](owner *Window, name driver.Attribute, d WriteDelegate[T], event func(Change[T]) Event) *WriteableProperty[T] {
	return &WriteableProperty[T]{Property: newProperty[T](owner, name, d, event), writer: d}
}

// Set writes v, reads back what the window system actually applied and
// returns it. The value may differ from v. Do not call it from an event
// handler; use SetAsync there.
func (p *WriteableProperty[T]) Set(ctx context.Context, v T) (T, error) {
	return await(ctx, p.SetAsync(ctx, v))
}

// SetAsync is the non-blocking form of Set.
func (p *WriteableProperty[T]) SetAsync(ctx context.Context, v T) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	p.set(ctx, v, func(v T, err error) { ch <- Result[T]{Value: v, Err: err} })
	return ch
}

func (p *WriteableProperty[T]) set(ctx context.Context, v T, done func(T, error)) {
	p.mustBeInitialized()
	w := p.owner
	if !w.Valid() {
		done(p.current(), sourceInvalid(w, nil))
		return
	}
	w.lane.run(func() {
		if !w.Valid() {
			w.state.apply(
				func() { done(p.current(), sourceInvalid(w, nil)) },
				func() { done(p.current(), ErrClosed) },
			)
			return
		}
		var actual T
		op := "write"
		err := p.writer.Write(ctx, v)
		if err == nil {
			op = "read"
			actual, err = p.writer.Read(ctx)
		}
		w.state.apply(
			func() { done(p.completeWrite(actual, op, err)) },
			func() { done(p.current(), ErrClosed) },
		)
	})
}

// completeWrite runs on the coordinator.
func (p *WriteableProperty[T]) completeWrite(actual T, op string, err error) (T, error) {
	w := p.owner
	if !w.Valid() {
		return p.current(), sourceInvalid(w, nil)
	}
	if err != nil {
		return p.current(), w.state.driverFailed(w, p.name, op, err)
	}
	p.update(actual, false)
	return actual, nil
}

func await[T any](ctx context.Context, ch <-chan Result[T]) (T, error) {
	select {
	case r := <-ch:
		return r.Value, r.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
