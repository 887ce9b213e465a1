// Package drivertest provides an in-memory, scriptable driver.Driver for tests.
package drivertest

import (
	"context"
	"sync"

	"github.com/bryanchriswhite/winsync/internal/driver"
)

// Attrs is a set of attribute values for one fake window.
type Attrs map[driver.Attribute]any

// CoerceFunc lets a test model a window system that does not honor writes
// exactly (clamping to screen bounds, size increments, ...).
type CoerceFunc func(h driver.Handle, name driver.Attribute, requested any) any

// Gate holds a single ReadAttributes call in flight until released.
type Gate struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

// Started is closed once the held read has begun.
func (g *Gate) Started() <-chan struct{} { return g.started }

// Release lets the held read complete.
func (g *Gate) Release() {
	g.once.Do(func() { close(g.release) })
}

// Fake is a driver.Driver backed by maps.
type Fake struct {
	mu       sync.Mutex
	windows  map[driver.Handle]Attrs
	order    []driver.Handle
	watched  map[driver.Handle]bool
	readErr  map[driver.Handle]error
	writeErr map[driver.Handle]error
	gates    map[driver.Handle]*Gate
	coerce   CoerceFunc
	reads    map[driver.Handle]int
	writes   map[driver.Handle]int

	// EchoWrites makes successful writes emit the matching attribute
	// notification, the way a real window system reports its own changes.
	EchoWrites bool

	notes      chan driver.Notification
	subscribed bool
	closed     bool
}

var _ driver.Driver = (*Fake)(nil)

// New creates an empty fake driver.
func New() *Fake {
	return &Fake{
		windows:  make(map[driver.Handle]Attrs),
		watched:  make(map[driver.Handle]bool),
		readErr:  make(map[driver.Handle]error),
		writeErr: make(map[driver.Handle]error),
		gates:    make(map[driver.Handle]*Gate),
		reads:    make(map[driver.Handle]int),
		writes:   make(map[driver.Handle]int),
		notes:    make(chan driver.Notification, 256),
	}
}

// Name returns "fake".
func (f *Fake) Name() string { return "fake" }

// Add makes a window exist without emitting a notification, as if it was
// already open before the tracker started.
func (f *Fake) Add(h driver.Handle, attrs Attrs) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.windows[h]; !ok {
		f.order = append(f.order, h)
	}
	f.windows[h] = copyAttrs(attrs)
}

// Create adds a window and emits NotifyCreated.
func (f *Fake) Create(h driver.Handle, attrs Attrs) {
	f.Add(h, attrs)
	f.Emit(driver.Notification{Handle: h, Kind: driver.NotifyCreated})
}

// Remove makes a window vanish silently.
func (f *Fake) Remove(h driver.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.windows, h)
	for i, existing := range f.order {
		if existing == h {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

// Destroy removes a window and emits NotifyDestroyed.
func (f *Fake) Destroy(h driver.Handle) {
	f.Remove(h)
	f.Emit(driver.Notification{Handle: h, Kind: driver.NotifyDestroyed})
}

// Change updates an attribute out of band and emits the matching notification.
func (f *Fake) Change(h driver.Handle, name driver.Attribute, value any) {
	f.mu.Lock()
	if attrs, ok := f.windows[h]; ok {
		attrs[name] = value
	}
	f.mu.Unlock()
	f.Emit(driver.Notification{Handle: h, Kind: kindFor(name)})
}

// Put updates an attribute out of band without a notification.
func (f *Fake) Put(h driver.Handle, name driver.Attribute, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if attrs, ok := f.windows[h]; ok {
		attrs[name] = value
	}
}

// Get returns the driver-side value of an attribute.
func (f *Fake) Get(h driver.Handle, name driver.Attribute) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	attrs, ok := f.windows[h]
	if !ok {
		return nil, false
	}
	v, ok := attrs[name]
	return v, ok
}

// Emit delivers a raw notification. Notifications emitted after the stream
// closes are dropped.
func (f *Fake) Emit(n driver.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.notes <- n
}

// SetCoerce installs a coercion hook applied to every write.
func (f *Fake) SetCoerce(fn CoerceFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.coerce = fn
}

// FailReads makes every read of h return err. A nil err clears it.
func (f *Fake) FailReads(h driver.Handle, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.readErr, h)
		return
	}
	f.readErr[h] = err
}

// FailWrites makes every write to h return err. A nil err clears it.
func (f *Fake) FailWrites(h driver.Handle, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.writeErr, h)
		return
	}
	f.writeErr[h] = err
}

// Hold blocks the next read of h until the returned gate is released.
func (f *Fake) Hold(h driver.Handle) *Gate {
	g := &Gate{started: make(chan struct{}), release: make(chan struct{})}
	f.mu.Lock()
	f.gates[h] = g
	f.mu.Unlock()
	return g
}

// Watched reports whether Watch is active for h.
func (f *Fake) Watched(h driver.Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watched[h]
}

// Reads returns how many ReadAttributes calls reached h.
func (f *Fake) Reads(h driver.Handle) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[h]
}

// Writes returns how many WriteAttribute calls reached h.
func (f *Fake) Writes(h driver.Handle) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes[h]
}

// Enumerate returns existing windows in insertion order.
func (f *Fake) Enumerate(ctx context.Context) ([]driver.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]driver.Handle, len(f.order))
	copy(out, f.order)
	return out, nil
}

// ReadAttributes returns the requested attributes that are set. A held read
// captures its result first and returns it once released, modelling a
// reply that arrives late.
func (f *Fake) ReadAttributes(ctx context.Context, h driver.Handle, names []driver.Attribute) (map[driver.Attribute]any, error) {
	f.mu.Lock()
	f.reads[h]++
	gate := f.gates[h]
	delete(f.gates, h)
	out, err := f.readLocked(h, names)
	f.mu.Unlock()

	if gate != nil {
		close(gate.started)
		select {
		case <-gate.release:
		case <-ctx.Done():
			return nil, driver.Transient(ctx.Err())
		}
	}
	return out, err
}

func (f *Fake) readLocked(h driver.Handle, names []driver.Attribute) (map[driver.Attribute]any, error) {
	if err := f.readErr[h]; err != nil {
		return nil, err
	}
	attrs, ok := f.windows[h]
	if !ok {
		return nil, driver.InvalidHandle("read", h)
	}
	out := make(map[driver.Attribute]any, len(names))
	for _, name := range names {
		if v, ok := attrs[name]; ok {
			out[name] = v
		}
	}
	return out, nil
}

// WriteAttribute stores value, after coercion.
func (f *Fake) WriteAttribute(ctx context.Context, h driver.Handle, name driver.Attribute, value any) error {
	f.mu.Lock()
	f.writes[h]++
	if err := f.writeErr[h]; err != nil {
		f.mu.Unlock()
		return err
	}
	attrs, ok := f.windows[h]
	if !ok {
		f.mu.Unlock()
		return driver.InvalidHandle("write", h)
	}
	if name == driver.AttrTitle {
		f.mu.Unlock()
		return driver.ErrReadOnly
	}
	if f.coerce != nil {
		value = f.coerce(h, name, value)
	}
	attrs[name] = value
	echo := f.EchoWrites
	f.mu.Unlock()

	if echo {
		f.Emit(driver.Notification{Handle: h, Kind: kindFor(name)})
	}
	return nil
}

// Subscribe returns the notification stream. It may only be called once.
func (f *Fake) Subscribe(ctx context.Context) (<-chan driver.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, driver.ErrClosed
	}
	f.subscribed = true
	go func() {
		<-ctx.Done()
		f.closeStream()
	}()
	return f.notes, nil
}

// Watch marks h as watched.
func (f *Fake) Watch(h driver.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.windows[h]; !ok {
		return driver.InvalidHandle("watch", h)
	}
	f.watched[h] = true
	return nil
}

// Unwatch clears the watch flag for h.
func (f *Fake) Unwatch(h driver.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.watched, h)
}

// Close ends the notification stream.
func (f *Fake) Close() error {
	f.closeStream()
	return nil
}

func (f *Fake) closeStream() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.notes)
}

func kindFor(name driver.Attribute) driver.NotificationKind {
	switch name {
	case driver.AttrPosition:
		return driver.NotifyMoved
	case driver.AttrSize:
		return driver.NotifyResized
	case driver.AttrTitle:
		return driver.NotifyTitleChanged
	case driver.AttrDesktop:
		return driver.NotifyDesktopChanged
	}
	return 0
}

func copyAttrs(attrs Attrs) Attrs {
	out := make(Attrs, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
