package x11

import (
	"context"
	"sort"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/BurntSushi/xgbutil/xwindow"

	"github.com/bryanchriswhite/winsync/internal/driver"
)

// Subscribe starts the xevent loop and returns the notification stream.
func (d *Driver) Subscribe(ctx context.Context) (<-chan driver.Notification, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, driver.ErrClosed
	}
	if d.streaming {
		d.mu.Unlock()
		return d.notes, nil
	}
	d.streaming = true
	d.mu.Unlock()

	if err := xwindow.New(d.xu, d.root).Listen(xproto.EventMaskPropertyChange); err != nil {
		return nil, err
	}
	xevent.PropertyNotifyFun(d.onRootProperty).Connect(d.xu, d.root)

	go xevent.Main(d.xu)
	go func() {
		select {
		case <-ctx.Done():
			d.shutdown()
		case <-d.stop:
		}
	}()
	d.log.Debug().Msg("Listening for X events")
	return d.notes, nil
}

// Watch selects structure and property events on win.
func (d *Driver) Watch(h driver.Handle) error {
	win := xproto.Window(h)
	d.mu.Lock()
	if d.watched[win] {
		d.mu.Unlock()
		return nil
	}
	d.watched[win] = true
	d.mu.Unlock()

	err := xwindow.New(d.xu, win).Listen(xproto.EventMaskStructureNotify, xproto.EventMaskPropertyChange)
	if err != nil {
		d.mu.Lock()
		delete(d.watched, win)
		d.mu.Unlock()
		return classifyError("watch", h, err)
	}

	xevent.ConfigureNotifyFun(func(_ *xgbutil.XUtil, _ xevent.ConfigureNotifyEvent) {
		d.emit(h, driver.NotifyMoved)
		d.emit(h, driver.NotifyResized)
	}).Connect(d.xu, win)
	xevent.DestroyNotifyFun(func(_ *xgbutil.XUtil, _ xevent.DestroyNotifyEvent) {
		d.mu.Lock()
		delete(d.known, win)
		d.mu.Unlock()
		d.emit(h, driver.NotifyDestroyed)
	}).Connect(d.xu, win)
	xevent.PropertyNotifyFun(func(_ *xgbutil.XUtil, ev xevent.PropertyNotifyEvent) {
		if kind, ok := d.propertyKind(ev.Atom); ok {
			d.emit(h, kind)
		}
	}).Connect(d.xu, win)
	return nil
}

// Unwatch detaches every callback registered for h.
func (d *Driver) Unwatch(h driver.Handle) {
	win := xproto.Window(h)
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.watched[win] {
		return
	}
	delete(d.watched, win)
	xevent.Detach(d.xu, win)
}

func (d *Driver) propertyKind(atom xproto.Atom) (driver.NotificationKind, bool) {
	switch atom {
	case d.atomNetWmName, d.atomWmName:
		return driver.NotifyTitleChanged, true
	case d.atomWmDesktop:
		return driver.NotifyDesktopChanged, true
	}
	return 0, false
}

func (d *Driver) onRootProperty(xu *xgbutil.XUtil, ev xevent.PropertyNotifyEvent) {
	if ev.Atom != d.atomClientList {
		return
	}
	clients, err := ewmh.ClientListGet(xu)
	if err != nil {
		d.log.Warn().Err(err).Msg("Failed to read client list")
		return
	}

	d.mu.Lock()
	added, removed := diffClients(d.known, clients)
	gone := removed[:0:0]
	for _, win := range removed {
		if d.known[win] {
			gone = append(gone, win)
		}
		delete(d.known, win)
	}
	d.mu.Unlock()

	for _, win := range added {
		normal := d.isNormalWindow(win)
		d.mu.Lock()
		d.known[win] = normal
		d.mu.Unlock()
		if normal {
			d.emit(driver.Handle(win), driver.NotifyCreated)
		}
	}
	for _, win := range gone {
		d.emit(driver.Handle(win), driver.NotifyDestroyed)
	}
}

// diffClients compares the known client set with a fresh client list.
// added keeps the order of current; removed is sorted.
func diffClients(known map[xproto.Window]bool, current []xproto.Window) (added, removed []xproto.Window) {
	seen := make(map[xproto.Window]bool, len(current))
	for _, win := range current {
		if seen[win] {
			continue
		}
		seen[win] = true
		if _, ok := known[win]; !ok {
			added = append(added, win)
		}
	}
	for win := range known {
		if !seen[win] {
			removed = append(removed, win)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	return added, removed
}

// emit blocks until the consumer takes the notification or the stream
// stops.
func (d *Driver) emit(h driver.Handle, kind driver.NotificationKind) {
	d.sendMu.Lock()
	defer d.sendMu.Unlock()
	if d.notesClosed {
		return
	}
	select {
	case d.notes <- driver.Notification{Handle: h, Kind: kind}:
	case <-d.stop:
	}
}

func (d *Driver) shutdown() {
	d.stopOnce.Do(func() {
		close(d.stop)
		xevent.Quit(d.xu)
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		d.sendMu.Lock()
		d.notesClosed = true
		close(d.notes)
		d.sendMu.Unlock()
	})
}
