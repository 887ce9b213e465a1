package x11

import (
	"context"
	"fmt"
	"strings"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/xwindow"

	"github.com/bryanchriswhite/winsync/internal/driver"
)

// ReadAttributes reads each requested attribute. Geometry failures are
// returned as errors; a missing title or desktop property is left out of
// the result.
func (d *Driver) ReadAttributes(ctx context.Context, h driver.Handle, names []driver.Attribute) (map[driver.Attribute]any, error) {
	win := xproto.Window(h)
	out := make(map[driver.Attribute]any, len(names))
	for _, name := range names {
		switch name {
		case driver.AttrPosition:
			p, err := d.position(ctx, win)
			if err != nil {
				return nil, classifyError("read position of", h, err)
			}
			out[name] = p
		case driver.AttrSize:
			s, err := d.size(ctx, win)
			if err != nil {
				return nil, classifyError("read size of", h, err)
			}
			out[name] = s
		case driver.AttrTitle:
			if title, ok := d.title(ctx, win); ok {
				out[name] = title
			}
		case driver.AttrDesktop:
			desktop, err := call(ctx, func() (uint, error) { return ewmh.WmDesktopGet(d.xu, win) })
			if err == nil {
				out[name] = desktopFromWire(desktop)
			} else if err := classifyError("read desktop of", h, err); driver.IsInvalidHandle(err) || driver.IsTransient(err) {
				return nil, err
			}
		default:
			d.log.Debug().Str("attribute", string(name)).Msg("Unsupported attribute requested")
		}
	}
	return out, nil
}

// position returns the client window origin in root coordinates.
func (d *Driver) position(ctx context.Context, win xproto.Window) (driver.Point, error) {
	reply, err := call(ctx, func() (*xproto.TranslateCoordinatesReply, error) {
		return xproto.TranslateCoordinates(d.xu.Conn(), win, d.root, 0, 0).Reply()
	})
	if err != nil {
		return driver.Point{}, err
	}
	return driver.Point{X: int(reply.DstX), Y: int(reply.DstY)}, nil
}

func (d *Driver) size(ctx context.Context, win xproto.Window) (driver.Size, error) {
	geom, err := call(ctx, func() (*xproto.GetGeometryReply, error) {
		return xproto.GetGeometry(d.xu.Conn(), xproto.Drawable(win)).Reply()
	})
	if err != nil {
		return driver.Size{}, err
	}
	return driver.Size{Width: int(geom.Width), Height: int(geom.Height)}, nil
}

// title prefers _NET_WM_NAME and falls back to WM_NAME.
func (d *Driver) title(ctx context.Context, win xproto.Window) (string, bool) {
	title, err := call(ctx, func() (string, error) { return ewmh.WmNameGet(d.xu, win) })
	if err == nil {
		if title = strings.TrimSpace(title); title != "" {
			return title, true
		}
	}
	title, err = call(ctx, func() (string, error) { return icccm.WmNameGet(d.xu, win) })
	if err == nil {
		return strings.TrimSpace(title), true
	}
	return "", false
}

// WriteAttribute asks the window manager to apply value. The window
// manager may ignore or adjust the request.
func (d *Driver) WriteAttribute(ctx context.Context, h driver.Handle, name driver.Attribute, value any) error {
	win := xproto.Window(h)
	switch name {
	case driver.AttrPosition:
		p, ok := value.(driver.Point)
		if !ok {
			return fmt.Errorf("write position of %s: unexpected type %T", h, value)
		}
		if err := ewmh.MoveWindow(d.xu, win, p.X, p.Y); err != nil {
			d.log.Debug().Err(err).Stringer("window", h).Msg("EWMH move failed, moving directly")
			xwindow.New(d.xu, win).Move(p.X, p.Y)
		}
		return d.sync(ctx, h)
	case driver.AttrSize:
		s, ok := value.(driver.Size)
		if !ok {
			return fmt.Errorf("write size of %s: unexpected type %T", h, value)
		}
		if err := ewmh.ResizeWindow(d.xu, win, s.Width, s.Height); err != nil {
			d.log.Debug().Err(err).Stringer("window", h).Msg("EWMH resize failed, resizing directly")
			xwindow.New(d.xu, win).Resize(s.Width, s.Height)
		}
		return d.sync(ctx, h)
	case driver.AttrDesktop:
		desktop, ok := value.(int)
		if !ok {
			return fmt.Errorf("write desktop of %s: unexpected type %T", h, value)
		}
		_, err := call(ctx, func() (struct{}, error) {
			return struct{}{}, d.sendDesktop(win, desktop)
		})
		return classifyError("write desktop of", h, err)
	case driver.AttrTitle:
		return driver.ErrReadOnly
	}
	return fmt.Errorf("write %s of %s: unsupported attribute", name, h)
}

// sendDesktop sends a _NET_WM_DESKTOP client message to the root window.
func (d *Driver) sendDesktop(win xproto.Window, desktop int) error {
	const sourceIndication = 2 // pager/direct action
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: win,
		Type:   d.atomWmDesktop,
		Data:   xproto.ClientMessageDataUnionData32New([]uint32{desktopToWire(desktop), sourceIndication, 0, 0, 0}),
	}
	return xproto.SendEventChecked(
		d.xu.Conn(),
		false,
		d.root,
		xproto.EventMaskSubstructureRedirect|xproto.EventMaskSubstructureNotify,
		string(ev.Bytes()),
	).Check()
}

// sync waits until the server has processed earlier requests so that the
// read following a write observes its effect. A failure here means the
// window vanished.
func (d *Driver) sync(ctx context.Context, h driver.Handle) error {
	_, err := call(ctx, func() (*xproto.GetGeometryReply, error) {
		return xproto.GetGeometry(d.xu.Conn(), xproto.Drawable(h)).Reply()
	})
	return classifyError("write", h, err)
}
