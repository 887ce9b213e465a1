package api

import (
	"time"

	"github.com/bryanchriswhite/winsync/internal/state"
)

// EventMessage is the JSON form of a state.Event.
type EventMessage struct {
	Type     string         `json:"type"`
	Window   state.Snapshot `json:"window"`
	External bool           `json:"external"`
	Old      any            `json:"old,omitempty"`
	New      any            `json:"new,omitempty"`
	Time     time.Time      `json:"time"`
}

// NewEventMessage converts ev. It reads cached values only and is safe to
// call from a bus handler.
func NewEventMessage(ev state.Event) EventMessage {
	msg := EventMessage{
		Type:     ev.Kind().String(),
		External: ev.IsExternal(),
		Time:     time.Now().UTC(),
	}
	if w := ev.Window(); w != nil {
		msg.Window = w.Snapshot()
	}

	switch e := ev.(type) {
	case state.PositionChangedEvent:
		msg.Old, msg.New = e.Old, e.New
	case state.SizeChangedEvent:
		msg.Old, msg.New = e.Old, e.New
	case state.TitleChangedEvent:
		msg.Old, msg.New = e.Old, e.New
	case state.DesktopChangedEvent:
		msg.Old, msg.New = e.Old, e.New
	}
	return msg
}
