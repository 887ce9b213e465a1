package state

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/winsync/internal/driver"
)

func positionEvent(from, to driver.Point) PositionChangedEvent {
	return PositionChangedEvent{Change[driver.Point]{External: true, Old: from, New: to}}
}

func TestSubscribe_OnlyMatchingKind(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	var moves, sizes int
	Subscribe(bus, func(e PositionChangedEvent) { moves++ })
	Subscribe(bus, func(e SizeChangedEvent) { sizes++ })

	bus.Publish(positionEvent(driver.Point{}, driver.Point{X: 1}))
	bus.Publish(positionEvent(driver.Point{X: 1}, driver.Point{X: 2}))

	if moves != 2 || sizes != 0 {
		t.Fatalf("moves=%d sizes=%d, want 2 and 0", moves, sizes)
	}
}

func TestSubscribe_TypedPayload(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	var got PositionChangedEvent
	Subscribe(bus, func(e PositionChangedEvent) { got = e })

	bus.Publish(positionEvent(driver.Point{X: 1, Y: 2}, driver.Point{X: 3, Y: 4}))

	if got.Old != (driver.Point{X: 1, Y: 2}) || got.New != (driver.Point{X: 3, Y: 4}) || !got.IsExternal() {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestPublish_SubscriptionOrder(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	var order []string
	Subscribe(bus, func(PositionChangedEvent) { order = append(order, "first") })
	bus.SubscribeAll(func(Event) { order = append(order, "all") })
	Subscribe(bus, func(PositionChangedEvent) { order = append(order, "third") })

	bus.Publish(positionEvent(driver.Point{}, driver.Point{X: 1}))

	want := []string{"first", "all", "third"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestPublish_RecoversHandlerPanic(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	reached := false
	Subscribe(bus, func(PositionChangedEvent) { panic("handler bug") })
	Subscribe(bus, func(PositionChangedEvent) { reached = true })

	bus.Publish(positionEvent(driver.Point{}, driver.Point{X: 1}))

	if !reached {
		t.Fatal("handler after the panicking one was not called")
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	calls := 0
	unsubscribe := Subscribe(bus, func(PositionChangedEvent) { calls++ })
	all := 0
	unsubscribeAll := bus.SubscribeAll(func(Event) { all++ })

	bus.Publish(positionEvent(driver.Point{}, driver.Point{X: 1}))
	unsubscribe()
	unsubscribe()
	unsubscribeAll()
	bus.Publish(positionEvent(driver.Point{X: 1}, driver.Point{X: 2}))

	if calls != 1 || all != 1 {
		t.Fatalf("calls=%d all=%d, want 1 and 1", calls, all)
	}
}

func TestSubscribe_InterfaceTypePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for Subscribe[Event]")
		}
	}()
	Subscribe(NewBus(zerolog.Nop()), func(Event) {})
}

func TestSubscribe_PointerTypePanics(t *testing.T) {
	defer func() {
		r := recover()
		msg, ok := r.(string)
		if !ok || !strings.Contains(msg, "concrete event type") {
			t.Fatalf("recovered %v, want concrete event type panic", r)
		}
	}()
	Subscribe(NewBus(zerolog.Nop()), func(*PositionChangedEvent) {})
}

func TestKindString(t *testing.T) {
	if KindPositionChanged.String() != "position_changed" {
		t.Fatalf("got %q", KindPositionChanged.String())
	}
	if Kind(99).String() != "kind(99)" {
		t.Fatalf("got %q", Kind(99).String())
	}
}

func TestParseErrorPolicy(t *testing.T) {
	for in, want := range map[string]ErrorPolicy{
		"":           PolicyReport,
		"report":     PolicyReport,
		"Invalidate": PolicyInvalidate,
		" panic ":    PolicyPanic,
	} {
		got, err := ParseErrorPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseErrorPolicy(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseErrorPolicy("abort"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
