package router

import (
	"github.com/example/van-notify/internal/eventbus"
	"github.com/example/van-notify/internal/models"
)

// BusEmitter bridges delivered notifications onto the in-process event bus.
// It is wired through the router's delivered hook rather than the transport
// list: transports only run on local publish, but bus consumers (the alert
// player) must hear every delivery, including the ones the poller or a
// sibling's broadcast carried in.
type BusEmitter struct {
	bus eventbus.Bus
}

func NewBusEmitter(bus eventbus.Bus) *BusEmitter {
	return &BusEmitter{bus: bus}
}

func (e *BusEmitter) Emit(n models.Notification) {
	e.bus.Publish(eventbus.Event{Type: "notification." + string(n.Kind), Notification: n})
}
