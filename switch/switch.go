package _switch

import (
	"sync"

	"github.com/adwski/watchparty/model"
	"github.com/rs/zerolog"
)

// Switch is the delivery plane: a per-room forwarding table of connection
// wires. It only moves envelopes; room membership decisions are made by the
// registry, which connects and disconnects endpoints as participants come
// and go.
//
// Enqueueing is non-blocking. A recipient whose TX buffer is full has a
// dead or stalled writer pump; dropping its envelope keeps one slow
// connection from stalling fan-out to everyone else.
type Switch struct {
	logger zerolog.Logger
	mx     *sync.RWMutex
	fwd    map[string]map[string]model.Wire
}

func NewSwitch(logger *zerolog.Logger) *Switch {
	return &Switch{
		logger: logger.With().Str("component", "switch").Logger(),
		mx:     &sync.RWMutex{},
		fwd:    make(map[string]map[string]model.Wire),
	}
}

func (sw *Switch) Connect(roomCode, connID string, wire model.Wire) {
	sw.mx.Lock()
	defer func() {
		sw.mx.Unlock()
		sw.logger.Debug().
			Str("roomCode", roomCode).
			Str("connID", connID).
			Msg("endpoint connected")
	}()

	room, ok := sw.fwd[roomCode]
	if !ok {
		room = make(map[string]model.Wire)
		sw.fwd[roomCode] = room
	}
	room[connID] = wire
}

func (sw *Switch) Disconnect(roomCode, connID string) {
	sw.mx.Lock()
	defer func() {
		sw.mx.Unlock()
		sw.logger.Debug().
			Str("roomCode", roomCode).
			Str("connID", connID).
			Msg("endpoint disconnected")
	}()

	room, ok := sw.fwd[roomCode]
	if !ok {
		return
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(sw.fwd, roomCode)
	}
}

// Broadcast enqueues env to every endpoint of the room except exclude.
// Pass an empty exclude to reach everyone, sender included (chat needs
// this so all clients render the server-assigned order).
func (sw *Switch) Broadcast(roomCode, exclude string, env model.Envelope) {
	sw.mx.RLock()
	room := sw.fwd[roomCode]
	wires := make(map[string]model.Wire, len(room))
	for connID, wire := range room {
		wires[connID] = wire
	}
	sw.mx.RUnlock()

	var sent bool
	for connID, wire := range wires {
		if connID == exclude {
			continue
		}
		if sw.enqueue(wire, env, connID) {
			sent = true
		}
	}
	if !sent {
		sw.logger.Debug().
			Str("roomCode", roomCode).
			Str("kind", env.Kind).
			Str("from", env.From).
			Msg("broadcast did not reach anyone")
	}
}

// Send enqueues env to a single endpoint of the room. A missing endpoint is
// an expected race (it may have just disconnected) and is reported via the
// return value only.
func (sw *Switch) Send(roomCode, connID string, env model.Envelope) bool {
	sw.mx.RLock()
	wire, ok := sw.fwd[roomCode][connID]
	sw.mx.RUnlock()

	if !ok {
		sw.logger.Debug().
			Str("roomCode", roomCode).
			Str("dst", connID).
			Str("kind", env.Kind).
			Msg("cannot forward, dst not found")
		return false
	}
	return sw.enqueue(wire, env, connID)
}

func (sw *Switch) enqueue(wire model.Wire, env model.Envelope, connID string) bool {
	select {
	case wire.TX <- env:
		sw.logger.Trace().
			Str("dst", connID).
			Str("kind", env.Kind).
			Msg("envelope forwarded")
		return true
	default:
		sw.logger.Error().
			Str("dst", connID).
			Str("kind", env.Kind).
			Msg("dead endpoint, envelope dropped")
		return false
	}
}
