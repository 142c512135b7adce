package _switch

import (
	"errors"
	"sync"

	"github.com/adwski/roomchat/backend/model"
	"github.com/rs/zerolog"
)

var (
	ErrIdentityConflict = errors.New("identity is already connected")
)

type endpoint struct {
	wire   model.Wire
	closed bool
}

// Switch holds outbound wires of connected endpoints keyed by identity.
type Switch struct {
	logger zerolog.Logger
	mx     *sync.RWMutex
	fwd    map[model.Identity]*endpoint
}

func NewSwitch(logger *zerolog.Logger) *Switch {
	return &Switch{
		logger: logger.With().Str("component", "switch").Logger(),
		mx:     &sync.RWMutex{},
		fwd:    make(map[model.Identity]*endpoint),
	}
}

// Connect registers the wire of identity. An identity can be held by one endpoint only,
// the existing endpoint is left untouched on conflict.
func (sw *Switch) Connect(identity model.Identity, wire model.Wire) error {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	if _, ok := sw.fwd[identity]; ok {
		return ErrIdentityConflict
	}
	sw.fwd[identity] = &endpoint{wire: wire}
	sw.logger.Debug().
		Str("endpoint", identity).
		Msg("endpoint connected")
	return nil
}

// Disconnect closes the wire of identity, nothing is forwarded to it afterwards.
// The identity stays reserved until Release.
func (sw *Switch) Disconnect(identity model.Identity) {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	ep, ok := sw.fwd[identity]
	if !ok || ep.closed {
		return
	}
	ep.closed = true
	close(ep.wire.TX)
	sw.logger.Debug().
		Str("endpoint", identity).
		Msg("endpoint disconnected")
}

// Release frees identity so it can be connected again.
func (sw *Switch) Release(identity model.Identity) {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	ep, ok := sw.fwd[identity]
	if !ok {
		return
	}
	if !ep.closed {
		close(ep.wire.TX)
	}
	delete(sw.fwd, identity)
}

// Connected reports whether identity has an open wire.
func (sw *Switch) Connected(identity model.Identity) bool {
	sw.mx.RLock()
	defer sw.mx.RUnlock()

	ep, ok := sw.fwd[identity]
	return ok && !ep.closed
}

// Send forwards ev to a single endpoint.
func (sw *Switch) Send(dst model.Identity, ev model.Event) bool {
	sw.mx.RLock()
	defer sw.mx.RUnlock()

	ep, ok := sw.fwd[dst]
	if !ok || ep.closed {
		sw.logger.Debug().
			Str("dst", dst).
			Str("event", ev.Event).
			Msg("cannot forward, dst not found")
		return false
	}
	return send(ev, dst, ep.wire.TX, &sw.logger)
}

// Multicast forwards ev to every connected endpoint in dsts and returns how many got it.
func (sw *Switch) Multicast(dsts []model.Identity, ev model.Event) int {
	sw.mx.RLock()
	defer sw.mx.RUnlock()

	var sent int
	for _, dst := range dsts {
		ep, ok := sw.fwd[dst]
		if !ok || ep.closed {
			continue
		}
		if send(ev, dst, ep.wire.TX, &sw.logger) {
			sent++
		}
	}
	if sent == 0 && len(dsts) > 0 {
		sw.logger.Debug().
			Str("event", ev.Event).
			Msg("multicast did not reach anyone")
	}
	return sent
}

// send never blocks, an endpoint that does not drain its wire loses events.
func send(ev model.Event, dst model.Identity, tx chan<- model.Event, logger *zerolog.Logger) bool {
	select {
	case tx <- ev:
		logger.Trace().Str("dst", dst).Str("event", ev.Event).Msg("event is forwarded")
		return true
	default:
		logger.Error().Str("dst", dst).Str("event", ev.Event).Msg("slow endpoint, event dropped")
		return false
	}
}
