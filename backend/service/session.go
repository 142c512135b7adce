package service

import (
	"sync"

	"github.com/adwski/roomchat/backend/model"
)

// Session is one connected participant. All actions of a session are
// serialized by its lock, so room changes cannot interleave with a send.
type Session struct {
	mx        sync.Mutex
	identity  model.Identity
	room      model.RoomID
	connected bool
}

func (s *Session) Identity() model.Identity {
	return s.identity
}

// Room returns the current room, empty if the session is in no room.
func (s *Session) Room() model.RoomID {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.room
}

func (s *Session) Connected() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.connected
}

// acquire locks the session if it is usable.
func (s *Session) acquire() error {
	if s == nil {
		return ErrUsage
	}
	s.mx.Lock()
	if !s.connected {
		s.mx.Unlock()
		return ErrUsage
	}
	return nil
}
