package service

import (
	"github.com/adwski/roomchat/backend/model"
)

// publishPresence sends the full member list of roomID to every member.
// It must be called while the room is locked by the registry.
func (svc *Service) publishPresence(roomID model.RoomID, members []model.Identity) {
	users := make([]model.Identity, len(members))
	copy(users, members)
	n := svc.sw.Multicast(members, model.Event{
		Event: model.EventActiveUsers,
		Data: model.ActiveUsersPayload{
			Room:  roomID,
			Users: users,
		},
	})
	svc.logger.Debug().
		Str("roomID", roomID).
		Int("members", len(members)).
		Int("delivered", n).
		Msg("presence published")
}

func (svc *Service) onJoin(identity model.Identity) model.CommitFunc {
	return func(roomID model.RoomID, members []model.Identity) {
		if svc.announce {
			svc.sw.Multicast(members, statusEvent(identity+" joined the room.", model.StatusTypeJoin))
		}
		svc.publishPresence(roomID, members)
	}
}

func (svc *Service) onLeave(identity model.Identity) model.CommitFunc {
	return func(roomID model.RoomID, members []model.Identity) {
		if svc.announce {
			svc.sw.Multicast(members, statusEvent(identity+" left the room.", model.StatusTypeLeave))
		}
		svc.publishPresence(roomID, members)
	}
}
