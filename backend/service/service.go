package service

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/adwski/roomchat/backend/model"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

var (
	ErrUsage            = errors.New("session is not connected")
	ErrIdentityConflict = errors.New("identity conflict")
	ErrInvalidIdentity  = errors.New("invalid identity")
	ErrInvalidRoom      = errors.New("invalid room")
	ErrInvalidAction    = errors.New("invalid action")
)

var validate = validator.New()

// maxIdentityLength matches the limit on private message targets.
const maxIdentityLength = 128

type (
	RoomRegistry interface {
		Join(roomID model.RoomID, userID model.Identity, onJoin model.CommitFunc)
		Leave(roomID model.RoomID, userID model.Identity, onLeave model.CommitFunc) bool
		Move(from, to model.RoomID, userID model.Identity, onLeave, onJoin model.CommitFunc)
		View(roomID model.RoomID, fn model.CommitFunc)
		Members(roomID model.RoomID) []model.Identity
		Rooms() map[model.RoomID]int
	}

	Switch interface {
		Connect(identity model.Identity, wire model.Wire) error
		Disconnect(identity model.Identity)
		Release(identity model.Identity)
		Connected(identity model.Identity) bool
		Send(dst model.Identity, ev model.Event) bool
		Multicast(dsts []model.Identity, ev model.Event) int
	}

	// RoomSummary is a room with its current number of members.
	RoomSummary struct {
		ID      model.RoomID `json:"id"`
		Members int          `json:"members"`
	}

	Service struct {
		registry            RoomRegistry
		sw                  Switch
		logger              zerolog.Logger
		rooms               []model.RoomID
		announce            bool
		notifyUnknownTarget bool
	}

	Config struct {
		Registry RoomRegistry
		Switch   Switch
		Logger   *zerolog.Logger

		// Rooms are advertised to clients, DefaultRoom is always among them.
		Rooms []model.RoomID

		// Announce enables join and leave status notices.
		Announce bool

		// NotifyUnknownTarget makes a private message to an unknown identity
		// produce a status notice to the sender instead of being dropped silently.
		NotifyUnknownTarget bool
	}
)

func NewService(cfg Config) *Service {
	rooms := lo.Uniq(append([]model.RoomID{model.DefaultRoom}, cfg.Rooms...))
	return &Service{
		registry:            cfg.Registry,
		sw:                  cfg.Switch,
		logger:              cfg.Logger.With().Str("component", "chat").Logger(),
		rooms:               rooms,
		announce:            cfg.Announce,
		notifyUnknownTarget: cfg.NotifyUnknownTarget,
	}
}

// GuestIdentity generates a name for a participant that did not present one.
func GuestIdentity(now time.Time) model.Identity {
	return fmt.Sprintf("Guest%s%d", now.Format("1504"), 1000+rand.IntN(9000))
}

// Connect creates a session for identity and puts it into DefaultRoom.
func (svc *Service) Connect(identity model.Identity, wire model.Wire) (*Session, error) {
	if identity == "" || utf8.RuneCountInString(identity) > maxIdentityLength || strings.IndexFunc(identity, unicode.IsSpace) >= 0 {
		return nil, ErrInvalidIdentity
	}
	if err := svc.sw.Connect(identity, wire); err != nil {
		return nil, errors.Join(ErrIdentityConflict, err)
	}
	s := &Session{
		identity:  identity,
		connected: true,
	}
	svc.logger.Debug().
		Str("identity", identity).
		Msg("session connected")

	if err := svc.Join(s, model.DefaultRoom); err != nil {
		svc.sw.Release(identity)
		return nil, err
	}
	return s, nil
}

// Disconnect removes the session from its room and invalidates it.
func (svc *Service) Disconnect(s *Session) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.mx.Unlock()

	s.connected = false
	svc.sw.Disconnect(s.identity)
	if s.room != "" {
		svc.registry.Leave(s.room, s.identity, svc.onLeave(s.identity))
		s.room = ""
	}
	svc.sw.Release(s.identity)

	svc.logger.Debug().
		Str("identity", s.identity).
		Msg("session disconnected")
	return nil
}

// Join puts the session into roomID, leaving its current room first.
// Joining the current room again re-announces the membership.
func (svc *Service) Join(s *Session, roomID model.RoomID) error {
	if strings.TrimSpace(roomID) == "" {
		return ErrInvalidRoom
	}
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.mx.Unlock()

	if s.room == "" {
		svc.registry.Join(roomID, s.identity, svc.onJoin(s.identity))
	} else {
		svc.registry.Move(s.room, roomID, s.identity, svc.onLeave(s.identity), svc.onJoin(s.identity))
	}
	svc.logger.Debug().
		Str("identity", s.identity).
		Str("from", s.room).
		Str("roomID", roomID).
		Msg("user joined room")
	s.room = roomID
	return nil
}

// Leave takes the session out of roomID. It is a no-op if the session is not in roomID.
func (svc *Service) Leave(s *Session, roomID model.RoomID) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.mx.Unlock()

	if s.room == "" || s.room != roomID {
		svc.logger.Debug().
			Str("identity", s.identity).
			Str("roomID", roomID).
			Msg("leave ignored, not a member")
		return nil
	}
	svc.registry.Leave(roomID, s.identity, svc.onLeave(s.identity))
	s.room = ""
	svc.logger.Debug().
		Str("identity", s.identity).
		Str("roomID", roomID).
		Msg("user left room")
	return nil
}

// Send routes raw text typed by the session's participant.
func (svc *Service) Send(s *Session, text string) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.mx.Unlock()

	env, ok := Route(s.identity, s.room, text)
	if !ok {
		svc.logger.Trace().
			Str("identity", s.identity).
			Msg("nothing to send")
		return nil
	}
	svc.deliver(env)
	return nil
}

// SendPrivate sends body to target, the target was picked by the client.
func (svc *Service) SendPrivate(s *Session, target model.Identity, body string) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.mx.Unlock()

	target = strings.TrimSpace(target)
	body = strings.TrimSpace(body)
	if target == "" || body == "" {
		return nil
	}
	svc.deliver(model.Envelope{
		Kind: model.KindPrivate,
		From: s.identity,
		To:   target,
		Body: body,
	})
	return nil
}

// deliver must be called with the sender's session locked.
func (svc *Service) deliver(env model.Envelope) {
	switch env.Kind {
	case model.KindBroadcast:
		svc.registry.View(env.To, func(roomID model.RoomID, members []model.Identity) {
			n := svc.sw.Multicast(members, messageEvent(env))
			svc.logger.Debug().
				Str("from", env.From).
				Str("roomID", roomID).
				Int("delivered", n).
				Msg("message broadcast")
		})
	case model.KindPrivate:
		if !svc.sw.Connected(env.To) {
			svc.logger.Debug().
				Str("from", env.From).
				Str("target", env.To).
				Msg("private message target not found")
			if svc.notifyUnknownTarget {
				svc.sw.Send(env.From, statusEvent(env.To+" is not connected.", model.StatusTypeError))
			}
			return
		}
		ev := privateMessageEvent(env)
		svc.sw.Send(env.To, ev)
		if env.To != env.From {
			svc.sw.Send(env.From, ev)
		}
	}
}

// Handle dispatches an inbound client action.
func (svc *Service) Handle(s *Session, action model.Action) error {
	if err := validate.Struct(action); err != nil {
		return errors.Join(ErrInvalidAction, err)
	}
	switch action.Action {
	case model.ActionJoin:
		return svc.Join(s, action.Room)
	case model.ActionLeave:
		return svc.Leave(s, action.Room)
	default:
		if action.Type == model.MessageTypePrivate {
			return svc.SendPrivate(s, action.Target, action.Msg)
		}
		return svc.Send(s, action.Msg)
	}
}

// Members returns the presence snapshot of roomID.
func (svc *Service) Members(roomID model.RoomID) []model.Identity {
	return svc.registry.Members(roomID)
}

// Rooms lists advertised rooms followed by other live rooms, with member counts.
func (svc *Service) Rooms() []RoomSummary {
	counts := svc.registry.Rooms()
	summaries := lo.Map(svc.rooms, func(id model.RoomID, _ int) RoomSummary {
		return RoomSummary{ID: id, Members: counts[id]}
	})
	extra := lo.Without(lo.Keys(counts), svc.rooms...)
	sort.Strings(extra)
	for _, id := range extra {
		summaries = append(summaries, RoomSummary{ID: id, Members: counts[id]})
	}
	return summaries
}
