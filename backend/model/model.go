package model

// Identity names a connected participant.
type Identity = string

// RoomID names a room.
type RoomID = string

// DefaultRoom always exists implicitly, every session starts there.
const DefaultRoom RoomID = "General"

// CommitFunc is called with the room's member snapshot right after a membership
// change, while the room is still locked. Nothing else can change the room
// or read its members until it returns.
type CommitFunc func(roomID RoomID, members []Identity)

type EnvelopeKind int

const (
	KindBroadcast EnvelopeKind = iota
	KindPrivate
	KindSystem
)

func (k EnvelopeKind) String() string {
	switch k {
	case KindBroadcast:
		return "broadcast"
	case KindPrivate:
		return "private"
	case KindSystem:
		return "system"
	}
	return "unknown"
}

// Envelope is one routed message unit.
// For KindPrivate To is always an Identity, otherwise it is a RoomID.
type Envelope struct {
	Kind EnvelopeKind
	From Identity
	To   string
	Body string
}

// Outbound event names.
const (
	EventMessage        = "message"
	EventPrivateMessage = "private_message"
	EventStatus         = "status"
	EventActiveUsers    = "active_users"
)

// Status notice types.
const (
	StatusTypeJoin  = "join"
	StatusTypeLeave = "leave"
	StatusTypeError = "error"
)

// Event is what gets delivered to the client.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type MessagePayload struct {
	Username Identity `json:"username"`
	Msg      string   `json:"msg"`
	Room     RoomID   `json:"room,omitempty"`
}

type PrivateMessagePayload struct {
	From Identity `json:"from"`
	Msg  string   `json:"msg"`
}

type StatusPayload struct {
	Msg  string `json:"msg"`
	Type string `json:"type,omitempty"`
}

type ActiveUsersPayload struct {
	Room  RoomID     `json:"room,omitempty"`
	Users []Identity `json:"users"`
}

// Inbound action names.
const (
	ActionJoin    = "join"
	ActionLeave   = "leave"
	ActionMessage = "message"
)

// MessageTypePrivate marks an inbound message as addressed to Target.
const MessageTypePrivate = "private"

// Action is an inbound client action.
type Action struct {
	Action string `json:"action" validate:"required,oneof=join leave message"`
	Room   RoomID `json:"room,omitempty" validate:"max=128"`
	Msg    string `json:"msg,omitempty"`
	Type   string `json:"type,omitempty" validate:"omitempty,oneof=private"`
	Target string `json:"target,omitempty" validate:"max=128"`
}

// Wire carries outbound events to a single connection.
type Wire struct {
	TX chan Event
}

func NewWire(size int) Wire {
	return Wire{
		TX: make(chan Event, size),
	}
}
