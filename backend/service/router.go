package service

import (
	"strings"

	"github.com/adwski/roomchat/backend/model"
)

// Route turns raw text sent by from while in room into an envelope.
// Text starting with '@' addresses the first token privately, the rest of the
// tokens joined by single spaces is the body. ok is false when nothing must be sent.
func Route(from model.Identity, room model.RoomID, text string) (env model.Envelope, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if strings.HasPrefix(text, "@") {
		fields := strings.Fields(text[1:])
		if len(fields) < 2 {
			return
		}
		return model.Envelope{
			Kind: model.KindPrivate,
			From: from,
			To:   fields[0],
			Body: strings.Join(fields[1:], " "),
		}, true
	}
	if room == "" {
		return
	}
	return model.Envelope{
		Kind: model.KindBroadcast,
		From: from,
		To:   room,
		Body: text,
	}, true
}

func messageEvent(env model.Envelope) model.Event {
	return model.Event{
		Event: model.EventMessage,
		Data: model.MessagePayload{
			Username: env.From,
			Msg:      env.Body,
			Room:     env.To,
		},
	}
}

func privateMessageEvent(env model.Envelope) model.Event {
	return model.Event{
		Event: model.EventPrivateMessage,
		Data: model.PrivateMessagePayload{
			From: env.From,
			Msg:  env.Body,
		},
	}
}

func statusEvent(msg, typ string) model.Event {
	return model.Event{
		Event: model.EventStatus,
		Data: model.StatusPayload{
			Msg:  msg,
			Type: typ,
		},
	}
}
