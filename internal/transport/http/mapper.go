package http

import (
	"encoding/json"
	"fmt"

	"github.com/samber/lo"

	"github.com/vovakirdan/duochat-server/internal/core"
	"github.com/vovakirdan/duochat-server/internal/proto"
	"github.com/vovakirdan/duochat-server/internal/store"
)

// decodeAddUser accepts the user id either as a bare JSON string or as {"userId": "..."}.
func decodeAddUser(data json.RawMessage) (string, error) {
	var userID string
	if err := json.Unmarshal(data, &userID); err == nil {
		return userID, nil
	}

	var obj struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", fmt.Errorf("%w: addUser expects a user id", core.ErrInvalidRequest)
	}
	return obj.UserID, nil
}

func decodeSendMessage(data json.RawMessage) (core.SendRequest, error) {
	var msg proto.SendMessageData
	if err := json.Unmarshal(data, &msg); err != nil {
		return core.SendRequest{}, fmt.Errorf("%w: malformed sendMessage payload", core.ErrInvalidRequest)
	}
	return core.SendRequest{
		SenderID:       msg.SenderID,
		RecipientID:    msg.ReceiverID,
		Text:           msg.Message,
		ConversationID: msg.ConversationID,
	}, nil
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventPresence:
		return proto.Outbound{
			Event: proto.EventGetUsers,
			Data: lo.Map(event.Users, func(u core.OnlineUser, _ int) proto.OnlineUser {
				return proto.OnlineUser{UserID: u.UserID, ConnectionID: u.ConnectionID}
			}),
		}
	case core.EventReceiveMessage:
		return proto.Outbound{
			Event: proto.EventReceiveMessage,
			Data: proto.ReceiveMessageData{
				SenderID:       event.Message.SenderID,
				Message:        event.Message.Text,
				ConversationID: event.Message.ConversationID,
				ReceiverID:     event.Message.RecipientID,
			},
		}
	case core.EventError:
		return errorOutbound(event.Error)
	default:
		return errorOutbound(nil)
	}
}

func errorOutbound(ce *core.CoreError) proto.Outbound {
	if ce == nil {
		return proto.Outbound{Event: proto.EventError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
	}
	return proto.Outbound{
		Event: proto.EventError,
		Error: &proto.Error{Code: ce.Code, Msg: ce.Message},
	}
}

func userToResponse(u *store.User) UserResponse {
	return UserResponse{ID: u.ID, Name: u.Name, Email: u.Email}
}
