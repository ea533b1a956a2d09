package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

const (
	EventAddUser     = "addUser"
	EventSendMessage = "sendMessage"

	EventGetUsers       = "getUsers"
	EventReceiveMessage = "receiveMessage"
	EventError          = "error"
)

// SendMessageData is a chat message from the client.
// SenderID is optional; when present it must match the identified user.
type SendMessageData struct {
	SenderID       string `json:"senderId,omitempty"`
	ReceiverID     string `json:"receiverId"`
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// OnlineUser is one entry of the getUsers payload.
type OnlineUser struct {
	UserID       string `json:"userId"`
	ConnectionID string `json:"connectionId"`
}

// ReceiveMessageData is pushed to the recipient of a chat message.
type ReceiveMessageData struct {
	SenderID       string `json:"senderId"`
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
	ReceiverID     string `json:"receiverId"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
