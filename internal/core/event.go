package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventPresence carries the full online set after any presence change.
	EventPresence EventKind = iota
	// EventReceiveMessage delivers a chat message to its recipient.
	EventReceiveMessage
	// EventError notifies a client about a failed request.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind    EventKind
	Users   []OnlineUser // EventPresence
	Message Delivery     // EventReceiveMessage
	Error   *CoreError   // EventError
}

// OnlineUser is one entry of the presence snapshot.
type OnlineUser struct {
	UserID       string
	ConnectionID string
}

// Delivery is the payload pushed to a recipient connection.
type Delivery struct {
	SenderID       string
	RecipientID    string
	ConversationID string
	Text           string
}

// ErrorEvent wraps err as an EventError.
func ErrorEvent(err error) *Event {
	return &Event{Kind: EventError, Error: ToCoreError(err)}
}
