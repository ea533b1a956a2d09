package core

// CommandKind describes a lifecycle change processed on the hub goroutine.
type CommandKind int

const (
	// CommandIdentify attaches a user identity to a connection.
	CommandIdentify CommandKind = iota
	// CommandDisconnect closes a connection and drops its presence.
	CommandDisconnect
)

// Command is a lifecycle request queued to the hub.
type Command struct {
	Kind   CommandKind
	Client *Client
	UserID string

	done chan error
}
