package core

import "sync"

// ConnState is the lifecycle state of a client connection.
type ConnState int

const (
	// StateUnidentified is the state right after the transport is established.
	StateUnidentified ConnState = iota
	// StateIdentified means the connection announced a user identity.
	StateIdentified
	// StateClosed is terminal.
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateUnidentified:
		return "unidentified"
	case StateIdentified:
		return "identified"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const eventBufferSize = 32

// Client is one live connection as seen by the core layer.
type Client struct {
	ID     string
	Events chan *Event

	mu     sync.Mutex
	userID string
	state  ConnState
}

// NewClient constructs an unidentified client with an initialized event queue.
func NewClient(id string) *Client {
	return &Client{
		ID:     id,
		Events: make(chan *Event, eventBufferSize),
	}
}

// ConnectionID identifies the connection within this process.
func (c *Client) ConnectionID() string {
	return c.ID
}

// UserID returns the identity attached by the last identify, if any.
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// State returns the current lifecycle state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) identity() (string, ConnState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID, c.state
}

// identify attaches userID and returns the previously attached identity.
func (c *Client) identify(userID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return "", ErrConnectionClosed
	}
	previous := c.userID
	c.userID = userID
	c.state = StateIdentified
	return previous, nil
}

// close moves the client to StateClosed. Returns false if it already was.
func (c *Client) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return false
	}
	c.state = StateClosed
	return true
}

// push enqueues an event without blocking.
func (c *Client) push(event *Event) error {
	if c.State() == StateClosed {
		return ErrConnectionClosed
	}
	select {
	case c.Events <- event:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Notify enqueues an event for this client only, e.g. an error reply.
func (c *Client) Notify(event *Event) error {
	return c.push(event)
}
