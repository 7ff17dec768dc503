// Package relay implements the connection lifecycle of the proximity relay:
// the login handshake, per-connection state, audience computation and
// command dispatch. It is shared by all transports.
package relay

import "context"

// MessageKind classifies a transport message.
type MessageKind int

const (
	MessageText MessageKind = iota
	MessageBinary
	// MessageControl covers transport frames such as ping and pong.
	MessageControl
)

// String returns the name of the kind for logging.
func (k MessageKind) String() string {
	switch k {
	case MessageText:
		return "text"
	case MessageBinary:
		return "binary"
	case MessageControl:
		return "control"
	default:
		return "unknown"
	}
}

// Message is a single transport message.
type Message struct {
	Kind MessageKind
	Data []byte
}

// TextMessage wraps data as a text message.
func TextMessage(data []byte) Message {
	return Message{Kind: MessageText, Data: data}
}

// BinaryMessage wraps data as a binary message.
func BinaryMessage(data []byte) Message {
	return Message{Kind: MessageBinary, Data: data}
}

// Conn abstracts a message-oriented bidirectional connection.
// This interface isolates transport details from relay logic.
type Conn interface {
	// Read reads a single message.
	// Returns io.EOF when the connection is closed by the peer.
	Read(ctx context.Context) (Message, error)

	// Write sends a single message.
	Write(ctx context.Context, msg Message) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}
