// Package client implements a relay client over WebSocket.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/omochice/proximity-relay/internal/geo"
	"github.com/omochice/proximity-relay/pkg/protocol"
)

var (
	// ErrNotConnected is returned when the client has no open connection.
	ErrNotConnected = errors.New("not connected to server")
	// ErrLoginFailed is returned when the server rejects a login attempt.
	ErrLoginFailed = errors.New("login failed")
)

// MessageKind classifies a message received after login.
type MessageKind int

const (
	// MessageReply is a reply to a command.
	MessageReply MessageKind = iota
	// MessageAudio is binary data relayed from another client.
	MessageAudio
)

// Message is a message received from the server after login.
type Message struct {
	Kind MessageKind
	// CommandID and Body are set for replies.
	CommandID uint64
	Body      []byte
	// Data is set for audio.
	Data []byte
}

// Client is a relay client.
type Client struct {
	address string
	log     *zap.Logger

	conn     *websocket.Conn
	mu       sync.RWMutex
	writeMu  sync.Mutex
	messages chan Message
	done     chan struct{}
	doneOnce sync.Once
	wg       sync.WaitGroup

	nextID     atomic.Uint64
	isShutdown bool
	loggedIn   bool
}

// New creates a Client for the given ws:// URL. A nil logger disables
// logging.
func New(address string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		address:  address,
		log:      log,
		messages: make(chan Message, 32),
		done:     make(chan struct{}),
	}
}

// Connect establishes a WebSocket connection to the server
func (c *Client) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.address, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Disconnect closes the WebSocket connection to the server
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.isShutdown {
		c.mu.Unlock()
		return
	}
	c.isShutdown = true
	if c.conn != nil {
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.doneOnce.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Login sends req and waits for the answer. On success, incoming replies and
// audio are delivered on Messages. A rejected attempt returns
// ErrLoginFailed and may be retried; the server closes the connection after
// three rejections.
func (c *Client) Login(req protocol.LoginRequest) (protocol.LoginResponse, error) {
	c.mu.RLock()
	conn, loggedIn := c.conn, c.loggedIn
	c.mu.RUnlock()
	if conn == nil {
		return protocol.LoginResponse{}, ErrNotConnected
	}
	if loggedIn {
		return protocol.LoginResponse{}, errors.New("already logged in")
	}

	data, err := req.Encode()
	if err != nil {
		return protocol.LoginResponse{}, err
	}
	if err := c.write(websocket.TextMessage, data); err != nil {
		return protocol.LoginResponse{}, err
	}

	messageType, reply, err := conn.ReadMessage()
	if err != nil {
		return protocol.LoginResponse{}, fmt.Errorf("failed to read login response: %w", err)
	}
	if messageType != websocket.TextMessage {
		return protocol.LoginResponse{}, fmt.Errorf("unexpected login response type %d", messageType)
	}

	var resp protocol.LoginResponse
	if err := json.Unmarshal(reply, &resp); err != nil {
		return protocol.LoginResponse{}, fmt.Errorf("failed to decode login response: %w", err)
	}
	if !resp.Success {
		return resp, ErrLoginFailed
	}

	c.mu.Lock()
	c.loggedIn = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.receiveMessages(conn)
	return resp, nil
}

// Messages returns the channel for receiving messages. After a successful
// login it is closed when the connection ends.
func (c *Client) Messages() <-chan Message {
	return c.messages
}

// Command sends a command and returns its id. Replies carry the same id.
func (c *Client) Command(name string, payload any) (uint64, error) {
	id := c.nextID.Add(1)
	data, err := protocol.EncodeCommand(id, name, payload)
	if err != nil {
		return 0, err
	}
	if err := c.write(websocket.TextMessage, data); err != nil {
		return 0, err
	}
	return id, nil
}

// Account asks for the account details.
func (c *Client) Account() (uint64, error) {
	return c.Command(protocol.CommandAccount.String(), nil)
}

// SetFrequency switches the channel.
func (c *Client) SetFrequency(frequency uint8) error {
	_, err := c.Command(protocol.CommandFrequency.String(), frequency)
	return err
}

// SetPosition reports the current position.
func (c *Client) SetPosition(p geo.Position) error {
	_, err := c.Command(protocol.CommandPosition.String(), p)
	return err
}

// JoinRoom enters a room. An empty password is sent for open rooms.
func (c *Client) JoinRoom(id int64, password string) (uint64, error) {
	return c.Command(protocol.CommandRoom.String(), protocol.RoomJoin{ID: id, Password: password})
}

// LeaveRoom returns to frequency mode. The omitted payload decodes as null.
func (c *Client) LeaveRoom() (uint64, error) {
	return c.Command(protocol.CommandRoom.String(), nil)
}

// Rooms asks for the room list.
func (c *Client) Rooms() (uint64, error) {
	return c.Command(protocol.CommandRooms.String(), nil)
}

// CreateRoom creates a room.
func (c *Client) CreateRoom(room protocol.NewRoom) (uint64, error) {
	return c.Command(protocol.CommandCreateRoom.String(), room)
}

// Logout invalidates the session. The server closes the connection.
func (c *Client) Logout() error {
	_, err := c.Command(protocol.CommandLogout.String(), nil)
	return err
}

// SendAudio sends binary data to everyone in range.
func (c *Client) SendAudio(data []byte) error {
	return c.write(websocket.BinaryMessage, data)
}

func (c *Client) write(messageType int, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// receiveMessages continuously receives messages from the server
func (c *Client) receiveMessages(conn *websocket.Conn) {
	defer c.wg.Done()
	defer close(c.messages)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		var msg Message
		switch messageType {
		case websocket.BinaryMessage:
			msg = Message{Kind: MessageAudio, Data: data}
		case websocket.TextMessage:
			id, body, err := protocol.SplitReply(data)
			if err != nil {
				c.log.Warn("failed to decode reply", zap.Error(err))
				continue
			}
			msg = Message{Kind: MessageReply, CommandID: id, Body: body}
		default:
			continue
		}

		select {
		case c.messages <- msg:
		case <-c.done:
			return
		}
	}
}
