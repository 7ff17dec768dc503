// Package ws provides the WebSocket transport of the relay server.
package ws

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/omochice/proximity-relay/internal/relay"
)

// DefaultMaxMessageSize is the default read limit of a Conn.
const DefaultMaxMessageSize = 32 << 10

// ErrMessageTooBig is returned by Read when a message exceeds the read limit.
var ErrMessageTooBig = errors.New("ws: message too big")

// Conn adapts a server-side gobwas/ws connection to relay.Conn.
// Ping, pong and close frames are answered inside Read and never returned.
type Conn struct {
	conn           net.Conn
	reader         *wsutil.Reader
	remoteAddr     string
	maxMessageSize atomic.Int64

	// mu serializes frame writes, including control replies sent from Read.
	mu        sync.Mutex
	closeOnce sync.Once
}

// Accept upgrades an HTTP request to a WebSocket connection.
func Accept(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	conn, rw, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return nil, fmt.Errorf("upgrade: %w", err)
	}
	return NewConn(conn, rw.Reader, r.RemoteAddr), nil
}

// NewConn wraps an upgraded connection. br may hold bytes buffered during
// the upgrade; it is read from instead of conn when non-nil.
func NewConn(conn net.Conn, br *bufio.Reader, addr string) *Conn {
	var src io.Reader = conn
	if br != nil {
		src = br
	}
	c := &Conn{conn: conn, remoteAddr: addr}
	c.maxMessageSize.Store(DefaultMaxMessageSize)
	c.reader = &wsutil.Reader{
		Source:         src,
		State:          ws.StateServerSide,
		CheckUTF8:      true,
		OnIntermediate: c.handleControl,
	}
	return c
}

// SetReadLimit sets the largest message Read accepts, counted over all
// fragments. A larger message closes the connection with status 1009.
func (c *Conn) SetReadLimit(n int64) {
	c.maxMessageSize.Store(n)
}

// Read implements relay.Conn.
// Returns io.EOF once the peer closed the connection. A Read interrupted by
// ctx may leave a frame half consumed; the connection should be closed.
func (c *Conn) Read(ctx context.Context) (relay.Message, error) {
	_ = c.conn.SetReadDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		hdr, err := c.reader.NextFrame()
		if err != nil {
			return relay.Message{}, c.readError(ctx, err)
		}

		if hdr.OpCode.IsControl() {
			if err := c.handleControl(hdr, c.reader); err != nil {
				return relay.Message{}, c.readError(ctx, err)
			}
			continue
		}

		var kind relay.MessageKind
		switch hdr.OpCode {
		case ws.OpText:
			kind = relay.MessageText
		case ws.OpBinary:
			kind = relay.MessageBinary
		default:
			if err := c.reader.Discard(); err != nil {
				return relay.Message{}, c.readError(ctx, err)
			}
			continue
		}

		limit := c.maxMessageSize.Load()
		if hdr.Length > limit {
			return relay.Message{}, c.tooBig()
		}
		data, err := io.ReadAll(io.LimitReader(c.reader, limit+1))
		if err != nil {
			return relay.Message{}, c.readError(ctx, err)
		}
		if int64(len(data)) > limit {
			return relay.Message{}, c.tooBig()
		}
		return relay.Message{Kind: kind, Data: data}, nil
	}
}

// handleControl answers a control frame. The reply is buffered and written
// under mu so it never interleaves with a data frame.
func (c *Conn) handleControl(hdr ws.Header, r io.Reader) error {
	var buf bytes.Buffer
	handler := wsutil.ControlHandler{
		Src:   r,
		Dst:   &buf,
		State: ws.StateServerSide,
		// wsutil.Reader already unmasked the payload.
		DisableSrcCiphering: true,
	}
	err := handler.Handle(hdr)

	if buf.Len() > 0 {
		c.mu.Lock()
		_, werr := c.conn.Write(buf.Bytes())
		c.mu.Unlock()
		if err == nil {
			err = werr
		}
	}
	return err
}

func (c *Conn) readError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var closed wsutil.ClosedError
	switch {
	case errors.As(err, &closed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed):
		return io.EOF
	}
	return err
}

// Write implements relay.Conn.
func (c *Conn) Write(ctx context.Context, msg relay.Message) error {
	op := ws.OpBinary
	if msg.Kind == relay.MessageText {
		op = ws.OpText
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return wsutil.WriteServerMessage(c.conn, op, msg.Data)
}

// Close implements relay.Conn. It sends a normal closure frame and closes
// the underlying connection.
func (c *Conn) Close() error {
	return c.closeWith(ws.StatusNormalClosure, "")
}

func (c *Conn) tooBig() error {
	_ = c.closeWith(ws.StatusMessageTooBig, "message too big")
	return ErrMessageTooBig
}

// closeWith sends a close frame with code and closes the connection.
// Only the first call has an effect.
func (c *Conn) closeWith(code ws.StatusCode, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = wsutil.WriteServerMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(code, reason))
		c.mu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// RemoteAddr implements relay.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

// Compile-time check that Conn implements relay.Conn
var _ relay.Conn = (*Conn)(nil)
