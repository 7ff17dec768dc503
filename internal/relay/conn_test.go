package relay_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omochice/proximity-relay/internal/relay"
)

// mockConn is a mock implementation of relay.Conn for testing.
type mockConn struct {
	readCh     chan relay.Message
	writeCh    chan relay.Message
	writeErr   error
	closeOnce  sync.Once
	closed     chan struct{}
	remoteAddr string
}

func newMockConn(addr string) *mockConn {
	return &mockConn{
		readCh:     make(chan relay.Message, 16),
		writeCh:    make(chan relay.Message, 64),
		closed:     make(chan struct{}),
		remoteAddr: addr,
	}
}

func (m *mockConn) Read(ctx context.Context) (relay.Message, error) {
	select {
	case <-ctx.Done():
		return relay.Message{}, ctx.Err()
	case <-m.closed:
		return relay.Message{}, io.EOF
	case msg, ok := <-m.readCh:
		if !ok {
			return relay.Message{}, io.EOF
		}
		return msg, nil
	}
}

func (m *mockConn) Write(ctx context.Context, msg relay.Message) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	copied := relay.Message{Kind: msg.Kind, Data: append([]byte(nil), msg.Data...)}
	select {
	case m.writeCh <- copied:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mockConn) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

func (m *mockConn) RemoteAddr() string {
	return m.remoteAddr
}

// push queues a message for the next Read.
func (m *mockConn) push(msg relay.Message) {
	m.readCh <- msg
}

func (m *mockConn) pushText(s string) {
	m.push(relay.TextMessage([]byte(s)))
}

// hangup makes Read return io.EOF once pending messages are consumed.
func (m *mockConn) hangup() {
	close(m.readCh)
}

// next returns the next written message or fails the test.
func (m *mockConn) next(t *testing.T) relay.Message {
	t.Helper()
	select {
	case msg := <-m.writeCh:
		return msg
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for a write")
		return relay.Message{}
	}
}

// nextText returns the next written message as a string, requiring it to be
// a text message.
func (m *mockConn) nextText(t *testing.T) string {
	t.Helper()
	msg := m.next(t)
	require.Equal(t, relay.MessageText, msg.Kind)
	return string(msg.Data)
}

// silent fails the test if anything is written within d.
func (m *mockConn) silent(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case msg := <-m.writeCh:
		require.FailNowf(t, "unexpected write", "%s %q", msg.Kind, msg.Data)
	case <-time.After(d):
	}
}

// Compile-time check that mockConn implements relay.Conn
var _ relay.Conn = (*mockConn)(nil)
