package relay_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/omochice/proximity-relay/internal/auth"
	"github.com/omochice/proximity-relay/internal/relay"
	"github.com/omochice/proximity-relay/internal/store"
	"github.com/omochice/proximity-relay/pkg/protocol"
)

var testHasher = &auth.Bcrypt{Cost: bcrypt.MinCost}

func newTestHub(t *testing.T, opts ...relay.Option) (*relay.Hub, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	opts = append([]relay.Option{
		relay.WithLogger(zaptest.NewLogger(t)),
		relay.WithHasher(testHasher),
	}, opts...)
	return relay.NewHub(s, opts...), s
}

// seedAccount creates an account with the given password.
func seedAccount(t *testing.T, s store.Store, username, password string) store.Account {
	t.Helper()
	hash, err := testHasher.Hash(password)
	require.NoError(t, err)
	account, err := s.CreateAccount(context.Background(), username, hash)
	require.NoError(t, err)
	return account
}

func loginFrame(t *testing.T, req protocol.LoginRequest) string {
	t.Helper()
	data, err := req.Encode()
	require.NoError(t, err)
	return string(data)
}

func decodeLoginResponse(t *testing.T, s string) protocol.LoginResponse {
	t.Helper()
	var resp protocol.LoginResponse
	require.NoError(t, json.Unmarshal([]byte(s), &resp))
	return resp
}

type handshakeResult struct {
	account store.Account
	err     error
}

func startHandshake(hub *relay.Hub, conn *mockConn) <-chan handshakeResult {
	done := make(chan handshakeResult, 1)
	go func() {
		account, err := hub.Handshake(context.Background(), conn)
		done <- handshakeResult{account, err}
	}()
	return done
}

func TestHandshake_Register(t *testing.T) {
	hub, s := newTestHub(t)
	conn := newMockConn("127.0.0.1:1000")

	done := startHandshake(hub, conn)
	conn.pushText(loginFrame(t, protocol.LoginRequest{Username: "alice", Password: "secret", Register: true}))

	resp := decodeLoginResponse(t, conn.nextText(t))
	assert.True(t, resp.Success)
	assert.Equal(t, "alice", resp.Username)
	assert.Len(t, resp.Session, auth.SessionLength)

	res := <-done
	require.NoError(t, res.err)
	require.NotNil(t, res.account.Session)
	assert.Equal(t, resp.Session, *res.account.Session)

	stored, err := s.AccountByUsername(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, stored.Session)
	assert.Equal(t, resp.Session, *stored.Session)
	assert.NotEqual(t, "secret", stored.PasswordHash)
}

func TestHandshake_Login(t *testing.T) {
	hub, s := newTestHub(t)
	seedAccount(t, s, "bob", "hunter2")
	conn := newMockConn("127.0.0.1:1000")

	done := startHandshake(hub, conn)
	conn.pushText(loginFrame(t, protocol.LoginRequest{Username: "bob", Password: "hunter2"}))

	resp := decodeLoginResponse(t, conn.nextText(t))
	assert.True(t, resp.Success)
	assert.Equal(t, "bob", resp.Username)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "bob", res.account.Username)
}

func TestHandshake_SessionResume(t *testing.T) {
	hub, s := newTestHub(t)
	account := seedAccount(t, s, "carol", "pw")
	token := "resume-token"
	require.NoError(t, s.SetSession(context.Background(), account.ID, &token))

	conn := newMockConn("127.0.0.1:1000")
	done := startHandshake(hub, conn)

	// The password is not accepted as a session token.
	conn.pushText(loginFrame(t, protocol.LoginRequest{Username: "carol", Password: "pw", Session: true}))
	assert.False(t, decodeLoginResponse(t, conn.nextText(t)).Success)

	conn.pushText(loginFrame(t, protocol.LoginRequest{Username: "carol", Password: token, Session: true}))
	resp := decodeLoginResponse(t, conn.nextText(t))
	assert.True(t, resp.Success)
	assert.NotEqual(t, token, resp.Session, "a fresh token is issued")

	res := <-done
	require.NoError(t, res.err)
}

func TestHandshake_SessionWithoutStoredToken(t *testing.T) {
	hub, s := newTestHub(t)
	seedAccount(t, s, "dave", "pw")
	conn := newMockConn("127.0.0.1:1000")

	done := startHandshake(hub, conn)
	conn.pushText(loginFrame(t, protocol.LoginRequest{Username: "dave", Password: "", Session: true}))

	assert.False(t, decodeLoginResponse(t, conn.nextText(t)).Success)
	conn.hangup()

	res := <-done
	assert.ErrorIs(t, res.err, relay.ErrLoginRequired)
}

func TestHandshake_ThreeFailures(t *testing.T) {
	hub, s := newTestHub(t)
	seedAccount(t, s, "erin", "right")
	conn := newMockConn("127.0.0.1:1000")

	done := startHandshake(hub, conn)
	for range relay.MaxLoginAttempts {
		conn.pushText(loginFrame(t, protocol.LoginRequest{Username: "erin", Password: "wrong"}))
	}

	for range relay.MaxLoginAttempts {
		assert.JSONEq(t, `{"success":false}`, conn.nextText(t))
	}

	res := <-done
	assert.ErrorIs(t, res.err, relay.ErrInvalidCredentials)
	conn.silent(t, 50*time.Millisecond)
}

func TestHandshake_UnknownUser(t *testing.T) {
	hub, _ := newTestHub(t)
	conn := newMockConn("127.0.0.1:1000")

	done := startHandshake(hub, conn)
	conn.pushText(loginFrame(t, protocol.LoginRequest{Username: "nobody", Password: "x"}))
	assert.JSONEq(t, `{"success":false}`, conn.nextText(t))

	conn.pushText(loginFrame(t, protocol.LoginRequest{Username: "nobody", Password: "x", Register: true}))
	assert.True(t, decodeLoginResponse(t, conn.nextText(t)).Success)

	require.NoError(t, (<-done).err)
}

func TestHandshake_DuplicateRegistration(t *testing.T) {
	hub, s := newTestHub(t)
	seedAccount(t, s, "frank", "pw")
	conn := newMockConn("127.0.0.1:1000")

	done := startHandshake(hub, conn)
	conn.pushText(loginFrame(t, protocol.LoginRequest{Username: "frank", Password: "other", Register: true}))
	assert.JSONEq(t, `{"success":false}`, conn.nextText(t))

	conn.pushText(loginFrame(t, protocol.LoginRequest{Username: "frank", Password: "pw"}))
	assert.True(t, decodeLoginResponse(t, conn.nextText(t)).Success)

	require.NoError(t, (<-done).err)
}

func TestHandshake_FatalFrames(t *testing.T) {
	tests := []struct {
		name string
		msg  relay.Message
	}{
		{name: "binary frame", msg: relay.BinaryMessage([]byte{1, 2, 3})},
		{name: "invalid json", msg: relay.TextMessage([]byte("hello"))},
		{name: "missing password", msg: relay.TextMessage([]byte(`{"username":"a"}`))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub, _ := newTestHub(t)
			conn := newMockConn("127.0.0.1:1000")

			done := startHandshake(hub, conn)
			conn.push(tt.msg)

			res := <-done
			assert.ErrorIs(t, res.err, relay.ErrLoginRequired)
			conn.silent(t, 50*time.Millisecond)
		})
	}
}

func TestHandshake_SkipsControlFrames(t *testing.T) {
	hub, _ := newTestHub(t)
	conn := newMockConn("127.0.0.1:1000")

	done := startHandshake(hub, conn)
	conn.push(relay.Message{Kind: relay.MessageControl})
	conn.pushText(loginFrame(t, protocol.LoginRequest{Username: "gina", Password: "pw", Register: true}))

	assert.True(t, decodeLoginResponse(t, conn.nextText(t)).Success)
	require.NoError(t, (<-done).err)
}
