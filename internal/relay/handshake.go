package relay

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/omochice/proximity-relay/internal/auth"
	"github.com/omochice/proximity-relay/internal/store"
	"github.com/omochice/proximity-relay/pkg/protocol"
)

// MaxLoginAttempts bounds failed logins on one connection.
const MaxLoginAttempts = 3

// Handshake authenticates a client. Each failed attempt is answered with
// {"success":false}; after MaxLoginAttempts failures it returns
// ErrInvalidCredentials. A frame that is not a login request is fatal and
// returns ErrLoginRequired.
//
// On success a fresh session token is persisted, stored on the returned
// account and sent to the client.
func (h *Hub) Handshake(ctx context.Context, conn Conn) (store.Account, error) {
	for attempt := 1; ; attempt++ {
		req, err := readLogin(ctx, conn)
		if err != nil {
			return store.Account{}, err
		}

		account, ok, err := h.authenticate(ctx, req)
		if err != nil {
			return store.Account{}, err
		}
		if ok {
			return h.admit(ctx, conn, account)
		}

		h.log.Debug("login attempt failed",
			zap.String("remote", conn.RemoteAddr()),
			zap.String("username", req.Username),
			zap.Int("attempt", attempt))

		if err := writeLoginResponse(ctx, conn, protocol.LoginResponse{Success: false}); err != nil {
			return store.Account{}, err
		}
		if attempt >= MaxLoginAttempts {
			return store.Account{}, ErrInvalidCredentials
		}
	}
}

func readLogin(ctx context.Context, conn Conn) (protocol.LoginRequest, error) {
	for {
		msg, err := conn.Read(ctx)
		if err != nil {
			return protocol.LoginRequest{}, fmt.Errorf("%w: %w", ErrLoginRequired, err)
		}

		switch msg.Kind {
		case MessageControl:
			continue
		case MessageText:
			req, err := protocol.DecodeLoginRequest(msg.Data)
			if err != nil {
				return protocol.LoginRequest{}, fmt.Errorf("%w: %w", ErrLoginRequired, err)
			}
			return req, nil
		default:
			return protocol.LoginRequest{}, fmt.Errorf("%w: unexpected %s message", ErrLoginRequired, msg.Kind)
		}
	}
}

// authenticate reports whether req is valid. Store failures count as a failed
// attempt; hasher failures are returned as errors.
func (h *Hub) authenticate(ctx context.Context, req protocol.LoginRequest) (store.Account, bool, error) {
	if req.Register {
		hash, err := h.hasher.Hash(req.Password)
		if err != nil {
			return store.Account{}, false, err
		}
		account, err := h.store.CreateAccount(ctx, req.Username, hash)
		if err != nil {
			if !errors.Is(err, store.ErrDuplicate) {
				h.log.Warn("create account failed", zap.String("username", req.Username), zap.Error(err))
			}
			return store.Account{}, false, nil
		}
		return account, true, nil
	}

	account, err := h.store.AccountByUsername(ctx, req.Username)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.log.Warn("account lookup failed", zap.String("username", req.Username), zap.Error(err))
		}
		return store.Account{}, false, nil
	}

	if req.Session {
		if !account.HasSession() {
			return store.Account{}, false, nil
		}
		match := subtle.ConstantTimeCompare([]byte(*account.Session), []byte(req.Password)) == 1
		return account, match, nil
	}

	match, err := h.hasher.Verify(req.Password, account.PasswordHash)
	if err != nil {
		return store.Account{}, false, err
	}
	return account, match, nil
}

func (h *Hub) admit(ctx context.Context, conn Conn, account store.Account) (store.Account, error) {
	token, err := auth.NewSessionToken()
	if err != nil {
		return store.Account{}, err
	}
	if err := h.store.SetSession(ctx, account.ID, &token); err != nil {
		return store.Account{}, fmt.Errorf("persist session: %w", err)
	}
	account.Session = &token

	resp := protocol.LoginResponse{
		Success:  true,
		Username: account.Username,
		Session:  token,
	}
	if err := writeLoginResponse(ctx, conn, resp); err != nil {
		return store.Account{}, err
	}
	return account, nil
}

func writeLoginResponse(ctx context.Context, conn Conn, resp protocol.LoginResponse) error {
	data, err := resp.Encode()
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, TextMessage(data)); err != nil {
		return fmt.Errorf("write login response: %w", err)
	}
	return nil
}
