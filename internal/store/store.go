// Package store persists accounts and rooms.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a unique field is already taken.
	ErrDuplicate = errors.New("record already exists")
)

// Account is a registered user.
type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	// Session is the current session token, nil when logged out.
	Session *string
}

// HasSession reports whether the account holds a non-empty session token.
func (a Account) HasSession() bool {
	return a.Session != nil && *a.Session != ""
}

// Room is a named, optionally password-protected group.
type Room struct {
	ID           int64
	Name         string
	Description  string
	PasswordHash string
	Creator      int64
}

// Store is the persistence boundary of the relay.
// Implementations must be safe for concurrent use.
type Store interface {
	// CreateAccount inserts a new account.
	// Returns ErrDuplicate if the username is taken.
	CreateAccount(ctx context.Context, username, passwordHash string) (Account, error)

	// AccountByUsername returns ErrNotFound if no account matches.
	AccountByUsername(ctx context.Context, username string) (Account, error)

	// SetSession stores the session token of an account; nil clears it.
	SetSession(ctx context.Context, accountID int64, session *string) error

	CreateRoom(ctx context.Context, name, description, passwordHash string, creator int64) (Room, error)

	// Room returns ErrNotFound if no room matches.
	Room(ctx context.Context, id int64) (Room, error)

	Rooms(ctx context.Context) ([]Room, error)
}
