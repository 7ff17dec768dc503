package relay

import "errors"

// ProtocolError is a client-caused failure with a human-readable reason.
type ProtocolError string

func (e ProtocolError) Error() string {
	return string(e)
}

const (
	ErrLoginRequired      ProtocolError = "login required"
	ErrInvalidCredentials ProtocolError = "invalid credentials"
	ErrLoggedOut          ProtocolError = "logged out"
	ErrInvalidDataType    ProtocolError = "invalid data type in request"
)

var (
	ErrDuplicateID      = errors.New("connection id already registered")
	ErrConnectionClosed = errors.New("connection closed")
)
