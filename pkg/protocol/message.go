// Package protocol defines the text frames exchanged between relay clients and the server.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrMissingField is returned when a required login field is absent.
var ErrMissingField = errors.New("missing required field")

// LoginRequest is the first frame a client sends.
// With Session set, Password carries a session token instead of a password.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Session  bool   `json:"session,omitempty"`
	Register bool   `json:"register,omitempty"`
}

// DecodeLoginRequest parses a login frame. Username and password are required.
// Keys match exactly; a null value is a type error, not an absent field.
func DecodeLoginRequest(data []byte) (LoginRequest, error) {
	fields, err := objectFields(data)
	if err != nil {
		return LoginRequest{}, fmt.Errorf("failed to decode login request: %w", err)
	}

	var req LoginRequest
	for _, f := range []struct {
		key      string
		v        any
		required bool
	}{
		{"username", &req.Username, true},
		{"password", &req.Password, true},
		{"session", &req.Session, false},
		{"register", &req.Register, false},
	} {
		if err := decodeField(fields, f.key, f.v, f.required); err != nil {
			return LoginRequest{}, fmt.Errorf("failed to decode login request: %w", err)
		}
	}
	return req, nil
}

// objectFields splits a JSON object into its raw members, keyed exactly as
// sent.
func objectFields(data []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// decodeField decodes fields[key] into v. An absent key is an error only
// when required.
func decodeField(fields map[string]json.RawMessage, key string, v any, required bool) error {
	raw, ok := fields[key]
	if !ok {
		if required {
			return fmt.Errorf("%w: %s", ErrMissingField, key)
		}
		return nil
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return fmt.Errorf("%s: unexpected null", key)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// Encode encodes the request as JSON.
func (r LoginRequest) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode login request: %w", err)
	}
	return data, nil
}

// LoginResponse answers a login attempt and the account command.
// Username and Session are omitted when empty.
type LoginResponse struct {
	Success  bool   `json:"success"`
	Username string `json:"username,omitempty"`
	Session  string `json:"session,omitempty"`
}

// Encode encodes the response as JSON.
func (r LoginResponse) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode login response: %w", err)
	}
	return data, nil
}

// Command is a post-login control frame.
type Command struct {
	ID   uint64
	Type CommandType
	// Name is the type string as sent by the client.
	Name    string
	Payload *structpb.Value
	// Raw is the payload token as sent, `null` when absent. Number
	// literals keep their spelling here, which Payload loses.
	Raw json.RawMessage
}

// DecodeCommand parses a command frame. A missing payload decodes as null.
func DecodeCommand(data []byte) (Command, error) {
	fields, err := objectFields(data)
	if err != nil {
		return Command{}, fmt.Errorf("failed to decode command: %w", err)
	}

	var (
		id   uint64
		name string
	)
	if err := decodeField(fields, "commandId", &id, true); err != nil {
		return Command{}, fmt.Errorf("failed to decode command: %w", err)
	}
	if err := decodeField(fields, "type", &name, true); err != nil {
		return Command{}, fmt.Errorf("failed to decode command: %w", err)
	}

	raw := json.RawMessage(bytes.TrimSpace(fields["payload"]))
	payload := structpb.NewNullValue()
	if len(raw) > 0 {
		payload = &structpb.Value{}
		if err := protojson.Unmarshal(raw, payload); err != nil {
			return Command{}, fmt.Errorf("failed to decode command payload: %w", err)
		}
	} else {
		raw = json.RawMessage("null")
	}

	return Command{
		ID:      id,
		Type:    ParseCommandType(name),
		Name:    name,
		Payload: payload,
		Raw:     raw,
	}, nil
}

// EncodeCommand builds a command frame. A nil payload is omitted.
func EncodeCommand(id uint64, name string, payload any) ([]byte, error) {
	wire := struct {
		CommandID uint64 `json:"commandId"`
		Type      string `json:"type"`
		Payload   any    `json:"payload,omitempty"`
	}{id, name, payload}

	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to encode command: %w", err)
	}
	return data, nil
}

// EncodeReply encodes body as JSON prefixed with the command id and a space,
// e.g. `7 {"success":true}`.
func EncodeReply(commandID uint64, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reply: %w", err)
	}
	out := strconv.AppendUint(nil, commandID, 10)
	out = append(out, ' ')
	return append(out, data...), nil
}

// SplitReply separates a prefixed reply into its command id and JSON body.
func SplitReply(data []byte) (uint64, []byte, error) {
	idx := bytes.IndexByte(data, ' ')
	if idx <= 0 {
		return 0, nil, fmt.Errorf("reply has no command id prefix")
	}
	id, err := strconv.ParseUint(string(data[:idx]), 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid reply command id: %w", err)
	}
	return id, data[idx+1:], nil
}
