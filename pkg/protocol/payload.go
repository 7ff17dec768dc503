package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/omochice/proximity-relay/internal/geo"
)

// ErrInvalidPayload is returned when a command payload has the wrong shape.
var ErrInvalidPayload = errors.New("invalid payload")

// Frequency reads the raw payload as a channel number in [0, 255]. Only a
// plain integer literal is accepted; 12.0 and 1e2 are rejected.
func Frequency(raw json.RawMessage) (uint8, error) {
	n, err := strconv.ParseUint(string(raw), 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: frequency must be an integer in 0-255, got %s", ErrInvalidPayload, raw)
	}
	return uint8(n), nil
}

// Position reads the payload as {latitude, longitude}. Unknown fields are ignored.
func Position(v *structpb.Value) (geo.Position, error) {
	fields := v.GetStructValue().GetFields()
	if fields == nil {
		return geo.Position{}, fmt.Errorf("%w: position must be an object", ErrInvalidPayload)
	}
	lat, ok := number(fields["latitude"])
	if !ok {
		return geo.Position{}, fmt.Errorf("%w: latitude must be a number", ErrInvalidPayload)
	}
	lon, ok := number(fields["longitude"])
	if !ok {
		return geo.Position{}, fmt.Errorf("%w: longitude must be a number", ErrInvalidPayload)
	}
	return geo.Position{Latitude: lat, Longitude: lon}, nil
}

// RoomJoin is the payload of the room command.
type RoomJoin struct {
	ID       int64  `json:"id"`
	Password string `json:"password,omitempty"`
}

// JoinRoom reads the room command payload. A null payload means leave the
// current room and is reported with ok == false.
func JoinRoom(v *structpb.Value) (join RoomJoin, ok bool, err error) {
	if isNull(v) {
		return RoomJoin{}, false, nil
	}
	fields := v.GetStructValue().GetFields()
	if fields == nil {
		return RoomJoin{}, false, fmt.Errorf("%w: room must be an object or null", ErrInvalidPayload)
	}
	id, isNum := number(fields["id"])
	if !isNum || id != math.Trunc(id) || id < 1 || id > math.MaxInt32 {
		return RoomJoin{}, false, fmt.Errorf("%w: room id must be a positive integer", ErrInvalidPayload)
	}
	password, err := optionalString(fields, "password")
	if err != nil {
		return RoomJoin{}, false, err
	}
	return RoomJoin{ID: int64(id), Password: password}, true, nil
}

// NewRoom is the payload of the createRoom command.
type NewRoom struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Password    string `json:"password,omitempty"`
}

// CreateRoom reads the createRoom command payload. Name is required.
func CreateRoom(v *structpb.Value) (NewRoom, error) {
	fields := v.GetStructValue().GetFields()
	if fields == nil {
		return NewRoom{}, fmt.Errorf("%w: room must be an object", ErrInvalidPayload)
	}
	name, err := optionalString(fields, "name")
	if err != nil {
		return NewRoom{}, err
	}
	if name == "" {
		return NewRoom{}, fmt.Errorf("%w: room name is required", ErrInvalidPayload)
	}
	description, err := optionalString(fields, "description")
	if err != nil {
		return NewRoom{}, err
	}
	password, err := optionalString(fields, "password")
	if err != nil {
		return NewRoom{}, err
	}
	return NewRoom{Name: name, Description: description, Password: password}, nil
}

// RoomInfo is the public view of a stored room.
type RoomInfo struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Creator     int64  `json:"creator"`
	Protected   bool   `json:"protected"`
}

// RoomReply answers the room and createRoom commands.
type RoomReply struct {
	Success bool      `json:"success"`
	Room    *RoomInfo `json:"room,omitempty"`
}

// RoomsReply answers the rooms command.
type RoomsReply struct {
	Success bool       `json:"success"`
	Rooms   []RoomInfo `json:"rooms"`
}

func number(v *structpb.Value) (float64, bool) {
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false
	}
	return n.NumberValue, true
}

func isNull(v *structpb.Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.GetKind().(*structpb.Value_NullValue)
	return ok
}

func optionalString(fields map[string]*structpb.Value, key string) (string, error) {
	v, present := fields[key]
	if !present || isNull(v) {
		return "", nil
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidPayload, key)
	}
	return s.StringValue, nil
}
