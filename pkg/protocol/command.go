package protocol

// CommandType identifies a post-login command.
type CommandType int

const (
	CommandUnknown CommandType = iota
	CommandAccount
	CommandLogout
	CommandFrequency
	CommandPosition
	CommandRoom
	CommandRooms
	CommandCreateRoom
)

var commandNames = map[string]CommandType{
	"account":    CommandAccount,
	"logout":     CommandLogout,
	"frequency":  CommandFrequency,
	"position":   CommandPosition,
	"room":       CommandRoom,
	"rooms":      CommandRooms,
	"createRoom": CommandCreateRoom,
}

// ParseCommandType maps a wire type string to its CommandType.
// Unrecognised strings map to CommandUnknown.
func ParseCommandType(name string) CommandType {
	if ct, ok := commandNames[name]; ok {
		return ct
	}
	return CommandUnknown
}

// String returns the wire name of the command type.
func (ct CommandType) String() string {
	switch ct {
	case CommandAccount:
		return "account"
	case CommandLogout:
		return "logout"
	case CommandFrequency:
		return "frequency"
	case CommandPosition:
		return "position"
	case CommandRoom:
		return "room"
	case CommandRooms:
		return "rooms"
	case CommandCreateRoom:
		return "createRoom"
	default:
		return "unknown"
	}
}
