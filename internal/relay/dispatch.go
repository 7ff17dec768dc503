package relay

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/omochice/proximity-relay/internal/store"
	"github.com/omochice/proximity-relay/pkg/protocol"
)

// Action tells the driver what to do after a message was handled.
type Action int

const (
	// ActionContinue keeps the connection open.
	ActionContinue Action = iota
	// ActionTerminate closes the connection normally.
	ActionTerminate
	// ActionFatal closes the connection because handling failed.
	ActionFatal
)

// Result is the outcome of dispatching one message.
type Result struct {
	Action Action
	// Reason describes a normal termination.
	Reason string
	// Err is set for ActionFatal.
	Err error
}

func proceed() Result {
	return Result{Action: ActionContinue}
}

func terminate(reason string) Result {
	return Result{Action: ActionTerminate, Reason: reason}
}

func fatal(err error) Result {
	return Result{Action: ActionFatal, Err: err}
}

// request carries one decoded command through its handler.
type request struct {
	conn Conn
	c    *Connection
	cmd  protocol.Command
}

type commandHandler func(h *Hub, ctx context.Context, req request) Result

var commandHandlers = map[protocol.CommandType]commandHandler{
	protocol.CommandAccount:    (*Hub).handleAccount,
	protocol.CommandLogout:     (*Hub).handleLogout,
	protocol.CommandFrequency:  (*Hub).handleFrequency,
	protocol.CommandPosition:   (*Hub).handlePosition,
	protocol.CommandRoom:       (*Hub).handleRoom,
	protocol.CommandRooms:      (*Hub).handleRooms,
	protocol.CommandCreateRoom: (*Hub).handleCreateRoom,
}

// Dispatch handles one inbound message of c. Text messages are commands,
// binary messages are relayed to the cached audience, anything else is
// ignored. Replies are written to conn directly, so Dispatch must only be
// called by the connection's driver.
//
// Any error is fatal to the whole connection, including a single malformed
// command payload.
func (h *Hub) Dispatch(ctx context.Context, conn Conn, c *Connection, msg Message) Result {
	switch msg.Kind {
	case MessageText:
		cmd, err := protocol.DecodeCommand(msg.Data)
		if err != nil {
			return fatal(err)
		}
		handler, ok := commandHandlers[cmd.Type]
		if !ok {
			h.log.Debug("ignoring command", zap.Uint64("conn_id", c.ID), zap.String("type", cmd.Name))
			return proceed()
		}
		return handler(h, ctx, request{conn: conn, c: c, cmd: cmd})
	case MessageBinary:
		return h.relay(ctx, c, msg)
	default:
		return proceed()
	}
}

// relay forwards msg to every id of the cached audience that is still
// registered.
func (h *Hub) relay(ctx context.Context, c *Connection, msg Message) Result {
	audience := c.Audience()
	if len(audience) == 0 {
		return proceed()
	}

	for _, peer := range h.registry.Lookup(audience) {
		if err := peer.Send(ctx, msg); err != nil {
			if errors.Is(err, ErrConnectionClosed) {
				continue
			}
			return fatal(fmt.Errorf("relay to connection %d: %w", peer.ID, err))
		}
	}
	return proceed()
}

func (h *Hub) handleAccount(ctx context.Context, req request) Result {
	account := req.c.Account()
	resp := protocol.LoginResponse{
		Success:  true,
		Username: account.Username,
	}
	if account.Session != nil {
		resp.Session = *account.Session
	}
	return h.reply(ctx, req, resp)
}

func (h *Hub) handleLogout(ctx context.Context, req request) Result {
	id := req.c.clearSession()
	if err := h.store.SetSession(ctx, id, nil); err != nil {
		return fatal(fmt.Errorf("clear session: %w", err))
	}
	return terminate(ErrLoggedOut.Error())
}

func (h *Hub) handleFrequency(_ context.Context, req request) Result {
	frequency, err := protocol.Frequency(req.cmd.Raw)
	if err != nil {
		return fatal(fmt.Errorf("%w: %w", ErrInvalidDataType, err))
	}
	req.c.SetFrequency(frequency)
	return proceed()
}

func (h *Hub) handlePosition(_ context.Context, req request) Result {
	position, err := protocol.Position(req.cmd.Payload)
	if err != nil {
		return fatal(fmt.Errorf("%w: %w", ErrInvalidDataType, err))
	}
	req.c.SetPosition(position)
	return proceed()
}

func (h *Hub) handleRoom(ctx context.Context, req request) Result {
	join, ok, err := protocol.JoinRoom(req.cmd.Payload)
	if err != nil {
		return fatal(fmt.Errorf("%w: %w", ErrInvalidDataType, err))
	}
	if !ok {
		req.c.LeaveRoom()
		return h.reply(ctx, req, protocol.RoomReply{Success: true})
	}

	room, err := h.store.Room(ctx, join.ID)
	if errors.Is(err, store.ErrNotFound) {
		return h.reply(ctx, req, protocol.RoomReply{Success: false})
	}
	if err != nil {
		return fatal(fmt.Errorf("get room %d: %w", join.ID, err))
	}

	if room.PasswordHash != "" {
		match, err := h.hasher.Verify(join.Password, room.PasswordHash)
		if err != nil {
			return fatal(fmt.Errorf("verify room %d password: %w", room.ID, err))
		}
		if !match {
			return h.reply(ctx, req, protocol.RoomReply{Success: false})
		}
	}

	req.c.SetRoom(room.ID)
	info := roomInfo(room)
	return h.reply(ctx, req, protocol.RoomReply{Success: true, Room: &info})
}

func (h *Hub) handleRooms(ctx context.Context, req request) Result {
	rooms, err := h.store.Rooms(ctx)
	if err != nil {
		return fatal(fmt.Errorf("list rooms: %w", err))
	}

	infos := make([]protocol.RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		infos = append(infos, roomInfo(room))
	}
	return h.reply(ctx, req, protocol.RoomsReply{Success: true, Rooms: infos})
}

func (h *Hub) handleCreateRoom(ctx context.Context, req request) Result {
	newRoom, err := protocol.CreateRoom(req.cmd.Payload)
	if err != nil {
		return fatal(fmt.Errorf("%w: %w", ErrInvalidDataType, err))
	}

	var hash string
	if newRoom.Password != "" {
		if hash, err = h.hasher.Hash(newRoom.Password); err != nil {
			return fatal(err)
		}
	}

	room, err := h.store.CreateRoom(ctx, newRoom.Name, newRoom.Description, hash, req.c.Account().ID)
	if err != nil {
		return fatal(fmt.Errorf("create room: %w", err))
	}
	info := roomInfo(room)
	return h.reply(ctx, req, protocol.RoomReply{Success: true, Room: &info})
}

// reply writes body prefixed with the command id.
func (h *Hub) reply(ctx context.Context, req request, body any) Result {
	data, err := protocol.EncodeReply(req.cmd.ID, body)
	if err != nil {
		return fatal(err)
	}
	if err := req.conn.Write(ctx, TextMessage(data)); err != nil {
		return fatal(fmt.Errorf("write reply: %w", err))
	}
	return proceed()
}

func roomInfo(room store.Room) protocol.RoomInfo {
	return protocol.RoomInfo{
		ID:          room.ID,
		Name:        room.Name,
		Description: room.Description,
		Creator:     room.Creator,
		Protected:   room.PasswordHash != "",
	}
}
