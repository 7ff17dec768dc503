package relay

import (
	"context"
	"sync"

	"github.com/omochice/proximity-relay/internal/geo"
	"github.com/omochice/proximity-relay/internal/store"
)

// DefaultQueueSize is the outbound queue capacity of a connection.
const DefaultQueueSize = 32

// cell is a value guarded by its own lock.
//
// Lock order: a goroutine holds at most one cell lock at a time, whether the
// cell belongs to its own connection or to a peer. No cell method calls out
// while holding the lock, so cells cannot form a cycle.
type cell[T any] struct {
	mu sync.RWMutex
	v  T
}

func (c *cell[T]) Load() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v
}

func (c *cell[T]) Store(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v = v
}

func (c *cell[T]) Update(fn func(*T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.v)
}

type roomRef struct {
	id    int64
	valid bool
}

// Connection is the state of one authenticated client.
// Fields are locked independently; cross-connection reads go through the
// accessors.
type Connection struct {
	// ID is unique for the process lifetime.
	ID uint64

	account   cell[store.Account]
	position  cell[geo.Position]
	frequency cell[uint8]
	room      cell[roomRef]
	// audience is replaced wholesale, never mutated in place.
	audience cell[[]uint64]

	queue     chan Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewConnection creates the state for an authenticated account.
// Position defaults to {0,0}, frequency to 0 and no room.
func NewConnection(id uint64, account store.Account, queueSize int) *Connection {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	c := &Connection{
		ID:    id,
		queue: make(chan Message, queueSize),
		done:  make(chan struct{}),
	}
	c.account.Store(account)
	return c
}

// Account returns a snapshot of the account.
func (c *Connection) Account() store.Account {
	return c.account.Load()
}

// clearSession drops the in-memory session token and returns the account id.
func (c *Connection) clearSession() int64 {
	var id int64
	c.account.Update(func(a *store.Account) {
		a.Session = nil
		id = a.ID
	})
	return id
}

func (c *Connection) Position() geo.Position {
	return c.position.Load()
}

func (c *Connection) SetPosition(p geo.Position) {
	c.position.Store(p)
}

func (c *Connection) Frequency() uint8 {
	return c.frequency.Load()
}

func (c *Connection) SetFrequency(f uint8) {
	c.frequency.Store(f)
}

// Room returns the current room id, if any.
func (c *Connection) Room() (int64, bool) {
	r := c.room.Load()
	return r.id, r.valid
}

func (c *Connection) SetRoom(id int64) {
	c.room.Store(roomRef{id: id, valid: true})
}

func (c *Connection) LeaveRoom() {
	c.room.Store(roomRef{})
}

// Audience returns the cached ids this connection relays to.
// The returned slice must not be modified.
func (c *Connection) Audience() []uint64 {
	return c.audience.Load()
}

// Send queues msg for delivery to this connection. It blocks while the queue
// is full, until space frees up, the connection closes or ctx ends.
func (c *Connection) Send(ctx context.Context, msg Message) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.queue <- msg:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outbound returns the queue consumed by the connection's driver.
func (c *Connection) Outbound() <-chan Message {
	return c.queue
}

// Done is closed once the outbound queue is closed.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Close closes the outbound queue. Pending messages are discarded and later
// sends fail with ErrConnectionClosed. Safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
