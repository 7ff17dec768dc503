package relay

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/omochice/proximity-relay/internal/auth"
	"github.com/omochice/proximity-relay/internal/store"
)

// DefaultTickInterval is how often a connection recomputes its audience.
const DefaultTickInterval = time.Second

// Hub owns the registry and runs every client connection.
// All transports share a single Hub instance.
type Hub struct {
	registry  *Registry
	store     store.Store
	hasher    auth.Hasher
	log       *zap.Logger
	tick      time.Duration
	queueSize int

	nextID atomic.Uint64
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(log *zap.Logger) Option {
	return func(h *Hub) {
		if log == nil {
			log = zap.NewNop()
		}
		h.log = log
	}
}

// WithHasher sets the password hasher.
func WithHasher(hasher auth.Hasher) Option {
	return func(h *Hub) {
		h.hasher = hasher
	}
}

// WithTickInterval sets the audience recomputation interval.
func WithTickInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.tick = d
		}
	}
}

// WithQueueSize sets the outbound queue capacity of each connection.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// NewHub creates a Hub backed by s.
func NewHub(s store.Store, opts ...Option) *Hub {
	h := &Hub{
		registry:  NewRegistry(),
		store:     s,
		hasher:    auth.NewBcrypt(),
		log:       zap.NewNop(),
		tick:      DefaultTickInterval,
		queueSize: DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Registry returns the registry of live connections.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	return h.registry.Len()
}

// HandleClient runs one client from handshake to disconnect. It returns nil
// when the connection ended normally (transport closed, logout, queue
// closed). The caller owns conn and closes it afterwards.
func (h *Hub) HandleClient(ctx context.Context, conn Conn) error {
	id := h.nextID.Add(1)
	log := h.log.With(zap.Uint64("conn_id", id), zap.String("remote", conn.RemoteAddr()))

	account, err := h.Handshake(ctx, conn)
	if err != nil {
		log.Info("handshake failed", zap.Error(err))
		return fmt.Errorf("handshake: %w", err)
	}

	c := NewConnection(id, account, h.queueSize)
	if err := h.registry.Insert(c); err != nil {
		return fmt.Errorf("register connection %d: %w", id, err)
	}
	defer func() {
		h.registry.Remove(id)
		c.Close()
	}()

	log = log.With(zap.String("username", account.Username))
	log.Info("connection registered")

	reason, err := h.drive(ctx, conn, c, log)
	if err != nil {
		log.Warn("connection closed", zap.String("reason", reason), zap.Error(err))
		return err
	}
	log.Info("connection closed", zap.String("reason", reason))
	return nil
}

// Shutdown closes the outbound queue of every registered connection, which
// ends their drivers.
func (h *Hub) Shutdown() {
	for _, c := range h.registry.Snapshot() {
		c.Close()
	}
}
