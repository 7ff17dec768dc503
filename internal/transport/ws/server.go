package ws

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omochice/proximity-relay/internal/relay"
)

const shutdownTimeout = 5 * time.Second

// Server accepts WebSocket connections and hands them to a relay.Hub.
type Server struct {
	address string
	hub     *relay.Hub
	log     *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	conns    map[*Conn]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a WebSocket server that uses the provided Hub.
// A nil logger disables logging.
func New(address string, hub *relay.Hub, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		address: address,
		hub:     hub,
		log:     log,
		conns:   make(map[*Conn]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Listen binds the listening socket. After Listen returns, Addr is valid.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebSocket)

	s.mu.Lock()
	s.listener = listener
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Unlock()
	return nil
}

// Serve accepts connections on the socket bound by Listen until Stop is
// called. It returns nil after Stop.
func (s *Server) Serve() error {
	s.mu.Lock()
	server, listener := s.server, s.listener
	s.mu.Unlock()
	if server == nil {
		return errors.New("ws: Serve called before Listen")
	}

	s.log.Info("websocket server started", zap.String("addr", listener.Addr().String()))

	if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start listens and serves. It blocks until Stop is called.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Stop stops accepting connections, closes every open connection and waits
// for their handlers to return.
func (s *Server) Stop() {
	s.cancel()

	s.mu.Lock()
	server := s.server
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			s.log.Warn("http shutdown", zap.Error(err))
		}
	}
	for _, c := range conns {
		_ = c.Close()
	}
	s.wg.Wait()
	s.log.Info("websocket server stopped")
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	log := s.log.With(zap.String("trace_id", uuid.NewString()), zap.String("remote", r.RemoteAddr))

	conn, err := Accept(w, r)
	if err != nil {
		log.Debug("failed to accept websocket connection", zap.Error(err))
		return
	}

	if !s.track(conn) {
		_ = conn.Close()
		return
	}

	go func() {
		defer s.wg.Done()
		defer s.untrack(conn)
		defer conn.Close()

		log.Debug("websocket connection accepted")
		if err := s.hub.HandleClient(s.ctx, conn); err != nil {
			log.Debug("client ended with error", zap.Error(err))
		}
	}()
}

// track registers conn and its handler unless the server is stopping.
func (s *Server) track(conn *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}
