package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

// drive runs the connection loop until the transport closes, a dispatch
// ends the connection or the outbound queue is closed. Tick, inbound and
// outbound events are handled one at a time.
func (h *Hub) drive(ctx context.Context, conn Conn, c *Connection, log *zap.Logger) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	inbound := make(chan Message)
	readErr := make(chan error, 1)
	go func() {
		for {
			msg, err := conn.Read(ctx)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case inbound <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	h.reevaluate(c, log)

	for {
		select {
		case <-ticker.C:
			h.reevaluate(c, log)

		case msg := <-inbound:
			res := h.Dispatch(ctx, conn, c, msg)
			switch res.Action {
			case ActionTerminate:
				return res.Reason, nil
			case ActionFatal:
				return "dispatch failed", res.Err
			}

		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return "transport closed", nil
			}
			return "read failed", fmt.Errorf("read: %w", err)

		case msg := <-c.Outbound():
			if err := conn.Write(ctx, msg); err != nil {
				return "write failed", fmt.Errorf("write: %w", err)
			}

		case <-c.Done():
			return "outbound queue closed", nil

		case <-ctx.Done():
			return "context done", ctx.Err()
		}
	}
}

func (h *Hub) reevaluate(c *Connection, log *zap.Logger) {
	audience := c.Reevaluate(h.registry.Snapshot())
	log.Debug("reevaluated audience", zap.Uint64s("audience", audience))
}
