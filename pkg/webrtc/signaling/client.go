package signaling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"webrtc-rendezvous/pkg/presence"
	"webrtc-rendezvous/pkg/webrtc/protocol"
)

var errClientClosed = errors.New("client closed")

// client is one WebSocket connection. It implements presence.Conn.
type client struct {
	id      string
	conn    *websocket.Conn
	codec   protocol.Codec
	limiter *rate.Limiter
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func (c *client) Send(v any) error {
	data, err := c.codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %T: %w", v, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return presence.ErrSendBufferFull
	}
}

func (c *client) Close() error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
	c.cancel()
	return nil
}

func (c *client) readPump(h *Hub) {
	defer func() {
		h.Disconnect(c.id)
		_ = c.Close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(h.readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return
			}
			if !errors.Is(err, websocket.ErrCloseSent) && c.ctx.Err() == nil {
				h.logger.Debug("ws read failed", "client", c.id, "err", err)
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			h.logger.Warn("inbound rate limit exceeded, dropping message", "client", c.id)
			continue
		}

		msg, err := protocol.DecodeInbound(c.codec, data)
		if err != nil {
			h.logger.Warn("bad payload", "client", c.id, "err", err)
			continue
		}
		h.handleInbound(c.id, msg)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	frameType := c.codec.FrameType()
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(frameType, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
