// Package peer is a Go client for the signaling service. It lets headless
// peers join rooms and hand membership events to a negotiation driver.
package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"webrtc-rendezvous/pkg/webrtc/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ErrClosed is returned when sending on a closed client.
var ErrClosed = errors.New("signaling client closed")

// Options configures Dial.
type Options struct {
	// MsgPack negotiates MessagePack frames instead of JSON.
	MsgPack bool
	Dialer  *websocket.Dialer
	Logger  *slog.Logger
}

// Client manages the WebSocket connection to the signaling service.
type Client struct {
	conn   *websocket.Conn
	codec  protocol.Codec
	logger *slog.Logger

	id         string
	iceServers []protocol.ICEServer
	iceMode    string

	incoming chan protocol.ServerMessage
	outgoing chan []byte
	done     chan struct{}
	once     sync.Once
}

// Dial connects to the service and waits for the welcome event.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	dialer := *websocket.DefaultDialer
	if opts.Dialer != nil {
		dialer = *opts.Dialer
	}
	if opts.MsgPack {
		dialer.Subprotocols = []string{protocol.SubprotocolMsgPack}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Client{
		conn:     conn,
		codec:    protocol.CodecFor(conn.Subprotocol()),
		logger:   logger,
		incoming: make(chan protocol.ServerMessage, 32),
		outgoing: make(chan []byte, 32),
		done:     make(chan struct{}),
	}
	c.conn.SetReadLimit(maxMessageSize)

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	welcome, err := c.readMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read welcome: %w", err)
	}
	if welcome.Type != protocol.TypeWelcome || welcome.ID == "" {
		conn.Close()
		return nil, fmt.Errorf("expected welcome, got %q", welcome.Type)
	}
	c.id = welcome.ID
	c.iceServers = welcome.ICEServers
	c.iceMode = welcome.ICEMode

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

	go c.readPump()
	go c.writePump()
	return c, nil
}

// ID is the identifier the service assigned to this connection.
func (c *Client) ID() string { return c.id }

// ICEServers are the servers advertised in the welcome event.
func (c *Client) ICEServers() []protocol.ICEServer { return c.iceServers }

func (c *Client) ICEMode() string { return c.iceMode }

// Incoming delivers every event after the welcome. It is closed when the
// connection ends.
func (c *Client) Incoming() <-chan protocol.ServerMessage { return c.incoming }

func (c *Client) Join(roomID string) error {
	return c.send(protocol.InboundMessage{Type: protocol.TypeJoinRoom, RoomID: roomID})
}

func (c *Client) Leave(roomID string) error {
	return c.send(protocol.InboundMessage{Type: protocol.TypeLeaveRoom, RoomID: roomID})
}

// Signal relays data to peer to. It satisfies negotiation.Signaler.
func (c *Client) Signal(to string, data protocol.Payload) error {
	return c.send(protocol.InboundMessage{Type: protocol.TypeSignal, To: to, Data: &data})
}

// Close sends a close frame and stops both pumps.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *Client) send(msg protocol.InboundMessage) error {
	data, err := c.codec.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- data:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

func (c *Client) readMessage() (protocol.ServerMessage, error) {
	var msg protocol.ServerMessage
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return msg, err
	}
	err = c.codec.Unmarshal(data, &msg)
	return msg, err
}

func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
		_ = c.Close()
	}()

	for {
		msg, err := c.readMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				select {
				case <-c.done:
				default:
					c.logger.Debug("signaling read ended", "err", err)
				}
			}
			return
		}
		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	frameType := c.codec.FrameType()
	for {
		select {
		case data := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(frameType, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.flush(frameType)
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes frames queued before Close so a final leave or signal is not lost.
func (c *Client) flush(frameType int) {
	for {
		select {
		case data := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(frameType, data); err != nil {
				return
			}
		default:
			return
		}
	}
}
