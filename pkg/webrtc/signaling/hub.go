package signaling

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"webrtc-rendezvous/pkg/membership"
	"webrtc-rendezvous/pkg/presence"
	"webrtc-rendezvous/pkg/webrtc/protocol"
)

const (
	defaultReadLimit   = 64 * 1024
	defaultSendBuffer  = 32
	pingInterval       = 40 * time.Second
	pongWait           = 60 * time.Second
	writeTimeout       = 10 * time.Second
	upgradeReadBuffer  = 1024
	upgradeWriteBuffer = 1024
)

// HubOptions configures a Hub instance.
type HubOptions struct {
	ICEServers []protocol.ICEServer
	ICEMode    string
	Logger     *slog.Logger
	Upgrader   *websocket.Upgrader
	// ReadLimit caps a single inbound frame in bytes.
	ReadLimit  int64
	SendBuffer int
	// MessagesPerSecond caps inbound frames per connection. Zero disables it.
	MessagesPerSecond float64
	Burst             int
	// OnEmpty runs whenever the last client disconnects.
	OnEmpty func()
}

// ConnOptions controls how a connection is registered.
type ConnOptions struct {
	// Context lets the caller cancel the connection (defaults to Background).
	Context context.Context
}

// Stats is a point-in-time view of live occupancy.
type Stats struct {
	Rooms     int                    `json:"rooms"`
	Clients   int                    `json:"clients"`
	Occupancy []membership.Occupancy `json:"occupancy"`
}

// Hub wires the connection registry, membership table, router and
// broadcaster behind a WebSocket endpoint.
type Hub struct {
	table       *membership.Table
	registry    *presence.Registry
	router      *Router
	broadcaster *Broadcaster

	iceServers []protocol.ICEServer
	iceMode    string
	upgrader   websocket.Upgrader
	logger     *slog.Logger
	readLimit  int64
	sendBuffer int
	msgRate    rate.Limit
	burst      int
	onEmpty    func()
}

// NewHub builds a signaling Hub with its own in-process membership state.
func NewHub(opts HubOptions) *Hub {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  upgradeReadBuffer,
		WriteBufferSize: upgradeWriteBuffer,
		Subprotocols:    protocol.Subprotocols(),
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	if opts.Upgrader != nil {
		upgrader = *opts.Upgrader
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	readLimit := opts.ReadLimit
	if readLimit <= 0 {
		readLimit = defaultReadLimit
	}
	sendBuffer := opts.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = max(1, int(opts.MessagesPerSecond))
	}

	table := membership.NewTable(logger)
	registry := presence.NewRegistry(table)
	return &Hub{
		table:       table,
		registry:    registry,
		router:      NewRouter(registry, logger),
		broadcaster: NewBroadcaster(registry, logger),
		iceServers:  opts.ICEServers,
		iceMode:     opts.ICEMode,
		upgrader:    upgrader,
		logger:      logger,
		readLimit:   readLimit,
		sendBuffer:  sendBuffer,
		msgRate:     rate.Limit(opts.MessagesPerSecond),
		burst:       burst,
		onEmpty:     opts.OnEmpty,
	}
}

func (h *Hub) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("ws upgrade failed", "remote_addr", r.RemoteAddr, "err", err)
			return
		}
		// Use a background context so the connection isn't canceled when the HTTP handler returns.
		if err := h.Accept(conn, ConnOptions{}); err != nil {
			h.logger.Warn("ws accept failed", "remote_addr", r.RemoteAddr, "err", err)
			conn.Close()
		}
	})
}

// Accept registers an already-upgraded WebSocket connection and starts its pumps.
func (h *Hub) Accept(conn *websocket.Conn, opts ConnOptions) error {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)

	var limiter *rate.Limiter
	if h.msgRate > 0 {
		limiter = rate.NewLimiter(h.msgRate, h.burst)
	}
	c := &client{
		conn:    conn,
		codec:   protocol.CodecFor(conn.Subprotocol()),
		limiter: limiter,
		send:    make(chan []byte, h.sendBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}
	c.id = h.Connect(c)

	go c.writePump()
	go c.readPump(h)
	return nil
}

// Connect registers conn, sends it the welcome event and returns its id.
func (h *Hub) Connect(conn presence.Conn) string {
	id := h.registry.Register(conn)
	welcome := protocol.WelcomeMessage{
		Type:       protocol.TypeWelcome,
		ID:         id,
		ICEServers: h.iceServers,
		ICEMode:    h.iceMode,
	}
	if err := conn.Send(welcome); err != nil {
		h.logger.Warn("welcome send failed", "client", id, "err", err)
	}
	h.logger.Info("client registered", "client", id, "clients", h.registry.Count())
	return id
}

// Disconnect releases every membership of id and notifies the rooms it left.
// Calling it again for the same id does nothing.
func (h *Hub) Disconnect(id string) {
	if _, ok := h.registry.Lookup(id); !ok {
		return
	}
	departures := h.registry.Unregister(id)
	h.broadcaster.Departed(id, departures)

	clients := h.registry.Count()
	h.logger.Info("client unregistered", "client", id, "rooms_left", len(departures), "clients", clients)
	if clients == 0 && h.onEmpty != nil {
		h.onEmpty()
	}
}

// Join adds a registered client to roomID and sends it the peers list.
func (h *Hub) Join(id, roomID string) {
	if _, ok := h.registry.Lookup(id); !ok {
		return
	}
	others := h.table.Join(roomID, id)
	h.broadcaster.Joined(roomID, id, others)
	h.logger.Debug("room joined", "client", id, "room", roomID, "peers", len(others))
}

// Leave removes id from roomID and notifies the members left behind. Leaving
// a room the client is not in is a no-op.
func (h *Hub) Leave(id, roomID string) {
	remaining, ok := h.table.Leave(roomID, id)
	if !ok {
		return
	}
	h.broadcaster.Departed(id, []presence.Departure{{RoomID: roomID, Remaining: remaining}})
	h.logger.Debug("room left", "client", id, "room", roomID, "remaining", len(remaining))
}

// Signal relays data from one client to another.
func (h *Hub) Signal(from, to string, data protocol.Payload) bool {
	return h.router.Relay(from, to, data)
}

// CloseAll closes every live connection. Each one then disconnects through
// its read pump, so remaining members still hear about departures.
func (h *Hub) CloseAll() {
	for _, c := range h.registry.Conns() {
		_ = c.Close()
	}
}

func (h *Hub) Stats() Stats {
	return Stats{
		Rooms:     h.table.Len(),
		Clients:   h.registry.Count(),
		Occupancy: h.table.Snapshot(),
	}
}

func (h *Hub) handleInbound(id string, msg protocol.InboundMessage) {
	h.logger.Debug("ws inbound", "type", msg.Type, "from", id, "room", msg.RoomID, "to", msg.To)
	switch msg.Type {
	case protocol.TypeJoinRoom:
		h.Join(id, msg.RoomID)
	case protocol.TypeLeaveRoom:
		h.Leave(id, msg.RoomID)
	case protocol.TypeSignal:
		h.Signal(id, msg.To, *msg.Data)
	default:
		h.logger.Warn("unknown message type", "client", id, "type", msg.Type)
	}
}
