package signaling

import (
	"log/slog"

	"webrtc-rendezvous/pkg/presence"
	"webrtc-rendezvous/pkg/webrtc/protocol"
)

// Directory resolves client identifiers to live connections.
type Directory interface {
	Lookup(id string) (presence.Conn, bool)
}

// Router relays negotiation payloads to a named target. It never inspects the
// payload and never checks that sender and target share a room.
type Router struct {
	dir    Directory
	logger *slog.Logger
}

func NewRouter(dir Directory, logger *slog.Logger) *Router {
	return &Router{dir: dir, logger: logger}
}

// Relay delivers data to the target tagged with the sender's identity. It
// reports whether the target was live; a missing target is dropped silently.
func (r *Router) Relay(from, to string, data protocol.Payload) bool {
	target, ok := r.dir.Lookup(to)
	if !ok {
		r.logger.Debug("signal target missing", "from", from, "to", to)
		return false
	}
	if err := target.Send(protocol.NewSignal(from, data)); err != nil {
		r.logger.Warn("signal send failed", "from", from, "to", to, "err", err)
	}
	return true
}
