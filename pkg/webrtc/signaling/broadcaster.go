package signaling

import (
	"log/slog"

	"webrtc-rendezvous/pkg/presence"
	"webrtc-rendezvous/pkg/webrtc/protocol"
)

// Broadcaster emits membership-change events.
type Broadcaster struct {
	dir    Directory
	logger *slog.Logger
}

func NewBroadcaster(dir Directory, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{dir: dir, logger: logger}
}

// Joined sends the joiner the members that were already in the room.
// Existing members are not told about the newcomer; the joiner initiates.
func (b *Broadcaster) Joined(roomID, joinerID string, others []string) {
	b.send(joinerID, protocol.NewPeersList(roomID, others))
}

// Departed tells the remaining members of each room that peerID left.
func (b *Broadcaster) Departed(peerID string, departures []presence.Departure) {
	for _, d := range departures {
		msg := protocol.NewPeerDisconnected(d.RoomID, peerID)
		for _, id := range d.Remaining {
			b.send(id, msg)
		}
	}
}

func (b *Broadcaster) send(id string, msg any) {
	conn, ok := b.dir.Lookup(id)
	if !ok {
		return
	}
	if err := conn.Send(msg); err != nil {
		b.logger.Warn("broadcast send failed", "client", id, "err", err)
	}
}
