package peer

import (
	"context"

	"webrtc-rendezvous/pkg/webrtc/protocol"
)

// Handler consumes membership events and relayed signals.
// *negotiation.Driver satisfies it.
type Handler interface {
	HandlePeers(roomID string, peers []string) error
	HandleSignal(from string, data protocol.Payload) error
	HandlePeerLeft(roomID, peerID string) error
}

// Drive routes incoming events to h until ctx is done or the connection ends.
// Handler errors are logged; they never stop the loop.
func (c *Client) Drive(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-c.incoming:
			if !ok {
				return ErrClosed
			}
			if err := c.dispatch(h, msg); err != nil {
				c.logger.Warn("signaling event failed", "type", msg.Type, "err", err)
			}
		}
	}
}

func (c *Client) dispatch(h Handler, msg protocol.ServerMessage) error {
	switch msg.Type {
	case protocol.TypePeersList:
		return h.HandlePeers(msg.RoomID, msg.Peers)
	case protocol.TypeSignal:
		if msg.Data == nil {
			return protocol.ErrUnknownPayload
		}
		return h.HandleSignal(msg.From, *msg.Data)
	case protocol.TypePeerDisconnected:
		return h.HandlePeerLeft(msg.RoomID, msg.PeerID)
	default:
		c.logger.Debug("ignoring signaling event", "type", msg.Type)
		return nil
	}
}
