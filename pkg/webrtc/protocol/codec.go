package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// SubprotocolMsgPack selects MessagePack binary frames on a WebSocket.
const SubprotocolMsgPack = "rendezvous.msgpack"

// ErrUnknownEvent is returned for inbound frames with an unrecognised type.
var ErrUnknownEvent = errors.New("unknown event type")

// Codec encodes events for one WebSocket connection.
type Codec interface {
	Name() string
	// FrameType is the gorilla/websocket message type used for writes.
	FrameType() int
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type jsonCodec struct{}

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) FrameType() int                     { return websocket.TextMessage }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type msgpackCodec struct{}

func (msgpackCodec) Name() string                       { return SubprotocolMsgPack }
func (msgpackCodec) FrameType() int                     { return websocket.BinaryMessage }
func (msgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

var (
	JSON    Codec = jsonCodec{}
	MsgPack Codec = msgpackCodec{}
)

// Subprotocols lists the WebSocket subprotocols the service accepts.
// Connections that negotiate none of them use JSON.
func Subprotocols() []string {
	return []string{SubprotocolMsgPack}
}

// CodecFor returns the codec for a negotiated subprotocol.
func CodecFor(subprotocol string) Codec {
	if subprotocol == SubprotocolMsgPack {
		return MsgPack
	}
	return JSON
}

// DecodeInbound decodes a client frame and checks its shape at the boundary,
// so nothing malformed reaches the router or the membership table. Payload
// contents are relayed as sent.
func DecodeInbound(c Codec, data []byte) (InboundMessage, error) {
	var msg InboundMessage
	if err := c.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("decode %s frame: %w", c.Name(), err)
	}

	switch msg.Type {
	case TypeJoinRoom, TypeLeaveRoom:
		// Room ids are opaque; any string, including "", names a room.
	case TypeSignal:
		if msg.To == "" {
			return msg, fmt.Errorf("signal: missing target")
		}
		if msg.Data == nil {
			return msg, fmt.Errorf("signal: %w: missing data", ErrUnknownPayload)
		}
		if err := msg.Data.Resolve(); err != nil {
			return msg, fmt.Errorf("signal: %w", err)
		}
	default:
		return msg, fmt.Errorf("%w: %q", ErrUnknownEvent, msg.Type)
	}
	return msg, nil
}
