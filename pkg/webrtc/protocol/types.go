package protocol

// Inbound event types.
const (
	TypeJoinRoom  = "join-room"
	TypeLeaveRoom = "leave-room"
	TypeSignal    = "signal"
)

// Outbound event types. TypeSignal is shared by both directions.
const (
	TypeWelcome          = "welcome"
	TypePeersList        = "peers-list"
	TypePeerDisconnected = "peer-disconnected"
)

// ICEServer describes STUN/TURN servers advertised to clients.
type ICEServer struct {
	URLs       []string `json:"urls" msgpack:"urls"`
	Username   string   `json:"username,omitempty" msgpack:"username,omitempty"`
	Credential string   `json:"credential,omitempty" msgpack:"credential,omitempty"`
}

// InboundMessage is the payload clients send to the signaling service.
type InboundMessage struct {
	Type   string   `json:"type" msgpack:"type"`
	RoomID string   `json:"roomId,omitempty" msgpack:"roomId,omitempty"`
	To     string   `json:"to,omitempty" msgpack:"to,omitempty"`
	Data   *Payload `json:"data,omitempty" msgpack:"data,omitempty"`
}

// WelcomeMessage is sent once, right after a connection is registered.
type WelcomeMessage struct {
	Type       string      `json:"type" msgpack:"type"`
	ID         string      `json:"id" msgpack:"id"`
	ICEServers []ICEServer `json:"iceServers,omitempty" msgpack:"iceServers,omitempty"`
	ICEMode    string      `json:"iceMode,omitempty" msgpack:"iceMode,omitempty"`
}

// PeersListMessage tells a joiner who was already in the room.
type PeersListMessage struct {
	Type   string   `json:"type" msgpack:"type"`
	RoomID string   `json:"roomId" msgpack:"roomId"`
	Peers  []string `json:"peers" msgpack:"peers"`
}

// SignalMessage carries peer-to-peer WebRTC signaling data.
type SignalMessage struct {
	Type string  `json:"type" msgpack:"type"`
	From string  `json:"from" msgpack:"from"`
	Data Payload `json:"data" msgpack:"data"`
}

// PeerDisconnectedMessage tells a room member that a peer left.
type PeerDisconnectedMessage struct {
	Type   string `json:"type" msgpack:"type"`
	RoomID string `json:"roomId" msgpack:"roomId"`
	PeerID string `json:"peerId" msgpack:"peerId"`
}

// ServerMessage is the union of every outbound event, used by Go clients
// to decode whatever the service sends.
type ServerMessage struct {
	Type       string      `json:"type" msgpack:"type"`
	ID         string      `json:"id,omitempty" msgpack:"id,omitempty"`
	ICEServers []ICEServer `json:"iceServers,omitempty" msgpack:"iceServers,omitempty"`
	ICEMode    string      `json:"iceMode,omitempty" msgpack:"iceMode,omitempty"`
	RoomID     string      `json:"roomId,omitempty" msgpack:"roomId,omitempty"`
	Peers      []string    `json:"peers,omitempty" msgpack:"peers,omitempty"`
	PeerID     string      `json:"peerId,omitempty" msgpack:"peerId,omitempty"`
	From       string      `json:"from,omitempty" msgpack:"from,omitempty"`
	Data       *Payload    `json:"data,omitempty" msgpack:"data,omitempty"`
}

func NewPeersList(roomID string, peers []string) PeersListMessage {
	if peers == nil {
		peers = []string{}
	}
	return PeersListMessage{Type: TypePeersList, RoomID: roomID, Peers: peers}
}

func NewSignal(from string, data Payload) SignalMessage {
	return SignalMessage{Type: TypeSignal, From: from, Data: data}
}

func NewPeerDisconnected(roomID, peerID string) PeerDisconnectedMessage {
	return PeerDisconnectedMessage{Type: TypePeerDisconnected, RoomID: roomID, PeerID: peerID}
}
