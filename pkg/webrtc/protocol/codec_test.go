package protocol

import (
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		wantType string
		wantKind PayloadKind
		wantErr  error
	}{
		{
			name:     "join",
			frame:    `{"type":"join-room","roomId":"x"}`,
			wantType: TypeJoinRoom,
		},
		{
			name:     "leave",
			frame:    `{"type":"leave-room","roomId":"x"}`,
			wantType: TypeLeaveRoom,
		},
		{
			name:     "legacy offer",
			frame:    `{"type":"signal","to":"a","data":{"offer":{"type":"offer","sdp":"v=0"}}}`,
			wantType: TypeSignal,
			wantKind: KindOffer,
		},
		{
			name:     "legacy candidate",
			frame:    `{"type":"signal","to":"a","data":{"candidate":{"candidate":"candidate:1 1 udp 1 127.0.0.1 9 typ host","sdpMid":"0","sdpMLineIndex":0}}}`,
			wantType: TypeSignal,
			wantKind: KindCandidate,
		},
		{
			name:     "end of candidates",
			frame:    `{"type":"signal","to":"a","data":{"candidate":{"candidate":"","sdpMid":"0","sdpMLineIndex":0,"usernameFragment":"uf"}}}`,
			wantType: TypeSignal,
			wantKind: KindCandidate,
		},
		{
			name:     "empty room id",
			frame:    `{"type":"join-room","roomId":""}`,
			wantType: TypeJoinRoom,
		},
		{
			name:     "tagged answer",
			frame:    `{"type":"signal","to":"a","data":{"kind":"answer","answer":{"type":"answer","sdp":"v=0"}}}`,
			wantType: TypeSignal,
			wantKind: KindAnswer,
		},
		{
			name:    "tag disagrees with body",
			frame:   `{"type":"signal","to":"a","data":{"kind":"offer","answer":{"type":"answer","sdp":"v=0"}}}`,
			wantErr: ErrUnknownPayload,
		},
		{
			name:    "unknown body",
			frame:   `{"type":"signal","to":"a","data":{"hello":"world"}}`,
			wantErr: ErrUnknownPayload,
		},
		{
			name:    "missing data",
			frame:   `{"type":"signal","to":"a"}`,
			wantErr: ErrUnknownPayload,
		},
		{
			name:    "unknown type",
			frame:   `{"type":"dance"}`,
			wantErr: ErrUnknownEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeInbound(JSON, []byte(tt.frame))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, msg.Type)
			if tt.wantKind != "" {
				require.NotNil(t, msg.Data)
				assert.Equal(t, tt.wantKind, msg.Data.Kind)
			}
		})
	}
}

func TestDecodeInbound_RejectsMissingFields(t *testing.T) {
	for _, frame := range []string{
		`{"type":"signal","data":{"offer":{"type":"offer","sdp":"v=0"}}}`,
		`not json`,
	} {
		_, err := DecodeInbound(JSON, []byte(frame))
		assert.Error(t, err, frame)
	}
}

func TestPayload_KeepsUnknownKeys(t *testing.T) {
	frame := `{"type":"signal","to":"b","data":{"offer":{"type":"offer","sdp":"v=0"},"meta":{"trace":"abc","hops":2}}}`
	msg, err := DecodeInbound(JSON, []byte(frame))
	require.NoError(t, err)
	require.NotNil(t, msg.Data)
	assert.Contains(t, msg.Data.Extra, "meta")

	out, err := JSON.Marshal(NewSignal("a", *msg.Data))
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"signal","from":"a","data":{"kind":"offer","offer":{"type":"offer","sdp":"v=0"},"meta":{"trace":"abc","hops":2}}}`,
		string(out))

	// The same keys survive a hop through MessagePack.
	packed, err := MsgPack.Marshal(NewSignal("a", *msg.Data))
	require.NoError(t, err)
	var viaMsgPack ServerMessage
	require.NoError(t, MsgPack.Unmarshal(packed, &viaMsgPack))
	require.NotNil(t, viaMsgPack.Data)
	back, err := JSON.Marshal(viaMsgPack.Data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"offer","offer":{"type":"offer","sdp":"v=0"},"meta":{"trace":"abc","hops":2}}`, string(back))
}

func TestPayload_NoExtraStaysNil(t *testing.T) {
	var p Payload
	require.NoError(t, JSON.Unmarshal([]byte(`{"kind":"answer","answer":{"type":"answer","sdp":"v=0"}}`), &p))
	assert.Nil(t, p.Extra)
	assert.Equal(t, NewAnswer("v=0"), p)
}

func TestSignalMessage_WritesTagAndLegacyKey(t *testing.T) {
	data, err := JSON.Marshal(NewSignal("b", NewOffer("v=0")))
	require.NoError(t, err)

	assert.JSONEq(t,
		`{"type":"signal","from":"b","data":{"kind":"offer","offer":{"type":"offer","sdp":"v=0"}}}`,
		string(data))
}

func TestPeersList_EmptyIsArray(t *testing.T) {
	data, err := JSON.Marshal(NewPeersList("x", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"peers-list","roomId":"x","peers":[]}`, string(data))
}

func TestMsgPackCodec_SignalAcrossCodecs(t *testing.T) {
	mid := "0"
	idx := uint16(0)
	in := InboundMessage{
		Type: TypeSignal,
		To:   "a",
		Data: &Payload{Candidate: &ICECandidate{Candidate: "candidate:1 1 udp 1 127.0.0.1 9 typ host", SDPMid: &mid, SDPMLineIndex: &idx}},
	}
	frame, err := MsgPack.Marshal(in)
	require.NoError(t, err)

	msg, err := DecodeInbound(MsgPack, frame)
	require.NoError(t, err)
	assert.Equal(t, KindCandidate, msg.Data.Kind)

	// Relayed to a JSON client, the same payload keeps every field.
	out, err := JSON.Marshal(NewSignal("b", *msg.Data))
	require.NoError(t, err)
	var decoded ServerMessage
	require.NoError(t, JSON.Unmarshal(out, &decoded))
	require.NotNil(t, decoded.Data)
	require.NotNil(t, decoded.Data.Candidate)
	assert.Equal(t, "0", *decoded.Data.Candidate.SDPMid)
	assert.Equal(t, uint16(0), *decoded.Data.Candidate.SDPMLineIndex)
}

func TestCodecFor(t *testing.T) {
	assert.Equal(t, MsgPack, CodecFor(SubprotocolMsgPack))
	assert.Equal(t, websocket.BinaryMessage, CodecFor(SubprotocolMsgPack).FrameType())
	assert.Equal(t, JSON, CodecFor(""))
	assert.Equal(t, websocket.TextMessage, CodecFor("other").FrameType())
}
