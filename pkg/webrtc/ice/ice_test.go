package ice

import (
	"io"
	"log/slog"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"

	"webrtc-rendezvous/pkg/webrtc/protocol"
)

func TestResolve(t *testing.T) {
	turn := protocol.ICEServer{URLs: []string{"turn:a:3478", "turns:b:5349"}, Username: "u", Credential: "p"}

	tests := []struct {
		name     string
		settings Settings
		wantMode string
		want     []protocol.ICEServer
	}{
		{
			name:     "defaults",
			settings: Settings{},
			wantMode: ModeSTUNTURN,
			want:     []protocol.ICEServer{{URLs: DefaultSTUN}},
		},
		{
			name:     "stun and turn",
			settings: Settings{STUNURLs: []string{"stun:s:3478"}, TURNURLs: []string{"turn:a:3478, turns:b:5349"}, TURNUsername: "u", TURNPassword: "p"},
			wantMode: ModeSTUNTURN,
			want:     []protocol.ICEServer{{URLs: []string{"stun:s:3478"}}, turn},
		},
		{
			name:     "turn only",
			settings: Settings{Mode: "TURN-ONLY", STUNURLs: []string{"stun:s:3478"}, TURNURLs: []string{"turn:a:3478", "turns:b:5349"}, TURNUsername: "u", TURNPassword: "p"},
			wantMode: ModeTURNOnly,
			want:     []protocol.ICEServer{turn},
		},
		{
			name:     "turn only without turn falls back",
			settings: Settings{Mode: ModeTURNOnly},
			wantMode: ModeTURNOnly,
			want:     []protocol.ICEServer{{URLs: DefaultSTUN}},
		},
		{
			name:     "stun only ignores turn",
			settings: Settings{Mode: ModeSTUNOnly, TURNURLs: []string{"turn:a:3478"}},
			wantMode: ModeSTUNOnly,
			want:     []protocol.ICEServer{{URLs: DefaultSTUN}},
		},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, servers := Resolve(tt.settings, logger)
			assert.Equal(t, tt.wantMode, mode)
			assert.Equal(t, tt.want, servers)
		})
	}
}

func TestToPion(t *testing.T) {
	got := ToPion([]protocol.ICEServer{
		{URLs: []string{"stun:s:3478"}},
		{URLs: []string{"turn:a:3478"}, Username: "u", Credential: "p"},
	})

	assert.Equal(t, []webrtc.ICEServer{
		{URLs: []string{"stun:s:3478"}},
		{URLs: []string{"turn:a:3478"}, Username: "u", Credential: "p", CredentialType: webrtc.ICECredentialTypePassword},
	}, got)
}

func TestSplitAndClean(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitAndClean(" a, ,b", "c,"))
	assert.Nil(t, SplitAndClean("", " , "))
}
