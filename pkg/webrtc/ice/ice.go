package ice

import (
	"log/slog"
	"strings"

	"github.com/pion/webrtc/v4"

	"webrtc-rendezvous/pkg/webrtc/protocol"
)

// ICE modes.
const (
	ModeSTUNTURN = "stun-turn"
	ModeTURNOnly = "turn-only"
	ModeSTUNOnly = "stun-only"
)

// DefaultSTUN is advertised when no STUN servers are configured.
var DefaultSTUN = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
}

// Settings is the raw ICE configuration.
type Settings struct {
	Mode         string
	STUNURLs     []string
	TURNURLs     []string
	TURNUsername string
	TURNPassword string
}

// Resolve turns settings into the server list advertised to clients.
//
// Modes:
// - stun-turn (default): STUN servers plus TURN when configured
// - turn-only: TURN servers only, falling back to default STUN if none are set
// - stun-only: STUN servers only
func Resolve(s Settings, logger *slog.Logger) (mode string, servers []protocol.ICEServer) {
	if logger == nil {
		logger = slog.Default()
	}
	mode = strings.ToLower(strings.TrimSpace(s.Mode))
	if mode == "" {
		mode = ModeSTUNTURN
	}

	turnOnly := mode == ModeTURNOnly
	stunOnly := mode == ModeSTUNOnly

	if !turnOnly {
		if stun := SplitAndClean(s.STUNURLs...); len(stun) > 0 {
			servers = append(servers, protocol.ICEServer{URLs: stun})
		} else {
			servers = append(servers, protocol.ICEServer{URLs: DefaultSTUN})
		}
	}

	if !stunOnly {
		if turn := SplitAndClean(s.TURNURLs...); len(turn) > 0 {
			servers = append(servers, protocol.ICEServer{
				URLs:       turn,
				Username:   strings.TrimSpace(s.TURNUsername),
				Credential: strings.TrimSpace(s.TURNPassword),
			})
		} else if !turnOnly {
			logger.Info("TURN not configured; set TURN_URLS and credentials for relay fallback")
		}
	}

	if turnOnly && len(servers) == 0 {
		logger.Warn("ICE_MODE=turn-only set but no TURN servers are configured; falling back to default STUN")
		servers = append(servers, protocol.ICEServer{URLs: DefaultSTUN})
	}

	logger.Info("ICE servers loaded", "mode", mode, "servers", len(servers))
	return mode, servers
}

// ToPion converts advertised servers into pion configuration entries.
func ToPion(servers []protocol.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		srv := webrtc.ICEServer{URLs: append([]string(nil), s.URLs...)}
		if s.Username != "" || s.Credential != "" {
			srv.Username = s.Username
			srv.Credential = s.Credential
			srv.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, srv)
	}
	return out
}

// SplitAndClean flattens comma-separated values and drops blanks.
func SplitAndClean(values ...string) []string {
	var out []string
	for _, csv := range values {
		for _, p := range strings.Split(csv, ",") {
			if v := strings.TrimSpace(p); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}
