package negotiation

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"webrtc-rendezvous/pkg/webrtc/protocol"
)

// Session is the negotiation with one remote peer.
type Session struct {
	peerID string
	pc     *webrtc.PeerConnection

	mu        sync.Mutex
	state     State
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

func (s *Session) PeerID() string { return s.peerID }

// PeerConnection exposes the underlying pion connection, e.g. to add tracks.
func (s *Session) PeerConnection() *webrtc.PeerConnection { return s.pc }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// setRemote applies the remote description and flushes queued candidates.
// Callers hold s.mu.
func (s *Session) setRemote(desc webrtc.SessionDescription) (flushErr error, err error) {
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return nil, err
	}
	s.remoteSet = true

	var errs []error
	for _, c := range s.pending {
		if err := s.pc.AddICECandidate(c); err != nil {
			errs = append(errs, err)
		}
	}
	s.pending = nil
	return errors.Join(errs...), nil
}

// addCandidate applies c now when the remote description is known, otherwise
// queues it.
func (s *Session) addCandidate(c webrtc.ICECandidateInit) (queued bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false, nil
	}
	if !s.remoteSet {
		s.pending = append(s.pending, c)
		return true, nil
	}
	return false, s.pc.AddICECandidate(c)
}

func (s *Session) queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// markConnected moves a negotiated session to connected.
func (s *Session) markConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Negotiated() || s.state == StateConnected {
		return false
	}
	s.state = StateConnected
	return true
}

// close releases the peer connection once.
func (s *Session) close() (bool, error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return false, nil
	}
	s.state = StateClosed
	s.pending = nil
	s.mu.Unlock()
	return true, s.pc.Close()
}

func toPionCandidate(c protocol.ICECandidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func fromPionCandidate(c webrtc.ICECandidateInit) protocol.ICECandidate {
	return protocol.ICECandidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
