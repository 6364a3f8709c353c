// Package negotiation drives per-peer WebRTC offer/answer exchanges from
// room membership events and relayed signals.
//
// The peer that joins a room offers to everyone already there; peers that
// were present answer. Candidates that arrive before the remote description
// are queued on the session and applied once it is set.
package negotiation

import (
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"webrtc-rendezvous/pkg/webrtc/protocol"
)

// DefaultDataChannelLabel names the channel the offering side opens.
const DefaultDataChannelLabel = "rendezvous"

// departedTTL bounds how long signals from a departed peer are ignored.
const departedTTL = time.Minute

// Signaler relays a payload to a remote peer through the signaling service.
type Signaler interface {
	Signal(to string, data protocol.Payload) error
}

// Options configures a Driver.
type Options struct {
	// API defaults to NewAPI(Logger).
	API        *webrtc.API
	ICEServers []webrtc.ICEServer
	Logger     *slog.Logger
	// DataChannelLabel is opened by the offering side; it also gives the
	// offer a media section so ICE can start. Defaults to DefaultDataChannelLabel.
	DataChannelLabel string

	OnDataChannel func(peerID string, dc *webrtc.DataChannel)
	OnTrack       func(peerID string, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	OnStateChange func(peerID string, state State)
}

// Driver owns one Session per remote peer.
type Driver struct {
	api      *webrtc.API
	config   webrtc.Configuration
	signaler Signaler
	logger   *slog.Logger
	label    string

	onDataChannel func(string, *webrtc.DataChannel)
	onTrack       func(string, *webrtc.TrackRemote, *webrtc.RTPReceiver)
	onStateChange func(string, State)

	mu       sync.Mutex
	sessions map[string]*Session
	// shared holds the rooms each peer is known to share with us.
	shared   map[string]map[string]struct{}
	departed map[string]time.Time
	closed   bool
	now      func() time.Time
}

func NewDriver(signaler Signaler, opts Options) (*Driver, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	api := opts.API
	if api == nil {
		var err error
		if api, err = NewAPI(logger); err != nil {
			return nil, err
		}
	}
	label := opts.DataChannelLabel
	if label == "" {
		label = DefaultDataChannelLabel
	}
	return &Driver{
		api:           api,
		config:        webrtc.Configuration{ICEServers: opts.ICEServers},
		signaler:      signaler,
		logger:        logger,
		label:         label,
		onDataChannel: opts.OnDataChannel,
		onTrack:       opts.OnTrack,
		onStateChange: opts.OnStateChange,
		sessions:      make(map[string]*Session),
		shared:        make(map[string]map[string]struct{}),
		departed:      make(map[string]time.Time),
		now:           time.Now,
	}, nil
}

// HandlePeers starts an offer to every peer listed on joining roomID. A peer
// already negotiated through another room keeps its session.
func (d *Driver) HandlePeers(roomID string, peers []string) error {
	d.mu.Lock()
	for _, id := range peers {
		rooms := d.shared[id]
		if rooms == nil {
			rooms = make(map[string]struct{})
			d.shared[id] = rooms
		}
		rooms[roomID] = struct{}{}
	}
	d.mu.Unlock()

	var errs []error
	for _, id := range peers {
		if err := d.offer(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleSignal applies a payload relayed from peer from.
func (d *Driver) HandleSignal(from string, data protocol.Payload) error {
	if err := data.Resolve(); err != nil {
		return wrap("signal", from, err)
	}
	switch data.Kind {
	case protocol.KindOffer:
		return d.answer(from, data.Offer.SDP)
	case protocol.KindAnswer:
		return d.accept(from, data.Answer.SDP)
	default:
		return d.candidate(from, *data.Candidate)
	}
}

// HandlePeerLeft records that peerID left roomID. The session is torn down
// once no known shared room is left; a peer that reached us only through its
// offer has no recorded rooms, so its first departure ends the session.
// Repeated calls are no-ops.
func (d *Driver) HandlePeerLeft(roomID, peerID string) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	if rooms, ok := d.shared[peerID]; ok {
		delete(rooms, roomID)
		if len(rooms) > 0 {
			d.mu.Unlock()
			d.logger.Debug("peer left one shared room", "peer", peerID, "room", roomID, "still_shared", len(rooms))
			return nil
		}
		delete(d.shared, peerID)
	}
	s := d.sessions[peerID]
	delete(d.sessions, peerID)
	d.markDeparted(peerID)
	d.mu.Unlock()
	if s == nil {
		return nil
	}
	return d.teardown(s)
}

// Close tears down every session and rejects further signals.
func (d *Driver) Close() error {
	d.mu.Lock()
	d.closed = true
	sessions := d.sessions
	d.sessions = make(map[string]*Session)
	clear(d.shared)
	clear(d.departed)
	d.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := d.teardown(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// State reports the negotiation state with peerID.
func (d *Driver) State(peerID string) (State, bool) {
	d.mu.Lock()
	s, ok := d.sessions[peerID]
	d.mu.Unlock()
	if !ok {
		return StateIdle, false
	}
	return s.State(), true
}

// Queued reports how many candidates from peerID await a remote description.
func (d *Driver) Queued(peerID string) int {
	d.mu.Lock()
	s, ok := d.sessions[peerID]
	d.mu.Unlock()
	if !ok {
		return 0
	}
	return s.queued()
}

// Session returns the live session with peerID, if any.
func (d *Driver) Session(peerID string) (*Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[peerID]
	return s, ok
}

// Peers lists remote peers with a live session.
func (d *Driver) Peers() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Sorted(maps.Keys(d.sessions))
}

func (d *Driver) offer(peerID string) error {
	s, err := d.session(peerID, true)
	if err != nil || s == nil {
		return err
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return nil
	}
	dc, err := s.pc.CreateDataChannel(d.label, nil)
	if err != nil {
		s.mu.Unlock()
		return wrap("create data channel", peerID, err)
	}
	offer, err := s.pc.CreateOffer(nil)
	if err == nil {
		err = s.pc.SetLocalDescription(offer)
	}
	if err != nil {
		s.mu.Unlock()
		return wrap("offer", peerID, err)
	}
	s.state = StateOfferSent
	s.mu.Unlock()

	if d.onDataChannel != nil {
		d.onDataChannel(peerID, dc)
	}
	d.notify(peerID, StateOfferSent)
	return wrap("send offer", peerID, d.signaler.Signal(peerID, protocol.NewOffer(offer.SDP)))
}

func (d *Driver) answer(from, sdp string) error {
	s, err := d.session(from, true)
	if err != nil || s == nil {
		return err
	}

	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		d.logger.Warn("ignoring offer", "peer", from, "state", state.String())
		return wrap("answer", from, ErrUnexpectedOffer)
	}
	flushErr, err := s.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp})
	if err != nil {
		s.mu.Unlock()
		return wrap("set remote offer", from, err)
	}
	s.state = StateOfferReceived
	answer, err := s.pc.CreateAnswer(nil)
	if err == nil {
		err = s.pc.SetLocalDescription(answer)
	}
	if err != nil {
		s.mu.Unlock()
		return wrap("answer", from, err)
	}
	s.state = StateAnswerSent
	s.mu.Unlock()

	if flushErr != nil {
		d.logger.Warn("queued candidates rejected", "peer", from, "err", flushErr)
	}
	d.notify(from, StateOfferReceived)
	d.notify(from, StateAnswerSent)
	return wrap("send answer", from, d.signaler.Signal(from, protocol.NewAnswer(answer.SDP)))
}

func (d *Driver) accept(from, sdp string) error {
	d.mu.Lock()
	s := d.sessions[from]
	d.mu.Unlock()
	if s == nil {
		return wrap("accept answer", from, ErrUnexpectedAnswer)
	}

	s.mu.Lock()
	if s.state != StateOfferSent {
		s.mu.Unlock()
		return wrap("accept answer", from, ErrUnexpectedAnswer)
	}
	flushErr, err := s.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
	if err != nil {
		s.mu.Unlock()
		return wrap("set remote answer", from, err)
	}
	s.state = StateAnswerReceived
	s.mu.Unlock()

	if flushErr != nil {
		d.logger.Warn("queued candidates rejected", "peer", from, "err", flushErr)
	}
	d.notify(from, StateAnswerReceived)
	return nil
}

func (d *Driver) candidate(from string, c protocol.ICECandidate) error {
	if c.Candidate == "" {
		d.logger.Debug("end of remote candidates", "peer", from)
		return nil
	}
	s, err := d.session(from, false)
	if err != nil || s == nil {
		return err
	}
	queued, err := s.addCandidate(toPionCandidate(c))
	if queued {
		d.logger.Debug("candidate queued", "peer", from)
	}
	return wrap("add candidate", from, err)
}

// session returns the session with peerID, creating an idle one if needed.
// Stray signals from a departed peer get nil; an offer (fresh) starts over,
// since a peer that left a room keeps its id and may join again.
func (d *Driver) session(peerID string, fresh bool) (*Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, wrap("session", peerID, ErrDriverClosed)
	}
	if fresh {
		delete(d.departed, peerID)
	}
	if at, gone := d.departed[peerID]; gone {
		if d.now().Sub(at) < departedTTL {
			d.logger.Debug("ignoring signal from departed peer", "peer", peerID)
			return nil, nil
		}
		delete(d.departed, peerID)
	}
	if s, ok := d.sessions[peerID]; ok {
		return s, nil
	}

	pc, err := d.api.NewPeerConnection(d.config)
	if err != nil {
		return nil, wrap("new peer connection", peerID, err)
	}
	s := &Session{peerID: peerID, pc: pc, state: StateIdle}
	d.sessions[peerID] = s
	d.wire(s)
	return s, nil
}

// markDeparted records peerID and prunes expired entries. Callers hold d.mu.
func (d *Driver) markDeparted(peerID string) {
	now := d.now()
	for id, at := range d.departed {
		if now.Sub(at) >= departedTTL {
			delete(d.departed, id)
		}
	}
	d.departed[peerID] = now
}

func (d *Driver) wire(s *Session) {
	peerID := s.peerID
	s.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		payload := protocol.NewCandidate(fromPionCandidate(c.ToJSON()))
		if err := d.signaler.Signal(peerID, payload); err != nil {
			d.logger.Warn("candidate send failed", "peer", peerID, "err", err)
		}
	})
	s.pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		d.logger.Debug("peer connection state", "peer", peerID, "state", st.String())
		switch st {
		case webrtc.PeerConnectionStateConnected:
			if s.markConnected() {
				d.notify(peerID, StateConnected)
			}
		case webrtc.PeerConnectionStateFailed:
			d.logger.Warn("peer connection failed", "peer", peerID)
		}
	})
	if d.onTrack != nil {
		s.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
			d.onTrack(peerID, track, receiver)
		})
	}
	if d.onDataChannel != nil {
		s.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			d.onDataChannel(peerID, dc)
		})
	}
}

func (d *Driver) teardown(s *Session) error {
	closed, err := s.close()
	if closed {
		d.notify(s.peerID, StateClosed)
	}
	return wrap("close", s.peerID, err)
}

func (d *Driver) notify(peerID string, state State) {
	if d.onStateChange != nil {
		d.onStateChange(peerID, state)
	}
}
