package peer

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webrtc-rendezvous/pkg/membership"
	"webrtc-rendezvous/pkg/webrtc/negotiation"
	"webrtc-rendezvous/pkg/webrtc/protocol"
	"webrtc-rendezvous/pkg/webrtc/signaling"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServer(t *testing.T) (*signaling.Hub, string) {
	t.Helper()
	hub := signaling.NewHub(signaling.HubOptions{
		Logger:     discardLogger(),
		ICEMode:    "stun-only",
		ICEServers: []protocol.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	srv := httptest.NewServer(hub.HTTPHandler())
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, opts Options) *Client {
	t.Helper()
	opts.Logger = discardLogger()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, url, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type event struct {
	kind string
	room string
	peer string
	data protocol.Payload
}

type fakeHandler struct {
	mu     sync.Mutex
	events []event
}

func (f *fakeHandler) record(e event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeHandler) HandlePeers(roomID string, peers []string) error {
	return f.record(event{kind: "peers", room: roomID, peer: strings.Join(peers, ",")})
}

func (f *fakeHandler) HandleSignal(from string, data protocol.Payload) error {
	return f.record(event{kind: "signal", peer: from, data: data})
}

func (f *fakeHandler) HandlePeerLeft(roomID, peerID string) error {
	return f.record(event{kind: "left", room: roomID, peer: peerID})
}

func (f *fakeHandler) snapshot() []event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]event(nil), f.events...)
}

func drive(t *testing.T, c *Client, h Handler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = c.Drive(ctx, h) }()
}

func TestClient_Welcome(t *testing.T) {
	_, url := startServer(t)
	c := dial(t, url, Options{})

	assert.NotEmpty(t, c.ID())
	assert.Equal(t, "stun-only", c.ICEMode())
	require.Len(t, c.ICEServers(), 1)
}

func TestClient_DriveRoutesEvents(t *testing.T) {
	hub, url := startServer(t)
	a := dial(t, url, Options{})
	b := dial(t, url, Options{MsgPack: true})
	ha, hb := &fakeHandler{}, &fakeHandler{}
	drive(t, a, ha)
	drive(t, b, hb)

	require.NoError(t, a.Join("x"))
	require.Eventually(t, func() bool { return len(ha.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, b.Join("x"))
	require.Eventually(t, func() bool { return len(hb.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)

	offer := protocol.NewOffer("v=0")
	require.NoError(t, b.Signal(a.ID(), offer))
	require.Eventually(t, func() bool { return len(ha.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Leave("x"))
	require.Eventually(t, func() bool { return len(hb.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []event{
		{kind: "peers", room: "x", peer: ""},
		{kind: "signal", peer: b.ID(), data: offer},
	}, ha.snapshot())
	assert.Equal(t, []event{
		{kind: "peers", room: "x", peer: a.ID()},
		{kind: "left", room: "x", peer: a.ID()},
	}, hb.snapshot())
	assert.Equal(t, []membership.Occupancy{{RoomID: "x", Members: 1}}, hub.Stats().Occupancy)
}

func TestClient_CloseEndsDrive(t *testing.T) {
	hub, url := startServer(t)
	c := dial(t, url, Options{})

	errCh := make(chan error, 1)
	go func() { errCh <- c.Drive(context.Background(), &fakeHandler{}) }()
	require.NoError(t, c.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Drive did not return after Close")
	}
	assert.ErrorIs(t, c.Join("x"), ErrClosed)
	require.Eventually(t, func() bool { return hub.Stats().Clients == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestClient_NegotiatesThroughHub(t *testing.T) {
	hub, url := startServer(t)
	a := dial(t, url, Options{})
	b := dial(t, url, Options{})

	newDriver := func(c *Client) *negotiation.Driver {
		d, err := negotiation.NewDriver(c, negotiation.Options{Logger: discardLogger()})
		require.NoError(t, err)
		t.Cleanup(func() { _ = d.Close() })
		return d
	}
	da, db := newDriver(a), newDriver(b)
	drive(t, a, da)
	drive(t, b, db)

	require.NoError(t, a.Join("x"))
	require.Eventually(t, func() bool { return hub.Stats().Rooms == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, b.Join("x"))

	require.Eventually(t, func() bool {
		sa, okA := da.State(b.ID())
		sb, okB := db.State(a.ID())
		return okA && okB && sa.Negotiated() && sb.Negotiated()
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, b.Close())
	require.Eventually(t, func() bool {
		_, ok := da.State(b.ID())
		return !ok
	}, 2*time.Second, 10*time.Millisecond, "departure tears the session down")
}

func TestClient_CloseFlushesQueuedFrames(t *testing.T) {
	_, url := startServer(t)
	a := dial(t, url, Options{})
	b := dial(t, url, Options{})
	hb := &fakeHandler{}
	drive(t, b, hb)

	require.NoError(t, b.Join("x"))
	require.NoError(t, a.Join("x"))
	require.Eventually(t, func() bool { return len(hb.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)

	offer := protocol.NewOffer("v=0")
	require.NoError(t, a.Signal(b.ID(), offer))
	require.NoError(t, a.Leave("x"))
	require.NoError(t, a.Close())

	require.Eventually(t, func() bool { return len(hb.snapshot()) >= 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []event{
		{kind: "peers", room: "x", peer: ""},
		{kind: "signal", peer: a.ID(), data: offer},
		{kind: "left", room: "x", peer: a.ID()},
	}, hb.snapshot()[:3])
}
