package cmd

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webrtc-rendezvous/internal/config"
	"webrtc-rendezvous/pkg/membership"
	"webrtc-rendezvous/pkg/webrtc/signaling"
)

func TestFetchAndRenderStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/stats", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rooms":2,"clients":3,"occupancy":[{"roomId":"a","members":2},{"roomId":"b","members":1}]}`))
	}))
	defer srv.Close()

	stats, err := fetchStats(context.Background(), srv.Client(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, signaling.Stats{
		Rooms:   2,
		Clients: 3,
		Occupancy: []membership.Occupancy{
			{RoomID: "a", Members: 2},
			{RoomID: "b", Members: 1},
		},
	}, stats)

	var out bytes.Buffer
	renderStats(&out, stats)
	rendered := strings.ToLower(out.String())
	assert.Contains(t, rendered, "room")
	assert.Contains(t, rendered, "2 rooms")
	assert.Contains(t, rendered, "3 clients")
}

func TestFetchStats_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := fetchStats(context.Background(), srv.Client(), srv.URL)
	assert.ErrorContains(t, err, "unexpected status")
}

func TestRunServe_StopsOnCancel(t *testing.T) {
	cfg, err := config.Load(config.Options{Addr: "127.0.0.1:0"})
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, cfg, logger) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(cfg.ShutdownTimeout + time.Second):
		t.Fatal("runServe did not return after cancel")
	}
}

func TestRunServe_BadRedis(t *testing.T) {
	cfg, err := config.Load(config.Options{Addr: "127.0.0.1:0", RedisAddr: "127.0.0.1:1"})
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	err = runServe(context.Background(), cfg, logger)
	assert.ErrorContains(t, err, "redis ping")
}
