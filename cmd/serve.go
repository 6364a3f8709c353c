package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"webrtc-rendezvous/internal/app/httpapi"
	"webrtc-rendezvous/internal/app/rooms"
	"webrtc-rendezvous/internal/config"
	"webrtc-rendezvous/pkg/webrtc/ice"
	"webrtc-rendezvous/pkg/webrtc/protocol"
	"webrtc-rendezvous/pkg/webrtc/signaling"
)

var serveOpts config.Options

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling service",
	Long: `Run the signaling service.

Settings come from flags, then environment variables (and .env), then the
--config file, then defaults.

Examples:
  rendezvous serve
  rendezvous serve --addr :9000 --redis-addr localhost:6379
  ICE_MODE=turn-only TURN_URLS=turn:turn.example:3478 rendezvous serve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(serveOpts)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveOpts.Addr, "addr", "a", "", "Listen address (default :8080)")
	serveCmd.Flags().StringVar(&serveOpts.StaticDir, "static-dir", "", "Serve a single-page app from this directory")
	serveCmd.Flags().StringVar(&serveOpts.PublicWSURL, "public-ws-url", "", "WebSocket URL advertised to browsers")
	serveCmd.Flags().StringVar(&serveOpts.RedisAddr, "redis-addr", "", "Redis address for room issuance (memory when empty)")
	serveCmd.Flags().StringVar(&serveOpts.ICEMode, "ice-mode", "", "ICE mode (stun-turn, turn-only, stun-only)")
}

func runServe(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	iceMode, iceServers := ice.Resolve(cfg.ICE, logger)
	logConfig(logger, cfg, iceMode, iceServers)

	store, closeStore, err := openRoomStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := signaling.NewHub(signaling.HubOptions{
		ICEServers:        iceServers,
		ICEMode:           iceMode,
		Logger:            logger,
		ReadLimit:         cfg.MaxMessageBytes,
		SendBuffer:        cfg.SendBuffer,
		MessagesPerSecond: cfg.MessagesPerSecond,
		OnEmpty: func() {
			logger.Debug("no clients connected")
		},
	})

	srv := httpapi.New(cfg, httpapi.Deps{
		Hub:   hub,
		Rooms: store,
		Settings: httpapi.Settings{
			ICEMode:     iceMode,
			ICEServers:  iceServers,
			PublicWSURL: cfg.PublicWSURL,
		},
	}, logger)

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, httpapi.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	err = srv.Shutdown(shutdownCtx)
	hub.CloseAll()
	if err != nil {
		_ = srv.Close()
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func openRoomStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (rooms.Store, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Info("room issuance in memory")
		return rooms.NewMemoryStore(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	logger.Info("room issuance in redis", "redis_addr", cfg.RedisAddr, "prefix", cfg.RedisPrefix)
	return rooms.NewRedisStore(rdb, cfg.RedisPrefix), func() { _ = rdb.Close() }, nil
}

func logConfig(logger *slog.Logger, cfg config.Config, iceMode string, servers []protocol.ICEServer) {
	turnConfigured := false
	for _, s := range servers {
		if s.Username != "" || s.Credential != "" {
			turnConfigured = true
			break
		}
	}

	logger.Info("config",
		"addr", cfg.Addr,
		"static_dir", cfg.StaticDir,
		"redis_addr", cfg.RedisAddr,
		"ice_mode", iceMode,
		"ice_servers", len(servers),
		"turn_configured", turnConfigured,
		"max_message_bytes", cfg.MaxMessageBytes,
		"messages_per_second", cfg.MessagesPerSecond,
	)
}
