package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"webrtc-rendezvous/internal/config"
	"webrtc-rendezvous/pkg/webrtc/ice"
	"webrtc-rendezvous/pkg/webrtc/negotiation"
	"webrtc-rendezvous/pkg/webrtc/peer"
)

var (
	flagServer  string
	flagRoom    string
	flagMsgPack bool
	flagMessage string
)

var peerCmd = &cobra.Command{
	Use:   "peer",
	Short: "Join a room as a headless WebRTC peer",
	Long: `Join a room as a headless WebRTC peer.

The peer negotiates a data channel with every other member of the room,
sends --message once each channel opens and logs whatever it receives.

Examples:
  rendezvous peer --room lobby
  rendezvous peer --server wss://signal.example/ws --room lobby --msgpack`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagRoom == "" {
			return errors.New("--room is required")
		}
		_, logger, err := loadConfig(config.Options{})
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runPeer(ctx, logger)
	},
}

func init() {
	rootCmd.AddCommand(peerCmd)

	peerCmd.Flags().StringVarP(&flagServer, "server", "s", "ws://localhost:8080/ws", "Signaling WebSocket URL")
	peerCmd.Flags().StringVarP(&flagRoom, "room", "r", "", "Room to join")
	peerCmd.Flags().BoolVar(&flagMsgPack, "msgpack", false, "Use MessagePack frames instead of JSON")
	peerCmd.Flags().StringVarP(&flagMessage, "message", "m", "hello", "Text sent on every data channel once it opens")
}

func runPeer(ctx context.Context, logger *slog.Logger) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := peer.Dial(dialCtx, flagServer, peer.Options{MsgPack: flagMsgPack, Logger: logger})
	if err != nil {
		return err
	}
	defer client.Close()
	logger.Info("connected", "id", client.ID(), "ice_mode", client.ICEMode(), "ice_servers", len(client.ICEServers()))

	driver, err := negotiation.NewDriver(client, negotiation.Options{
		ICEServers: ice.ToPion(client.ICEServers()),
		Logger:     logger,
		OnDataChannel: func(peerID string, dc *webrtc.DataChannel) {
			dc.OnOpen(func() {
				logger.Info("data channel open", "peer", peerID, "label", dc.Label())
				if err := dc.SendText(flagMessage); err != nil {
					logger.Warn("data channel send failed", "peer", peerID, "err", err)
				}
			})
			dc.OnMessage(func(msg webrtc.DataChannelMessage) {
				logger.Info("message", "peer", peerID, "text", string(msg.Data))
			})
		},
		OnStateChange: func(peerID string, state negotiation.State) {
			logger.Info("negotiation", "peer", peerID, "state", state.String())
		},
	})
	if err != nil {
		return fmt.Errorf("negotiation driver: %w", err)
	}
	defer driver.Close()

	if err := client.Join(flagRoom); err != nil {
		return fmt.Errorf("join %s: %w", flagRoom, err)
	}
	logger.Info("joined", "room", flagRoom)

	err = client.Drive(ctx, driver)
	if errors.Is(err, context.Canceled) {
		_ = client.Leave(flagRoom)
		return nil
	}
	return err
}
