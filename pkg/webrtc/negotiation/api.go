package negotiation

import (
	"fmt"
	"log/slog"

	"github.com/pion/webrtc/v4"
)

// NewAPI builds a pion API with the default codecs registered and pion's
// logging routed through logger.
func NewAPI(logger *slog.Logger) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register default codecs: %w", err)
	}
	se := webrtc.SettingEngine{LoggerFactory: NewLoggerFactory(logger)}
	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se)), nil
}
