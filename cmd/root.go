package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"webrtc-rendezvous/internal/config"
)

var (
	flagConfigFile string
	flagLogLevel   string
	flagLogFormat  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rendezvous",
	Short: "WebRTC signaling service and headless peer",
	Long: `rendezvous tracks which clients are in which rooms and relays WebRTC
offers, answers and ICE candidates between them over WebSocket.

It also ships a headless peer for testing rooms from the command line and a
stats command that prints live room occupancy.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfigFile, "config", "c", "", "Path to a TOML config file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format (text, json)")
}

// loadConfig reads .env files, merges opts with the persistent flags and
// builds the process logger.
func loadConfig(opts config.Options) (config.Config, *slog.Logger, error) {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "env load warning:", err)
	}

	opts.ConfigFile = flagConfigFile
	opts.LogLevel = flagLogLevel
	opts.LogFormat = flagLogFormat

	cfg, err := config.Load(opts)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := config.NewLogger(cfg, os.Stderr)
	if err != nil {
		return config.Config{}, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}
