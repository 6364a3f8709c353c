package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"webrtc-rendezvous/pkg/webrtc/ice"
)

const (
	envAddr              = "ADDR"
	envStaticDir         = "STATIC_DIR"
	envPublicWSURL       = "PUBLIC_WS_URL"
	envRedisAddr         = "REDIS_ADDR"
	envRedisPrefix       = "REDIS_PREFIX"
	envLogLevel          = "LOG_LEVEL"
	envLogFormat         = "LOG_FORMAT"
	envICEMode           = "ICE_MODE"
	envSTUNURLs          = "STUN_URLS"
	envTURNURLs          = "TURN_URLS"
	envTURNUsername      = "TURN_USERNAME"
	envTURNPassword      = "TURN_PASSWORD"
	envMaxMessageBytes   = "MAX_MESSAGE_BYTES"
	envMessagesPerSecond = "MAX_MESSAGES_PER_SECOND"
	envSendBuffer        = "SEND_BUFFER"
	envShutdownTimeout   = "SHUTDOWN_TIMEOUT"
)

const (
	defaultAddr              = ":8080"
	defaultRedisPrefix       = "webrtc"
	defaultMaxMessageBytes   = 64 * 1024
	defaultMessagesPerSecond = 50
	defaultSendBuffer        = 32
	defaultShutdownTimeout   = 10 * time.Second
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// Config is the resolved service configuration.
type Config struct {
	Addr string
	// StaticDir serves a single-page app at / when set.
	StaticDir   string
	PublicWSURL string
	// RedisAddr switches room issuance to Redis; empty keeps it in memory.
	RedisAddr   string
	RedisPrefix string

	LogLevel  slog.Level
	LogFormat LogFormat

	ICE ice.Settings

	MaxMessageBytes   int64
	MessagesPerSecond float64
	SendBuffer        int
	ShutdownTimeout   time.Duration
}

// Options carries command-line overrides. Empty fields fall through to the
// environment, then the config file, then defaults.
type Options struct {
	ConfigFile  string
	Addr        string
	StaticDir   string
	PublicWSURL string
	RedisAddr   string
	LogLevel    string
	LogFormat   string
	ICEMode     string
}

type fileConfig struct {
	Addr        string `toml:"addr"`
	StaticDir   string `toml:"static_dir"`
	PublicWSURL string `toml:"public_ws_url"`
	LogLevel    string `toml:"log_level"`
	LogFormat   string `toml:"log_format"`

	Redis struct {
		Addr   string `toml:"addr"`
		Prefix string `toml:"prefix"`
	} `toml:"redis"`

	ICE struct {
		Mode         string   `toml:"mode"`
		STUNURLs     []string `toml:"stun_urls"`
		TURNURLs     []string `toml:"turn_urls"`
		TURNUsername string   `toml:"turn_username"`
		TURNPassword string   `toml:"turn_password"`
	} `toml:"ice"`

	Limits struct {
		MaxMessageBytes   int64   `toml:"max_message_bytes"`
		MessagesPerSecond float64 `toml:"messages_per_second"`
		SendBuffer        int     `toml:"send_buffer"`
	} `toml:"limits"`

	ShutdownTimeout string `toml:"shutdown_timeout"`
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env", "../.env"}
	}
	var errs []error
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("load %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

func Load(opts Options) (Config, error) {
	return load(os.LookupEnv, opts)
}

func load(lookup func(string) (string, bool), opts Options) (Config, error) {
	var file fileConfig
	if opts.ConfigFile != "" {
		if _, err := toml.DecodeFile(opts.ConfigFile, &file); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", opts.ConfigFile, err)
		}
	}

	pick := func(flag, envKey, fromFile, fallback string) string {
		if v := strings.TrimSpace(flag); v != "" {
			return v
		}
		if v, ok := lookup(envKey); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		if v := strings.TrimSpace(fromFile); v != "" {
			return v
		}
		return fallback
	}
	pickList := func(envKey string, fromFile []string) []string {
		if v, ok := lookup(envKey); ok && strings.TrimSpace(v) != "" {
			return ice.SplitAndClean(v)
		}
		return ice.SplitAndClean(fromFile...)
	}

	cfg := Config{
		Addr:        pick(opts.Addr, envAddr, file.Addr, defaultAddr),
		StaticDir:   pick(opts.StaticDir, envStaticDir, file.StaticDir, ""),
		PublicWSURL: pick(opts.PublicWSURL, envPublicWSURL, file.PublicWSURL, ""),
		RedisAddr:   pick(opts.RedisAddr, envRedisAddr, file.Redis.Addr, ""),
		RedisPrefix: pick("", envRedisPrefix, file.Redis.Prefix, defaultRedisPrefix),
		ICE: ice.Settings{
			Mode:         strings.ToLower(pick(opts.ICEMode, envICEMode, file.ICE.Mode, ice.ModeSTUNTURN)),
			STUNURLs:     pickList(envSTUNURLs, file.ICE.STUNURLs),
			TURNURLs:     pickList(envTURNURLs, file.ICE.TURNURLs),
			TURNUsername: pick("", envTURNUsername, file.ICE.TURNUsername, ""),
			TURNPassword: pick("", envTURNPassword, file.ICE.TURNPassword, ""),
		},
	}

	var err error
	if cfg.LogLevel, err = parseLogLevel(pick(opts.LogLevel, envLogLevel, file.LogLevel, "info")); err != nil {
		return Config{}, err
	}
	if cfg.LogFormat, err = parseLogFormat(pick(opts.LogFormat, envLogFormat, file.LogFormat, string(LogFormatText))); err != nil {
		return Config{}, err
	}
	switch cfg.ICE.Mode {
	case ice.ModeSTUNTURN, ice.ModeSTUNOnly, ice.ModeTURNOnly:
	default:
		return Config{}, fmt.Errorf("invalid %s %q (expected %s, %s or %s)", envICEMode, cfg.ICE.Mode, ice.ModeSTUNTURN, ice.ModeTURNOnly, ice.ModeSTUNOnly)
	}

	maxBytes, err := intOrDefault(lookup, envMaxMessageBytes, file.Limits.MaxMessageBytes, defaultMaxMessageBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxMessageBytes = maxBytes
	sendBuffer, err := intOrDefault(lookup, envSendBuffer, int64(file.Limits.SendBuffer), defaultSendBuffer)
	if err != nil {
		return Config{}, err
	}
	cfg.SendBuffer = int(sendBuffer)

	cfg.MessagesPerSecond = defaultMessagesPerSecond
	if file.Limits.MessagesPerSecond > 0 {
		cfg.MessagesPerSecond = file.Limits.MessagesPerSecond
	}
	if v, ok := lookup(envMessagesPerSecond); ok && strings.TrimSpace(v) != "" {
		rate, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || rate < 0 {
			return Config{}, fmt.Errorf("invalid %s %q", envMessagesPerSecond, v)
		}
		cfg.MessagesPerSecond = rate
	}

	timeout := pick("", envShutdownTimeout, file.ShutdownTimeout, defaultShutdownTimeout.String())
	if cfg.ShutdownTimeout, err = time.ParseDuration(timeout); err != nil {
		return Config{}, fmt.Errorf("invalid %s %q: %w", envShutdownTimeout, timeout, err)
	}

	return cfg, nil
}

// NewLogger builds the process logger described by cfg.
func NewLogger(cfg Config, w io.Writer) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	switch cfg.LogFormat {
	case LogFormatText:
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case LogFormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
}

func intOrDefault(lookup func(string) (string, bool), key string, fromFile, fallback int64) (int64, error) {
	if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid %s %q (expected a positive integer)", key, v)
		}
		return n, nil
	}
	if fromFile > 0 {
		return fromFile, nil
	}
	return fallback, nil
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(raw) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	}
	return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(raw) {
	case "debug", "dev", "development":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
}
