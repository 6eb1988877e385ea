// Package chat parses chat client flags and wires the room session to a
// transport and a terminal renderer.
package chat

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/omochice/room-chat/internal/config"
	"github.com/omochice/room-chat/internal/logging"
	"github.com/omochice/room-chat/internal/room"
	"github.com/omochice/room-chat/internal/session"
	"github.com/omochice/room-chat/internal/transport"
	"github.com/omochice/room-chat/internal/transport/gobwas"
	"github.com/omochice/room-chat/internal/transport/nhooyr"
	"github.com/omochice/room-chat/internal/transport/tcp"
	"github.com/omochice/room-chat/internal/transport/ws"
	"github.com/omochice/room-chat/internal/transport/xnet"
	"github.com/omochice/room-chat/internal/ui"
	"github.com/omochice/room-chat/pkg/protocol"
	"go.uber.org/zap"
)

// Config holds chat client configuration.
type Config struct {
	Endpoint  string `env:"ROOMCHAT_ENDPOINT"   envDefault:"ws://localhost:3001/"`
	Transport string `env:"ROOMCHAT_TRANSPORT"  envDefault:"gorilla"`
	Codec     string `env:"ROOMCHAT_CODEC"      envDefault:"json"`
	Room      string `env:"ROOMCHAT_ROOM"`
	Username  string `env:"ROOMCHAT_USERNAME"`
	UI        string `env:"ROOMCHAT_UI"         envDefault:"line"`
	LogLevel  string `env:"ROOMCHAT_LOG_LEVEL"  envDefault:"info"`
	LogFile   string `env:"ROOMCHAT_LOG_FILE"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "chat server endpoint")
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "transport: gorilla, gobwas, nhooyr, xnet or tcp")
	fs.StringVar(&cfg.Codec, "codec", cfg.Codec, "frame codec: json or proto")
	fs.StringVar(&cfg.Room, "room", cfg.Room, "room to join")
	fs.StringVar(&cfg.Username, "username", cfg.Username, "name to join as")
	fs.StringVar(&cfg.UI, "ui", cfg.UI, "interface: line or tui")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "write logs to this file")
	if err := config.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// NewDialer returns the transport named name. binary selects binary
// messages on WebSocket transports.
func NewDialer(name string, binary bool) (transport.Dialer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "gorilla":
		return ws.NewDialer(binary), nil
	case "gobwas":
		return gobwas.NewDialer(binary), nil
	case "nhooyr":
		return nhooyr.NewDialer(binary), nil
	case "xnet":
		return xnet.NewDialer(binary), nil
	case "tcp":
		return tcp.NewDialer(), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", name)
	}
}

// Run joins the configured room and runs the interface on the process
// terminal until the user quits or ctx is done.
func Run(ctx context.Context, cfg Config) error {
	return run(ctx, cfg, os.Stdin, os.Stdout, os.Stderr)
}

func run(ctx context.Context, cfg Config, in io.Reader, out, errOut io.Writer) error {
	req, err := room.NewJoinRequest(cfg.Room, cfg.Username)
	if err != nil {
		return fmt.Errorf("%s: %w", room.MissingFieldsMessage, err)
	}
	codec, err := protocol.CodecByName(cfg.Codec)
	if err != nil {
		return err
	}
	dialer, err := NewDialer(cfg.Transport, codec.Binary())
	if err != nil {
		return err
	}
	mode := strings.ToLower(strings.TrimSpace(cfg.UI))
	if mode != "line" && mode != "tui" {
		return fmt.Errorf("unknown interface %q", cfg.UI)
	}

	logger, closeLog, err := newLogger(cfg, mode, errOut)
	if err != nil {
		return err
	}
	defer closeLog()
	defer func() { _ = logger.Sync() }()

	connect := room.ManagerConnector(cfg.Endpoint,
		session.WithDialer(dialer),
		session.WithCodec(codec),
		session.WithLogger(logger),
	)
	s, err := room.New(ctx, connect, req, room.WithLogger(logger))
	if err != nil {
		return err
	}
	defer s.Close()

	logger.Info("starting chat client",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("transport", cfg.Transport),
		zap.String("codec", codec.Name()),
	)

	if mode == "tui" {
		t, err := ui.NewTUI(ctx, s)
		if err != nil {
			return err
		}
		defer t.Close()
		return t.Run()
	}
	return ui.NewLine(s, in, out).Run(ctx)
}

// newLogger writes to the log file when one is set. Otherwise the line
// interface logs to errOut and the full-screen interface discards logs.
func newLogger(cfg Config, mode string, errOut io.Writer) (*zap.Logger, func(), error) {
	w, color, closeLog := errOut, true, func() {}
	switch {
	case cfg.LogFile != "":
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w, color, closeLog = f, false, func() { _ = f.Close() }
	case mode == "tui":
		w, color = io.Discard, false
	}

	logger, err := logging.New(cfg.LogLevel, w, color)
	if err != nil {
		closeLog()
		return nil, nil, err
	}
	return logger, closeLog, nil
}
