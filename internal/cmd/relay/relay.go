// Package relay parses relay flags and runs the development chat server.
package relay

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/omochice/room-chat/internal/config"
	"github.com/omochice/room-chat/internal/logging"
	relayserver "github.com/omochice/room-chat/internal/relay"
	"github.com/omochice/room-chat/pkg/protocol"
	"go.uber.org/zap"
)

// Config holds relay command configuration.
type Config struct {
	Addr     string `env:"ROOMCHAT_RELAY_ADDR" envDefault:":3001"`
	Codec    string `env:"ROOMCHAT_CODEC"      envDefault:"json"`
	LogLevel string `env:"ROOMCHAT_LOG_LEVEL"  envDefault:"info"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address for websocket and tcp members")
	fs.StringVar(&cfg.Codec, "codec", cfg.Codec, "frame codec: json or proto")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	if err := config.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run serves the relay until ctx is done.
func Run(ctx context.Context, cfg Config) error {
	return run(ctx, cfg, os.Stderr, nil)
}

// run serves until ctx is done. started, when set, receives the listening
// address.
func run(ctx context.Context, cfg Config, logOut io.Writer, started chan<- string) error {
	codec, err := protocol.CodecByName(cfg.Codec)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, logOut, true)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	srv := relayserver.NewServer(cfg.Addr, relayserver.NewHub(codec, logger), logger)
	if err := srv.Start(); err != nil {
		return err
	}
	logger.Info("serving chat relay", zap.String("addr", srv.Addr()), zap.String("codec", codec.Name()))
	if started != nil {
		started <- srv.Addr()
	}

	<-ctx.Done()
	srv.Stop()
	return nil
}
