// Package main runs the development chat relay: a single-port server that
// accepts WebSocket and length-prefixed TCP members and broadcasts each
// message to the sender's room.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	relaycmd "github.com/omochice/room-chat/internal/cmd/relay"
	"github.com/omochice/room-chat/internal/logging"
	"go.uber.org/zap"
)

func main() {
	logger, err := logging.New("info", os.Stderr, true)
	if err != nil {
		panic(err)
	}

	cfg, err := relaycmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		logger.Fatal("parse flags", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := relaycmd.Run(ctx, cfg); err != nil {
		logger.Fatal("failed to serve", zap.Error(err))
	}
}
