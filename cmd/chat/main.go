// Package main runs the chat client: it joins one room and shows its
// messages in the terminal, either line by line or full screen.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	chatcmd "github.com/omochice/room-chat/internal/cmd/chat"
	"github.com/omochice/room-chat/internal/logging"
	"go.uber.org/zap"
)

func main() {
	logger, err := logging.New("info", os.Stderr, true)
	if err != nil {
		panic(err)
	}

	cfg, err := chatcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		logger.Fatal("parse flags", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := chatcmd.Run(ctx, cfg); err != nil {
		logger.Fatal("chat client failed", zap.Error(err))
	}
}
