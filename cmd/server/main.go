package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chatrelay/internal/app"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatrelay: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return exitConfig, err
	}

	addr := flag.String("addr", cfg.Addr, "server listen address")
	wsPath := flag.String("path", cfg.WSPath, "websocket path")
	dbPath := flag.String("db", cfg.DBPath, "sqlite database path")
	history := flag.String("history", cfg.HistoryBackend, "history backend: sqlite, redis or none")
	anonymous := flag.Bool("anonymous", cfg.AllowAnonymous, "admit connections without a session token")
	flag.Parse()
	cfg.Addr = *addr
	cfg.WSPath = *wsPath
	cfg.DBPath = *dbPath
	cfg.HistoryBackend = *history
	cfg.AllowAnonymous = *anonymous

	log := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, err := app.RunServer(ctx, cfg, log)
	if err != nil {
		return exitConfig, err
	}
	log.Info("chatrelay listening", "addr", handle.Addr(), "ws_path", cfg.WSPath, "history", cfg.HistoryBackend)

	if err := handle.Wait(); err != nil {
		return exitRuntime, err
	}
	return exitOK, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
