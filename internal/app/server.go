package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	intrnl "chatrelay/internal"
	"chatrelay/internal/storage"
)

// Handle represents a running broadcast server instance.
type Handle struct {
	addr    string
	server  *http.Server
	store   *storage.Store
	archive *storage.RedisArchive // nil unless the redis backend is active
	log     *slog.Logger
	done    chan struct{}
	err     error
}

// Addr returns the actual listen address (after the OS allocated a port).
func (h *Handle) Addr() string {
	return h.addr
}

// Stop triggers a graceful shutdown with the provided context deadline.
func (h *Handle) Stop(ctx context.Context) error {
	if h == nil || h.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	return h.server.Shutdown(ctx)
}

// Wait blocks until the server exits.
func (h *Handle) Wait() error {
	if h == nil {
		return nil
	}
	<-h.done
	return h.err
}

// RunServer opens the stores, wires hub, router and HTTP surface, and starts
// serving in the background. Call Stop/Wait to manage its lifecycle.
func RunServer(ctx context.Context, cfg Config, log *slog.Logger) (*Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.WSPath = NormalizeWSPath(cfg.WSPath)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	store, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	var (
		archive      intrnl.Archive
		redisArchive *storage.RedisArchive
	)
	switch cfg.HistoryBackend {
	case HistorySQLite:
		archive = intrnl.NewArchive(store)
	case HistoryRedis:
		redisArchive, err = storage.NewRedisArchive(ctx, cfg.RedisAddr, cfg.HistoryLimit)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("open redis archive: %w", err)
		}
		archive = intrnl.NewArchive(redisArchive)
	case HistoryNone:
		// in-memory history only
	}

	metrics := intrnl.NewMetrics()
	hub := intrnl.NewHub(log, metrics, cfg.TypingTTL())
	history := intrnl.NewHistory(log, archive, cfg.HistoryLimit)
	router := intrnl.NewRouter(hub, history, metrics, log)
	server := intrnl.NewServer(log, hub, router, store, metrics, intrnl.ServerOptions{
		TokenTTL:       cfg.TokenTTL(),
		AllowAnonymous: cfg.AllowAnonymous,
	})

	mux := http.NewServeMux()
	registerHandlers(mux, cfg.WSPath, server)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = store.Close()
		if redisArchive != nil {
			_ = redisArchive.Close()
		}
		return nil, fmt.Errorf("listen: %w", err)
	}

	handle := &Handle{
		addr:    listener.Addr().String(),
		server:  httpServer,
		store:   store,
		archive: redisArchive,
		log:     log,
		done:    make(chan struct{}),
	}

	go func() {
		if ctx == nil {
			return
		}
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("server shutdown error", "err", err)
		}
	}()

	go handle.serve(listener)

	return handle, nil
}

func (h *Handle) serve(listener net.Listener) {
	defer close(h.done)
	err := h.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	if closeErr := h.store.Close(); closeErr != nil {
		h.log.Warn("store close error", "err", closeErr)
	}
	if h.archive != nil {
		if closeErr := h.archive.Close(); closeErr != nil {
			h.log.Warn("redis close error", "err", closeErr)
		}
	}
	h.err = err
}

func registerHandlers(mux *http.ServeMux, wsPath string, server *intrnl.Server) {
	mux.HandleFunc(wsPath, server.ServeWS)
	mux.HandleFunc("/signup", server.HandleSignup)
	mux.HandleFunc("/login", server.HandleLogin)
	mux.HandleFunc("/logout", server.HandleLogout)
	mux.HandleFunc("/exists", server.HandleRoomExists)
	mux.HandleFunc("/rooms", server.HandleRooms)
	mux.Handle("/metrics", server.MetricsHandler())
}
