package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/physioconnect/consult/backend/internal/config"
	"github.com/physioconnect/consult/backend/internal/handler"
	"github.com/physioconnect/consult/backend/internal/logger"
	contactService "github.com/physioconnect/consult/backend/internal/service/contact"
	"github.com/physioconnect/consult/backend/internal/service/consultation"
	"github.com/physioconnect/consult/backend/internal/service/relay"
	"github.com/physioconnect/consult/backend/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		logrus.Warnf("failed to load .env file: %v", err)
		logrus.Info("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load configuration: %v", err)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	store, err := openStore(ctx, cfg.Storage, log)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Errorf("failed to close storage: %v", err)
		}
	}()

	consultSvc := consultation.NewService(store)
	contactSvc := contactService.NewService(store, log)
	hub := relay.New(consultSvc, log, cfg.Relay.SendBuffer)

	router := handler.NewRouter(cfg, log, consultSvc, contactSvc, hub)

	if err := startServer(ctx, cfg.Server, router, hub, log); err != nil {
		log.Errorf("server error: %v", err)
	}

	// Socket handlers outlive srv.Shutdown; let them finish before the
	// deferred store.Close runs.
	hub.Shutdown()
	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hub.Drain(drainCtx); err != nil {
		log.Warnf("websocket handlers still running at shutdown: %v", err)
	}
}

// openStore 根据配置选择存储后端
func openStore(ctx context.Context, cfg config.StorageConfig, log *logrus.Logger) (storage.Store, error) {
	switch cfg.Driver {
	case config.StorageBadger:
		log.Infof("using badger storage at %s", cfg.BadgerPath)
		return storage.OpenBadger(cfg.BadgerPath, log)
	case config.StoragePostgres:
		log.Info("using postgres storage")
		return storage.OpenPostgres(ctx, cfg.DatabaseURL, log)
	default:
		log.Info("using in-memory storage, data is lost on restart")
		return storage.NewMemoryStore(), nil
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, hub *relay.Relay, log logrus.FieldLogger) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	// Hijacked sockets are not tracked by Shutdown; the relay closes them.
	srv.RegisterOnShutdown(hub.Shutdown)

	log.Infof("consultation backend listening on %s", addr)
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
