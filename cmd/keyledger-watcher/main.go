// Command keyledger-watcher subscribes to Key Ledger contract notifications,
// mirrors key histories in memory and serves them over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/core/state"
	"github.com/nspcc-dev/neo-go/pkg/neorpc"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/keyledger/keyledger-contract/internal/config"
	"github.com/keyledger/keyledger-contract/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	contractHash, err := cfg.Contract.Hash()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	wsClient, err := rpcclient.NewWS(ctx, cfg.RPC.WSEndpoint, rpcclient.WSOptions{
		Options: rpcclient.Options{DialTimeout: cfg.RPC.DialTimeout},
	})
	if err != nil {
		return fmt.Errorf("create WebSocket RPC client: %w", err)
	}
	defer wsClient.Close()

	if err := wsClient.Init(); err != nil {
		return fmt.Errorf("init WebSocket RPC client: %w", err)
	}

	notifications := make(chan *state.ContainedNotificationEvent, 128)

	subID, err := wsClient.ReceiveExecutionNotifications(
		&neorpc.NotificationFilter{Contract: &contractHash}, notifications)
	if err != nil {
		return fmt.Errorf("subscribe to contract notifications: %w", err)
	}
	defer wsClient.Unsubscribe(subID) //nolint:errcheck

	logger.Info("subscribed to contract notifications",
		zap.Stringer("contract", contractHash), zap.String("subscription", subID))

	store := watcher.NewStore()
	listener := watcher.NewListener(logger, store, gocache.New(cfg.Watcher.DedupTTL, time.Minute))

	listenerDone := make(chan struct{})
	go func() {
		defer close(listenerDone)
		listener.Run(ctx, notifications)
	}()

	handler, err := watcher.NewHandler(store, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Watcher.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		logger.Info("serving key history API", zap.String("address", srv.Addr))
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-srvErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", zap.Error(err))
	}

	<-listenerDone
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = lvl
	}
	return cfg.Build()
}
