package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/storefront-checkout/internal/backend"
	"github.com/Veraticus/storefront-checkout/internal/checkout"
	"github.com/Veraticus/storefront-checkout/internal/config"
	"github.com/Veraticus/storefront-checkout/internal/events"
	"github.com/Veraticus/storefront-checkout/internal/reconciler"
	"github.com/Veraticus/storefront-checkout/internal/service"
	"github.com/Veraticus/storefront-checkout/internal/storage"
	"github.com/Veraticus/storefront-checkout/internal/tokenizer"
)

// app is everything a command needs to run a checkout.
type app struct {
	cfg        *config.Config
	store      service.Storage
	backend    *backend.Client
	reconciler *reconciler.Reconciler
	flow       *checkout.Flow
}

// initStorage opens the configured durable store.
func initStorage(ctx context.Context, cfg config.StoreConfig) (service.Storage, error) {
	switch cfg.Driver {
	case config.DriverRedis:
		return storage.NewRedisStore(ctx, cfg.RedisAddr, cfg.Namespace)
	case config.DriverMemory:
		slog.Warn("Using the in-memory store, a pending payment will not survive a restart")
		return storage.NewMemoryStore(), nil
	default:
		store, err := storage.NewSQLiteStorage(cfg.Path)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return store, nil
	}
}

// newApp wires the clients, the reconciler and the checkout flow.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := initStorage(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	logger := slog.Default()
	backendClient := backend.NewClient(cfg.Backend.URL, cfg.Backend.Timeout, backend.WithLogger(logger))

	rec, err := reconciler.New(reconciler.Config{
		Store:   store,
		Fetcher: backendClient,
		Feed:    events.NewClient(cfg.Backend.URL, events.WithLogger(logger)),
		Logger:  logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	flow, err := checkout.New(checkout.Config{
		Backend:    backendClient,
		Tokenizer:  tokenizer.NewClient(cfg.Tokenizer.URL, cfg.Tokenizer.PublicKey, tokenizer.WithLogger(logger)),
		Reconciler: rec,
		History:    store,
		Logger:     logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &app{
		cfg:        cfg,
		store:      store,
		backend:    backendClient,
		reconciler: rec,
		flow:       flow,
	}, nil
}

// Close detaches from any payment in flight and closes the store.
func (a *app) Close() {
	a.flow.Detach()
	if err := a.store.Close(); err != nil {
		slog.Warn("Failed to close store", "error", err)
	}
}
