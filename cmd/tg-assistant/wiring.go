package main

import (
	"context"
	"fmt"

	"github.com/PabloGalante/tg-assistant/internal/adapters/openai"
	firestorestore "github.com/PabloGalante/tg-assistant/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/tg-assistant/internal/adapters/storage/memory"
	redisstore "github.com/PabloGalante/tg-assistant/internal/adapters/storage/redis"
	sqlitestore "github.com/PabloGalante/tg-assistant/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/tg-assistant/internal/app/assistant"
	"github.com/PabloGalante/tg-assistant/internal/config"
	"github.com/PabloGalante/tg-assistant/internal/domain"
	"github.com/PabloGalante/tg-assistant/internal/observability"
)

func newGateway(cfg *config.Config) (domain.AssistantGateway, error) {
	log := observability.Logger()
	if cfg.Gateway.UseMock {
		log.Warn("using mock assistant gateway")
		return openai.NewMockGateway(), nil
	}

	gw, err := openai.NewFromOptions(openai.Options{
		APIKey:         cfg.Gateway.APIKey,
		BaseURL:        cfg.Gateway.BaseURL,
		RequestTimeout: cfg.Gateway.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing assistants gateway: %w", err)
	}
	log.Info("using assistants gateway", "assistant_id", cfg.Gateway.AssistantID)
	return gw, nil
}

func newAssistantClient(cfg *config.Config) (*assistant.Client, error) {
	gw, err := newGateway(cfg)
	if err != nil {
		return nil, err
	}
	return assistant.NewClient(gw, assistant.Options{
		AssistantID: domain.AssistantID(cfg.Gateway.AssistantID),
		MaxInFlight: cfg.Gateway.MaxInFlight,
		RPS:         cfg.Gateway.RPS,
	}), nil
}

type sessionStore interface {
	domain.SessionStore
	domain.SessionLister
}

// openStore returns the configured session store and a function releasing it.
func openStore(ctx context.Context, cfg *config.Config) (sessionStore, func(), error) {
	log := observability.Logger()
	noop := func() {}

	switch cfg.Storage.Backend {
	case config.StorageFirestore:
		log.Info("using firestore storage", "project", cfg.Storage.FirestoreProject)
		s, err := firestorestore.NewStore(ctx, cfg.Storage.FirestoreProject)
		if err != nil {
			return nil, noop, fmt.Errorf("initializing firestore store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil

	case config.StorageRedis:
		log.Info("using redis storage", "addr", cfg.Storage.RedisAddr, "prefix", cfg.Storage.RedisPrefix)
		s, err := redisstore.NewStore(ctx, redisstore.Options{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
			Prefix:   cfg.Storage.RedisPrefix,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("initializing redis store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil

	case config.StorageSQLite:
		log.Info("using sqlite storage", "dsn", cfg.Storage.SQLiteDSN)
		s, err := sqlitestore.NewStore(cfg.Storage.SQLiteDSN)
		if err != nil {
			return nil, noop, fmt.Errorf("initializing sqlite store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil

	default:
		log.Info("using in-memory storage")
		return memstore.NewSessionStore(), noop, nil
	}
}
