package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	_ "github.com/lib/pq"
	"github.com/mcdev12/rollcall/go/internal/config"
	"github.com/mcdev12/rollcall/go/internal/remote"
	"github.com/mcdev12/rollcall/go/internal/remote/natskv"
	"github.com/mcdev12/rollcall/go/internal/remote/pgdoc"
	"github.com/rs/zerolog/log"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// setupRemote opens the remote store selected by REMOTE_DRIVER
func setupRemote(ctx context.Context, cfg *config.Config) (remote.Store, io.Closer, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		log.Warn().Msg("using in-memory remote store, data is not shared")
		return remote.NewMemoryStore(), nopCloser{}, nil

	case config.DriverNATS:
		kvCfg := natskv.DefaultConfig()
		kvCfg.URL = cfg.Remote.DatabaseURL
		kvCfg.Token = config.Optional(cfg.Remote.APIKey)
		kvCfg.Domain = config.Optional(cfg.Remote.AuthDomain)
		if bucket := config.Optional(cfg.Remote.StorageBucket); bucket != "" {
			kvCfg.Bucket = bucket
		}
		if appID := config.Optional(cfg.Remote.AppID); appID != "" {
			kvCfg.ClientName = "rollcall-" + appID
		}

		store, err := natskv.New(ctx, kvCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open NATS document store: %w", err)
		}
		log.Info().
			Str("url", kvCfg.URL).
			Str("bucket", kvCfg.Bucket).
			Str("project", cfg.Remote.ProjectID).
			Msg("connected to NATS document store")
		return store, store, nil

	case config.DriverPostgres:
		dsn := cfg.Database.ResolveDSN(cfg.Remote.DatabaseURL)
		db, err := setupDatabase(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}

		pgCfg := pgdoc.DefaultConfig()
		pgCfg.DatabaseURL = dsn
		store := pgdoc.New(db, pgCfg)
		if err := store.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, db, nil

	default:
		return nil, nil, fmt.Errorf("unknown remote driver %q", cfg.Driver)
	}
}

func setupDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	database, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("connected to database")
	return database, nil
}
