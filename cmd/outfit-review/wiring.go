package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/ILLUVRSE/outfit-review/internal/assets"
	"github.com/ILLUVRSE/outfit-review/internal/config"
	"github.com/ILLUVRSE/outfit-review/internal/ledger"
)

// openStore picks the ledger backend: in-memory, Postgres when a database
// URL is configured, otherwise CSV files in the data directory.
func openStore(ctx context.Context, cfg config.Config) (ledger.Store, error) {
	if cfg.Ephemeral {
		log.Warn().Msg("ephemeral ledger: decisions are lost on exit")
		return ledger.NewMemoryStore(), nil
	}
	if cfg.DatabaseURL == "" {
		return ledger.OpenFileStore(cfg.DataDir)
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	st := ledger.NewPGStore(db)
	if err := st.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Msg("postgres ledger ready")
	return &dbStore{PGStore: st, db: db}, nil
}

// dbStore closes the pool along with the store.
type dbStore struct {
	*ledger.PGStore
	db *sql.DB
}

func (s *dbStore) Close() error {
	return s.db.Close()
}

func openPool(ctx context.Context, cfg config.Config) (assets.Pool, error) {
	if cfg.AssetBucket != "" {
		return assets.NewS3Pool(ctx, cfg.AssetBucket, cfg.AssetPrefix, "")
	}
	return assets.NewDirPool(cfg.AssetDir, cfg.PublicBaseURL), nil
}
