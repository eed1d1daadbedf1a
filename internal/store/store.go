package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"alphaflow-backend/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const queryTimeout = 5 * time.Second

var ErrNotFound = errors.New("not found")

// Store is the Postgres persistence layer for users, chat history and
// executed trades.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

func New(cfg config.DatabaseConfig, log *zap.Logger) (*Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("database dsn is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	store := &Store{db: db, log: log}
	if err := store.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			wallet_address TEXT NOT NULL UNIQUE,
			photon_identity_id TEXT,
			email TEXT,
			username TEXT,
			display_name TEXT,
			wallet_type TEXT NOT NULL DEFAULT 'photon',
			is_signal_provider BOOLEAN NOT NULL DEFAULT FALSE,
			photon_points BIGINT NOT NULL DEFAULT 0,
			tier TEXT NOT NULL DEFAULT 'bronze',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			ai_model TEXT,
			tokens_used INTEGER,
			response_time_ms INTEGER,
			trade_signal JSONB,
			has_trade_signal BOOLEAN NOT NULL DEFAULT FALSE,
			market_data_snapshot JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS chat_messages_user_created_idx
			ON chat_messages (user_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			trade_type TEXT NOT NULL,
			side TEXT NOT NULL,
			asset TEXT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			total_value DOUBLE PRECISION NOT NULL,
			order_type TEXT NOT NULL,
			status TEXT NOT NULL,
			decibel_tx_hash TEXT,
			ai_reasoning TEXT,
			ai_confidence_score DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS trades_user_created_idx
			ON trades (user_id, created_at DESC)`,
	}
	for _, stmt := range statements {
		if err := s.exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}
