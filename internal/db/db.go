package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Options tune the connection pool.
type Options struct {
	MaxOpenConns int
	Log          *slog.Logger
}

// Connect opens the database with the given driver and runs migrations.
// Supported drivers are "postgres" (lib/pq), "pgx" and "sqlite3".
func Connect(ctx context.Context, driver, dsn string, opts Options) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if driver == "sqlite3" {
		// In-memory databases exist per connection; writes serialize anyway.
		db.SetMaxOpenConns(1)
	} else if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxOpenConns / 2)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := runMigrations(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if opts.Log != nil {
		opts.Log.Info("database migrations applied", "driver", driver)
	}
	return db, nil
}

func runMigrations(ctx context.Context, db *sqlx.DB, driver string) error {
	for _, m := range migrations(driver) {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func migrations(driver string) []string {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id SERIAL PRIMARY KEY,
            username TEXT NOT NULL UNIQUE,
            first_name TEXT NOT NULL DEFAULT '',
            last_name TEXT NOT NULL DEFAULT '',
            is_active BOOLEAN NOT NULL DEFAULT TRUE
        );`,
		`CREATE TABLE IF NOT EXISTS profiles (
            user_id INT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
            profile_image TEXT NULL,
            role TEXT NOT NULL DEFAULT 'user'
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id SERIAL PRIMARY KEY,
            sender_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            receiver_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            content TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL,
            is_read BOOLEAN NOT NULL DEFAULT FALSE
        );`,
		`CREATE INDEX IF NOT EXISTS messages_receiver_read_idx ON messages (receiver_id, is_read);`,
		`CREATE INDEX IF NOT EXISTS messages_pair_idx ON messages (sender_id, receiver_id);`,
	}
	if driver != "sqlite3" {
		return stmts
	}

	out := make([]string, 0, len(stmts))
	for _, s := range stmts {
		s = strings.ReplaceAll(s, "SERIAL PRIMARY KEY", "INTEGER PRIMARY KEY AUTOINCREMENT")
		s = strings.ReplaceAll(s, "TIMESTAMPTZ", "TIMESTAMP")
		out = append(out, s)
	}
	return out
}
