// Package db opens the entity store behind database/sql so the same sqlx
// handle serves Postgres (pgx) and SQLite.
package db

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPgx    = "pgx"
	DriverSQLite = "sqlite3"
)

// Open connects to url with the named driver and verifies the connection.
func Open(ctx context.Context, driver, url string, maxOpenConns int) (*sqlx.DB, error) {
	var conn *sqlx.DB
	switch driver {
	case DriverPgx, "postgres":
		cfg, err := pgx.ParseConfig(url)
		if err != nil {
			return nil, fmt.Errorf("parse database url: %w", err)
		}
		conn = sqlx.NewDb(stdlib.OpenDB(*cfg), DriverPgx)
	case DriverSQLite:
		var err error
		conn, err = sqlx.Open(DriverSQLite, url)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if maxOpenConns > 0 {
		conn.SetMaxOpenConns(maxOpenConns)
		conn.SetMaxIdleConns(maxOpenConns)
	}
	conn.SetConnMaxIdleTime(5 * time.Minute)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return conn, nil
}

// Placeholder returns the bind-variable style of driver.
func Placeholder(driver string) sq.PlaceholderFormat {
	switch driver {
	case DriverPgx, "postgres":
		return sq.Dollar
	default:
		return sq.Question
	}
}
