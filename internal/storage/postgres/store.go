// Package postgres хранит документы состояния ProductManager и CartManager в PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	defaultConnTimeout     = 5 * time.Second
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
)

var errNotInitialized = errors.New("postgres database is not initialized")

// Database оборачивает пул подключений к PostgreSQL.
type Database struct {
	db   *sql.DB
	docs *DocumentStore
}

// Open открывает пул через драйвер pgx и проверяет доступность базы.
func Open(ctx context.Context, dsn string) (*Database, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	d := &Database{db: db}
	d.docs = &DocumentStore{db: d}
	if err := d.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return d, nil
}

// DB возвращает *sql.DB для низкоуровневого доступа.
func (d *Database) DB() *sql.DB {
	if d == nil {
		return nil
	}
	return d.db
}

// Ping проверяет доступность базы с ограничением по времени.
func (d *Database) Ping(ctx context.Context) error {
	if d == nil || d.db == nil {
		return errNotInitialized
	}
	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return d.db.PingContext(pingCtx)
}

// Documents возвращает общий для пула DocumentStore поверх таблицы store_documents.
func (d *Database) Documents() *DocumentStore {
	if d == nil {
		return nil
	}
	return d.docs
}

// Close закрывает пул подключений.
func (d *Database) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}
