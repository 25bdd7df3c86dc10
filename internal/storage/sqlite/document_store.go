// Package sqlite хранит документы состояния в одном файле SQLite: встроенный вариант
// postgres-backend для одиночного экземпляра без внешней базы.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/ownership"
)

const schema = `
CREATE TABLE IF NOT EXISTS store_documents (
	name TEXT PRIMARY KEY,
	body TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	revision INTEGER NOT NULL DEFAULT 1
);
`

var errNotInitialized = errors.New("sqlite database is not initialized")

// DocumentStore реализует domain.DocumentStore поверх таблицы store_documents.
// Запись условная: она проходит, только если revision в базе совпадает с прочитанной
// этим экземпляром, иначе возвращается ErrStorageInUse.
type DocumentStore struct {
	db     *sql.DB
	path   string
	owners ownership.Registry
}

// Open открывает (или создаёт) файл базы и схему.
func Open(ctx context.Context, path string) (*DocumentStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Один писатель: SQLite сериализует запись на уровне файла.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &DocumentStore{db: db, path: path}, nil
}

// Path возвращает путь к файлу базы.
func (s *DocumentStore) Path() string { return s.path }

// Ping проверяет доступность базы.
func (s *DocumentStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	return s.db.PingContext(ctx)
}

// Claim закрепляет документ за одним менеджером этого экземпляра.
func (s *DocumentStore) Claim(name string) error {
	if s == nil {
		return fmt.Errorf("%w: %w", domain.ErrStorageIO, errNotInitialized)
	}
	return s.owners.Claim(name)
}

// Release освобождает документ.
func (s *DocumentStore) Release(name string) {
	if s == nil {
		return
	}
	s.owners.Release(name)
}

// Load возвращает тело документа или (nil, nil), если строки нет, и запоминает его revision.
func (s *DocumentStore) Load(ctx context.Context, name string) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStorageIO, errNotInitialized)
	}

	var (
		body     string
		revision int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT body, revision FROM store_documents WHERE name = ?`, name).Scan(&body, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		s.owners.Observe(name, 0)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load document %s: %w", domain.ErrStorageIO, name, err)
	}
	s.owners.Observe(name, revision)
	return []byte(body), nil
}

// Save записывает документ, если его revision не изменилась с последнего Load или Save.
// Документ, которого не было при чтении, только вставляется.
func (s *DocumentStore) Save(ctx context.Context, name string, data []byte) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("%w: %w", domain.ErrStorageIO, errNotInitialized)
	}

	expected := s.owners.Expected(name)
	var (
		res sql.Result
		err error
	)
	if expected == 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO store_documents (name, body, updated_at)
			VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
			ON CONFLICT (name) DO NOTHING
		`, name, string(data))
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE store_documents
			SET body = ?,
			    updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now'),
			    revision = revision + 1
			WHERE name = ? AND revision = ?
		`, string(data), name, expected)
	}
	if err != nil {
		return fmt.Errorf("%w: save document %s: %w", domain.ErrStorageIO, name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: save document %s: %w", domain.ErrStorageIO, name, err)
	}
	if affected == 0 {
		return ownership.Conflict(name, expected)
	}
	s.owners.Observe(name, expected+1)
	return nil
}

// Revision возвращает номер версии документа; 0 означает, что документа нет.
func (s *DocumentStore) Revision(ctx context.Context, name string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errNotInitialized
	}

	var revision int64
	err := s.db.QueryRowContext(ctx, `SELECT revision FROM store_documents WHERE name = ?`, name).Scan(&revision)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query document revision %s: %w", name, err)
	}
	return revision, nil
}

// Close закрывает базу.
func (s *DocumentStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var (
	_ domain.DocumentStore   = (*DocumentStore)(nil)
	_ domain.DocumentClaimer = (*DocumentStore)(nil)
)
