package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/ownership"
)

// DocumentStore хранит каждый документ одной строкой store_documents.
// Запись выполняется одной командой при условии, что revision не изменилась
// с момента чтения: два экземпляра сервиса на одной базе не перезаписывают
// документ друг друга, проигравший получает ErrStorageInUse.
type DocumentStore struct {
	db     *Database
	owners ownership.Registry
}

// Claim закрепляет документ за одним менеджером в этом процессе.
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
	if s == nil || s.db == nil || s.db.db == nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStorageIO, errNotInitialized)
	}

	var (
		body     []byte
		revision int64
	)
	err := s.db.db.QueryRowContext(ctx, `
		SELECT body, revision
		FROM store_documents
		WHERE name = $1
	`, name).Scan(&body, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		s.owners.Observe(name, 0)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load document %s: %w", domain.ErrStorageIO, name, err)
	}
	s.owners.Observe(name, revision)
	return body, nil
}

// Save записывает документ, если его revision не изменилась с последнего Load или Save.
func (s *DocumentStore) Save(ctx context.Context, name string, data []byte) error {
	if s == nil || s.db == nil || s.db.db == nil {
		return fmt.Errorf("%w: %w", domain.ErrStorageIO, errNotInitialized)
	}
	if !json.Valid(data) {
		return fmt.Errorf("%w: document %s is not valid JSON", domain.ErrStorageIO, name)
	}

	expected := s.owners.Expected(name)
	var (
		res sql.Result
		err error
	)
	if expected == 0 {
		res, err = s.db.db.ExecContext(ctx, `
			INSERT INTO store_documents (name, body, updated_at)
			VALUES ($1, $2::jsonb, NOW())
			ON CONFLICT (name) DO NOTHING
		`, name, string(data))
	} else {
		res, err = s.db.db.ExecContext(ctx, `
			UPDATE store_documents
			SET body = $2::jsonb,
			    updated_at = NOW(),
			    revision = revision + 1
			WHERE name = $1 AND revision = $3
		`, name, string(data), expected)
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
	if s == nil || s.db == nil || s.db.db == nil {
		return 0, errNotInitialized
	}

	var revision int64
	err := s.db.db.QueryRowContext(ctx, `SELECT revision FROM store_documents WHERE name = $1`, name).Scan(&revision)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query document revision %s: %w", name, err)
	}
	return revision, nil
}

var (
	_ domain.DocumentStore   = (*DocumentStore)(nil)
	_ domain.DocumentClaimer = (*DocumentStore)(nil)
)
