// Package ownership ведёт учёт захваченных документов и прочитанных ревизий
// для SQL-backend хранилища.
package ownership

import (
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Registry закрепляет документы за владельцами внутри одного DocumentStore
// и помнит ревизию, которую владелец видел последней.
// Нулевое значение готово к использованию.
type Registry struct {
	mu        sync.Mutex
	claimed   map[string]struct{}
	revisions map[string]int64
}

// Claim закрепляет документ; повторный захват до Release возвращает ErrStorageInUse.
func (r *Registry) Claim(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.claimed == nil {
		r.claimed = make(map[string]struct{})
	}
	if _, taken := r.claimed[name]; taken {
		return fmt.Errorf("%w: document %s", domain.ErrStorageInUse, name)
	}
	r.claimed[name] = struct{}{}
	return nil
}

// Release освобождает документ и забывает его ревизию.
func (r *Registry) Release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.claimed, name)
	delete(r.revisions, name)
}

// Observe запоминает ревизию документа после чтения или записи; 0 означает, что документа нет.
func (r *Registry) Observe(name string, revision int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.revisions == nil {
		r.revisions = make(map[string]int64)
	}
	r.revisions[name] = revision
}

// Expected возвращает ревизию, которую должна застать следующая запись.
// Для непрочитанного документа это 0: запись разрешена, только если документа ещё нет.
func (r *Registry) Expected(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revisions[name]
}

// Conflict описывает проигранную гонку записи.
func Conflict(name string, expected int64) error {
	if expected == 0 {
		return fmt.Errorf("%w: document %s was created by another writer", domain.ErrStorageInUse, name)
	}
	return fmt.Errorf("%w: document %s changed since revision %d", domain.ErrStorageInUse, name, expected)
}
