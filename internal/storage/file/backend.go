// Package file реализует DocumentStore поверх локальной файловой системы.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	filePerm = 0o644
	dirPerm  = 0o755
)

var (
	claimsMu sync.Mutex
	claims   = make(map[string]struct{})
)

// Backend хранит каждый документ в отдельном JSON-файле.
// Имя документа интерпретируется как путь к файлу (относительный считается от рабочего каталога).
type Backend struct {
	mu      sync.Mutex
	claimed map[string]struct{}
}

// NewBackend создаёт файловый backend.
func NewBackend() *Backend {
	return &Backend{claimed: make(map[string]struct{})}
}

// Claim закрепляет файл за одним владельцем в пределах процесса.
// Повторный захват того же файла, в том числе этим же backend, возвращает ErrStorageInUse.
func (b *Backend) Claim(name string) error {
	path, err := filepath.Abs(name)
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %w", domain.ErrStorageIO, name, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	claimsMu.Lock()
	defer claimsMu.Unlock()
	if _, taken := claims[path]; taken {
		return fmt.Errorf("%w: %s", domain.ErrStorageInUse, path)
	}
	claims[path] = struct{}{}
	b.claimed[path] = struct{}{}
	return nil
}

// Release освобождает ранее захваченный файл.
func (b *Backend) Release(name string) {
	path, err := filepath.Abs(name)
	if err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.claimed[path]; !ok {
		return
	}
	delete(b.claimed, path)

	claimsMu.Lock()
	delete(claims, path)
	claimsMu.Unlock()
}

// Close освобождает все файлы, захваченные backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	paths := make([]string, 0, len(b.claimed))
	for path := range b.claimed {
		paths = append(paths, path)
	}
	b.mu.Unlock()

	for _, path := range paths {
		b.Release(path)
	}
	return nil
}

// Load читает документ целиком. Отсутствующий файл не считается ошибкой: возвращается (nil, nil).
func (b *Backend) Load(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrStorageIO, name, err)
	}
	return data, nil
}

// Save записывает документ во временный файл в том же каталоге и атомарно
// переименовывает его поверх целевого. Читатель никогда не видит частичную запись.
func (b *Backend) Save(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("%w: create dir %s: %w", domain.ErrStorageIO, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(name)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file for %s: %w", domain.ErrStorageIO, name, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: write %s: %w", domain.ErrStorageIO, tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: sync %s: %w", domain.ErrStorageIO, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", domain.ErrStorageIO, tmpName, err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		return fmt.Errorf("%w: chmod %s: %w", domain.ErrStorageIO, tmpName, err)
	}
	if err := os.Rename(tmpName, name); err != nil {
		return fmt.Errorf("%w: replace %s: %w", domain.ErrStorageIO, name, err)
	}
	committed = true

	syncDir(dir)
	return nil
}

// syncDir фиксирует rename в каталоге; на платформах без поддержки ошибка игнорируется.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

var (
	_ domain.DocumentStore   = (*Backend)(nil)
	_ domain.DocumentClaimer = (*Backend)(nil)
)
