// Package filestore хранит файлы чеков об оплате.
package filestore

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

const memoryScheme = "mem://receipts/"

// File — сохранённый файл.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// MemoryStore держит чеки в памяти процесса. Используется в разработке и тестах.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string]File
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string]File)}
}

// Put сохраняет копию файла и возвращает его URL.
func (s *MemoryStore) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", domain.Invalidf("receipt file is empty")
	}

	url := memoryScheme + uuid.NewString() + "/" + sanitizeName(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[url] = File{
		Name:        sanitizeName(name),
		ContentType: contentType,
		Data:        append([]byte(nil), data...),
	}
	return url, nil
}

// Get возвращает файл по URL, выданному Put.
func (s *MemoryStore) Get(url string) (File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[url]
	if !ok {
		return File{}, fmt.Errorf("receipt %q: %w", url, domain.ErrNotFound)
	}
	f.Data = append([]byte(nil), f.Data...)
	return f, nil
}

// Len возвращает число сохранённых файлов.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// sanitizeName оставляет только базовое имя файла.
func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "receipt"
	}
	return name
}

var _ domain.ReceiptStore = (*MemoryStore)(nil)
