package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"livechat-service/internal/models"
)

// FileStore persists one JSON file per thread under a directory. It is
// the zero-dependency engine used for small deployments and tests.
type FileStore struct {
	mu  sync.RWMutex
	dir string
}

// NewFileStore creates dir if needed and purges any ghost threads left
// behind by a previous run.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create thread dir: %w", err)
	}
	s := &FileStore{dir: dir}
	if err := s.purgeGhosts(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) AppendMessage(_ context.Context, clientID string, info models.ClientInfo, msg models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ClientID = clientID

	thread, err := s.read(clientID)
	if err == ErrThreadNotFound {
		thread = &models.ChatThread{
			ClientID:  clientID,
			Status:    models.ThreadActive,
			CreatedAt: msg.CreatedAt,
		}
	} else if err != nil {
		return err
	}

	if info.Name != "" {
		thread.ClientInfo.Name = info.Name
	}
	if info.Email != "" {
		thread.ClientInfo.Email = info.Email
	}
	thread.Status = models.ThreadActive
	thread.UpdatedAt = msg.CreatedAt
	thread.Messages = append(thread.Messages, msg)

	return s.write(thread)
}

func (s *FileStore) GetThread(_ context.Context, clientID string) (*models.ChatThread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(clientID)
}

func (s *FileStore) ListThreads(_ context.Context, filter ListFilter) ([]models.ChatThread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var threads []models.ChatThread
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		thread, err := s.readFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if thread.IsGhost() {
			os.Remove(filepath.Join(s.dir, entry.Name()))
			continue
		}
		if filter.Status != "" && thread.Status != filter.Status {
			continue
		}
		threads = append(threads, *thread)
	}

	sort.Slice(threads, func(i, j int) bool {
		return threads[i].UpdatedAt.After(threads[j].UpdatedAt)
	})
	return threads, nil
}

func (s *FileStore) SetStatus(_ context.Context, clientID string, status models.ThreadStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread, err := s.read(clientID)
	if err != nil {
		return err
	}
	thread.Status = status
	thread.UpdatedAt = time.Now().UTC()
	return s.write(thread)
}

func (s *FileStore) AdvanceDelivery(_ context.Context, clientID string, sender models.SenderRole, status models.DeliveryStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread, err := s.read(clientID)
	if err == ErrThreadNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	changed := false
	for i := range thread.Messages {
		m := &thread.Messages[i]
		if m.SenderRole != sender {
			continue
		}
		if next := m.DeliveryStatus.Advance(status); next != m.DeliveryStatus {
			m.DeliveryStatus = next
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.write(thread)
}

func (s *FileStore) DeleteThread(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(clientID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return ErrThreadNotFound
	}
	return os.Remove(path)
}

func (s *FileStore) path(clientID string) string {
	return filepath.Join(s.dir, sanitizeID(clientID)+".json")
}

func (s *FileStore) read(clientID string) (*models.ChatThread, error) {
	return s.readFile(s.path(clientID))
}

func (s *FileStore) readFile(path string) (*models.ChatThread, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, err
	}
	var thread models.ChatThread
	if err := json.Unmarshal(data, &thread); err != nil {
		return nil, fmt.Errorf("corrupt thread file %s: %w", path, err)
	}
	return &thread, nil
}

// write flushes via a temp file and rename so a crash mid-write never
// leaves a half-written thread behind.
func (s *FileStore) write(thread *models.ChatThread) error {
	if thread.IsGhost() {
		return nil
	}
	data, err := json.MarshalIndent(thread, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path(thread.ClientID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(thread.ClientID))
}

func (s *FileStore) purgeGhosts() error {
	_, err := s.ListThreads(context.Background(), ListFilter{})
	return err
}

// sanitizeID keeps thread filenames to a safe character set no matter
// what a client supplies as its id.
func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, id)
}
