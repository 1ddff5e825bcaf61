package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hanamilabs/admin-promoter-bot/internal/domain"
)

// JSONFileStore keeps the registry in a single JSON array rewritten on every change.
type JSONFileStore struct {
	path string
	mu   sync.Mutex
}

func OpenJSONFile(path string) (*JSONFileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("registry json path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &JSONFileStore{path: path}, nil
}

func (s *JSONFileStore) Close() error {
	return nil
}

func (s *JSONFileStore) UpsertChat(_ context.Context, record domain.ChatRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := readChatsFile(s.path)
	if err != nil {
		return err
	}
	replaced := false
	for i := range records {
		if records[i].ChatID == record.ChatID {
			records[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, record)
	}
	return s.write(records)
}

func (s *JSONFileStore) ListChats(_ context.Context) ([]domain.ChatRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := readChatsFile(s.path)
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ChatID < records[j].ChatID })
	return records, nil
}

func (s *JSONFileStore) DeleteChat(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := readChatsFile(s.path)
	if err != nil {
		return err
	}
	out := records[:0]
	for _, record := range records {
		if record.ChatID != chatID {
			out = append(out, record)
		}
	}
	return s.write(out)
}

func (s *JSONFileStore) write(records []domain.ChatRecord) error {
	sort.Slice(records, func(i, j int) bool { return records[i].ChatID < records[j].ChatID })
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, s.path)
}

func readChatsFile(path string) ([]domain.ChatRecord, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.ChatRecord{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" {
		return []domain.ChatRecord{}, nil
	}
	var rows []domain.ChatRecord
	if err := json.Unmarshal([]byte(trimmed), &rows); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := make([]domain.ChatRecord, 0, len(rows))
	for _, row := range rows {
		if row.ChatID == 0 {
			continue
		}
		if _, ok := domain.ParseChatType(string(row.ChatType)); !ok {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}
