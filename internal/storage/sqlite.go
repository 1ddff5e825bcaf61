package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hanamilabs/admin-promoter-bot/internal/domain"
	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS chats (
			chat_id INTEGER PRIMARY KEY,
			chat_type TEXT NOT NULL,
			chat_title TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("run migration query: %w", err)
		}
	}

	return nil
}

func (s *SQLiteStore) UpsertChat(ctx context.Context, record domain.ChatRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (chat_id, chat_type, chat_title, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(chat_id)
		DO UPDATE SET
			chat_type = excluded.chat_type,
			chat_title = excluded.chat_title,
			updated_at = datetime('now');
	`, record.ChatID, string(record.ChatType), record.ChatTitle)
	return err
}

func (s *SQLiteStore) ListChats(ctx context.Context) ([]domain.ChatRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id, chat_type, chat_title FROM chats ORDER BY chat_id;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ChatRecord, 0)
	for rows.Next() {
		var record domain.ChatRecord
		var chatType string
		if err := rows.Scan(&record.ChatID, &chatType, &record.ChatTitle); err != nil {
			return nil, err
		}
		record.ChatType = domain.ChatType(chatType)
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) DeleteChat(ctx context.Context, chatID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE chat_id = ?;`, chatID)
	return err
}
