package storage

import (
	"context"
	"strings"

	"github.com/hanamilabs/admin-promoter-bot/internal/ports"
)

type ImportStats struct {
	Chats   int `json:"chats"`
	Skipped int `json:"skipped"`
}

// ImportJSON copies a flat-file registry into another backend. A missing file imports nothing.
func ImportJSON(ctx context.Context, path string, dst ports.ChatRegistry) (ImportStats, error) {
	stats := ImportStats{}
	if strings.TrimSpace(path) == "" {
		return stats, nil
	}

	records, err := readChatsFile(path)
	if err != nil {
		return stats, err
	}

	existing, err := dst.ListChats(ctx)
	if err != nil {
		return stats, err
	}
	known := make(map[int64]string, len(existing))
	for _, record := range existing {
		known[record.ChatID] = record.ChatTitle
	}

	for _, record := range records {
		if title, ok := known[record.ChatID]; ok && title == record.ChatTitle {
			stats.Skipped++
			continue
		}
		if err := dst.UpsertChat(ctx, record); err != nil {
			return stats, err
		}
		stats.Chats++
	}
	return stats, nil
}
