package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hanamilabs/admin-promoter-bot/internal/config"
	"github.com/hanamilabs/admin-promoter-bot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportJSON(t *testing.T) {
	dataDir := t.TempDir()
	jsonPath := filepath.Join(dataDir, "chats.json")
	content := `[
		{"chat_id":-1001,"chat_type":"supergroup","chat_title":"Ops"},
		{"chat_id":-1002,"chat_type":"channel","chat_title":"News"},
		{"chat_id":55,"chat_type":"private","chat_title":"dm"},
		{"chat_id":0,"chat_type":"group","chat_title":"broken"}
	]`
	require.NoError(t, os.WriteFile(jsonPath, []byte(content), 0o644))

	ctx := context.Background()
	registry, err := Open(ctx, config.Config{RegistryBackend: "sqlite", DatabasePath: filepath.Join(dataDir, "promoter.db")})
	require.NoError(t, err)
	defer registry.Close()

	stats, err := ImportJSON(ctx, jsonPath, registry)
	require.NoError(t, err)
	assert.Equal(t, ImportStats{Chats: 2}, stats)

	chats, err := registry.ListChats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.ChatRecord{
		{ChatID: -1002, ChatType: domain.ChatTypeChannel, ChatTitle: "News"},
		{ChatID: -1001, ChatType: domain.ChatTypeSupergroup, ChatTitle: "Ops"},
	}, chats)

	again, err := ImportJSON(ctx, jsonPath, registry)
	require.NoError(t, err)
	assert.Equal(t, ImportStats{Skipped: 2}, again)
}

func TestImportJSONMissingFile(t *testing.T) {
	store, err := OpenJSONFile(filepath.Join(t.TempDir(), "dst.json"))
	require.NoError(t, err)

	stats, err := ImportJSON(context.Background(), filepath.Join(t.TempDir(), "absent.json"), store)
	require.NoError(t, err)
	assert.Zero(t, stats.Chats)
}
