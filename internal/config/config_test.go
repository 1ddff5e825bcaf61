package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_USER_IDS", "42, 43")
}

func TestLoadFromEnvDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATA_DIR", "/tmp/promoter")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, []int64{42, 43}, cfg.AdminUserIDs)
	assert.Equal(t, int64(42), cfg.OperatorChatID())
	assert.Equal(t, "sqlite", cfg.RegistryBackend)
	assert.Equal(t, filepath.Join("/tmp/promoter", "promoter.db"), cfg.DatabasePath)
	assert.Equal(t, filepath.Join("/tmp/promoter", "chats.json"), cfg.RegistryJSONPath)
	assert.Equal(t, 3, cfg.ProbeMaxRetries)
	assert.Equal(t, time.Second, cfg.ProbeRetryDelay)
	assert.Equal(t, "fixed", cfg.ProbeBackoff)
	assert.Equal(t, 60*time.Second, cfg.InviteTimeout)
	assert.Equal(t, time.Minute, cfg.InviteLinkTTL)
	assert.Equal(t, time.Hour, cfg.AdminSweepInterval)
	assert.Zero(t, cfg.ProbeReferenceUserID)
}

func TestLoadFromEnvValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "missing token", env: map[string]string{"BOT_TOKEN": ""}, want: "BOT_TOKEN is required"},
		{name: "bad backend", env: map[string]string{"REGISTRY_BACKEND": "redis"}, want: "REGISTRY_BACKEND"},
		{name: "mongo without uri", env: map[string]string{"REGISTRY_BACKEND": "mongo"}, want: "MONGO_URI"},
		{name: "bad backoff", env: map[string]string{"PROBE_BACKOFF": "random"}, want: "PROBE_BACKOFF"},
		{name: "zero retries", env: map[string]string{"PROBE_MAX_RETRIES": "0"}, want: "PROBE_MAX_RETRIES"},
		{name: "webhook without url", env: map[string]string{"BOT_TRANSPORT": "webhook"}, want: "WEBHOOK_URL"},
		{name: "non numeric admin", env: map[string]string{"ADMIN_USER_IDS": "abc"}, want: "ADMIN_USER_IDS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for key, value := range tt.env {
				t.Setenv(key, value)
			}
			_, err := LoadFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFromEnvReferenceUser(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PROBE_REFERENCE_USER_ID", "777")
	t.Setenv("PROBE_BACKOFF", "Exponential")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, int64(777), cfg.ProbeReferenceUserID)
	assert.Equal(t, "exponential", cfg.ProbeBackoff)
}
