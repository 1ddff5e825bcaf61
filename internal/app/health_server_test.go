package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hanamilabs/admin-promoter-bot/internal/config"
	"github.com/hanamilabs/admin-promoter-bot/internal/service"
	"github.com/hanamilabs/admin-promoter-bot/internal/storage"
	"github.com/hanamilabs/admin-promoter-bot/internal/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const botID = 900

// fakeBotAPI answers Bot API calls for one supergroup where the bot is a full admin
// and user 42 is a plain member.
func fakeBotAPI(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		body := map[string]any{}
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &body)
		}
		switch method {
		case "getChat":
			if body["chat_id"] != float64(-1001) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
				return
			}
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":-1001,"type":"supergroup","title":"Ops"}}`))
		case "getChatMember":
			if body["user_id"] == float64(botID) {
				_, _ = w.Write([]byte(`{"ok":true,"result":{"user":{"id":900,"is_bot":true},"status":"administrator",
					"can_manage_chat":true,"can_promote_members":true,"can_invite_users":true}}`))
				return
			}
			_, _ = w.Write([]byte(`{"ok":true,"result":{"user":{"id":42},"status":"member"}}`))
		default:
			_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestServer(t *testing.T) *HealthServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := telegram.NewAPI("TOKEN", 5*time.Second, time.Second).WithBaseURL(fakeBotAPI(t).URL)

	registry, err := storage.OpenJSONFile(filepath.Join(t.TempDir(), "chats.json"))
	require.NoError(t, err)

	retry := service.RetryPolicy{MaxAttempts: 1}
	invites := service.NewInviteTracker(logger, time.Minute)
	prober := service.NewPrivilegeProber(logger, api, botID, retry, 0)
	resolver := service.NewMembershipResolver(logger, api, invites, time.Minute)
	promotions := service.NewPromotionService(logger, api, registry, prober, resolver, invites, retry)
	registryService := service.NewRegistryService(logger, api, registry, botID)
	sweeper := service.NewAdminSweeper(logger, registryService, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	control := service.NewControlService(ctx, service.NewResolveService(api), registryService, promotions, invites, sweeper)

	server := NewHealthServer(config.Config{HealthPort: 0, AdminUserIDs: []int64{7}}, logger, func(context.Context) error { return nil })
	server.SetControlService(control)
	return server
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	decoded := map[string]any{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestControlAddChatAndList(t *testing.T) {
	handler := newTestServer(t).Handler()

	rec, body := doJSON(t, handler, http.MethodPost, "/command/addchat", `{"chatId":-1001}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "chat registered", body["message"])

	rec, body = doJSON(t, handler, http.MethodGet, "/command/chats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	chats, ok := body["chats"].([]any)
	require.True(t, ok)
	require.Len(t, chats, 1)
	assert.Equal(t, "Ops", chats[0].(map[string]any)["chat_title"])
}

func TestControlPromote(t *testing.T) {
	handler := newTestServer(t).Handler()

	rec, body := doJSON(t, handler, http.MethodPost, "/command/promote", `{"chatId":-1001,"target":"42"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "promoted", body["status"])
	privileges, ok := body["privileges"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, privileges["can_promote_members"])
	assert.Equal(t, false, privileges["can_pin_messages"])
}

func TestControlPromoteUnknownChat(t *testing.T) {
	handler := newTestServer(t).Handler()

	rec, body := doJSON(t, handler, http.MethodPost, "/command/promote", `{"chatId":-5,"target":"42"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "-5: chat id is invalid or the bot cannot access it.", body["error"])
}

func TestControlPromoteValidation(t *testing.T) {
	handler := newTestServer(t).Handler()

	rec, _ := doJSON(t, handler, http.MethodPost, "/command/promote", `{"chatId":-1001}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, handler, http.MethodGet, "/command/promote", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec, _ = doJSON(t, handler, http.MethodPost, "/command/promote-all", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestControlPromoteAllWithEmptyRegistry(t *testing.T) {
	handler := newTestServer(t).Handler()

	rec, body := doJSON(t, handler, http.MethodPost, "/command/promote-all", `{"target":42}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(0), body["total"])
}

func TestHealthReportsRegistryAndInvites(t *testing.T) {
	server := newTestServer(t)
	handler := server.Handler()
	_, _ = doJSON(t, handler, http.MethodPost, "/command/addchat", `{"chat":"-1001"}`)

	rec, body := doJSON(t, handler, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["registeredChats"])
	assert.Equal(t, float64(0), body["pendingInvites"])
	assert.Equal(t, true, body["telegram"].(map[string]any)["ok"])

	server.checkTelegram = func(context.Context) error { return errors.New("unreachable") }
	_, body = doJSON(t, handler, http.MethodGet, "/health", "")
	assert.Equal(t, "unreachable", body["telegram"].(map[string]any)["error"])
}

func TestStartCheckOnce(t *testing.T) {
	handler := newTestServer(t).Handler()

	_, body := doJSON(t, handler, http.MethodPost, "/command/startcheck", "")
	assert.Equal(t, true, body["started"])
	_, body = doJSON(t, handler, http.MethodPost, "/command/startcheck", "")
	assert.Equal(t, false, body["started"])
}

func TestIsServerClosed(t *testing.T) {
	assert.True(t, IsServerClosed(http.ErrServerClosed))
	assert.False(t, IsServerClosed(errors.New("boom")))
}
