package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/hanamilabs/admin-promoter-bot/internal/domain"
)

const defaultBaseURL = "https://api.telegram.org"

type API struct {
	botToken        string
	baseURL         string
	client          *http.Client
	pollingInterval time.Duration
}

type Update struct {
	UpdateID     int64              `json:"update_id"`
	Message      *Message           `json:"message,omitempty"`
	MyChatMember *ChatMemberUpdated `json:"my_chat_member,omitempty"`
	ChatMember   *ChatMemberUpdated `json:"chat_member,omitempty"`
}

type Message struct {
	MessageID      int64  `json:"message_id"`
	From           User   `json:"from"`
	Chat           Chat   `json:"chat"`
	Text           string `json:"text"`
	NewChatMembers []User `json:"new_chat_members,omitempty"`
}

type User struct {
	ID       int64  `json:"id"`
	IsBot    bool   `json:"is_bot"`
	Username string `json:"username"`
}

type Chat struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	Username string `json:"username"`
}

type ChatMemberUpdated struct {
	Chat          Chat       `json:"chat"`
	From          User       `json:"from"`
	Date          int64      `json:"date"`
	OldChatMember ChatMember `json:"old_chat_member"`
	NewChatMember ChatMember `json:"new_chat_member"`
}

type ChatMember struct {
	User                User   `json:"user"`
	Status              string `json:"status"`
	IsMember            bool   `json:"is_member"`
	CanManageChat       bool   `json:"can_manage_chat"`
	CanDeleteMessages   bool   `json:"can_delete_messages"`
	CanManageVideoChats bool   `json:"can_manage_video_chats"`
	CanManageVoiceChats bool   `json:"can_manage_voice_chats"`
	CanRestrictMembers  bool   `json:"can_restrict_members"`
	CanPromoteMembers   bool   `json:"can_promote_members"`
	CanChangeInfo       bool   `json:"can_change_info"`
	CanInviteUsers      bool   `json:"can_invite_users"`
	CanPinMessages      bool   `json:"can_pin_messages"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters,omitempty"`
}

func NewAPI(botToken string, timeout time.Duration, pollingInterval time.Duration) *API {
	if pollingInterval <= 0 {
		pollingInterval = 2 * time.Second
	}
	return &API{
		botToken:        botToken,
		baseURL:         defaultBaseURL,
		client:          &http.Client{Timeout: timeout},
		pollingInterval: pollingInterval,
	}
}

// WithBaseURL points the client at another Bot API server.
func (a *API) WithBaseURL(baseURL string) *API {
	a.baseURL = strings.TrimRight(baseURL, "/")
	return a
}

func (a *API) PollUpdates(ctx context.Context, handler func(context.Context, Update)) error {
	var offset int64
	workers := make(chan struct{}, 8)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		updates, err := a.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, domain.ErrRateLimited) {
				wait, ok := domain.RetryAfter(err)
				if !ok {
					wait = time.Second
				}
				if !sleepContext(ctx, wait) {
					return nil
				}
				continue
			}
			return err
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			workers <- struct{}{}
			go func(u Update) {
				defer func() { <-workers }()
				handler(ctx, u)
			}(update)
		}

		if len(updates) == 0 {
			if !sleepContext(ctx, a.pollingInterval) {
				return nil
			}
		}
	}
}

func (a *API) SetupWebhook(ctx context.Context, webhookURL string) error {
	body := map[string]any{"url": webhookURL, "allowed_updates": allowedUpdates}
	return a.call(ctx, "setWebhook", body, nil)
}

func (a *API) DeleteWebhook(ctx context.Context) error {
	return a.call(ctx, "deleteWebhook", map[string]bool{"drop_pending_updates": false}, nil)
}

func (a *API) WebhookPath(webhookURL string) string {
	parsed, err := url.Parse(webhookURL)
	if err != nil {
		return "/telegram/webhook"
	}
	p := strings.TrimSpace(parsed.Path)
	if p == "" {
		return "/telegram/webhook"
	}
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return path.Clean(p)
}

var allowedUpdates = []string{"message", "my_chat_member", "chat_member"}

func (a *API) getUpdates(ctx context.Context, offset int64) ([]Update, error) {
	body := map[string]any{
		"offset":          offset,
		"timeout":         longPollSeconds(a.pollingInterval),
		"allowed_updates": allowedUpdates,
	}
	var updates []Update
	if err := a.call(ctx, "getUpdates", body, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func longPollSeconds(interval time.Duration) int {
	seconds := int(interval / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	if seconds > 50 {
		seconds = 50
	}
	return seconds
}

func (a *API) ParseWebhookUpdate(body []byte) (Update, error) {
	var update Update
	err := json.Unmarshal(body, &update)
	return update, err
}

// call invokes a Bot API method and decodes its result into out when non-nil.
func (a *API) call(ctx context.Context, method string, body any, out any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(raw)
	}
	endpoint := fmt.Sprintf("%s/bot%s/%s", a.baseURL, a.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		if res.StatusCode >= 400 {
			return &domain.PlatformError{Code: res.StatusCode, Description: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !envelope.OK {
		platformErr := &domain.PlatformError{Code: envelope.ErrorCode, Description: envelope.Description}
		if platformErr.Code == 0 {
			platformErr.Code = res.StatusCode
		}
		if strings.TrimSpace(platformErr.Description) == "" {
			platformErr.Description = fmt.Sprintf("telegram %s status %d", method, res.StatusCode)
		}
		if envelope.Parameters != nil && envelope.Parameters.RetryAfter > 0 {
			platformErr.RetryAfter = time.Duration(envelope.Parameters.RetryAfter) * time.Second
		}
		return platformErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
