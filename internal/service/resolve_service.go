package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/hanamilabs/admin-promoter-bot/internal/domain"
	"github.com/hanamilabs/admin-promoter-bot/internal/ports"
)

// ResolveService turns operator input into accounts and chats.
type ResolveService struct {
	platform ports.ChatPlatform

	mu        sync.RWMutex
	usernames map[string]int64
}

func NewResolveService(platform ports.ChatPlatform) *ResolveService {
	return &ResolveService{platform: platform, usernames: make(map[string]int64)}
}

// Target accepts a numeric user id or an @username.
func (s *ResolveService) Target(ctx context.Context, raw string) (domain.User, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return domain.User{}, fmt.Errorf("empty target: %w", domain.ErrUserNotFound)
	}
	if id, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		if id <= 0 {
			return domain.User{}, fmt.Errorf("invalid user id %d: %w", id, domain.ErrUserNotFound)
		}
		return domain.User{ID: id}, nil
	}

	username := normalizeUsername(trimmed)
	s.mu.RLock()
	id, ok := s.usernames[username]
	s.mu.RUnlock()
	if ok {
		return domain.User{ID: id, Username: strings.TrimPrefix(username, "@")}, nil
	}

	user, err := s.platform.ResolveUsername(ctx, username)
	if err != nil {
		return domain.User{}, fmt.Errorf("resolve %s: %w", username, err)
	}
	if user.Username == "" {
		user.Username = strings.TrimPrefix(username, "@")
	}
	s.Remember(user)
	return user, nil
}

// Remember caches a username seen in an update so later lookups skip the API.
func (s *ResolveService) Remember(user domain.User) {
	if user.ID == 0 || strings.TrimSpace(user.Username) == "" {
		return
	}
	s.mu.Lock()
	s.usernames[normalizeUsername(user.Username)] = user.ID
	s.mu.Unlock()
}

func (s *ResolveService) Chat(ctx context.Context, raw string) (domain.Chat, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return domain.Chat{}, fmt.Errorf("empty chat: %w", domain.ErrChatNotFound)
	}
	return s.platform.GetChat(ctx, trimmed)
}

func normalizeUsername(raw string) string {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if !strings.HasPrefix(trimmed, "@") {
		trimmed = "@" + trimmed
	}
	return trimmed
}
