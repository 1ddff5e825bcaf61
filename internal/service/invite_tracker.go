package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hanamilabs/admin-promoter-bot/internal/domain"
)

const defaultInviteTimeout = 60 * time.Second

// InviteHandler receives the terminal transition of a pending invite.
type InviteHandler interface {
	InviteJoined(ctx context.Context, invite domain.PendingInvite)
	InviteExpired(ctx context.Context, invite domain.PendingInvite)
}

type inviteKey struct {
	chatID int64
	userID int64
}

type inviteEntry struct {
	invite domain.PendingInvite
	timer  *time.Timer
}

// InviteTracker correlates outstanding invite links with the account expected to use them.
// At most one entry exists per (chat, target); exactly one of joined or expired fires for it.
type InviteTracker struct {
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	pending map[inviteKey]*inviteEntry
	handler InviteHandler
}

func NewInviteTracker(logger *slog.Logger, timeout time.Duration) *InviteTracker {
	if timeout <= 0 {
		timeout = defaultInviteTimeout
	}
	return &InviteTracker{
		logger:  logger,
		timeout: timeout,
		pending: make(map[inviteKey]*inviteEntry),
	}
}

func (t *InviteTracker) SetHandler(handler InviteHandler) {
	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()
}

func (t *InviteTracker) Timeout() time.Duration {
	return t.timeout
}

// Issue registers an invite, replacing and cancelling any entry for the same pair.
func (t *InviteTracker) Issue(invite domain.PendingInvite) bool {
	key := inviteKey{chatID: invite.ChatID, userID: invite.TargetUserID}
	entry := &inviteEntry{invite: invite}

	t.mu.Lock()
	defer t.mu.Unlock()

	previous, replaced := t.pending[key]
	if replaced {
		previous.timer.Stop()
		t.logger.Info("replacing pending invite", "chat_id", key.chatID, "target_user_id", key.userID, "previous_invite_id", previous.invite.ID)
	}
	entry.timer = time.AfterFunc(t.timeout, func() { t.expire(key, entry) })
	t.pending[key] = entry
	return replaced
}

// Cancel drops a pending invite without reporting an outcome.
func (t *InviteTracker) Cancel(chatID int64, userID int64) bool {
	key := inviteKey{chatID: chatID, userID: userID}
	t.mu.Lock()
	entry, ok := t.pending[key]
	if ok {
		delete(t.pending, key)
		entry.timer.Stop()
	}
	t.mu.Unlock()
	return ok
}

func (t *InviteTracker) Pending(chatID int64, userID int64) (domain.PendingInvite, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.pending[inviteKey{chatID: chatID, userID: userID}]
	if !ok {
		return domain.PendingInvite{}, false
	}
	return entry.invite, true
}

func (t *InviteTracker) List() []domain.PendingInvite {
	t.mu.Lock()
	out := make([]domain.PendingInvite, 0, len(t.pending))
	for _, entry := range t.pending {
		out = append(out, entry.invite)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out
}

func (t *InviteTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// HandleMemberUpdate completes a pending invite once its target shows up in the chat.
func (t *InviteTracker) HandleMemberUpdate(ctx context.Context, update domain.MemberUpdate) {
	if !update.NewStatus.IsPresent() {
		return
	}
	key := inviteKey{chatID: update.Chat.ID, userID: update.User.ID}

	t.mu.Lock()
	entry, ok := t.pending[key]
	if ok {
		delete(t.pending, key)
	}
	handler := t.handler
	t.mu.Unlock()
	if !ok {
		return
	}

	entry.timer.Stop()
	t.logger.Info("invite consumed", "chat_id", key.chatID, "target_user_id", key.userID, "invite_id", entry.invite.ID)
	if handler != nil {
		handler.InviteJoined(ctx, entry.invite)
	}
}

func (t *InviteTracker) expire(key inviteKey, entry *inviteEntry) {
	t.mu.Lock()
	if t.pending[key] != entry {
		t.mu.Unlock()
		return
	}
	delete(t.pending, key)
	handler := t.handler
	t.mu.Unlock()

	t.logger.Warn("invite expired without join", "chat_id", key.chatID, "target_user_id", key.userID, "invite_id", entry.invite.ID)
	if handler == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	handler.InviteExpired(ctx, entry.invite)
}
