package service

import (
	"context"
	"sync"

	"github.com/hanamilabs/admin-promoter-bot/internal/domain"
)

type MemberSubscriber interface {
	HandleMemberUpdate(ctx context.Context, update domain.MemberUpdate)
}

// MemberEvents fans membership-change notifications out to independent subscribers.
// Delivery is at-least-once upstream, so subscribers must tolerate repeats.
type MemberEvents struct {
	mu          sync.RWMutex
	subscribers []MemberSubscriber
}

func NewMemberEvents() *MemberEvents {
	return &MemberEvents{}
}

func (e *MemberEvents) Subscribe(subscriber MemberSubscriber) {
	e.mu.Lock()
	e.subscribers = append(e.subscribers, subscriber)
	e.mu.Unlock()
}

func (e *MemberEvents) Publish(ctx context.Context, update domain.MemberUpdate) {
	if update.Chat.ID == 0 || update.User.ID == 0 {
		return
	}
	e.mu.RLock()
	subscribers := append([]MemberSubscriber(nil), e.subscribers...)
	e.mu.RUnlock()
	for _, subscriber := range subscribers {
		subscriber.HandleMemberUpdate(ctx, update)
	}
}
