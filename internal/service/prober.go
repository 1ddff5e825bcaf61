package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hanamilabs/admin-promoter-bot/internal/domain"
	"github.com/hanamilabs/admin-promoter-bot/internal/ports"
)

// PrivilegeProber reads the operating bot's admin rights in a chat.
type PrivilegeProber struct {
	logger      *slog.Logger
	platform    ports.ChatPlatform
	selfID      int64
	retry       RetryPolicy
	referenceID int64
}

func NewPrivilegeProber(logger *slog.Logger, platform ports.ChatPlatform, selfID int64, retry RetryPolicy, referenceUserID int64) *PrivilegeProber {
	return &PrivilegeProber{
		logger:      logger,
		platform:    platform,
		selfID:      selfID,
		retry:       retry,
		referenceID: referenceUserID,
	}
}

// Probe returns the privileges the bot may copy onto a target, or a *domain.RefusalError.
func (p *PrivilegeProber) Probe(ctx context.Context, chatID int64) (domain.PrivilegeSet, error) {
	var member domain.ChatMember
	err := p.retry.Do(ctx, func(ctx context.Context) error {
		current, err := p.platform.GetChatMember(ctx, chatID, p.selfID)
		if err != nil {
			p.logger.Warn("own membership lookup failed", "chat_id", chatID, "error", err)
			return err
		}
		member = current
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrChatNotFound) || errors.Is(err, context.Canceled) {
			return domain.PrivilegeSet{}, err
		}
		return domain.PrivilegeSet{}, &domain.RefusalError{ChatID: chatID, Reason: "could not verify admin status", Err: err}
	}

	if !member.Status.IsAdmin() {
		fromList, found, err := p.scanAdministrators(ctx, chatID)
		if err != nil {
			p.logger.Warn("administrator list lookup failed", "chat_id", chatID, "error", err)
		}
		if !found {
			return domain.PrivilegeSet{}, &domain.RefusalError{ChatID: chatID, Reason: "bot is not an administrator"}
		}
		member = fromList
	}

	privileges := member.Privileges
	if member.Status == domain.StatusCreator {
		privileges = domain.FullPrivileges()
	}
	if missing := privileges.Missing(domain.PrivilegePromoteMembers); len(missing) > 0 {
		return domain.PrivilegeSet{}, &domain.RefusalError{ChatID: chatID, Reason: "missing privileges", Missing: missing}
	}

	if p.referenceID != 0 {
		if err := p.verifyPromotion(ctx, chatID); err != nil {
			return domain.PrivilegeSet{}, err
		}
	}
	return privileges, nil
}

func (p *PrivilegeProber) scanAdministrators(ctx context.Context, chatID int64) (domain.ChatMember, bool, error) {
	var admins []domain.ChatMember
	err := p.retry.Do(ctx, func(ctx context.Context) error {
		list, err := p.platform.GetChatAdministrators(ctx, chatID)
		if err != nil {
			return err
		}
		admins = list
		return nil
	})
	if err != nil {
		return domain.ChatMember{}, false, err
	}
	for _, admin := range admins {
		if admin.User.ID == p.selfID && admin.Status.IsAdmin() {
			return admin, true, nil
		}
	}
	return domain.ChatMember{}, false, nil
}

// verifyPromotion promotes the reference account with a minimal set and reverts it.
func (p *PrivilegeProber) verifyPromotion(ctx context.Context, chatID int64) error {
	err := p.platform.PromoteChatMember(ctx, chatID, p.referenceID, domain.PrivilegeSet{InviteUsers: true})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotParticipant), errors.Is(err, domain.ErrUserNotFound):
		p.logger.Info("reference account not in chat; skipping promotion check", "chat_id", chatID, "reference_user_id", p.referenceID)
		return nil
	case errors.Is(err, domain.ErrAdminInviteRequired):
		return &domain.RefusalError{ChatID: chatID, Reason: "promotion check failed", Missing: []domain.Privilege{domain.PrivilegeInviteUsers}, Err: err}
	default:
		return &domain.RefusalError{ChatID: chatID, Reason: "promotion check failed", Err: err}
	}

	if err := p.platform.PromoteChatMember(ctx, chatID, p.referenceID, domain.PrivilegeSet{}); err != nil {
		p.logger.Warn("reverting reference account failed", "chat_id", chatID, "reference_user_id", p.referenceID, "error", err)
	}
	return nil
}
