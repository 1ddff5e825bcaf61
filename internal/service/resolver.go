package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hanamilabs/admin-promoter-bot/internal/domain"
	"github.com/hanamilabs/admin-promoter-bot/internal/ports"
)

const (
	defaultInviteLinkTTL = time.Minute
	inviteMemberLimit    = 1
)

type Presence int

const (
	PresenceMember Presence = iota
	PresenceInvited
)

func (p Presence) String() string {
	if p == PresenceInvited {
		return "invited"
	}
	return "present"
}

type MembershipRequest struct {
	Chat           domain.Chat
	Target         domain.User
	OperatorChatID int64
}

// MembershipResolver makes sure the target account is in the chat before promotion.
type MembershipResolver struct {
	logger     *slog.Logger
	platform   ports.ChatPlatform
	invites    *InviteTracker
	unbanRetry RetryPolicy
	linkTTL    time.Duration
	now        func() time.Time
}

func NewMembershipResolver(logger *slog.Logger, platform ports.ChatPlatform, invites *InviteTracker, linkTTL time.Duration) *MembershipResolver {
	if linkTTL <= 0 {
		linkTTL = defaultInviteLinkTTL
	}
	return &MembershipResolver{
		logger:   logger,
		platform: platform,
		invites:  invites,
		unbanRetry: RetryPolicy{
			MaxAttempts: 3,
			Backoff:     FixedBackoff(time.Second),
			Retryable:   func(err error) bool { return !errors.Is(err, context.Canceled) },
		},
		linkTTL: linkTTL,
		now:     time.Now,
	}
}

// EnsurePresent returns PresenceInvited when resolution continues asynchronously through the InviteTracker.
func (r *MembershipResolver) EnsurePresent(ctx context.Context, req MembershipRequest) (Presence, error) {
	chatID, targetID := req.Chat.ID, req.Target.ID

	member, err := r.platform.GetChatMember(ctx, chatID, targetID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotParticipant):
		member = domain.ChatMember{User: req.Target, Status: domain.StatusLeft}
	default:
		return PresenceMember, fmt.Errorf("check membership of %d in %d: %w", targetID, chatID, err)
	}

	if member.Status.IsPresent() {
		return PresenceMember, nil
	}

	if member.Status == domain.StatusKicked {
		err := r.unbanRetry.Do(ctx, func(ctx context.Context) error {
			return r.platform.UnbanChatMember(ctx, chatID, targetID)
		})
		if err != nil {
			r.logger.Error("unban failed", "chat_id", chatID, "target_user_id", targetID, "error", err)
			return PresenceMember, fmt.Errorf("%w: %v", domain.ErrUnbanFailed, err)
		}
		r.logger.Info("target unbanned", "chat_id", chatID, "target_user_id", targetID)
	}

	if req.Chat.Type != string(domain.ChatTypeChannel) {
		err := r.platform.AddChatMember(ctx, chatID, targetID)
		if err == nil {
			r.logger.Info("target added directly", "chat_id", chatID, "target_user_id", targetID)
			return PresenceMember, nil
		}
		if !errors.Is(err, domain.ErrDirectAddUnsupported) && !domain.IsPermissionError(err) {
			return PresenceMember, fmt.Errorf("add %d to %d: %w", targetID, chatID, err)
		}
		r.logger.Info("direct add refused; falling back to invite link", "chat_id", chatID, "target_user_id", targetID, "error", err)
	}

	if err := r.invite(ctx, req); err != nil {
		return PresenceMember, err
	}
	return PresenceInvited, nil
}

func (r *MembershipResolver) invite(ctx context.Context, req MembershipRequest) error {
	expiresAt := r.now().Add(r.linkTTL)
	link, err := r.platform.CreateChatInviteLink(ctx, req.Chat.ID, expiresAt, inviteMemberLimit)
	if err != nil {
		return fmt.Errorf("create invite link for %d: %w", req.Chat.ID, err)
	}

	invite := domain.PendingInvite{
		ID:             uuid.NewString(),
		ChatID:         req.Chat.ID,
		ChatTitle:      req.Chat.Title,
		TargetUserID:   req.Target.ID,
		TargetLabel:    req.Target.Label(),
		InviteLink:     link,
		ExpiresAt:      expiresAt,
		OperatorChatID: req.OperatorChatID,
	}
	r.invites.Issue(invite)
	r.logger.Info("invite issued", "chat_id", invite.ChatID, "target_user_id", invite.TargetUserID, "invite_id", invite.ID, "expires_at", expiresAt)

	text := fmt.Sprintf("Join %s to be promoted to admin: %s", req.Chat.Label(), link)
	err = r.platform.SendMessage(ctx, req.Target.ID, text)
	if err == nil {
		return nil
	}
	r.logger.Warn("invite delivery to target failed", "target_user_id", req.Target.ID, "error", err)

	if req.OperatorChatID == 0 {
		return nil
	}
	operatorText := fmt.Sprintf(
		"Could not message %s directly. Have it join %s with this single-use link (valid %s):\n%s",
		req.Target.Label(), req.Chat.Label(), r.linkTTL, link,
	)
	if err := r.platform.SendMessage(ctx, req.OperatorChatID, operatorText); err != nil {
		r.logger.Error("invite delivery to operator failed", "operator_chat_id", req.OperatorChatID, "error", err)
	}
	return nil
}
