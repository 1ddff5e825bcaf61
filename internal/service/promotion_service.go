package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hanamilabs/admin-promoter-bot/internal/domain"
	"github.com/hanamilabs/admin-promoter-bot/internal/ports"
)

const maxReportedErrors = 5

type OutcomeStatus string

const (
	OutcomePromoted OutcomeStatus = "promoted"
	OutcomeInvited  OutcomeStatus = "invited"
)

type Outcome struct {
	Status     OutcomeStatus       `json:"status"`
	ChatID     int64               `json:"chatId"`
	ChatTitle  string              `json:"chatTitle"`
	TargetID   int64               `json:"targetUserId"`
	Privileges domain.PrivilegeSet `json:"privileges"`
}

type BulkReport struct {
	Total     int      `json:"total"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Deferred  int      `json:"deferred"`
	Errors    []string `json:"errors"`
}

// PromotionService copies the bot's admin privileges onto a target account.
type PromotionService struct {
	logger   *slog.Logger
	platform ports.ChatPlatform
	registry ports.ChatRegistry
	prober   *PrivilegeProber
	resolver *MembershipResolver
	retry    RetryPolicy
	queue    *KeyedQueue[inviteKey]
}

func NewPromotionService(
	logger *slog.Logger,
	platform ports.ChatPlatform,
	registry ports.ChatRegistry,
	prober *PrivilegeProber,
	resolver *MembershipResolver,
	invites *InviteTracker,
	retry RetryPolicy,
) *PromotionService {
	s := &PromotionService{
		logger:   logger,
		platform: platform,
		registry: registry,
		prober:   prober,
		resolver: resolver,
		retry:    retry,
		queue:    NewKeyedQueue[inviteKey](),
	}
	invites.SetHandler(s)
	return s
}

// Promote resolves membership, probes privileges and promotes. An OutcomeInvited
// result means promotion continues when the target joins or the invite expires.
func (s *PromotionService) Promote(ctx context.Context, req MembershipRequest) (Outcome, error) {
	key := inviteKey{chatID: req.Chat.ID, userID: req.Target.ID}
	var outcome Outcome
	err := s.queue.Run(ctx, key, func(ctx context.Context) error {
		presence, err := s.resolver.EnsurePresent(ctx, req)
		if err != nil {
			return err
		}
		if presence == PresenceInvited {
			outcome = Outcome{Status: OutcomeInvited, ChatID: req.Chat.ID, ChatTitle: req.Chat.Title, TargetID: req.Target.ID}
			return nil
		}
		outcome, err = s.promoteMember(ctx, req.Chat, req.Target)
		return err
	})
	return outcome, err
}

func (s *PromotionService) promoteMember(ctx context.Context, chat domain.Chat, target domain.User) (Outcome, error) {
	privileges, err := s.prober.Probe(ctx, chat.ID)
	if err != nil {
		return Outcome{}, err
	}

	err = s.mutate(ctx, chat.ID, target.ID, privileges)
	if errors.Is(err, domain.ErrAdminInviteRequired) {
		s.logger.Warn("promotion needs admin invite; re-probing once", "chat_id", chat.ID, "target_user_id", target.ID)
		privileges, err = s.prober.Probe(ctx, chat.ID)
		if err != nil {
			return Outcome{}, err
		}
		err = s.mutate(ctx, chat.ID, target.ID, privileges)
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("promote %d in %d: %w", target.ID, chat.ID, err)
	}

	s.logger.Info("target promoted", "chat_id", chat.ID, "target_user_id", target.ID, "privileges", strings.Join(privileges.Names(), ","))
	return Outcome{Status: OutcomePromoted, ChatID: chat.ID, ChatTitle: chat.Title, TargetID: target.ID, Privileges: privileges}, nil
}

func (s *PromotionService) mutate(ctx context.Context, chatID int64, targetID int64, privileges domain.PrivilegeSet) error {
	return s.retry.Do(ctx, func(ctx context.Context) error {
		return s.platform.PromoteChatMember(ctx, chatID, targetID, privileges)
	})
}

// PromoteAll walks the registry sequentially; one chat failing never stops the batch.
func (s *PromotionService) PromoteAll(ctx context.Context, target domain.User, operatorChatID int64) (BulkReport, error) {
	records, err := s.registry.ListChats(ctx)
	if err != nil {
		return BulkReport{}, fmt.Errorf("list registered chats: %w", err)
	}

	report := BulkReport{Total: len(records), Errors: make([]string, 0)}
	for _, record := range records {
		chat := domain.Chat{ID: record.ChatID, Type: string(record.ChatType), Title: record.ChatTitle}
		outcome, err := s.Promote(ctx, MembershipRequest{Chat: chat, Target: target, OperatorChatID: operatorChatID})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report, ctxErr
		}
		if err != nil {
			report.Failed++
			if len(report.Errors) < maxReportedErrors {
				report.Errors = append(report.Errors, DescribeFailure(chat, target, err))
			}
			s.logFailure(chat, target, err)
			if errors.Is(err, domain.ErrChatNotFound) {
				s.forgetChat(ctx, chat.ID)
			}
			continue
		}
		if outcome.Status == OutcomeInvited {
			report.Deferred++
			continue
		}
		report.Succeeded++
	}

	s.logger.Info("bulk promotion finished",
		"target_user_id", target.ID,
		"total", report.Total,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"deferred", report.Deferred,
	)
	return report, nil
}

func (s *PromotionService) forgetChat(ctx context.Context, chatID int64) {
	if err := s.registry.DeleteChat(ctx, chatID); err != nil {
		s.logger.Error("remove invalid chat failed", "chat_id", chatID, "error", err)
		return
	}
	s.logger.Info("removed invalid chat from registry", "chat_id", chatID)
}

func (s *PromotionService) InviteJoined(ctx context.Context, invite domain.PendingInvite) {
	chat, target := invite.Chat(), invite.Target()
	key := inviteKey{chatID: chat.ID, userID: target.ID}

	var outcome Outcome
	err := s.queue.Run(ctx, key, func(ctx context.Context) error {
		var err error
		outcome, err = s.promoteMember(ctx, chat, target)
		return err
	})

	text := fmt.Sprintf("%s joined %s and was promoted to admin (%s).", invite.TargetLabel, chat.Label(), strings.Join(outcome.Privileges.Names(), ", "))
	if err != nil {
		s.logFailure(chat, target, err)
		text = fmt.Sprintf("%s joined %s but promotion failed: %s", invite.TargetLabel, chat.Label(), DescribeFailure(chat, target, err))
	}
	s.notify(ctx, invite.OperatorChatID, text)
}

func (s *PromotionService) InviteExpired(ctx context.Context, invite domain.PendingInvite) {
	text := fmt.Sprintf(
		"Timed out waiting for %s to join %s; the invite link expired. Add it manually and run /promote again.",
		invite.TargetLabel, invite.Chat().Label(),
	)
	s.notify(ctx, invite.OperatorChatID, text)
}

func (s *PromotionService) notify(ctx context.Context, chatID int64, text string) {
	if chatID == 0 {
		s.logger.Warn("no operator chat for report", "text", text)
		return
	}
	if err := s.platform.SendMessage(ctx, chatID, text); err != nil {
		s.logger.Error("operator report failed", "chat_id", chatID, "error", err)
	}
}

func (s *PromotionService) logFailure(chat domain.Chat, target domain.User, err error) {
	var platformErr *domain.PlatformError
	var refusal *domain.RefusalError
	if errors.As(err, &platformErr) || errors.As(err, &refusal) || errors.Is(err, domain.ErrUnbanFailed) {
		s.logger.Warn("promotion failed", "chat_id", chat.ID, "target_user_id", target.ID, "error", err)
		return
	}
	s.logger.Error("promotion failed unexpectedly", "chat_id", chat.ID, "target_user_id", target.ID, "error", err)
}

// DescribeFailure renders a promotion error as an operator-facing message.
func DescribeFailure(chat domain.Chat, target domain.User, err error) string {
	var refusal *domain.RefusalError
	var platformErr *domain.PlatformError
	label := chat.Label()
	switch {
	case errors.Is(err, domain.ErrChatNotFound):
		return fmt.Sprintf("%s: chat id is invalid or the bot cannot access it.", label)
	case errors.Is(err, domain.ErrUserNotFound):
		return fmt.Sprintf("%s: target account %s not found.", label, target.Label())
	case errors.Is(err, domain.ErrUnbanFailed):
		return fmt.Sprintf("%s: %s is banned and could not be unbanned; unban it manually.", label, target.Label())
	case errors.As(err, &refusal) && len(refusal.Missing) > 0:
		return fmt.Sprintf("%s: missing permission %s.", label, refusal.MissingNames())
	case errors.As(err, &refusal):
		return fmt.Sprintf("%s: %s.", label, refusal.Reason)
	case errors.Is(err, domain.ErrAdminInviteRequired):
		return fmt.Sprintf("%s: missing permission %s.", label, domain.PrivilegeInviteUsers)
	case errors.Is(err, domain.ErrPermissionDenied):
		return fmt.Sprintf("%s: missing permission %s.", label, domain.PrivilegePromoteMembers)
	case errors.As(err, &platformErr):
		return fmt.Sprintf("%s: Telegram error: %s", label, platformErr.Description)
	default:
		return fmt.Sprintf("%s: unexpected error, check logs.", label)
	}
}
