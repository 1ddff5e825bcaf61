package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/hanamilabs/admin-promoter-bot/internal/domain"
	"github.com/hanamilabs/admin-promoter-bot/internal/ports"
)

type RefreshReport struct {
	Checked int      `json:"checked"`
	Kept    int      `json:"kept"`
	Removed int      `json:"removed"`
	Errors  []string `json:"errors"`
}

// RegistryService keeps the chat registry in line with where the bot is an admin.
type RegistryService struct {
	logger   *slog.Logger
	platform ports.ChatPlatform
	registry ports.ChatRegistry
	selfID   int64
}

func NewRegistryService(logger *slog.Logger, platform ports.ChatPlatform, registry ports.ChatRegistry, selfID int64) *RegistryService {
	return &RegistryService{logger: logger, platform: platform, registry: registry, selfID: selfID}
}

func (s *RegistryService) List(ctx context.Context) ([]domain.ChatRecord, error) {
	return s.registry.ListChats(ctx)
}

// AddChat registers a chat after confirming the bot administers it.
func (s *RegistryService) AddChat(ctx context.Context, chat domain.Chat) (domain.ChatRecord, error) {
	record, ok := chat.Record()
	if !ok {
		return domain.ChatRecord{}, fmt.Errorf("chat %d of type %q cannot be registered", chat.ID, chat.Type)
	}
	member, err := s.platform.GetChatMember(ctx, chat.ID, s.selfID)
	if err != nil {
		return domain.ChatRecord{}, fmt.Errorf("check admin status in %d: %w", chat.ID, err)
	}
	if !member.Status.IsAdmin() {
		return domain.ChatRecord{}, &domain.RefusalError{ChatID: chat.ID, Reason: "bot is not an administrator"}
	}
	if err := s.registry.UpsertChat(ctx, record); err != nil {
		return domain.ChatRecord{}, err
	}
	s.logger.Info("chat registered", "chat_id", record.ChatID, "chat_type", record.ChatType, "chat_title", record.ChatTitle)
	return record, nil
}

// HandleMemberUpdate tracks the bot's own admin status from my_chat_member events.
func (s *RegistryService) HandleMemberUpdate(ctx context.Context, update domain.MemberUpdate) {
	if update.User.ID != s.selfID {
		return
	}
	if update.NewStatus.IsAdmin() {
		record, ok := update.Chat.Record()
		if !ok {
			return
		}
		if err := s.registry.UpsertChat(ctx, record); err != nil {
			s.logger.Error("register chat from event failed", "chat_id", record.ChatID, "error", err)
			return
		}
		s.logger.Info("admin rights gained; chat registered", "chat_id", record.ChatID)
		return
	}
	if update.OldStatus.IsAdmin() || !update.NewStatus.IsPresent() {
		if err := s.registry.DeleteChat(ctx, update.Chat.ID); err != nil {
			s.logger.Error("unregister chat from event failed", "chat_id", update.Chat.ID, "error", err)
			return
		}
		s.logger.Info("admin rights lost; chat unregistered", "chat_id", update.Chat.ID, "new_status", update.NewStatus)
	}
}

// Refresh drops chats where the bot lost admin rights and refreshes titles.
// Transient lookup failures keep the chat.
func (s *RegistryService) Refresh(ctx context.Context) (RefreshReport, error) {
	return s.sweep(ctx, true)
}

// CleanInvalid drops only chats the bot can no longer access.
func (s *RegistryService) CleanInvalid(ctx context.Context) (RefreshReport, error) {
	return s.sweep(ctx, false)
}

func (s *RegistryService) sweep(ctx context.Context, requireAdmin bool) (RefreshReport, error) {
	records, err := s.registry.ListChats(ctx)
	if err != nil {
		return RefreshReport{}, fmt.Errorf("list registered chats: %w", err)
	}

	report := RefreshReport{Errors: make([]string, 0)}
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		keep, err := s.check(ctx, record, requireAdmin)
		if err != nil {
			report.Kept++
			if len(report.Errors) < maxReportedErrors {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", recordLabel(record), err))
			}
			s.logger.Warn("registry check failed; keeping chat", "chat_id", record.ChatID, "error", err)
			continue
		}
		if keep {
			report.Kept++
			continue
		}
		if err := s.registry.DeleteChat(ctx, record.ChatID); err != nil {
			return report, fmt.Errorf("delete chat %d: %w", record.ChatID, err)
		}
		report.Removed++
		s.logger.Info("chat removed from registry", "chat_id", record.ChatID, "require_admin", requireAdmin)
	}
	return report, nil
}

func (s *RegistryService) check(ctx context.Context, record domain.ChatRecord, requireAdmin bool) (bool, error) {
	chat, err := s.platform.GetChat(ctx, strconv.FormatInt(record.ChatID, 10))
	if errors.Is(err, domain.ErrChatNotFound) || errors.Is(err, domain.ErrPermissionDenied) {
		return false, nil
	}
	if err != nil {
		return true, err
	}
	if !requireAdmin {
		return true, nil
	}

	member, err := s.platform.GetChatMember(ctx, record.ChatID, s.selfID)
	if errors.Is(err, domain.ErrChatNotFound) || errors.Is(err, domain.ErrNotParticipant) {
		return false, nil
	}
	if err != nil {
		return true, err
	}
	if !member.Status.IsAdmin() {
		return false, nil
	}

	if updated, ok := chat.Record(); ok && updated != record {
		if err := s.registry.UpsertChat(ctx, updated); err != nil {
			return true, err
		}
	}
	return true, nil
}

func recordLabel(record domain.ChatRecord) string {
	if record.ChatTitle != "" {
		return record.ChatTitle
	}
	return strconv.FormatInt(record.ChatID, 10)
}
