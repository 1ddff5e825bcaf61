package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hanamilabs/admin-promoter-bot/internal/domain"
	"github.com/hanamilabs/admin-promoter-bot/internal/ports"
	"github.com/hanamilabs/admin-promoter-bot/internal/telegram"
)

const helpText = `Admin promoter commands:
/promote <user> <chat> - promote a user in one chat
/promoteall <user> - promote a user in every registered chat
/addchat [chat] - register the current or given chat
/chats - list registered chats
/refresh - drop chats where the bot lost admin rights
/clean - drop chats the bot can no longer access
/startcheck - start the periodic admin check
/pending - list outstanding invite links

<user> is a numeric id or @username; <chat> is a numeric id or @channel.`

// CommandService dispatches Telegram updates: membership changes go to the
// event bus, operator commands go to the control facade.
type CommandService struct {
	logger      *slog.Logger
	telegramAPI ports.TelegramClient
	control     *ControlService
	events      *MemberEvents
	operators   map[int64]struct{}
	timeout     time.Duration
}

func NewCommandService(
	logger *slog.Logger,
	telegramClient ports.TelegramClient,
	control *ControlService,
	events *MemberEvents,
	operatorIDs []int64,
	inviteTimeout time.Duration,
) *CommandService {
	operators := make(map[int64]struct{}, len(operatorIDs))
	for _, id := range operatorIDs {
		operators[id] = struct{}{}
	}
	return &CommandService{
		logger:      logger,
		telegramAPI: telegramClient,
		control:     control,
		events:      events,
		operators:   operators,
		timeout:     inviteTimeout,
	}
}

func (s *CommandService) HandleUpdate(ctx context.Context, update telegram.Update) {
	if update.MyChatMember != nil {
		s.events.Publish(ctx, update.MyChatMember.MemberUpdate())
	}
	if update.ChatMember != nil {
		s.events.Publish(ctx, update.ChatMember.MemberUpdate())
	}
	if update.Message == nil {
		return
	}
	message := update.Message
	for _, joined := range message.JoinUpdates() {
		s.events.Publish(ctx, joined)
	}
	if message.From.ID == 0 || message.Chat.ID == 0 {
		return
	}
	s.control.RememberUser(message.From.Domain())

	text := strings.TrimSpace(message.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	s.handleCommand(ctx, *message)
}

func (s *CommandService) isOperator(userID int64) bool {
	_, ok := s.operators[userID]
	return ok
}

func (s *CommandService) handleCommand(ctx context.Context, message telegram.Message) {
	fields := strings.Fields(strings.TrimSpace(message.Text))
	if len(fields) == 0 {
		return
	}
	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.Index(name, "@"); at >= 0 {
		name = name[:at]
	}
	name = strings.ToLower(name)
	args := fields[1:]

	if !s.isOperator(message.From.ID) {
		if name == "start" && message.Chat.Type == "private" {
			_ = s.telegramAPI.SendMessage(ctx, message.Chat.ID, "Not authorized. Ask the bot owner to add your user id.")
		}
		s.logger.Debug("ignoring command from non-operator", "user_id", message.From.ID, "command", name)
		return
	}

	switch name {
	case "start", "help":
		_ = s.telegramAPI.SendMessage(ctx, message.Chat.ID, helpText)
	case "promote":
		s.handlePromote(ctx, message, args)
	case "promoteall":
		s.handlePromoteAll(ctx, message, args)
	case "addchat":
		s.handleAddChat(ctx, message, args)
	case "chats":
		s.handleChats(ctx, message)
	case "refresh":
		s.handleRefresh(ctx, message)
	case "clean":
		s.handleClean(ctx, message)
	case "startcheck":
		s.handleStartCheck(ctx, message)
	case "pending":
		s.handlePending(ctx, message)
	default:
		_ = s.telegramAPI.SendMessage(ctx, message.Chat.ID, "Unknown command. Use /help.")
	}
}

func (s *CommandService) handlePromote(ctx context.Context, message telegram.Message, args []string) {
	if len(args) != 2 {
		_ = s.telegramAPI.SendMessage(ctx, message.Chat.ID, "Usage: /promote <user> <chat>")
		return
	}
	outcome, chat, target, err := s.control.Promote(ctx, args[0], args[1], message.Chat.ID)
	if err != nil {
		s.logger.Warn("promote command failed", "chat", args[1], "target", args[0], "error", err)
		_ = s.telegramAPI.SendMessage(ctx, message.Chat.ID, DescribeFailure(chat, target, err))
		return
	}
	_ = s.telegramAPI.SendMessage(ctx, message.Chat.ID, s.describeOutcome(outcome, chat, target))
}

func (s *CommandService) describeOutcome(outcome Outcome, chat domain.Chat, target domain.User) string {
	if outcome.Status == OutcomeInvited {
		return fmt.Sprintf(
			"%s is not in %s. Sent a single-use invite link; waiting up to %s for it to join.",
			target.Label(), chat.Label(), s.timeout,
		)
	}
	names := outcome.Privileges.Names()
	if len(names) == 0 {
		return fmt.Sprintf("Promoted %s to admin in %s.", target.Label(), chat.Label())
	}
	return fmt.Sprintf("Promoted %s to admin in %s (%s).", target.Label(), chat.Label(), strings.Join(names, ", "))
}

func (s *CommandService) handlePromoteAll(ctx context.Context, message telegram.Message, args []string) {
	if len(args) != 1 {
		_ = s.telegramAPI.SendMessage(ctx, message.Chat.ID, "Usage: /promoteall <user>")
		return
	}
	_ = s.telegramAPI.SendMessage(ctx, message.Chat.ID, "Promoting in every registered chat...")
	report, target, err := s.control.PromoteAll(ctx, args[0], message.Chat.ID)
	if err != nil {
		s.logger.Error("promoteall command failed", "target", args[0], "error", err)
		_ = s.telegramAPI.SendMessage(ctx, message.Chat.ID, fmt.Sprintf("Bulk promotion of %s aborted: %v", target.Label(), err))
		return
	}
	_ = s.telegramAPI.SendMessage(ctx, message.Chat.ID, FormatBulkReport(target, report))
}

// FormatBulkReport renders the end-of-batch summary.
func FormatBulkReport(target domain.User, report BulkReport) string {
	if report.Total == 0 {
		return "No registered chats. Use /addchat first."
	}
	lines := []string{
		fmt.Sprintf("Bulk promotion of %s finished.", target.Label()),
		fmt.Sprintf("Promoted: %d", report.Succeeded),
		fmt.Sprintf("Failed: %d", report.Failed),
	}
	if report.Deferred > 0 {
		lines = append(lines, fmt.Sprintf("Waiting on invite: %d", report.Deferred))
	}
	if len(report.Errors) > 0 {
		lines = append(lines, "Errors:")
		for _, item := range report.Errors {
			lines = append(lines, "• "+item)
		}
		if hidden := report.Failed - len(report.Errors); hidden > 0 {
			lines = append(lines, fmt.Sprintf("...and %d more, see logs.", hidden))
		}
	}
	return strings.Join(lines, "\n")
}

func (s *CommandService) handleAddChat(ctx context.Context, message telegram.Message, args []string) {
	var (
		record domain.ChatRecord
		err    error
		chat   domain.Chat
	)
	switch {
	case len(args) == 1:
		chat = domain.Chat{Title: args[0]}
		record, err = s.control.AddChatByRef(ctx, args[0])
	case message.Chat.Type != "private":
		chat = message.Chat.Domain()
		record, err = s.control.AddChat(ctx, chat)
	default:
		_ = s.telegramAPI.SendMessage(ctx, message.Chat.ID, "Usage: /addchat <chat>, or send /addchat inside the group.")
		return
	}
	if err != nil {
		s.logger.Warn("addchat failed", "error", err)
		_ = s.telegramAPI.SendMessage(ctx, message.Chat.ID, "Could not register chat. "+DescribeFailure(chat, domain.User{}, err))
		return
	}
	_ = s.telegramAPI.SendMessage(ctx, message.Chat.ID, fmt.Sprintf("Registered %s (%d).", recordLabel(record), record.ChatID))
}

func (s *CommandService) handleChats(ctx context.Context, message telegram.Message) {
	records, err := s.control.ListChats(ctx)
	if err != nil {
		s.logger.Error("list chats failed", "error", err)
		_ = s.telegramAPI.SendMessage(ctx, message.Chat.ID, "Could not read the chat registry.")
		return
	}
	if len(records) == 0 {
		_ = s.telegramAPI.SendMessage(ctx, message.Chat.ID, "No registered chats.")
		return
	}
	lines := make([]string, 0, len(records)+1)
	lines = append(lines, fmt.Sprintf("Registered chats (%d):", len(records)))
	for _, record := range records {
		lines = append(lines, fmt.Sprintf("• %s [%s] %d", recordLabel(record), record.ChatType, record.ChatID))
	}
	_ = s.telegramAPI.SendMessage(ctx, message.Chat.ID, strings.Join(lines, "\n"))
}

func (s *CommandService) handleRefresh(ctx context.Context, message telegram.Message) {
	report, err := s.control.Refresh(ctx)
	s.replyRefresh(ctx, message, "Refresh", report, err)
}

func (s *CommandService) handleClean(ctx context.Context, message telegram.Message) {
	report, err := s.control.CleanInvalid(ctx)
	s.replyRefresh(ctx, message, "Cleanup", report, err)
}

func (s *CommandService) replyRefresh(ctx context.Context, message telegram.Message, label string, report RefreshReport, err error) {
	if err != nil {
		s.logger.Error("registry sweep failed", "label", label, "error", err)
		_ = s.telegramAPI.SendMessage(ctx, message.Chat.ID, label+" failed, check logs.")
		return
	}
	text := fmt.Sprintf("%s done. Checked %d, kept %d, removed %d.", label, report.Checked, report.Kept, report.Removed)
	if len(report.Errors) > 0 {
		text += "\nKept despite errors:\n• " + strings.Join(report.Errors, "\n• ")
	}
	_ = s.telegramAPI.SendMessage(ctx, message.Chat.ID, text)
}

func (s *CommandService) handleStartCheck(ctx context.Context, message telegram.Message) {
	if !s.control.StartSweep() {
		_ = s.telegramAPI.SendMessage(ctx, message.Chat.ID, "Periodic admin check is already running.")
		return
	}
	_ = s.telegramAPI.SendMessage(ctx, message.Chat.ID, "Periodic admin check started.")
}

func (s *CommandService) handlePending(ctx context.Context, message telegram.Message) {
	invites := s.control.PendingInvites()
	if len(invites) == 0 {
		_ = s.telegramAPI.SendMessage(ctx, message.Chat.ID, "No pending invites.")
		return
	}
	lines := make([]string, 0, len(invites)+1)
	lines = append(lines, "Pending invites:")
	for _, invite := range invites {
		left := time.Until(invite.ExpiresAt).Round(time.Second)
		if left < 0 {
			left = 0
		}
		lines = append(lines, fmt.Sprintf("• %s → %s (expires in %s)", invite.TargetLabel, invite.Chat().Label(), left))
	}
	_ = s.telegramAPI.SendMessage(ctx, message.Chat.ID, strings.Join(lines, "\n"))
}
