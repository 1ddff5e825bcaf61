package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hanamilabs/admin-promoter-bot/internal/domain"
)

func CheckConnectivity(ctx context.Context, botToken string, timeout time.Duration) error {
	_, err := NewAPI(botToken, timeout, 0).GetMe(ctx)
	return err
}

func (a *API) SendMessage(ctx context.Context, chatID int64, text string) error {
	body := map[string]any{"chat_id": chatID, "text": text, "disable_web_page_preview": true}
	return a.call(ctx, "sendMessage", body, nil)
}

func (a *API) GetMe(ctx context.Context) (domain.User, error) {
	var user User
	if err := a.call(ctx, "getMe", nil, &user); err != nil {
		return domain.User{}, err
	}
	return user.Domain(), nil
}

// GetChat accepts a numeric chat id or a public @username.
func (a *API) GetChat(ctx context.Context, chatRef string) (domain.Chat, error) {
	ref := strings.TrimSpace(chatRef)
	if ref == "" {
		return domain.Chat{}, fmt.Errorf("empty chat reference")
	}
	var chatID any = ref
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		chatID = id
	} else if !strings.HasPrefix(ref, "@") {
		chatID = "@" + ref
	}
	var chat Chat
	if err := a.call(ctx, "getChat", map[string]any{"chat_id": chatID}, &chat); err != nil {
		return domain.Chat{}, err
	}
	return chat.Domain(), nil
}

func (a *API) ResolveUsername(ctx context.Context, username string) (domain.User, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(username), "@")
	if clean == "" {
		return domain.User{}, fmt.Errorf("empty username")
	}
	var chat Chat
	if err := a.call(ctx, "getChat", map[string]any{"chat_id": "@" + clean}, &chat); err != nil {
		return domain.User{}, err
	}
	if chat.Type != "private" || chat.ID == 0 {
		return domain.User{}, fmt.Errorf("@%s is not a user account: %w", clean, domain.ErrUserNotFound)
	}
	return domain.User{ID: chat.ID, Username: chat.Username}, nil
}

func (a *API) GetChatMember(ctx context.Context, chatID int64, userID int64) (domain.ChatMember, error) {
	var member ChatMember
	body := map[string]any{"chat_id": chatID, "user_id": userID}
	if err := a.call(ctx, "getChatMember", body, &member); err != nil {
		return domain.ChatMember{}, err
	}
	return member.Domain(), nil
}

func (a *API) GetChatAdministrators(ctx context.Context, chatID int64) ([]domain.ChatMember, error) {
	var members []ChatMember
	if err := a.call(ctx, "getChatAdministrators", map[string]any{"chat_id": chatID}, &members); err != nil {
		return nil, err
	}
	out := make([]domain.ChatMember, 0, len(members))
	for _, member := range members {
		out = append(out, member.Domain())
	}
	return out, nil
}

func (a *API) PromoteChatMember(ctx context.Context, chatID int64, userID int64, privileges domain.PrivilegeSet) error {
	body := map[string]any{
		"chat_id":                chatID,
		"user_id":                userID,
		"can_manage_chat":        privileges.ManageChat,
		"can_delete_messages":    privileges.DeleteMessages,
		"can_manage_video_chats": privileges.ManageVideoChats,
		"can_restrict_members":   privileges.RestrictMembers,
		"can_promote_members":    privileges.PromoteMembers,
		"can_change_info":        privileges.ChangeInfo,
		"can_invite_users":       privileges.InviteUsers,
		"can_pin_messages":       privileges.PinMessages,
	}
	return a.call(ctx, "promoteChatMember", body, nil)
}

func (a *API) UnbanChatMember(ctx context.Context, chatID int64, userID int64) error {
	body := map[string]any{"chat_id": chatID, "user_id": userID, "only_if_banned": true}
	return a.call(ctx, "unbanChatMember", body, nil)
}

// AddChatMember always fails: the Bot API offers no way to add an account directly.
func (a *API) AddChatMember(_ context.Context, chatID int64, userID int64) error {
	return fmt.Errorf("add user %d to chat %d: %w", userID, chatID, domain.ErrDirectAddUnsupported)
}

func (a *API) CreateChatInviteLink(ctx context.Context, chatID int64, expireAt time.Time, memberLimit int) (string, error) {
	body := map[string]any{
		"chat_id":      chatID,
		"name":         "admin promotion",
		"expire_date":  expireAt.Unix(),
		"member_limit": memberLimit,
	}
	var link struct {
		InviteLink string `json:"invite_link"`
	}
	if err := a.call(ctx, "createChatInviteLink", body, &link); err != nil {
		return "", err
	}
	if strings.TrimSpace(link.InviteLink) == "" {
		return "", &domain.PlatformError{Code: http.StatusBadGateway, Description: "telegram returned empty invite link"}
	}
	return link.InviteLink, nil
}

func (u User) Domain() domain.User {
	return domain.User{ID: u.ID, Username: u.Username, IsBot: u.IsBot}
}

func (c Chat) Domain() domain.Chat {
	return domain.Chat{ID: c.ID, Type: c.Type, Title: c.Title, Username: c.Username}
}

func (m ChatMember) Domain() domain.ChatMember {
	member := domain.ChatMember{User: m.User.Domain(), Status: m.status()}
	switch member.Status {
	case domain.StatusCreator:
		member.Privileges = domain.FullPrivileges()
	case domain.StatusAdministrator:
		member.Privileges = domain.PrivilegeSet{
			ManageChat:       m.CanManageChat,
			DeleteMessages:   m.CanDeleteMessages,
			ManageVideoChats: m.CanManageVideoChats || m.CanManageVoiceChats,
			RestrictMembers:  m.CanRestrictMembers,
			PromoteMembers:   m.CanPromoteMembers,
			ChangeInfo:       m.CanChangeInfo,
			InviteUsers:      m.CanInviteUsers,
			PinMessages:      m.CanPinMessages,
		}
	}
	return member
}

// status maps a restricted account that is no longer in the chat to left.
func (m ChatMember) status() domain.MemberStatus {
	status := domain.MemberStatus(m.Status)
	if status == domain.StatusRestricted && !m.IsMember {
		return domain.StatusLeft
	}
	return status
}

// MemberUpdate converts a chat_member or my_chat_member payload.
func (u ChatMemberUpdated) MemberUpdate() domain.MemberUpdate {
	return domain.MemberUpdate{
		Chat:      u.Chat.Domain(),
		User:      u.NewChatMember.User.Domain(),
		OldStatus: u.OldChatMember.status(),
		NewStatus: u.NewChatMember.status(),
	}
}

// JoinUpdates turns a service message about new members into membership updates.
func (m Message) JoinUpdates() []domain.MemberUpdate {
	out := make([]domain.MemberUpdate, 0, len(m.NewChatMembers))
	for _, user := range m.NewChatMembers {
		out = append(out, domain.MemberUpdate{
			Chat:      m.Chat.Domain(),
			User:      user.Domain(),
			OldStatus: domain.StatusLeft,
			NewStatus: domain.StatusMember,
		})
	}
	return out
}
