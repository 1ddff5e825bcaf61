package domain

import (
	"fmt"
	"strings"
	"time"
)

type ChatType string

const (
	ChatTypeGroup      ChatType = "group"
	ChatTypeSupergroup ChatType = "supergroup"
	ChatTypeChannel    ChatType = "channel"
)

// ParseChatType accepts only the chat kinds the registry tracks.
func ParseChatType(value string) (ChatType, bool) {
	switch ChatType(strings.ToLower(strings.TrimSpace(value))) {
	case ChatTypeGroup:
		return ChatTypeGroup, true
	case ChatTypeSupergroup:
		return ChatTypeSupergroup, true
	case ChatTypeChannel:
		return ChatTypeChannel, true
	default:
		return "", false
	}
}

type ChatRecord struct {
	ChatID    int64    `json:"chat_id"`
	ChatType  ChatType `json:"chat_type"`
	ChatTitle string   `json:"chat_title"`
}

type Chat struct {
	ID       int64
	Type     string
	Title    string
	Username string
}

func (c Chat) Label() string {
	if strings.TrimSpace(c.Title) != "" {
		return c.Title
	}
	return fmt.Sprintf("%d", c.ID)
}

// Record returns the registry row for the chat, or false for private chats.
func (c Chat) Record() (ChatRecord, bool) {
	chatType, ok := ParseChatType(c.Type)
	if !ok {
		return ChatRecord{}, false
	}
	return ChatRecord{ChatID: c.ID, ChatType: chatType, ChatTitle: c.Title}, true
}

type User struct {
	ID       int64
	Username string
	IsBot    bool
}

func (u User) Label() string {
	if strings.TrimSpace(u.Username) != "" {
		return "@" + strings.TrimPrefix(u.Username, "@")
	}
	return fmt.Sprintf("%d", u.ID)
}

type MemberStatus string

const (
	StatusCreator       MemberStatus = "creator"
	StatusAdministrator MemberStatus = "administrator"
	StatusMember        MemberStatus = "member"
	StatusRestricted    MemberStatus = "restricted"
	StatusLeft          MemberStatus = "left"
	StatusKicked        MemberStatus = "kicked"
)

func (s MemberStatus) IsAdmin() bool {
	return s == StatusCreator || s == StatusAdministrator
}

// IsPresent reports whether the account currently belongs to the chat.
func (s MemberStatus) IsPresent() bool {
	switch s {
	case StatusCreator, StatusAdministrator, StatusMember, StatusRestricted:
		return true
	default:
		return false
	}
}

type ChatMember struct {
	User       User
	Status     MemberStatus
	Privileges PrivilegeSet
}

// MemberUpdate is a membership-change notification for one account in one chat.
type MemberUpdate struct {
	Chat      Chat
	User      User
	OldStatus MemberStatus
	NewStatus MemberStatus
}

type PendingInvite struct {
	ID             string
	ChatID         int64
	ChatTitle      string
	TargetUserID   int64
	TargetLabel    string
	InviteLink     string
	ExpiresAt      time.Time
	OperatorChatID int64
}

func (p PendingInvite) Chat() Chat {
	return Chat{ID: p.ChatID, Title: p.ChatTitle}
}

func (p PendingInvite) Target() User {
	user := User{ID: p.TargetUserID}
	if strings.HasPrefix(p.TargetLabel, "@") {
		user.Username = strings.TrimPrefix(p.TargetLabel, "@")
	}
	return user
}
