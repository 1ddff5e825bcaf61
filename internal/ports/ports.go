package ports

import (
	"context"
	"time"

	"github.com/hanamilabs/admin-promoter-bot/internal/domain"
)

type ChatRegistry interface {
	UpsertChat(ctx context.Context, record domain.ChatRecord) error
	ListChats(ctx context.Context) ([]domain.ChatRecord, error)
	DeleteChat(ctx context.Context, chatID int64) error
	Close() error
}

type TelegramClient interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// ChatPlatform is the subset of the Bot API the promoter drives.
type ChatPlatform interface {
	TelegramClient
	GetMe(ctx context.Context) (domain.User, error)
	GetChat(ctx context.Context, chatRef string) (domain.Chat, error)
	ResolveUsername(ctx context.Context, username string) (domain.User, error)
	GetChatMember(ctx context.Context, chatID int64, userID int64) (domain.ChatMember, error)
	GetChatAdministrators(ctx context.Context, chatID int64) ([]domain.ChatMember, error)
	PromoteChatMember(ctx context.Context, chatID int64, userID int64, privileges domain.PrivilegeSet) error
	UnbanChatMember(ctx context.Context, chatID int64, userID int64) error
	AddChatMember(ctx context.Context, chatID int64, userID int64) error
	CreateChatInviteLink(ctx context.Context, chatID int64, expireAt time.Time, memberLimit int) (string, error)
}
