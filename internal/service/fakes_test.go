package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hanamilabs/admin-promoter-bot/internal/domain"
)

const (
	testSelfID     int64 = 900
	testTargetID   int64 = 42
	testOperatorID int64 = 7
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noSleep(context.Context, time.Duration) error { return nil }

func testRetry(maxAttempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, Backoff: FixedBackoff(time.Millisecond), Sleep: noSleep}
}

func notParticipant() error {
	return &domain.PlatformError{Code: 400, Description: "Bad Request: USER_NOT_PARTICIPANT"}
}

func chatNotFound() error {
	return &domain.PlatformError{Code: 400, Description: "Bad Request: chat not found"}
}

func rateLimited(wait time.Duration) error {
	return &domain.PlatformError{Code: 429, Description: "Too Many Requests: retry later", RetryAfter: wait}
}

func adminInviteRequired() error {
	return &domain.PlatformError{Code: 400, Description: "Bad Request: CHAT_ADMIN_INVITE_REQUIRED"}
}

func serverError() error {
	return &domain.PlatformError{Code: 502, Description: "Bad Gateway"}
}

type promoteCall struct {
	ChatID     int64
	UserID     int64
	Privileges domain.PrivilegeSet
}

type sentMessage struct {
	ChatID int64
	Text   string
}

type inviteCall struct {
	ChatID      int64
	ExpireAt    time.Time
	MemberLimit int
}

// fakePlatform is an in-memory chat platform. Queued errors are consumed
// before the stored state is consulted.
type fakePlatform struct {
	mu sync.Mutex

	chats       map[int64]domain.Chat
	chatErrs    map[int64]error
	members     map[inviteKey]domain.ChatMember
	memberErrs  map[inviteKey][]error
	admins      map[int64][]domain.ChatMember
	promoteErrs map[inviteKey][]error
	unbanErrs   []error
	addErr      error
	sendErrs    map[int64]error
	usernames   map[string]domain.User

	memberCalls map[inviteKey]int
	promotes    []promoteCall
	unbans      []inviteKey
	invites     []inviteCall
	sent        []sentMessage
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		chats:       map[int64]domain.Chat{},
		chatErrs:    map[int64]error{},
		members:     map[inviteKey]domain.ChatMember{},
		memberErrs:  map[inviteKey][]error{},
		admins:      map[int64][]domain.ChatMember{},
		promoteErrs: map[inviteKey][]error{},
		addErr:      domain.ErrDirectAddUnsupported,
		sendErrs:    map[int64]error{},
		usernames:   map[string]domain.User{},
		memberCalls: map[inviteKey]int{},
	}
}

func (f *fakePlatform) addChat(chat domain.Chat) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats[chat.ID] = chat
}

func (f *fakePlatform) setMember(chatID int64, userID int64, status domain.MemberStatus, privileges domain.PrivilegeSet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[inviteKey{chatID: chatID, userID: userID}] = domain.ChatMember{
		User:       domain.User{ID: userID},
		Status:     status,
		Privileges: privileges,
	}
}

// setBotAdmin registers the chat and makes the bot an administrator with privileges.
func (f *fakePlatform) setBotAdmin(chat domain.Chat, privileges domain.PrivilegeSet) {
	f.addChat(chat)
	f.setMember(chat.ID, testSelfID, domain.StatusAdministrator, privileges)
}

func (f *fakePlatform) queueMemberErr(chatID int64, userID int64, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := inviteKey{chatID: chatID, userID: userID}
	f.memberErrs[key] = append(f.memberErrs[key], errs...)
}

func (f *fakePlatform) queuePromoteErr(chatID int64, userID int64, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := inviteKey{chatID: chatID, userID: userID}
	f.promoteErrs[key] = append(f.promoteErrs[key], errs...)
}

func (f *fakePlatform) promoteCalls() []promoteCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]promoteCall(nil), f.promotes...)
}

func (f *fakePlatform) promoteCallsFor(userID int64) []promoteCall {
	out := make([]promoteCall, 0)
	for _, call := range f.promoteCalls() {
		if call.UserID == userID {
			out = append(out, call)
		}
	}
	return out
}

func (f *fakePlatform) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakePlatform) messagesTo(chatID int64) []string {
	out := make([]string, 0)
	for _, message := range f.messages() {
		if message.ChatID == chatID {
			out = append(out, message.Text)
		}
	}
	return out
}

func (f *fakePlatform) inviteCalls() []inviteCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]inviteCall(nil), f.invites...)
}

func (f *fakePlatform) memberCallCount(chatID int64, userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.memberCalls[inviteKey{chatID: chatID, userID: userID}]
}

func (f *fakePlatform) SendMessage(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.sendErrs[chatID]; err != nil {
		return err
	}
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (f *fakePlatform) GetMe(context.Context) (domain.User, error) {
	return domain.User{ID: testSelfID, Username: "promoter_bot", IsBot: true}, nil
}

func (f *fakePlatform) GetChat(_ context.Context, chatRef string) (domain.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, chat := range f.chats {
		if chatRef == formatID(id) || (chat.Username != "" && strings.EqualFold(strings.TrimPrefix(chatRef, "@"), chat.Username)) {
			if err := f.chatErrs[id]; err != nil {
				return domain.Chat{}, err
			}
			return chat, nil
		}
	}
	for id, err := range f.chatErrs {
		if chatRef == formatID(id) {
			return domain.Chat{}, err
		}
	}
	return domain.Chat{}, chatNotFound()
}

func (f *fakePlatform) ResolveUsername(_ context.Context, username string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.usernames[strings.ToLower(strings.TrimPrefix(username, "@"))]
	if !ok {
		return domain.User{}, &domain.PlatformError{Code: 400, Description: "Bad Request: user not found"}
	}
	return user, nil
}

func (f *fakePlatform) GetChatMember(_ context.Context, chatID int64, userID int64) (domain.ChatMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := inviteKey{chatID: chatID, userID: userID}
	f.memberCalls[key]++
	if queued := f.memberErrs[key]; len(queued) > 0 {
		f.memberErrs[key] = queued[1:]
		return domain.ChatMember{}, queued[0]
	}
	if member, ok := f.members[key]; ok {
		return member, nil
	}
	return domain.ChatMember{User: domain.User{ID: userID}, Status: domain.StatusLeft}, nil
}

func (f *fakePlatform) GetChatAdministrators(_ context.Context, chatID int64) ([]domain.ChatMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ChatMember(nil), f.admins[chatID]...), nil
}

func (f *fakePlatform) PromoteChatMember(_ context.Context, chatID int64, userID int64, privileges domain.PrivilegeSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := inviteKey{chatID: chatID, userID: userID}
	f.promotes = append(f.promotes, promoteCall{ChatID: chatID, UserID: userID, Privileges: privileges})
	if queued := f.promoteErrs[key]; len(queued) > 0 {
		f.promoteErrs[key] = queued[1:]
		return queued[0]
	}
	status := domain.StatusAdministrator
	if privileges.IsZero() {
		status = domain.StatusMember
	}
	f.members[key] = domain.ChatMember{User: domain.User{ID: userID}, Status: status, Privileges: privileges}
	return nil
}

func (f *fakePlatform) UnbanChatMember(_ context.Context, chatID int64, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := inviteKey{chatID: chatID, userID: userID}
	f.unbans = append(f.unbans, key)
	if len(f.unbanErrs) > 0 {
		err := f.unbanErrs[0]
		f.unbanErrs = f.unbanErrs[1:]
		return err
	}
	f.members[key] = domain.ChatMember{User: domain.User{ID: userID}, Status: domain.StatusLeft}
	return nil
}

func (f *fakePlatform) AddChatMember(_ context.Context, chatID int64, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.members[inviteKey{chatID: chatID, userID: userID}] = domain.ChatMember{User: domain.User{ID: userID}, Status: domain.StatusMember}
	return nil
}

func (f *fakePlatform) CreateChatInviteLink(_ context.Context, chatID int64, expireAt time.Time, memberLimit int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invites = append(f.invites, inviteCall{ChatID: chatID, ExpireAt: expireAt, MemberLimit: memberLimit})
	return "https://t.me/+invite" + formatID(int64(len(f.invites))), nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// memoryRegistry is an in-memory ports.ChatRegistry.
type memoryRegistry struct {
	mu    sync.Mutex
	chats map[int64]domain.ChatRecord
}

func newMemoryRegistry(records ...domain.ChatRecord) *memoryRegistry {
	registry := &memoryRegistry{chats: map[int64]domain.ChatRecord{}}
	for _, record := range records {
		registry.chats[record.ChatID] = record
	}
	return registry
}

func (r *memoryRegistry) UpsertChat(_ context.Context, record domain.ChatRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats[record.ChatID] = record
	return nil
}

func (r *memoryRegistry) ListChats(context.Context) ([]domain.ChatRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ChatRecord, 0, len(r.chats))
	for _, record := range r.chats {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out, nil
}

func (r *memoryRegistry) DeleteChat(_ context.Context, chatID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.chats, chatID)
	return nil
}

func (r *memoryRegistry) Close() error { return nil }

func (r *memoryRegistry) has(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.chats[chatID]
	return ok
}
