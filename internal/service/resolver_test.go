package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hanamilabs/admin-promoter-bot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestResolver(platform *fakePlatform, tracker *InviteTracker) *MembershipResolver {
	resolver := NewMembershipResolver(testLogger(), platform, tracker, time.Minute)
	resolver.now = func() time.Time { return testNow }
	resolver.unbanRetry.Sleep = noSleep
	return resolver
}

func testRequest(chatType string) MembershipRequest {
	return MembershipRequest{
		Chat:           domain.Chat{ID: testChatID, Type: chatType, Title: "Ops"},
		Target:         domain.User{ID: testTargetID, Username: "alice"},
		OperatorChatID: testOperatorID,
	}
}

func TestEnsurePresentMember(t *testing.T) {
	platform := newFakePlatform()
	platform.setMember(testChatID, testTargetID, domain.StatusRestricted, domain.PrivilegeSet{})
	tracker := NewInviteTracker(testLogger(), time.Hour)

	presence, err := newTestResolver(platform, tracker).EnsurePresent(context.Background(), testRequest("supergroup"))
	require.NoError(t, err)
	assert.Equal(t, PresenceMember, presence)
	assert.Empty(t, platform.inviteCalls())
}

func TestEnsurePresentDirectAdd(t *testing.T) {
	platform := newFakePlatform()
	platform.addErr = nil
	tracker := NewInviteTracker(testLogger(), time.Hour)

	presence, err := newTestResolver(platform, tracker).EnsurePresent(context.Background(), testRequest("group"))
	require.NoError(t, err)
	assert.Equal(t, PresenceMember, presence)
	assert.Zero(t, tracker.Len())
}

func TestEnsurePresentIssuesSingleUseInvite(t *testing.T) {
	platform := newFakePlatform()
	tracker := NewInviteTracker(testLogger(), time.Hour)

	presence, err := newTestResolver(platform, tracker).EnsurePresent(context.Background(), testRequest("supergroup"))
	require.NoError(t, err)
	assert.Equal(t, PresenceInvited, presence)

	calls := platform.inviteCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, 1, calls[0].MemberLimit)
	assert.Equal(t, testNow.Add(time.Minute), calls[0].ExpireAt)

	pending, ok := tracker.Pending(testChatID, testTargetID)
	require.True(t, ok)
	assert.Equal(t, "@alice", pending.TargetLabel)
	assert.Equal(t, int64(testOperatorID), pending.OperatorChatID)
	assert.NotEmpty(t, pending.ID)

	dms := platform.messagesTo(testTargetID)
	require.Len(t, dms, 1)
	assert.Contains(t, dms[0], pending.InviteLink)
	assert.Empty(t, platform.messagesTo(testOperatorID))
}

func TestEnsurePresentChannelSkipsDirectAdd(t *testing.T) {
	platform := newFakePlatform()
	platform.addErr = nil
	tracker := NewInviteTracker(testLogger(), time.Hour)

	presence, err := newTestResolver(platform, tracker).EnsurePresent(context.Background(), testRequest("channel"))
	require.NoError(t, err)
	assert.Equal(t, PresenceInvited, presence)
}

func TestEnsurePresentFallsBackToOperatorDelivery(t *testing.T) {
	platform := newFakePlatform()
	platform.sendErrs[testTargetID] = &domain.PlatformError{Code: 403, Description: "Forbidden: bot can't initiate conversation with a user"}
	tracker := NewInviteTracker(testLogger(), time.Hour)

	presence, err := newTestResolver(platform, tracker).EnsurePresent(context.Background(), testRequest("supergroup"))
	require.NoError(t, err)
	assert.Equal(t, PresenceInvited, presence)

	operator := platform.messagesTo(testOperatorID)
	require.Len(t, operator, 1)
	assert.True(t, strings.Contains(operator[0], "https://t.me/+invite1"))
	assert.Contains(t, operator[0], "@alice")
}

func TestEnsurePresentUnbansKickedTarget(t *testing.T) {
	platform := newFakePlatform()
	platform.setMember(testChatID, testTargetID, domain.StatusKicked, domain.PrivilegeSet{})
	tracker := NewInviteTracker(testLogger(), time.Hour)

	presence, err := newTestResolver(platform, tracker).EnsurePresent(context.Background(), testRequest("supergroup"))
	require.NoError(t, err)
	assert.Equal(t, PresenceInvited, presence)
	assert.Len(t, platform.unbans, 1)
}

func TestEnsurePresentUnbanFailure(t *testing.T) {
	platform := newFakePlatform()
	platform.setMember(testChatID, testTargetID, domain.StatusKicked, domain.PrivilegeSet{})
	platform.unbanErrs = []error{serverError(), serverError(), serverError()}
	tracker := NewInviteTracker(testLogger(), time.Hour)

	_, err := newTestResolver(platform, tracker).EnsurePresent(context.Background(), testRequest("supergroup"))
	assert.True(t, errors.Is(err, domain.ErrUnbanFailed))
	assert.Len(t, platform.unbans, 3)
	assert.Zero(t, tracker.Len())
}

func TestEnsurePresentNotParticipantCountsAsAbsent(t *testing.T) {
	platform := newFakePlatform()
	platform.queueMemberErr(testChatID, testTargetID, notParticipant())
	tracker := NewInviteTracker(testLogger(), time.Hour)

	presence, err := newTestResolver(platform, tracker).EnsurePresent(context.Background(), testRequest("supergroup"))
	require.NoError(t, err)
	assert.Equal(t, PresenceInvited, presence)
}

func TestEnsurePresentLookupFailure(t *testing.T) {
	platform := newFakePlatform()
	platform.queueMemberErr(testChatID, testTargetID, chatNotFound())
	tracker := NewInviteTracker(testLogger(), time.Hour)

	_, err := newTestResolver(platform, tracker).EnsurePresent(context.Background(), testRequest("supergroup"))
	assert.ErrorIs(t, err, domain.ErrChatNotFound)
}
