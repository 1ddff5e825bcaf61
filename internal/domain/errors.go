package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	ErrRateLimited          = errors.New("rate limited")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrAdminInviteRequired  = errors.New("admin invite required")
	ErrChatNotFound         = errors.New("chat not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrNotParticipant       = errors.New("user is not a participant")
	ErrDirectAddUnsupported = errors.New("direct add not supported")
	ErrUnbanFailed          = errors.New("unban failed")
)

// PlatformError is an error returned by the chat platform API.
type PlatformError struct {
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *PlatformError) Error() string {
	if e.Code == 0 {
		return e.Description
	}
	return fmt.Sprintf("%s (code %d)", e.Description, e.Code)
}

func (e *PlatformError) Is(target error) bool {
	kind := e.kind()
	return kind != nil && kind == target
}

func (e *PlatformError) kind() error {
	if e.Code == http.StatusTooManyRequests || e.RetryAfter > 0 {
		return ErrRateLimited
	}
	desc := strings.ToLower(e.Description)
	switch {
	case containsAny(desc, "chat_admin_invite_required", "admin invite required", "not enough rights to invite"):
		return ErrAdminInviteRequired
	case containsAny(desc, "user_not_participant", "member not found", "user is not a member", "participant not found"):
		return ErrNotParticipant
	case containsAny(desc, "chat not found", "channel_invalid", "chat_id_invalid", "peer_id_invalid", "bot was kicked", "bot is not a member", "group chat was upgraded"):
		return ErrChatNotFound
	case containsAny(desc, "user not found", "user_id_invalid", "participant_id_invalid", "invalid user_id"):
		return ErrUserNotFound
	case containsAny(desc, "can't add", "bots can't add", "user_privacy_restricted", "user_not_mutual_contact", "method is available only for supergroups"):
		return ErrDirectAddUnsupported
	case containsAny(desc, "not enough rights", "chat_admin_required", "right_forbidden", "need administrator rights", "have no rights", "can't promote", "can't demote"):
		return ErrPermissionDenied
	}
	if e.Code == http.StatusForbidden {
		return ErrPermissionDenied
	}
	return nil
}

func containsAny(value string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(value, needle) {
			return true
		}
	}
	return false
}

// RetryAfter extracts the server-mandated wait from a rate-limit error.
// A rate limit without a positive wait reports false.
func RetryAfter(err error) (time.Duration, bool) {
	var platformErr *PlatformError
	if !errors.As(err, &platformErr) || !errors.Is(err, ErrRateLimited) || platformErr.RetryAfter <= 0 {
		return 0, false
	}
	return platformErr.RetryAfter, true
}

func IsPermissionError(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrAdminInviteRequired)
}

// IsTransient reports whether retrying the same call could succeed: rate limits,
// 5xx platform responses and transport errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var refusal *RefusalError
	if errors.As(err, &refusal) {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var platformErr *PlatformError
	if errors.As(err, &platformErr) {
		return platformErr.Code >= http.StatusInternalServerError
	}
	for _, permanent := range []error{
		ErrPermissionDenied,
		ErrAdminInviteRequired,
		ErrChatNotFound,
		ErrUserNotFound,
		ErrNotParticipant,
		ErrDirectAddUnsupported,
		ErrUnbanFailed,
	} {
		if errors.Is(err, permanent) {
			return false
		}
	}
	return true
}

// RefusalError means the operating bot is not eligible to promote in a chat.
type RefusalError struct {
	ChatID  int64
	Reason  string
	Missing []Privilege
	Err     error
}

func (e *RefusalError) Error() string {
	msg := fmt.Sprintf("cannot promote in chat %d: %s", e.ChatID, e.Reason)
	if len(e.Missing) > 0 {
		msg += " (missing " + e.MissingNames() + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RefusalError) Unwrap() error {
	return e.Err
}

func (e *RefusalError) MissingNames() string {
	parts := make([]string, 0, len(e.Missing))
	for _, privilege := range e.Missing {
		parts = append(parts, string(privilege))
	}
	return strings.Join(parts, ", ")
}
