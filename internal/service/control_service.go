package service

import (
	"context"

	"github.com/hanamilabs/admin-promoter-bot/internal/domain"
)

// ControlService is the operator-facing facade shared by Telegram commands and the HTTP control server.
type ControlService struct {
	resolve    *ResolveService
	registry   *RegistryService
	promotions *PromotionService
	invites    *InviteTracker
	sweeper    *AdminSweeper
	runCtx     context.Context
}

func NewControlService(
	runCtx context.Context,
	resolve *ResolveService,
	registry *RegistryService,
	promotions *PromotionService,
	invites *InviteTracker,
	sweeper *AdminSweeper,
) *ControlService {
	return &ControlService{
		resolve:    resolve,
		registry:   registry,
		promotions: promotions,
		invites:    invites,
		sweeper:    sweeper,
		runCtx:     runCtx,
	}
}

func (s *ControlService) AddChat(ctx context.Context, chat domain.Chat) (domain.ChatRecord, error) {
	return s.registry.AddChat(ctx, chat)
}

func (s *ControlService) AddChatByRef(ctx context.Context, chatRef string) (domain.ChatRecord, error) {
	chat, err := s.resolve.Chat(ctx, chatRef)
	if err != nil {
		return domain.ChatRecord{}, err
	}
	return s.registry.AddChat(ctx, chat)
}

func (s *ControlService) ListChats(ctx context.Context) ([]domain.ChatRecord, error) {
	return s.registry.List(ctx)
}

func (s *ControlService) Refresh(ctx context.Context) (RefreshReport, error) {
	return s.registry.Refresh(ctx)
}

func (s *ControlService) CleanInvalid(ctx context.Context) (RefreshReport, error) {
	return s.registry.CleanInvalid(ctx)
}

// Promote resolves both references, then runs the single-chat workflow.
// The returned chat and target are filled as far as resolution got.
func (s *ControlService) Promote(ctx context.Context, targetRef string, chatRef string, operatorChatID int64) (Outcome, domain.Chat, domain.User, error) {
	target, err := s.resolve.Target(ctx, targetRef)
	if err != nil {
		return Outcome{}, domain.Chat{Title: chatRef}, domain.User{Username: targetRef}, err
	}
	chat, err := s.resolve.Chat(ctx, chatRef)
	if err != nil {
		return Outcome{}, domain.Chat{Title: chatRef}, target, err
	}
	outcome, err := s.promotions.Promote(ctx, MembershipRequest{Chat: chat, Target: target, OperatorChatID: operatorChatID})
	return outcome, chat, target, err
}

func (s *ControlService) PromoteAll(ctx context.Context, targetRef string, operatorChatID int64) (BulkReport, domain.User, error) {
	target, err := s.resolve.Target(ctx, targetRef)
	if err != nil {
		return BulkReport{}, domain.User{Username: targetRef}, err
	}
	report, err := s.promotions.PromoteAll(ctx, target, operatorChatID)
	return report, target, err
}

// StartSweep starts the periodic admin check on the process context.
func (s *ControlService) StartSweep() bool {
	return s.sweeper.Start(s.runCtx)
}

func (s *ControlService) SweepRunning() bool {
	return s.sweeper.Running()
}

func (s *ControlService) PendingInvites() []domain.PendingInvite {
	return s.invites.List()
}

func (s *ControlService) RememberUser(user domain.User) {
	s.resolve.Remember(user)
}
