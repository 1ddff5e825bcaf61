package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hanamilabs/admin-promoter-bot/internal/config"
	"github.com/hanamilabs/admin-promoter-bot/internal/domain"
	"github.com/hanamilabs/admin-promoter-bot/internal/service"
)

var ErrServerClosed = http.ErrServerClosed

// HealthServer serves /health and the operator control endpoints.
type HealthServer struct {
	cfg           config.Config
	logger        *slog.Logger
	httpServer    *http.Server
	startedAt     time.Time
	checkTelegram func(context.Context) error
	controlSvc    *service.ControlService
}

type serviceCheck struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type healthResponse struct {
	UptimeSeconds   int64        `json:"uptimeSeconds"`
	Telegram        serviceCheck `json:"telegram"`
	Registry        serviceCheck `json:"registry"`
	RegisteredChats int          `json:"registeredChats"`
	PendingInvites  int          `json:"pendingInvites"`
	AdminSweep      bool         `json:"adminSweepRunning"`
}

type pendingInviteView struct {
	ID           string    `json:"id"`
	ChatID       int64     `json:"chatId"`
	ChatTitle    string    `json:"chatTitle"`
	TargetUserID int64     `json:"targetUserId"`
	TargetLabel  string    `json:"target"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func NewHealthServer(cfg config.Config, logger *slog.Logger, checkTelegram func(context.Context) error) *HealthServer {
	server := &HealthServer{cfg: cfg, logger: logger, startedAt: time.Now(), checkTelegram: checkTelegram}
	server.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HealthPort),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server
}

func (s *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/command/chats", s.commandChatsHandler)
	mux.HandleFunc("/command/addchat", s.commandAddChatHandler)
	mux.HandleFunc("/command/promote", s.commandPromoteHandler)
	mux.HandleFunc("/command/promote-all", s.commandPromoteAllHandler)
	mux.HandleFunc("/command/refresh", s.commandRefreshHandler)
	mux.HandleFunc("/command/clean", s.commandCleanHandler)
	mux.HandleFunc("/command/startcheck", s.commandStartCheckHandler)
	mux.HandleFunc("/command/pending", s.commandPendingHandler)
	return mux
}

func (s *HealthServer) SetControlService(control *service.ControlService) {
	s.controlSvc = control
}

func (s *HealthServer) commandChatsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	chats, err := s.controlSvc.ListChats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

func (s *HealthServer) commandAddChatHandler(w http.ResponseWriter, r *http.Request) {
	payload, ok := s.parsePayload(w, r)
	if !ok {
		return
	}
	chatRef := payload.ref("chat", "chatId")
	if chatRef == "" {
		http.Error(w, "chat is required", http.StatusBadRequest)
		return
	}
	record, err := s.controlSvc.AddChatByRef(r.Context(), chatRef)
	if err != nil {
		s.writeFailure(w, domain.Chat{Title: chatRef}, domain.User{}, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"message": "chat registered", "chat": record})
}

func (s *HealthServer) commandPromoteHandler(w http.ResponseWriter, r *http.Request) {
	payload, ok := s.parsePayload(w, r)
	if !ok {
		return
	}
	chatRef := payload.ref("chat", "chatId")
	targetRef := payload.ref("target", "targetUserId")
	if chatRef == "" || targetRef == "" {
		http.Error(w, "chatId and target are required", http.StatusBadRequest)
		return
	}
	outcome, chat, target, err := s.controlSvc.Promote(r.Context(), targetRef, chatRef, s.cfg.OperatorChatID())
	if err != nil {
		s.writeFailure(w, chat, target, err)
		return
	}
	status := http.StatusOK
	if outcome.Status == service.OutcomeInvited {
		status = http.StatusAccepted
	}
	s.writeJSON(w, status, outcome)
}

func (s *HealthServer) commandPromoteAllHandler(w http.ResponseWriter, r *http.Request) {
	payload, ok := s.parsePayload(w, r)
	if !ok {
		return
	}
	targetRef := payload.ref("target", "targetUserId")
	if targetRef == "" {
		http.Error(w, "target is required", http.StatusBadRequest)
		return
	}
	report, target, err := s.controlSvc.PromoteAll(r.Context(), targetRef, s.cfg.OperatorChatID())
	if err != nil {
		s.writeFailure(w, domain.Chat{Title: "registry"}, target, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *HealthServer) commandRefreshHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	report, err := s.controlSvc.Refresh(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *HealthServer) commandCleanHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	report, err := s.controlSvc.CleanInvalid(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *HealthServer) commandStartCheckHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	started := s.controlSvc.StartSweep()
	message := "admin sweep started"
	if !started {
		message = "admin sweep already running"
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"message": message, "started": started})
}

func (s *HealthServer) commandPendingHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	invites := s.controlSvc.PendingInvites()
	views := make([]pendingInviteView, 0, len(invites))
	for _, invite := range invites {
		views = append(views, pendingInviteView{
			ID:           invite.ID,
			ChatID:       invite.ChatID,
			ChatTitle:    invite.ChatTitle,
			TargetUserID: invite.TargetUserID,
			TargetLabel:  invite.TargetLabel,
			ExpiresAt:    invite.ExpiresAt,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"pending": views})
}

type commandPayload map[string]any

// ref returns the first non-empty key as a string, accepting JSON numbers.
func (p commandPayload) ref(keys ...string) string {
	for _, key := range keys {
		switch v := p[key].(type) {
		case string:
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		case float64:
			if id, ok := parseInt64Any(v); ok && id != 0 {
				return strconv.FormatInt(id, 10)
			}
		}
	}
	return ""
}

func (s *HealthServer) requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if s.controlSvc == nil {
		http.Error(w, "control service unavailable", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (s *HealthServer) parsePayload(w http.ResponseWriter, r *http.Request) (commandPayload, bool) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return nil, false
	}
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return nil, false
	}
	return commandPayload(payload), true
}

func (s *HealthServer) writeFailure(w http.ResponseWriter, chat domain.Chat, target domain.User, err error) {
	status := http.StatusUnprocessableEntity
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	s.logger.Warn("control command failed", "chat", chat.Label(), "error", err)
	s.writeJSON(w, status, map[string]string{"error": service.DescribeFailure(chat, target, err)})
}

func parseInt64Any(value any) (int64, bool) {
	switch v := value.(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func (s *HealthServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode json response failed", "error", err)
	}
}

func (s *HealthServer) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *HealthServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res := healthResponse{UptimeSeconds: int64(time.Since(s.startedAt).Seconds())}
	if s.checkTelegram != nil {
		res.Telegram = checkFromErr(s.checkTelegram(ctx))
	}
	if s.controlSvc != nil {
		chats, err := s.controlSvc.ListChats(ctx)
		res.Registry = checkFromErr(err)
		res.RegisteredChats = len(chats)
		res.PendingInvites = len(s.controlSvc.PendingInvites())
		res.AdminSweep = s.controlSvc.SweepRunning()
	}

	s.writeJSON(w, http.StatusOK, res)
}

func checkFromErr(err error) serviceCheck {
	if err == nil {
		return serviceCheck{OK: true}
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		msg = "unknown error"
	}
	return serviceCheck{OK: false, Error: msg}
}

func IsServerClosed(err error) bool {
	return errors.Is(err, ErrServerClosed)
}
