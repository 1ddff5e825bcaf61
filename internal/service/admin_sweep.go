package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AdminSweeper periodically revalidates the registry.
type AdminSweeper struct {
	logger   *slog.Logger
	registry *RegistryService
	interval time.Duration

	mu      sync.Mutex
	running bool
	lastRun time.Time
	last    RefreshReport
}

func NewAdminSweeper(logger *slog.Logger, registry *RegistryService, interval time.Duration) *AdminSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &AdminSweeper{logger: logger, registry: registry, interval: interval}
}

// Start launches the sweep loop bound to ctx. It returns false when already running.
func (s *AdminSweeper) Start(ctx context.Context) bool {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return false
	}
	s.running = true
	s.mu.Unlock()

	go s.loop(ctx)
	s.logger.Info("admin sweep started", "interval", s.interval)
	return true
}

func (s *AdminSweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *AdminSweeper) LastRun() (time.Time, RefreshReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.last
}

func (s *AdminSweeper) loop(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.logger.Info("admin sweep stopped")
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *AdminSweeper) runOnce(ctx context.Context) {
	report, err := s.registry.Refresh(ctx)
	if err != nil {
		s.logger.Error("admin sweep failed", "error", err)
		return
	}
	s.mu.Lock()
	s.lastRun = time.Now()
	s.last = report
	s.mu.Unlock()
	s.logger.Info("admin sweep finished", "checked", report.Checked, "kept", report.Kept, "removed", report.Removed)
}
