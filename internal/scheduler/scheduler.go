// Package scheduler по таймерам открывает и закрывает аукционы.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/vehicle-auction/internal/auction"
	"github.com/mmeshcher/vehicle-auction/internal/clock"
	"github.com/mmeshcher/vehicle-auction/internal/model"
)

// Registry описывает операции реестра, нужные планировщику.
type Registry interface {
	Activate(ctx context.Context, id string) (model.Timing, error)
	CloseDue(ctx context.Context, id string) (model.Timing, error)
	Timings() []model.Timing
}

type action int

const (
	actionActivate action = iota
	actionClose
)

func (a action) String() string {
	if a == actionActivate {
		return "activate"
	}
	return "close"
}

type entry struct {
	timer    clock.Timer
	deadline time.Time
	action   action
}

// Scheduler держит по одному таймеру на каждый незавершённый аукцион.
type Scheduler struct {
	registry Registry
	clock    clock.Clock
	logger   *zap.Logger
	interval time.Duration

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]*entry
}

// New создаёт планировщик. interval задаёт период сверки таймеров с реестром.
func New(registry Registry, clk clock.Clock, logger *zap.Logger, interval time.Duration) *Scheduler {
	return &Scheduler{
		registry: registry,
		clock:    clk,
		logger:   logger,
		interval: interval,
		ctx:      context.Background(),
		entries:  make(map[string]*entry),
	}
}

// Track взводит таймер на ближайший переход аукциона.
// Завершённые аукционы снимаются с учёта.
func (s *Scheduler) Track(t model.Timing) {
	var (
		deadline time.Time
		act      action
	)
	switch t.Status {
	case model.AuctionStatusScheduled:
		deadline, act = t.StartTime, actionActivate
	case model.AuctionStatusActive:
		deadline, act = t.EndTime, actionClose
	default:
		s.Forget(t.AuctionID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.entries[t.AuctionID]; ok {
		if cur.action == act && cur.deadline.Equal(deadline) {
			return
		}
		cur.timer.Stop()
	}

	e := &entry{deadline: deadline, action: act}
	delay := max(deadline.Sub(s.clock.Now()), 0)
	id := t.AuctionID
	e.timer = s.clock.AfterFunc(delay, func() { s.fire(id, e) })
	s.entries[id] = e
}

// Forget снимает таймер аукциона.
func (s *Scheduler) Forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[id]; ok {
		e.timer.Stop()
		delete(s.entries, id)
	}
}

// Pending возвращает число взведённых таймеров.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep сверяет таймеры с реестром: взводит недостающие и снимает лишние.
func (s *Scheduler) Sweep() {
	timings := s.registry.Timings()

	live := make(map[string]struct{}, len(timings))
	for _, t := range timings {
		live[t.AuctionID] = struct{}{}
		s.Track(t)
	}

	s.mu.Lock()
	var stale []string
	for id := range s.entries {
		if _, ok := live[id]; !ok {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	for _, id := range stale {
		s.Forget(id)
	}
}

// Run выполняет периодическую сверку до отмены ctx, затем снимает все таймеры.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.Sweep()
	s.logger.Info("lifecycle scheduler started", zap.Int("tracked", s.Pending()))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			s.logger.Info("lifecycle scheduler stopped")
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Scheduler) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, id)
	}
}

func (s *Scheduler) fire(id string, e *entry) {
	s.mu.Lock()
	if s.entries[id] != e {
		s.mu.Unlock()
		return
	}
	delete(s.entries, id)
	ctx := s.ctx
	s.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	var (
		timing model.Timing
		err    error
	)
	switch e.action {
	case actionActivate:
		timing, err = s.registry.Activate(ctx, id)
	case actionClose:
		timing, err = s.registry.CloseDue(ctx, id)
	}

	switch {
	case err == nil, errors.Is(err, auction.ErrNotDue):
		// После продления или открытия аукциону нужен следующий таймер.
		s.Track(timing)
	case errors.Is(err, auction.ErrAuctionNotActive), errors.Is(err, auction.ErrAuctionNotFound):
		s.logger.Debug("lifecycle timer for inactive auction",
			zap.String("auctionID", id),
			zap.Stringer("action", e.action),
		)
	default:
		// Таймер будет взведён заново при ближайшей сверке.
		s.logger.Error("lifecycle transition failed",
			zap.String("auctionID", id),
			zap.Stringer("action", e.action),
			zap.Error(err),
		)
	}
}
