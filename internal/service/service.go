// Package service реализует операции аукционного сервиса для внешних потребителей.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mmeshcher/vehicle-auction/internal/auction"
	"github.com/mmeshcher/vehicle-auction/internal/clock"
	"github.com/mmeshcher/vehicle-auction/internal/model"
	"github.com/mmeshcher/vehicle-auction/internal/registry"
	"github.com/mmeshcher/vehicle-auction/internal/repository"
	"github.com/mmeshcher/vehicle-auction/internal/validation"
)

var (
	// ErrItemNotOwned возвращается, если лот не принадлежит продавцу или не выставлен на аукцион.
	ErrItemNotOwned = errors.New("item is not owned by seller or not listed for auction")
	// ErrItemHasOpenAuction возвращается при попытке открыть второй аукцион по одному лоту.
	ErrItemHasOpenAuction = errors.New("item already has an open auction")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	GetAuction(ctx context.Context, id string) (*model.Auction, error)
	ListOpenAuctions(ctx context.Context) ([]*model.Auction, error)
	HasOpenAuctionForItem(ctx context.Context, itemID string) (bool, error)
	QueryRepository
}

// Listing проверяет права продавца на лот.
type Listing interface {
	ItemOwnedBy(ctx context.Context, itemID, sellerID string) (bool, error)
}

// Scheduler следит за сроками аукционов.
type Scheduler interface {
	Track(t model.Timing)
	Forget(id string)
}

// Service содержит операции аукционного сервиса.
type Service struct {
	engine    *auction.Engine
	registry  *registry.Registry
	repo      Repository
	listing   Listing
	scheduler Scheduler
	clock     clock.Clock
	logger    *zap.Logger

	createMu sync.Mutex
}

// NewService создаёт сервис. repo и listing могут быть nil: тогда чтение
// завершённых аукционов из хранилища и проверка лота отключаются.
func NewService(
	engine *auction.Engine,
	reg *registry.Registry,
	repo Repository,
	listing Listing,
	scheduler Scheduler,
	clk clock.Clock,
	logger *zap.Logger,
) *Service {
	return &Service{
		engine:    engine,
		registry:  reg,
		repo:      repo,
		listing:   listing,
		scheduler: scheduler,
		clock:     clk,
		logger:    logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// CreateAuction проверяет параметры, создаёт аукцион и сразу публикует его.
func (s *Service) CreateAuction(ctx context.Context, p model.NewAuctionParams) (*model.Auction, error) {
	now := s.clock.Now()
	if err := validation.NormalizeAuction(&p, now); err != nil {
		return nil, err
	}

	if s.listing != nil {
		owned, err := s.listing.ItemOwnedBy(ctx, p.ItemID, p.SellerID)
		if err != nil {
			return nil, fmt.Errorf("check item ownership: %w", err)
		}
		if !owned {
			return nil, fmt.Errorf("%w: %s", ErrItemNotOwned, p.ItemID)
		}
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	if err := s.ensureNoOpenAuction(ctx, p.ItemID); err != nil {
		return nil, err
	}

	a := s.engine.New(p, now)
	events, err := auction.Publish(a, now)
	if err != nil {
		return nil, err
	}

	snapshot := a.Clone()
	if err := s.registry.Add(ctx, a, events); err != nil {
		return nil, fmt.Errorf("add auction: %w", err)
	}
	s.scheduler.Track(snapshot.Timing())

	s.logger.Info("auction created",
		zap.String("auctionID", snapshot.ID),
		zap.String("itemID", snapshot.ItemID),
		zap.String("status", string(snapshot.Status)),
		zap.Time("startTime", snapshot.StartTime),
		zap.Time("endTime", snapshot.EndTime),
	)

	return snapshot, nil
}

func (s *Service) ensureNoOpenAuction(ctx context.Context, itemID string) error {
	if id, ok := s.registry.FindOpenByItem(itemID); ok {
		return fmt.Errorf("%w: %s", ErrItemHasOpenAuction, id)
	}
	if s.repo == nil {
		return nil
	}

	exists, err := s.repo.HasOpenAuctionForItem(ctx, itemID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrItemHasOpenAuction, itemID)
	}
	return nil
}

// GetAuction возвращает снимок аукциона из памяти или из хранилища.
func (s *Service) GetAuction(ctx context.Context, id string) (*model.Auction, error) {
	a, err := s.registry.Get(id)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, auction.ErrAuctionNotFound) || s.repo == nil {
		return nil, err
	}
	return s.load(ctx, id)
}

// GetBids возвращает журнал ставок аукциона.
func (s *Service) GetBids(ctx context.Context, id string) ([]model.Bid, error) {
	a, err := s.GetAuction(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.Bids, nil
}

// SubmitBid передаёт ставку в аукцион.
func (s *Service) SubmitBid(ctx context.Context, id string, req auction.BidRequest) (model.Bid, error) {
	b, err := s.registry.SubmitBid(ctx, id, req)
	return b, s.resolve(ctx, id, err)
}

// WithdrawBid снимает ставку участника.
func (s *Service) WithdrawBid(ctx context.Context, id, bidID, bidderID string) (model.Bid, error) {
	b, err := s.registry.WithdrawBid(ctx, id, bidID, bidderID)
	return b, s.resolve(ctx, id, err)
}

// RegisterBidder регистрирует участника торгов.
func (s *Service) RegisterBidder(ctx context.Context, id, bidderID string) (model.Registration, error) {
	reg, err := s.registry.RegisterBidder(ctx, id, bidderID)
	return reg, s.resolve(ctx, id, err)
}

// MarkDepositPaid отмечает внесение залога участником.
func (s *Service) MarkDepositPaid(ctx context.Context, id, bidderID string) (model.Registration, error) {
	reg, err := s.registry.MarkDepositPaid(ctx, id, bidderID)
	return reg, s.resolve(ctx, id, err)
}

// ToggleWatch переключает наблюдение пользователя за аукционом.
func (s *Service) ToggleWatch(ctx context.Context, id, userID string) (bool, error) {
	watching, err := s.registry.ToggleWatch(ctx, id, userID)
	return watching, s.resolve(ctx, id, err)
}

// ExtendAuction продлевает аукцион и перевзводит таймер закрытия.
func (s *Service) ExtendAuction(ctx context.Context, id string, hours int) (model.Timing, error) {
	timing, err := s.registry.Extend(ctx, id, hours)
	if err != nil {
		return timing, s.resolve(ctx, id, err)
	}
	s.scheduler.Track(timing)
	return timing, nil
}

// CancelAuction отменяет аукцион.
func (s *Service) CancelAuction(ctx context.Context, id string) error {
	if err := s.registry.Cancel(ctx, id); err != nil {
		return s.resolve(ctx, id, err)
	}
	s.scheduler.Forget(id)
	return nil
}

// CloseAuction завершает аукцион досрочно.
func (s *Service) CloseAuction(ctx context.Context, id string) error {
	if err := s.registry.Close(ctx, id); err != nil {
		return s.resolve(ctx, id, err)
	}
	s.scheduler.Forget(id)
	return nil
}

// Restore загружает незавершённые аукционы из хранилища и ставит их на таймеры.
func (s *Service) Restore(ctx context.Context) (int, error) {
	if s.repo == nil {
		return 0, nil
	}

	auctions, err := s.repo.ListOpenAuctions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open auctions: %w", err)
	}

	restored := 0
	for _, a := range auctions {
		timing := a.Timing()
		if err := s.registry.Add(ctx, a, nil); err != nil {
			s.logger.Warn("skip auction on restore", zap.String("auctionID", a.ID), zap.Error(err))
			continue
		}
		s.scheduler.Track(timing)
		restored++
	}

	s.logger.Info("auctions restored", zap.Int("count", restored))
	return restored, nil
}

// resolve уточняет ошибку для аукциона, которого нет в памяти: если он
// есть в хранилище, значит он уже завершён.
func (s *Service) resolve(ctx context.Context, id string, err error) error {
	if err == nil || !errors.Is(err, auction.ErrAuctionNotFound) || s.repo == nil {
		return err
	}

	a, loadErr := s.load(ctx, id)
	if loadErr != nil {
		return loadErr
	}
	return auction.NotActive(a)
}

func (s *Service) load(ctx context.Context, id string) (*model.Auction, error) {
	a, err := s.repo.GetAuction(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrAuctionNotFound) {
			return nil, auction.NotFound(id)
		}
		return nil, fmt.Errorf("load auction: %w", err)
	}
	return a, nil
}
