package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mmeshcher/vehicle-auction/internal/auction"
	"github.com/mmeshcher/vehicle-auction/internal/model"
)

// ErrNoBids возвращается, если у аукциона нет выигрывающей ставки.
var ErrNoBids = errors.New("auction has no winning bid")

// QueryRepository описывает выборки списков из хранилища.
type QueryRepository interface {
	ListAuctions(ctx context.Context, f model.AuctionFilter) (model.AuctionList, error)
	ListBids(ctx context.Context, f model.BidFilter) (model.BidList, error)
}

// ListAuctions возвращает страницу аукционов. Живые аукционы берутся из
// памяти, так как хранилище отстаёт на интервал записи.
func (s *Service) ListAuctions(ctx context.Context, f model.AuctionFilter) (model.AuctionList, error) {
	if s.repo == nil {
		return s.listAuctionsInMemory(f), nil
	}

	list, err := s.repo.ListAuctions(ctx, f)
	if err != nil {
		return model.AuctionList{}, fmt.Errorf("list auctions: %w", err)
	}
	for i, a := range list.Auctions {
		if fresh, err := s.registry.Get(a.ID); err == nil {
			list.Auctions[i] = fresh
		}
	}
	return list, nil
}

func (s *Service) listAuctionsInMemory(f model.AuctionFilter) model.AuctionList {
	var matched []*model.Auction
	for _, a := range s.registry.Snapshots() {
		if f.Match(a) {
			matched = append(matched, a)
		}
	}

	less := auctionLess(f.SortBy)
	sort.SliceStable(matched, func(i, j int) bool {
		if f.Descending {
			return less(matched[j], matched[i])
		}
		return less(matched[i], matched[j])
	})

	lo, hi := pageBounds(f.Page, len(matched))
	return model.AuctionList{Auctions: matched[lo:hi], Total: len(matched)}
}

func auctionLess(by model.AuctionSort) func(a, b *model.Auction) bool {
	switch by {
	case model.SortByStartTime:
		return func(a, b *model.Auction) bool { return a.StartTime.Before(b.StartTime) }
	case model.SortByCreatedAt:
		return func(a, b *model.Auction) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case model.SortByCurrentPrice:
		return func(a, b *model.Auction) bool { return a.CurrentPrice < b.CurrentPrice }
	default:
		return func(a, b *model.Auction) bool { return a.EndTime.Before(b.EndTime) }
	}
}

// ListBids возвращает страницу ставок участника, новые первыми.
func (s *Service) ListBids(ctx context.Context, f model.BidFilter) (model.BidList, error) {
	if s.repo == nil {
		return s.listBidsInMemory(f), nil
	}

	list, err := s.repo.ListBids(ctx, f)
	if err != nil {
		return model.BidList{}, fmt.Errorf("list bids: %w", err)
	}

	fresh := make(map[string]*model.Auction)
	for i, b := range list.Bids {
		a, ok := fresh[b.AuctionID]
		if !ok {
			a, _ = s.registry.Get(b.AuctionID)
			fresh[b.AuctionID] = a
		}
		if a == nil {
			continue
		}
		for _, current := range a.Bids {
			if current.ID == b.ID {
				list.Bids[i] = current
				break
			}
		}
	}
	return list, nil
}

func (s *Service) listBidsInMemory(f model.BidFilter) model.BidList {
	var matched []model.Bid
	for _, a := range s.registry.Snapshots() {
		for _, b := range a.Bids {
			if f.Match(b) {
				matched = append(matched, b)
			}
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].PlacedAt.Equal(matched[j].PlacedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].PlacedAt.After(matched[j].PlacedAt)
	})

	lo, hi := pageBounds(f.Page, len(matched))
	return model.BidList{Bids: matched[lo:hi], Total: len(matched)}
}

// HighestBid возвращает текущего лидера аукциона. Сумма лидера равна
// текущей цене, а не его потолку.
func (s *Service) HighestBid(ctx context.Context, id string) (model.Leader, error) {
	a, err := s.GetAuction(ctx, id)
	if err != nil {
		return model.Leader{}, err
	}

	b, ok := auction.WinningBid(a)
	if !ok {
		return model.Leader{}, fmt.Errorf("%w: %s", ErrNoBids, id)
	}

	amount := a.CurrentPrice
	if a.FinalPrice != nil {
		amount = *a.FinalPrice
	}
	return model.Leader{
		AuctionID: a.ID,
		BidID:     b.ID,
		BidderID:  b.BidderID,
		Amount:    amount,
		PlacedAt:  b.PlacedAt,
	}, nil
}

func pageBounds(p model.Page, total int) (int, int) {
	lo := min(p.Offset(), total)
	if p.Size <= 0 {
		return lo, total
	}
	return lo, min(lo+p.Size, total)
}
