package service

import (
	"context"
	"errors"
	"testing"

	"github.com/mmeshcher/vehicle-auction/internal/auction"
	"github.com/mmeshcher/vehicle-auction/internal/model"
)

func createPriced(t *testing.T, svc *Service, itemID string, price int64) *model.Auction {
	t.Helper()

	p := params()
	p.ItemID = itemID
	p.StartingPrice = price
	a, err := svc.CreateAuction(context.Background(), p)
	if err != nil {
		t.Fatalf("CreateAuction error: %v", err)
	}
	return a
}

func TestListAuctions_InMemory(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	ctx := context.Background()

	cheap := createPriced(t, svc, "item-1", 10000)
	mid := createPriced(t, svc, "item-2", 20000)
	expensive := createPriced(t, svc, "item-3", 30000)

	if _, err := svc.ToggleWatch(ctx, mid.ID, "W"); err != nil {
		t.Fatalf("ToggleWatch error: %v", err)
	}
	if err := svc.CloseAuction(ctx, expensive.ID); err != nil {
		t.Fatalf("CloseAuction error: %v", err)
	}

	tests := []struct {
		name    string
		filter  model.AuctionFilter
		wantIDs []string
		total   int
	}{
		{
			name:    "active by price descending",
			filter:  model.AuctionFilter{Status: model.AuctionStatusActive, SortBy: model.SortByCurrentPrice, Descending: true},
			wantIDs: []string{mid.ID, cheap.ID},
			total:   2,
		},
		{
			name:    "second page",
			filter:  model.AuctionFilter{Status: model.AuctionStatusActive, SortBy: model.SortByCurrentPrice, Descending: true, Page: model.Page{Number: 2, Size: 1}},
			wantIDs: []string{cheap.ID},
			total:   2,
		},
		{
			name:    "page past the end",
			filter:  model.AuctionFilter{SortBy: model.SortByCurrentPrice, Page: model.Page{Number: 5, Size: 2}},
			wantIDs: nil,
			total:   3,
		},
		{
			name:    "ended auctions stay listed",
			filter:  model.AuctionFilter{Status: model.AuctionStatusEnded},
			wantIDs: []string{expensive.ID},
			total:   1,
		},
		{
			name:    "watching",
			filter:  model.AuctionFilter{WatcherID: "W"},
			wantIDs: []string{mid.ID},
			total:   1,
		},
		{
			name:    "created by seller",
			filter:  model.AuctionFilter{SellerID: "seller", SortBy: model.SortByCurrentPrice},
			wantIDs: []string{cheap.ID, mid.ID, expensive.ID},
			total:   3,
		},
		{
			name:   "other seller",
			filter: model.AuctionFilter{SellerID: "nobody"},
			total:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := svc.ListAuctions(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListAuctions error: %v", err)
			}
			if list.Total != tt.total {
				t.Fatalf("Total = %d, want %d", list.Total, tt.total)
			}
			var ids []string
			for _, a := range list.Auctions {
				ids = append(ids, a.ID)
			}
			if len(ids) != len(tt.wantIDs) {
				t.Fatalf("ids = %v, want %v", ids, tt.wantIDs)
			}
			for i := range ids {
				if ids[i] != tt.wantIDs[i] {
					t.Fatalf("ids = %v, want %v", ids, tt.wantIDs)
				}
			}
		})
	}
}

func TestListAuctions_PrefersLiveState(t *testing.T) {
	repo := &stubRepo{}
	svc, _ := newTestService(t, repo, nil)
	ctx := context.Background()

	a := createPriced(t, svc, "item-1", 10000)
	if _, err := svc.SubmitBid(ctx, a.ID, auction.BidRequest{BidderID: "A", Amount: 12000}); err != nil {
		t.Fatalf("SubmitBid error: %v", err)
	}

	stale := a.Clone()
	archived := a.Clone()
	archived.ID = "archived"
	repo.auctionList = model.AuctionList{Auctions: []*model.Auction{stale, archived}, Total: 7}

	filter := model.AuctionFilter{Status: model.AuctionStatusActive, Page: model.Page{Number: 1, Size: 2}}
	list, err := svc.ListAuctions(ctx, filter)
	if err != nil {
		t.Fatalf("ListAuctions error: %v", err)
	}
	if repo.auctionFilter != filter {
		t.Fatalf("filter = %+v, want %+v", repo.auctionFilter, filter)
	}
	if list.Total != 7 {
		t.Fatalf("Total = %d, want 7", list.Total)
	}
	if got := list.Auctions[0].CurrentPrice; got != 12000 {
		t.Fatalf("live CurrentPrice = %d, want 12000", got)
	}
	if got := list.Auctions[1].CurrentPrice; got != 10000 {
		t.Fatalf("archived CurrentPrice = %d, want 10000", got)
	}
}

func TestListAuctions_StoreFailure(t *testing.T) {
	storeErr := errors.New("connection refused")
	svc, _ := newTestService(t, &stubRepo{listErr: storeErr}, nil)

	if _, err := svc.ListAuctions(context.Background(), model.AuctionFilter{}); !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
	if _, err := svc.ListBids(context.Background(), model.BidFilter{BidderID: "A"}); !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestListBids_InMemory(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	ctx := context.Background()

	first := createPriced(t, svc, "item-1", 10000)
	second := createPriced(t, svc, "item-2", 10000)

	for _, bid := range []struct {
		auctionID string
		bidder    string
		amount    int64
	}{
		{first.ID, "A", 10000},
		{second.ID, "A", 10000},
		{first.ID, "B", 11000},
		{second.ID, "B", 500},
	} {
		_, _ = svc.SubmitBid(ctx, bid.auctionID, auction.BidRequest{BidderID: bid.bidder, Amount: bid.amount})
	}

	all, err := svc.ListBids(ctx, model.BidFilter{BidderID: "A"})
	if err != nil {
		t.Fatalf("ListBids error: %v", err)
	}
	if all.Total != 2 || len(all.Bids) != 2 {
		t.Fatalf("A bids = %d of %d, want 2 of 2", len(all.Bids), all.Total)
	}

	outbid, err := svc.ListBids(ctx, model.BidFilter{BidderID: "A", Status: model.BidStatusOutbid})
	if err != nil {
		t.Fatalf("ListBids error: %v", err)
	}
	if outbid.Total != 1 || outbid.Bids[0].AuctionID != first.ID {
		t.Fatalf("outbid = %+v, want one bid on %s", outbid, first.ID)
	}

	rejected, err := svc.ListBids(ctx, model.BidFilter{BidderID: "B", Status: model.BidStatusRejected, Page: model.Page{Number: 1, Size: 10}})
	if err != nil {
		t.Fatalf("ListBids error: %v", err)
	}
	if rejected.Total != 1 || rejected.Bids[0].AuctionID != second.ID {
		t.Fatalf("rejected = %+v, want one bid on %s", rejected, second.ID)
	}
}

func TestListBids_PrefersLiveStatus(t *testing.T) {
	repo := &stubRepo{}
	svc, _ := newTestService(t, repo, nil)
	ctx := context.Background()

	a := createPriced(t, svc, "item-1", 10000)
	placed, err := svc.SubmitBid(ctx, a.ID, auction.BidRequest{BidderID: "A", Amount: 10000})
	if err != nil {
		t.Fatalf("SubmitBid error: %v", err)
	}
	if _, err := svc.SubmitBid(ctx, a.ID, auction.BidRequest{BidderID: "B", Amount: 11000}); err != nil {
		t.Fatalf("SubmitBid error: %v", err)
	}

	repo.bidList = model.BidList{Bids: []model.Bid{placed}, Total: 1}

	list, err := svc.ListBids(ctx, model.BidFilter{BidderID: "A"})
	if err != nil {
		t.Fatalf("ListBids error: %v", err)
	}
	if got := list.Bids[0].Status; got != model.BidStatusOutbid {
		t.Fatalf("Status = %q, want %q", got, model.BidStatusOutbid)
	}
}

func TestHighestBid(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	ctx := context.Background()

	a := createPriced(t, svc, "item-1", 10000)
	if _, err := svc.HighestBid(ctx, a.ID); !errors.Is(err, ErrNoBids) {
		t.Fatalf("expected ErrNoBids, got %v", err)
	}

	ceiling := int64(15000)
	proxy, err := svc.SubmitBid(ctx, a.ID, auction.BidRequest{BidderID: "A", Amount: 10000, Ceiling: &ceiling})
	if err != nil {
		t.Fatalf("SubmitBid error: %v", err)
	}
	_, _ = svc.SubmitBid(ctx, a.ID, auction.BidRequest{BidderID: "B", Amount: 11000})

	leader, err := svc.HighestBid(ctx, a.ID)
	if err != nil {
		t.Fatalf("HighestBid error: %v", err)
	}
	if leader.BidderID != "A" || leader.BidID != proxy.ID {
		t.Fatalf("leader = %+v, want A with bid %s", leader, proxy.ID)
	}
	if leader.Amount != 11500 {
		t.Fatalf("Amount = %d, want 11500", leader.Amount)
	}

	if _, err := svc.HighestBid(ctx, "missing"); !errors.Is(err, auction.ErrAuctionNotFound) {
		t.Fatalf("expected AuctionNotFound, got %v", err)
	}
}
