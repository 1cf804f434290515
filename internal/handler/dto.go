package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/vehicle-auction/internal/auction"
	"github.com/mmeshcher/vehicle-auction/internal/model"
	"github.com/mmeshcher/vehicle-auction/internal/money"
)

type createAuctionRequest struct {
	ItemID               string           `json:"itemId"`
	Title                string           `json:"title"`
	Description          string           `json:"description"`
	StartingPrice        decimal.Decimal  `json:"startingPrice"`
	ReservePrice         *decimal.Decimal `json:"reservePrice,omitempty"`
	BidIncrement         *decimal.Decimal `json:"bidIncrement,omitempty"`
	Currency             string           `json:"currency"`
	StartTime            *time.Time       `json:"startTime,omitempty"`
	EndTime              time.Time        `json:"endTime"`
	RequiresRegistration bool             `json:"requiresRegistration"`
	RequiresDeposit      bool             `json:"requiresDeposit"`
	DepositAmount        *decimal.Decimal `json:"depositAmount,omitempty"`
}

// params переводит запрос в параметры аукциона. Без startTime аукцион
// начинается сразу.
func (req createAuctionRequest) params(sellerID string, now time.Time) (model.NewAuctionParams, error) {
	p := model.NewAuctionParams{
		ItemID:      req.ItemID,
		SellerID:    sellerID,
		Title:       req.Title,
		Description: req.Description,
		Currency:    req.Currency,
		StartTime:   now,
		EndTime:     req.EndTime,
		Policy: model.Policy{
			RequiresRegistration: req.RequiresRegistration,
			RequiresDeposit:      req.RequiresDeposit,
		},
	}
	if req.StartTime != nil {
		p.StartTime = *req.StartTime
	}

	var err error
	if p.StartingPrice, err = money.ToMinor(req.StartingPrice); err != nil {
		return p, err
	}
	if p.ReservePrice, err = money.Optional(req.ReservePrice); err != nil {
		return p, err
	}
	if req.BidIncrement != nil {
		if p.BidIncrement, err = money.ToMinor(*req.BidIncrement); err != nil {
			return p, err
		}
	}
	if req.DepositAmount != nil {
		if p.Policy.DepositAmount, err = money.ToMinor(*req.DepositAmount); err != nil {
			return p, err
		}
	}
	return p, nil
}

type auctionResponse struct {
	ID                   string           `json:"id"`
	ItemID               string           `json:"itemId"`
	SellerID             string           `json:"sellerId"`
	Title                string           `json:"title"`
	Description          string           `json:"description,omitempty"`
	Status               string           `json:"status"`
	Currency             string           `json:"currency"`
	StartingPrice        decimal.Decimal  `json:"startingPrice"`
	BidIncrement         decimal.Decimal  `json:"bidIncrement"`
	CurrentPrice         decimal.Decimal  `json:"currentPrice"`
	MinimumBid           *decimal.Decimal `json:"minimumBid,omitempty"`
	CurrentWinner        string           `json:"currentWinner,omitempty"`
	TotalBids            int              `json:"totalBids"`
	HasReserve           bool             `json:"hasReserve"`
	ReserveMet           bool             `json:"reserveMet"`
	StartTime            time.Time        `json:"startTime"`
	EndTime              time.Time        `json:"endTime"`
	ExtensionCount       int              `json:"extensionCount"`
	RequiresRegistration bool             `json:"requiresRegistration"`
	RequiresDeposit      bool             `json:"requiresDeposit"`
	DepositAmount        *decimal.Decimal `json:"depositAmount,omitempty"`
	Watchers             int              `json:"watchers"`
	WinnerID             string           `json:"winnerId,omitempty"`
	FinalPrice           *decimal.Decimal `json:"finalPrice,omitempty"`
	EndedAt              *time.Time       `json:"endedAt,omitempty"`
	Version              int64            `json:"version"`
}

func newAuctionResponse(a *model.Auction) auctionResponse {
	resp := auctionResponse{
		ID:                   a.ID,
		ItemID:               a.ItemID,
		SellerID:             a.SellerID,
		Title:                a.Title,
		Description:          a.Description,
		Status:               string(a.Status),
		Currency:             a.Currency,
		StartingPrice:        money.FromMinor(a.StartingPrice),
		BidIncrement:         money.FromMinor(a.BidIncrement),
		CurrentPrice:         money.FromMinor(a.CurrentPrice),
		CurrentWinner:        a.CurrentWinner,
		TotalBids:            a.TotalBids,
		HasReserve:           a.ReservePrice != nil,
		ReserveMet:           a.ReserveMet,
		StartTime:            a.StartTime,
		EndTime:              a.EndTime,
		ExtensionCount:       a.ExtensionCount,
		RequiresRegistration: a.Policy.RequiresRegistration,
		RequiresDeposit:      a.Policy.RequiresDeposit,
		Watchers:             len(a.Watchers),
		WinnerID:             a.WinnerID,
		FinalPrice:           money.OptionalFromMinor(a.FinalPrice),
		EndedAt:              a.EndedAt,
		Version:              a.Version,
	}
	if a.Policy.RequiresDeposit {
		d := money.FromMinor(a.Policy.DepositAmount)
		resp.DepositAmount = &d
	}
	if a.Status == model.AuctionStatusActive {
		m := money.FromMinor(auction.MinimumBid(a))
		resp.MinimumBid = &m
	}
	return resp
}

type submitBidRequest struct {
	Amount    decimal.Decimal  `json:"amount"`
	MaxAmount *decimal.Decimal `json:"maxAmount,omitempty"`
}

func (req submitBidRequest) bidRequest(bidderID string) (auction.BidRequest, error) {
	amount, err := money.ToMinor(req.Amount)
	if err != nil {
		return auction.BidRequest{}, err
	}
	ceiling, err := money.Optional(req.MaxAmount)
	if err != nil {
		return auction.BidRequest{}, err
	}
	return auction.BidRequest{BidderID: bidderID, Amount: amount, Ceiling: ceiling}, nil
}

// bidResponse не раскрывает потолок прокси-ставки.
type bidResponse struct {
	ID          string          `json:"id"`
	AuctionID   string          `json:"auctionId"`
	BidderID    string          `json:"bidderId"`
	Amount      decimal.Decimal `json:"amount"`
	Proxy       bool            `json:"proxy"`
	Outcome     string          `json:"outcome"`
	Reason      string          `json:"reason,omitempty"`
	Status      string          `json:"status"`
	Sequence    int64           `json:"sequence,omitempty"`
	PlacedAt    time.Time       `json:"placedAt"`
	Withdrawn   bool            `json:"withdrawn,omitempty"`
	WithdrawnAt *time.Time      `json:"withdrawnAt,omitempty"`
}

func newBidResponse(b model.Bid) bidResponse {
	return bidResponse{
		ID:          b.ID,
		AuctionID:   b.AuctionID,
		BidderID:    b.BidderID,
		Amount:      money.FromMinor(b.Amount),
		Proxy:       b.Proxy,
		Outcome:     string(b.Outcome),
		Reason:      b.Reason,
		Status:      string(b.Status),
		Sequence:    b.Sequence,
		PlacedAt:    b.PlacedAt,
		Withdrawn:   b.Withdrawn,
		WithdrawnAt: b.WithdrawnAt,
	}
}

type registrationResponse struct {
	AuctionID     string     `json:"auctionId"`
	BidderID      string     `json:"bidderId"`
	RegisteredAt  time.Time  `json:"registeredAt"`
	DepositPaid   bool       `json:"depositPaid"`
	DepositPaidAt *time.Time `json:"depositPaidAt,omitempty"`
}

type depositRequest struct {
	BidderID string `json:"bidderId"`
}

type extendRequest struct {
	Hours *int `json:"hours,omitempty"`
}

func (req extendRequest) hours() int {
	if req.Hours == nil {
		return auction.DefaultExtensionHours
	}
	return *req.Hours
}

type extendResponse struct {
	AuctionID string    `json:"auctionId"`
	EndTime   time.Time `json:"endTime"`
}

type watchResponse struct {
	Watching bool `json:"watching"`
}

type auctionListResponse struct {
	Auctions    []auctionResponse `json:"auctions"`
	Total       int               `json:"total"`
	TotalPages  int               `json:"totalPages"`
	CurrentPage int               `json:"currentPage"`
}

func newAuctionListResponse(list model.AuctionList, page model.Page) auctionListResponse {
	resp := auctionListResponse{
		Auctions:    make([]auctionResponse, 0, len(list.Auctions)),
		Total:       list.Total,
		TotalPages:  totalPages(list.Total, page.Size),
		CurrentPage: page.Number,
	}
	for _, a := range list.Auctions {
		resp.Auctions = append(resp.Auctions, newAuctionResponse(a))
	}
	return resp
}

type bidListResponse struct {
	Bids        []bidResponse `json:"bids"`
	Total       int           `json:"total"`
	TotalPages  int           `json:"totalPages"`
	CurrentPage int           `json:"currentPage"`
}

func newBidListResponse(list model.BidList, page model.Page) bidListResponse {
	resp := bidListResponse{
		Bids:        make([]bidResponse, 0, len(list.Bids)),
		Total:       list.Total,
		TotalPages:  totalPages(list.Total, page.Size),
		CurrentPage: page.Number,
	}
	for _, b := range list.Bids {
		resp.Bids = append(resp.Bids, newBidResponse(b))
	}
	return resp
}

func totalPages(total, size int) int {
	if size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

type leaderResponse struct {
	AuctionID string          `json:"auctionId"`
	BidID     string          `json:"bidId"`
	BidderID  string          `json:"bidderId"`
	Amount    decimal.Decimal `json:"amount"`
	PlacedAt  time.Time       `json:"placedAt"`
}
