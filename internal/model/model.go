// Package model содержит доменные сущности сервиса аукционов.
package model

import (
	"sort"
	"time"
)

// AuctionStatus описывает стадию жизненного цикла аукциона.
type AuctionStatus string

const (
	AuctionStatusDraft     AuctionStatus = "draft"
	AuctionStatusScheduled AuctionStatus = "scheduled"
	AuctionStatusActive    AuctionStatus = "active"
	AuctionStatusEnded     AuctionStatus = "ended"
	AuctionStatusCancelled AuctionStatus = "cancelled"
)

// Terminal сообщает, что аукцион больше не может изменяться.
func (s AuctionStatus) Terminal() bool {
	return s == AuctionStatusEnded || s == AuctionStatusCancelled
}

// Valid сообщает, известен ли статус.
func (s AuctionStatus) Valid() bool {
	switch s {
	case AuctionStatusDraft, AuctionStatusScheduled, AuctionStatusActive, AuctionStatusEnded, AuctionStatusCancelled:
		return true
	}
	return false
}

// BidOutcome описывает результат приёма ставки.
type BidOutcome string

const (
	BidOutcomeAccepted BidOutcome = "accepted"
	BidOutcomeRejected BidOutcome = "rejected"
)

// BidStatus описывает положение ставки относительно текущего лидера.
type BidStatus string

const (
	BidStatusWinning  BidStatus = "winning"
	BidStatusOutbid   BidStatus = "outbid"
	BidStatusLost     BidStatus = "lost"
	BidStatusRejected BidStatus = "rejected"
)

// Valid сообщает, известен ли статус.
func (s BidStatus) Valid() bool {
	switch s {
	case BidStatusWinning, BidStatusOutbid, BidStatusLost, BidStatusRejected:
		return true
	}
	return false
}

// MaxAmount ограничивает любую сумму аукциона в минимальных единицах.
// Сумма цены и шага при таком пределе не переполняет int64.
const MaxAmount int64 = 1_000_000_000_000_000

// Policy задаёт условия участия в аукционе.
type Policy struct {
	RequiresRegistration bool  `json:"requiresRegistration"`
	RequiresDeposit      bool  `json:"requiresDeposit"`
	DepositAmount        int64 `json:"depositAmount"`
}

// Registration описывает регистрацию участника торгов.
type Registration struct {
	RegisteredAt  time.Time  `json:"registeredAt"`
	DepositPaid   bool       `json:"depositPaid"`
	DepositPaidAt *time.Time `json:"depositPaidAt,omitempty"`
}

// Bid описывает запись журнала ставок аукциона.
type Bid struct {
	ID          string
	AuctionID   string
	BidderID    string
	Amount      int64
	Ceiling     int64
	Proxy       bool
	Outcome     BidOutcome
	Reason      string
	Status      BidStatus
	Sequence    int64
	PlacedAt    time.Time
	Withdrawn   bool
	WithdrawnAt *time.Time
}

// Auction хранит состояние одного аукциона вместе с журналом ставок.
// Суммы хранятся в минимальных единицах валюты.
type Auction struct {
	ID          string
	ItemID      string
	SellerID    string
	Title       string
	Description string

	StartingPrice int64
	ReservePrice  *int64
	BidIncrement  int64
	Currency      string

	Status        AuctionStatus
	CurrentPrice  int64
	CurrentWinner string
	WinnerCeiling int64
	TotalBids     int
	ReserveMet    bool

	StartTime      time.Time
	EndTime        time.Time
	ExtensionCount int
	LastExtendedAt *time.Time

	Policy        Policy
	Registrations map[string]Registration
	Watchers      map[string]struct{}

	WinnerID     string
	WinningBidID string
	FinalPrice   *int64
	EndedAt      *time.Time

	Bids         []Bid
	NextSequence int64
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Clone возвращает глубокую копию аукциона.
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}

	c := *a
	c.ReservePrice = clonePtr(a.ReservePrice)
	c.LastExtendedAt = clonePtr(a.LastExtendedAt)
	c.FinalPrice = clonePtr(a.FinalPrice)
	c.EndedAt = clonePtr(a.EndedAt)

	c.Registrations = make(map[string]Registration, len(a.Registrations))
	for id, reg := range a.Registrations {
		reg.DepositPaidAt = clonePtr(reg.DepositPaidAt)
		c.Registrations[id] = reg
	}

	c.Watchers = make(map[string]struct{}, len(a.Watchers))
	for id := range a.Watchers {
		c.Watchers[id] = struct{}{}
	}

	c.Bids = make([]Bid, len(a.Bids))
	for i, b := range a.Bids {
		b.WithdrawnAt = clonePtr(b.WithdrawnAt)
		c.Bids[i] = b
	}

	return &c
}

// WatcherIDs возвращает отсортированный список наблюдателей.
func (a *Auction) WatcherIDs() []string {
	ids := make([]string, 0, len(a.Watchers))
	for id := range a.Watchers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Timing возвращает сроки аукциона, нужные планировщику.
func (a *Auction) Timing() Timing {
	return Timing{
		AuctionID: a.ID,
		Status:    a.Status,
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
	}
}

// Timing содержит срез состояния аукциона для планировщика жизненного цикла.
type Timing struct {
	AuctionID string
	Status    AuctionStatus
	StartTime time.Time
	EndTime   time.Time
}

// NewAuctionParams содержит параметры создания аукциона.
type NewAuctionParams struct {
	ItemID        string
	SellerID      string
	Title         string
	Description   string
	StartingPrice int64
	ReservePrice  *int64
	BidIncrement  int64
	Currency      string
	StartTime     time.Time
	EndTime       time.Time
	Policy        Policy
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
