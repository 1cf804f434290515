package model

import "time"

// AuctionSort задаёт поле сортировки списка аукционов.
type AuctionSort string

const (
	SortByEndTime      AuctionSort = "endTime"
	SortByStartTime    AuctionSort = "startTime"
	SortByCreatedAt    AuctionSort = "createdAt"
	SortByCurrentPrice AuctionSort = "currentPrice"
)

// Valid сообщает, поддерживается ли поле сортировки.
func (s AuctionSort) Valid() bool {
	switch s {
	case SortByEndTime, SortByStartTime, SortByCreatedAt, SortByCurrentPrice:
		return true
	}
	return false
}

// Page задаёт страницу выборки. Номер страницы начинается с 1.
type Page struct {
	Number int
	Size   int
}

// Offset возвращает число пропускаемых записей.
func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// AuctionFilter описывает выборку аукционов. Пустые поля не ограничивают выборку.
type AuctionFilter struct {
	Status     AuctionStatus
	SellerID   string
	WatcherID  string
	SortBy     AuctionSort
	Descending bool
	Page       Page
}

// Match сообщает, попадает ли аукцион в выборку.
func (f AuctionFilter) Match(a *Auction) bool {
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.SellerID != "" && a.SellerID != f.SellerID {
		return false
	}
	if f.WatcherID != "" {
		if _, ok := a.Watchers[f.WatcherID]; !ok {
			return false
		}
	}
	return true
}

// AuctionList содержит страницу аукционов и общее число подходящих записей.
type AuctionList struct {
	Auctions []*Auction
	Total    int
}

// BidFilter описывает выборку ставок одного участника.
type BidFilter struct {
	BidderID string
	Status   BidStatus
	Page     Page
}

// Match сообщает, попадает ли ставка в выборку.
func (f BidFilter) Match(b Bid) bool {
	if b.BidderID != f.BidderID {
		return false
	}
	return f.Status == "" || b.Status == f.Status
}

// BidList содержит страницу ставок и общее число подходящих записей.
type BidList struct {
	Bids  []Bid
	Total int
}

// Leader описывает текущего лидера аукциона и цену, которую он держит.
type Leader struct {
	AuctionID string
	BidID     string
	BidderID  string
	Amount    int64
	PlacedAt  time.Time
}
