package model

import (
	"fmt"
	"time"
)

// EventType описывает вид уведомления об изменении аукциона.
type EventType string

const (
	EventPriceChanged EventType = "priceChanged"
	EventOutbid       EventType = "outbid"
	EventEnded        EventType = "ended"
	EventCancelled    EventType = "cancelled"
	EventActivated    EventType = "activated"
	EventExtended     EventType = "extended"
)

// Event описывает уведомление для внешнего канала рассылки.
// ID стабилен при повторной доставке, подписчики дедуплицируют по нему.
type Event struct {
	ID         string     `json:"id"`
	Type       EventType  `json:"type"`
	AuctionID  string     `json:"auctionId"`
	Price      int64      `json:"price"`
	WinnerID   string     `json:"winnerId,omitempty"`
	BidderID   string     `json:"bidderId,omitempty"`
	Sequence   int64      `json:"sequence"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	Sold       bool       `json:"sold,omitempty"`
	OccurredAt time.Time  `json:"occurredAt"`
}

// NewEvent собирает событие по текущему состоянию аукциона.
func NewEvent(t EventType, a *Auction, bidderID string, now time.Time) Event {
	id := fmt.Sprintf("%s:%d:%s", a.ID, a.Version, t)
	if bidderID != "" {
		id += ":" + bidderID
	}

	return Event{
		ID:         id,
		Type:       t,
		AuctionID:  a.ID,
		Price:      a.CurrentPrice,
		WinnerID:   a.CurrentWinner,
		BidderID:   bidderID,
		Sequence:   a.NextSequence,
		OccurredAt: now,
	}
}
