package auction

import (
	"fmt"
	"time"

	"github.com/mmeshcher/vehicle-auction/internal/model"
)

const (
	// MaxExtensions ограничивает число продлений аукциона.
	MaxExtensions = 3
	// DefaultExtensionHours используется, если длительность продления не указана.
	DefaultExtensionHours = 24
	// MaxExtensionHours ограничивает одно продление тридцатью днями.
	MaxExtensionHours = 24 * 30
)

// New создаёт аукцион в статусе draft. Параметры должны быть проверены заранее.
func (e *Engine) New(p model.NewAuctionParams, now time.Time) *model.Auction {
	return &model.Auction{
		ID:            e.newID(),
		ItemID:        p.ItemID,
		SellerID:      p.SellerID,
		Title:         p.Title,
		Description:   p.Description,
		StartingPrice: p.StartingPrice,
		ReservePrice:  p.ReservePrice,
		BidIncrement:  p.BidIncrement,
		Currency:      p.Currency,
		Status:        model.AuctionStatusDraft,
		CurrentPrice:  p.StartingPrice,
		StartTime:     p.StartTime,
		EndTime:       p.EndTime,
		Policy:        p.Policy,
		Registrations: make(map[string]model.Registration),
		Watchers:      make(map[string]struct{}),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Publish выводит черновик в scheduled или active в зависимости от времени начала.
func Publish(a *model.Auction, now time.Time) ([]model.Event, error) {
	if a.Status != model.AuctionStatusDraft {
		return nil, NotActive(a)
	}
	if !now.Before(a.EndTime) {
		return nil, reject(a, ReasonAuctionNotActive, "end time already passed")
	}

	if now.Before(a.StartTime) {
		a.Status = model.AuctionStatusScheduled
		touch(a, now)
		return nil, nil
	}

	a.Status = model.AuctionStatusActive
	touch(a, now)
	return []model.Event{model.NewEvent(model.EventActivated, a, "", now)}, nil
}

// Activate переводит запланированный аукцион в active по наступлении StartTime.
func Activate(a *model.Auction, now time.Time) ([]model.Event, error) {
	switch a.Status {
	case model.AuctionStatusActive:
		return nil, nil
	case model.AuctionStatusScheduled:
	default:
		return nil, NotActive(a)
	}

	if now.Before(a.StartTime) {
		return nil, ErrNotDue
	}

	a.Status = model.AuctionStatusActive
	touch(a, now)
	return []model.Event{model.NewEvent(model.EventActivated, a, "", now)}, nil
}

// Close завершает активный аукцион. Без force закрытие возможно только после EndTime.
func Close(a *model.Auction, now time.Time, force bool) ([]model.Event, error) {
	if a.Status != model.AuctionStatusActive {
		return nil, NotActive(a)
	}
	if !force && now.Before(a.EndTime) {
		return nil, ErrNotDue
	}

	ended := now
	a.Status = model.AuctionStatusEnded
	a.EndedAt = &ended

	sold := a.TotalBids > 0 && a.CurrentWinner != "" && (a.ReservePrice == nil || a.ReserveMet)
	if sold {
		winning, _ := WinningBid(a)
		price := a.CurrentPrice
		a.WinnerID = a.CurrentWinner
		a.WinningBidID = winning.ID
		a.FinalPrice = &price
		settleLedger(a, winning.ID)
	} else {
		settleLedger(a, "")
	}
	touch(a, now)

	ev := model.NewEvent(model.EventEnded, a, "", now)
	ev.WinnerID = a.WinnerID
	ev.Sold = sold
	return []model.Event{ev}, nil
}

// Cancel отменяет аукцион. После завершения отмена запрещена.
func Cancel(a *model.Auction, now time.Time) ([]model.Event, error) {
	if a.Status.Terminal() {
		return nil, NotActive(a)
	}

	a.Status = model.AuctionStatusCancelled
	settleLedger(a, "")
	touch(a, now)

	return []model.Event{model.NewEvent(model.EventCancelled, a, "", now)}, nil
}

// Extend продлевает активный аукцион на hours часов, не более MaxExtensions раз.
func Extend(a *model.Auction, hours int, now time.Time) ([]model.Event, error) {
	if a.Status != model.AuctionStatusActive {
		return nil, NotActive(a)
	}
	if hours <= 0 || hours > MaxExtensionHours {
		detail := fmt.Sprintf("hours must be between 1 and %d", MaxExtensionHours)
		return nil, reject(a, ReasonInvalidExtension, detail)
	}
	if a.ExtensionCount >= MaxExtensions {
		err := reject(a, ReasonExtensionLimitReached, "")
		err.ExtensionCount = a.ExtensionCount
		return nil, err
	}

	extendedAt := now
	a.EndTime = a.EndTime.Add(time.Duration(hours) * time.Hour)
	a.ExtensionCount++
	a.LastExtendedAt = &extendedAt
	touch(a, now)

	ev := model.NewEvent(model.EventExtended, a, "", now)
	end := a.EndTime
	ev.EndTime = &end
	return []model.Event{ev}, nil
}
