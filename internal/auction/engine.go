// Package auction реализует правила приёма ставок и жизненный цикл аукциона.
//
// Функции пакета не потокобезопасны: вызывающая сторона обязана
// сериализовать все операции над одним аукционом.
package auction

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/vehicle-auction/internal/model"
)

// BidRequest описывает попытку ставки.
type BidRequest struct {
	BidderID string
	Amount   int64
	// Ceiling задаёт потолок прокси-ставки. nil означает обычную ставку.
	Ceiling *int64
}

// Admission содержит результат обработки ставки: запись журнала и события для рассылки.
type Admission struct {
	Bid    model.Bid
	Events []model.Event
}

// Engine принимает ставки и разрешает конкуренцию прокси-ставок.
type Engine struct {
	newID func() string
}

// NewEngine создаёт движок с генератором идентификаторов UUID.
func NewEngine() *Engine {
	return &Engine{newID: uuid.NewString}
}

// IsOpen сообщает, принимает ли аукцион ставки в момент now.
func IsOpen(a *model.Auction, now time.Time) bool {
	return a.Status == model.AuctionStatusActive &&
		!now.Before(a.StartTime) &&
		now.Before(a.EndTime)
}

// MinimumBid возвращает минимальную допустимую сумму следующей ставки.
func MinimumBid(a *model.Auction) int64 {
	if a.TotalBids > 0 {
		return addCapped(a.CurrentPrice, a.BidIncrement)
	}
	return a.StartingPrice
}

// SubmitBid проверяет ставку и, если она допустима, пересчитывает цену и лидера.
// Отклонённая ставка по открытому аукциону тоже попадает в журнал,
// поэтому при отказе может вернуться ненулевой Admission.
func (e *Engine) SubmitBid(a *model.Auction, req BidRequest, now time.Time) (*Admission, error) {
	if !IsOpen(a, now) {
		return nil, NotActive(a)
	}

	entry := model.Bid{
		ID:        e.newID(),
		AuctionID: a.ID,
		BidderID:  req.BidderID,
		Amount:    req.Amount,
		Ceiling:   req.Amount,
		PlacedAt:  now,
	}
	if req.Ceiling != nil {
		entry.Ceiling = *req.Ceiling
		entry.Proxy = true
	}

	if req.BidderID == a.SellerID {
		return e.rejectBid(a, entry, reject(a, ReasonSelfBidForbidden, ""), now)
	}
	if err := checkParticipation(a, req.BidderID); err != nil {
		return e.rejectBid(a, entry, err, now)
	}
	if entry.Ceiling < 0 || entry.Amount < 0 {
		return e.rejectBid(a, entry, reject(a, ReasonInvalidBid, "amount and ceiling must not be negative"), now)
	}
	if entry.Ceiling > model.MaxAmount || entry.Amount > model.MaxAmount {
		detail := fmt.Sprintf("amount and ceiling must be at most %d", model.MaxAmount)
		return e.rejectBid(a, entry, reject(a, ReasonInvalidBid, detail), now)
	}
	if entry.Ceiling < entry.Amount {
		entry.Ceiling = entry.Amount
	}

	if a.TotalBids > 0 && a.CurrentWinner == req.BidderID {
		return e.raiseCeiling(a, entry, now)
	}

	if minBid := MinimumBid(a); entry.Amount < minBid {
		err := reject(a, ReasonBidTooLow, "")
		err.MinimumBid = minBid
		return e.rejectBid(a, entry, err, now)
	}

	return e.resolve(a, entry, now), nil
}

func checkParticipation(a *model.Auction, bidderID string) *RejectionError {
	if !a.Policy.RequiresRegistration && !a.Policy.RequiresDeposit {
		return nil
	}

	reg, registered := a.Registrations[bidderID]
	if a.Policy.RequiresRegistration && !registered {
		return reject(a, ReasonRegistrationRequired, "")
	}
	if a.Policy.RequiresDeposit && !reg.DepositPaid {
		err := reject(a, ReasonDepositRequired, "")
		err.MinimumBid = MinimumBid(a)
		return err
	}
	return nil
}

// resolve применяет прокси-аукцион к допустимой ставке нового участника.
func (e *Engine) resolve(a *model.Auction, entry model.Bid, now time.Time) *Admission {
	var events []model.Event
	previous := a.CurrentWinner

	switch {
	case a.TotalBids == 0:
		a.CurrentWinner = entry.BidderID
		a.WinnerCeiling = entry.Ceiling
		a.CurrentPrice = entry.Amount
		entry.Status = model.BidStatusWinning

	case entry.Ceiling > a.WinnerCeiling:
		a.CurrentPrice = min(entry.Ceiling, addCapped(a.WinnerCeiling, a.BidIncrement))
		a.CurrentWinner = entry.BidderID
		a.WinnerCeiling = entry.Ceiling
		demoteWinning(a, model.BidStatusOutbid)
		entry.Status = model.BidStatusWinning

	default:
		a.CurrentPrice = min(a.WinnerCeiling, addCapped(entry.Ceiling, a.BidIncrement))
		entry.Status = model.BidStatusOutbid
	}

	e.accept(a, &entry, now)

	events = append(events, model.NewEvent(model.EventPriceChanged, a, "", now))
	switch {
	case entry.Status == model.BidStatusOutbid:
		events = append(events, model.NewEvent(model.EventOutbid, a, entry.BidderID, now))
	case previous != "":
		events = append(events, model.NewEvent(model.EventOutbid, a, previous, now))
	}

	return &Admission{Bid: entry, Events: events}
}

// raiseCeiling обрабатывает ставку текущего лидера: меняется только потолок.
func (e *Engine) raiseCeiling(a *model.Auction, entry model.Bid, now time.Time) (*Admission, error) {
	if entry.Ceiling <= a.WinnerCeiling && entry.Amount <= a.CurrentPrice {
		err := reject(a, ReasonNoOpRaise, "ceiling does not exceed the current one")
		err.MinimumBid = MinimumBid(a)
		return e.rejectBid(a, entry, err, now)
	}

	a.WinnerCeiling = max(a.WinnerCeiling, entry.Ceiling)
	demoteWinning(a, model.BidStatusOutbid)
	entry.Status = model.BidStatusWinning
	e.accept(a, &entry, now)

	return &Admission{Bid: entry}, nil
}

func (e *Engine) accept(a *model.Auction, entry *model.Bid, now time.Time) {
	if a.ReservePrice == nil || a.CurrentPrice >= *a.ReservePrice {
		a.ReserveMet = true
	}

	a.NextSequence++
	a.TotalBids++
	entry.Outcome = model.BidOutcomeAccepted
	entry.Sequence = a.NextSequence

	a.Bids = append(a.Bids, *entry)
	touch(a, now)
}

func (e *Engine) rejectBid(a *model.Auction, entry model.Bid, err *RejectionError, now time.Time) (*Admission, error) {
	entry.Outcome = model.BidOutcomeRejected
	entry.Status = model.BidStatusRejected
	entry.Reason = string(err.Reason)

	a.Bids = append(a.Bids, entry)
	touch(a, now)

	return &Admission{Bid: entry}, err
}

// WithdrawBid снимает собственную невыигрывающую ставку участника.
// Цена и лидер при этом не пересчитываются.
func (e *Engine) WithdrawBid(a *model.Auction, bidID, bidderID string, now time.Time) (*model.Bid, error) {
	if !IsOpen(a, now) {
		return nil, NotActive(a)
	}

	i := findBid(a, bidID)
	if i < 0 {
		return nil, reject(a, ReasonBidNotWithdrawable, "bid not found")
	}

	b := &a.Bids[i]
	switch {
	case b.BidderID != bidderID:
		return nil, reject(a, ReasonBidNotWithdrawable, "bid belongs to another bidder")
	case b.Outcome != model.BidOutcomeAccepted:
		return nil, reject(a, ReasonBidNotWithdrawable, "bid was rejected")
	case b.Status == model.BidStatusWinning:
		return nil, reject(a, ReasonBidNotWithdrawable, "winning bid cannot be withdrawn")
	case b.Withdrawn:
		return nil, reject(a, ReasonBidNotWithdrawable, "bid already withdrawn")
	}

	at := now
	b.Withdrawn = true
	b.WithdrawnAt = &at
	touch(a, now)

	withdrawn := *b
	return &withdrawn, nil
}

// addCapped складывает неотрицательные суммы, не выходя за math.MaxInt64.
func addCapped(x, y int64) int64 {
	if x > math.MaxInt64-y {
		return math.MaxInt64
	}
	return x + y
}

func touch(a *model.Auction, now time.Time) {
	a.Version++
	a.UpdatedAt = now
}
