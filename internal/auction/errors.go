package auction

import (
	"errors"
	"fmt"

	"github.com/mmeshcher/vehicle-auction/internal/model"
)

// Reason задаёт стабильный код отказа, возвращаемый клиенту.
type Reason string

const (
	ReasonAuctionNotFound         Reason = "AuctionNotFound"
	ReasonAuctionNotActive        Reason = "AuctionNotActive"
	ReasonSelfBidForbidden        Reason = "SelfBidForbidden"
	ReasonRegistrationRequired    Reason = "RegistrationRequired"
	ReasonDepositRequired         Reason = "DepositRequired"
	ReasonInvalidBid              Reason = "InvalidBid"
	ReasonBidTooLow               Reason = "BidTooLow"
	ReasonNoOpRaise               Reason = "NoOpRaise"
	ReasonExtensionLimitReached   Reason = "ExtensionLimitReached"
	ReasonInvalidExtension        Reason = "InvalidExtension"
	ReasonBidNotWithdrawable      Reason = "BidNotWithdrawable"
	ReasonRegistrationNotRequired Reason = "RegistrationNotRequired"
	ReasonAlreadyRegistered       Reason = "AlreadyRegistered"
)

// RejectionError описывает ожидаемый отказ в операции над аукционом.
// Содержит контекст, достаточный для корректного повтора запроса.
type RejectionError struct {
	Reason         Reason
	AuctionID      string
	Status         model.AuctionStatus
	MinimumBid     int64
	ExtensionCount int
	Detail         string
}

func (e *RejectionError) Error() string {
	msg := string(e.Reason)
	if e.AuctionID != "" {
		msg += " (auction " + e.AuctionID + ")"
	}

	switch e.Reason {
	case ReasonBidTooLow:
		msg += fmt.Sprintf(": bid must be at least %d", e.MinimumBid)
	case ReasonExtensionLimitReached:
		msg += fmt.Sprintf(": auction already extended %d times", e.ExtensionCount)
	case ReasonAuctionNotActive:
		if e.Status != "" {
			msg += fmt.Sprintf(": status %s", e.Status)
		}
	}

	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is сравнивает отказы по коду причины.
func (e *RejectionError) Is(target error) bool {
	t, ok := target.(*RejectionError)
	if !ok {
		return false
	}
	return t.Reason == e.Reason
}

// Ошибки-образцы для errors.Is.
var (
	ErrAuctionNotFound         = &RejectionError{Reason: ReasonAuctionNotFound}
	ErrAuctionNotActive        = &RejectionError{Reason: ReasonAuctionNotActive}
	ErrSelfBidForbidden        = &RejectionError{Reason: ReasonSelfBidForbidden}
	ErrRegistrationRequired    = &RejectionError{Reason: ReasonRegistrationRequired}
	ErrDepositRequired         = &RejectionError{Reason: ReasonDepositRequired}
	ErrInvalidBid              = &RejectionError{Reason: ReasonInvalidBid}
	ErrBidTooLow               = &RejectionError{Reason: ReasonBidTooLow}
	ErrNoOpRaise               = &RejectionError{Reason: ReasonNoOpRaise}
	ErrExtensionLimitReached   = &RejectionError{Reason: ReasonExtensionLimitReached}
	ErrInvalidExtension        = &RejectionError{Reason: ReasonInvalidExtension}
	ErrBidNotWithdrawable      = &RejectionError{Reason: ReasonBidNotWithdrawable}
	ErrRegistrationNotRequired = &RejectionError{Reason: ReasonRegistrationNotRequired}
	ErrAlreadyRegistered       = &RejectionError{Reason: ReasonAlreadyRegistered}
)

// ErrNotDue возвращается, когда срок перехода по таймеру ещё не наступил.
var ErrNotDue = errors.New("lifecycle deadline not reached")

// AsRejection извлекает RejectionError из цепочки ошибок.
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// NotFound создаёт отказ для неизвестного аукциона.
func NotFound(auctionID string) *RejectionError {
	return &RejectionError{Reason: ReasonAuctionNotFound, AuctionID: auctionID}
}

// NotActive создаёт отказ для аукциона вне окна приёма ставок.
func NotActive(a *model.Auction) *RejectionError {
	return &RejectionError{Reason: ReasonAuctionNotActive, AuctionID: a.ID, Status: a.Status}
}

func reject(a *model.Auction, reason Reason, detail string) *RejectionError {
	return &RejectionError{Reason: reason, AuctionID: a.ID, Status: a.Status, Detail: detail}
}
