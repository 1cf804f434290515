package auction

import (
	"time"

	"github.com/mmeshcher/vehicle-auction/internal/model"
)

// RegisterBidder регистрирует участника торгов.
func RegisterBidder(a *model.Auction, bidderID string, now time.Time) (model.Registration, error) {
	if a.Status.Terminal() {
		return model.Registration{}, NotActive(a)
	}
	if bidderID == a.SellerID {
		return model.Registration{}, reject(a, ReasonSelfBidForbidden, "seller cannot register as bidder")
	}
	if !a.Policy.RequiresRegistration && !a.Policy.RequiresDeposit {
		return model.Registration{}, reject(a, ReasonRegistrationNotRequired, "")
	}
	if _, ok := a.Registrations[bidderID]; ok {
		return model.Registration{}, reject(a, ReasonAlreadyRegistered, "")
	}

	reg := model.Registration{RegisteredAt: now}
	if a.Registrations == nil {
		a.Registrations = make(map[string]model.Registration)
	}
	a.Registrations[bidderID] = reg
	touch(a, now)

	return reg, nil
}

// MarkDepositPaid отмечает внесение залога зарегистрированным участником.
// Повторная отметка ничего не меняет.
func MarkDepositPaid(a *model.Auction, bidderID string, now time.Time) (model.Registration, bool, error) {
	if a.Status.Terminal() {
		return model.Registration{}, false, NotActive(a)
	}

	reg, ok := a.Registrations[bidderID]
	if !ok {
		return model.Registration{}, false, reject(a, ReasonRegistrationRequired, "bidder is not registered")
	}
	if reg.DepositPaid {
		return reg, false, nil
	}

	paidAt := now
	reg.DepositPaid = true
	reg.DepositPaidAt = &paidAt
	a.Registrations[bidderID] = reg
	touch(a, now)

	return reg, true, nil
}

// ToggleWatch добавляет или убирает пользователя из наблюдателей.
// Возвращает новое состояние наблюдения.
func ToggleWatch(a *model.Auction, userID string, now time.Time) (bool, error) {
	if a.Status.Terminal() {
		return false, NotActive(a)
	}

	if a.Watchers == nil {
		a.Watchers = make(map[string]struct{})
	}

	_, watching := a.Watchers[userID]
	if watching {
		delete(a.Watchers, userID)
	} else {
		a.Watchers[userID] = struct{}{}
	}
	touch(a, now)

	return !watching, nil
}
