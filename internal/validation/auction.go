// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mmeshcher/vehicle-auction/internal/model"
)

const (
	// DefaultBidIncrement задаёт шаг ставки по умолчанию, 10.00.
	DefaultBidIncrement int64 = 1000
	// MinBidIncrement задаёт минимальный шаг ставки, 1.00.
	MinBidIncrement int64 = 100
	// DefaultCurrency задаёт валюту по умолчанию.
	DefaultCurrency = "USD"

	maxTitleLength       = 200
	maxDescriptionLength = 1000
)

var tooLarge = fmt.Sprintf("must be at most %d minor units", model.MaxAmount)

// FieldError описывает ошибку в одном поле запроса.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Fields извлекает ошибки полей из результата валидации.
func Fields(err error) []*FieldError {
	var res []*FieldError

	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		for _, e := range joined.Unwrap() {
			res = append(res, Fields(e)...)
		}
		return res
	}

	var fe *FieldError
	if errors.As(err, &fe) {
		res = append(res, fe)
	}
	return res
}

// NormalizeAuction заполняет значения по умолчанию и проверяет параметры
// нового аукциона. Все найденные ошибки возвращаются вместе.
func NormalizeAuction(p *model.NewAuctionParams, now time.Time) error {
	p.Title = strings.TrimSpace(p.Title)
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	if p.Currency == "" {
		p.Currency = DefaultCurrency
	}
	if p.BidIncrement == 0 {
		p.BidIncrement = DefaultBidIncrement
	}

	var errs []error
	add := func(field, msg string) {
		errs = append(errs, &FieldError{Field: field, Message: msg})
	}

	if strings.TrimSpace(p.ItemID) == "" {
		add("itemId", "required")
	}
	if strings.TrimSpace(p.SellerID) == "" {
		add("sellerId", "required")
	}
	switch {
	case p.Title == "":
		add("title", "required")
	case utf8.RuneCountInString(p.Title) > maxTitleLength:
		add("title", fmt.Sprintf("must be at most %d characters", maxTitleLength))
	}
	if utf8.RuneCountInString(p.Description) > maxDescriptionLength {
		add("description", fmt.Sprintf("must be at most %d characters", maxDescriptionLength))
	}
	if len(p.Currency) != 3 {
		add("currency", "must be a 3-letter code")
	}

	switch {
	case p.StartingPrice < 0:
		add("startingPrice", "must not be negative")
	case p.StartingPrice > model.MaxAmount:
		add("startingPrice", tooLarge)
	}
	if p.ReservePrice != nil {
		switch {
		case *p.ReservePrice < 0:
			add("reservePrice", "must not be negative")
		case *p.ReservePrice > model.MaxAmount:
			add("reservePrice", tooLarge)
		}
	}
	switch {
	case p.BidIncrement < MinBidIncrement:
		add("bidIncrement", fmt.Sprintf("must be at least %d minor units", MinBidIncrement))
	case p.BidIncrement > model.MaxAmount:
		add("bidIncrement", tooLarge)
	}

	if p.StartTime.IsZero() {
		add("startTime", "required")
	}
	switch {
	case p.EndTime.IsZero():
		add("endTime", "required")
	case !p.EndTime.After(p.StartTime):
		add("endTime", "must be after start time")
	case !p.EndTime.After(now):
		add("endTime", "must be in the future")
	}

	if p.Policy.RequiresDeposit && p.Policy.DepositAmount <= 0 {
		add("depositAmount", "must be positive when a deposit is required")
	}
	if !p.Policy.RequiresDeposit && p.Policy.DepositAmount < 0 {
		add("depositAmount", "must not be negative")
	}
	if p.Policy.DepositAmount > model.MaxAmount {
		add("depositAmount", tooLarge)
	}

	return errors.Join(errs...)
}
