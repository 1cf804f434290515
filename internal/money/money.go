// Package money переводит денежные суммы между десятичным представлением
// API и целыми минимальными единицами валюты.
package money

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Scale задаёт число знаков после запятой в минимальной единице.
const Scale = 2

var (
	// ErrTooPrecise возвращается для сумм с дробью мельче минимальной единицы.
	ErrTooPrecise = errors.New("amount has more than 2 fractional digits")
	// ErrOutOfRange возвращается для сумм, не помещающихся в int64.
	ErrOutOfRange = errors.New("amount out of range")
)

var (
	minMinor = decimal.NewFromInt(math.MinInt64)
	maxMinor = decimal.NewFromInt(math.MaxInt64)
)

// ToMinor переводит сумму в минимальные единицы без округления.
func ToMinor(d decimal.Decimal) (int64, error) {
	if !d.Equal(d.Round(Scale)) {
		return 0, fmt.Errorf("%w: %s", ErrTooPrecise, d.String())
	}

	minor := d.Shift(Scale)
	if minor.LessThan(minMinor) || minor.GreaterThan(maxMinor) {
		return 0, fmt.Errorf("%w: %s", ErrOutOfRange, d.String())
	}
	return minor.IntPart(), nil
}

// FromMinor переводит минимальные единицы в десятичную сумму.
func FromMinor(v int64) decimal.Decimal {
	return decimal.New(v, -Scale)
}

// Optional переводит необязательную сумму.
func Optional(d *decimal.Decimal) (*int64, error) {
	if d == nil {
		return nil, nil
	}
	v, err := ToMinor(*d)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// OptionalFromMinor выполняет обратное преобразование для необязательной суммы.
func OptionalFromMinor(v *int64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := FromMinor(*v)
	return &d
}
