// Package core provides money parsing and handling utilities.
//
// Amounts are signed decimals without a currency. Whether an amount counts as
// income or expense is decided by the category sign, not by the amount itself.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// Amount is a decimal magnitude with two fractional digits of precision.
type Amount struct {
	decimal.Decimal
}

// NewAmount builds an Amount from a decimal value, rounded half-up to cents.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d.Round(2)}
}

// ParseAmount converts a decimal string to an Amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// half-up on the third decimal place. Zero is rejected.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,345") -> 12.35
//	ParseAmount("-7")     -> -7.00
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return Amount{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, ErrInvalidAmount
	}
	a := NewAmount(d)
	if err := a.Validate(); err != nil {
		return Amount{}, err
	}
	return a, nil
}

// MustAmount is ParseAmount for literals known to be valid.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Validate() error {
	if a.IsZero() {
		return ErrInvalidAmount
	}
	return nil
}

// Magnitude returns the absolute value of the amount.
func (a Amount) Magnitude() Amount {
	return Amount{Decimal: a.Abs()}
}

func (a Amount) Add(b Amount) Amount {
	return Amount{Decimal: a.Decimal.Add(b.Decimal)}
}

func (a Amount) Sub(b Amount) Amount {
	return Amount{Decimal: a.Decimal.Sub(b.Decimal)}
}

// String formats the amount with exactly two decimals.
func (a Amount) String() string {
	return a.StringFixed(2)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return ErrInvalidAmount
	}
	*a = NewAmount(d)
	return nil
}
