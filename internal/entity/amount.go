package entity

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxUnitsDigits разрядность сумм и балансов в хранилище, NUMERIC(78, 0)
const MaxUnitsDigits = 78

var unitsLimit = decimal.New(1, MaxUnitsDigits)

// ParseAmount разбор суммы перевода в минимальных единицах, без потери точности (float не используется)
// Допускаются только цифры: без знака, точки и экспоненты. Сумма должна быть > 0
func ParseAmount(s string) (decimal.Decimal, error) {
	v, err := parseUnits(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !v.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be greater than zero", ErrValidation)
	}
	return v, nil
}

// ParseBalance разбор баланса из десятичной строки хранилища, допускается 0
func ParseBalance(s string) (decimal.Decimal, error) {
	return parseUnits(s)
}

// CheckBalance баланс помещается в MaxUnitsDigits разрядов
func CheckBalance(v decimal.Decimal) error {
	if v.GreaterThanOrEqual(unitsLimit) {
		return fmt.Errorf("%w: balance would exceed %d digits", ErrValidation, MaxUnitsDigits)
	}
	return nil
}

// FormatUnits сумма в десятичную строку без дробной части
func FormatUnits(v decimal.Decimal) string {
	return v.StringFixed(0)
}

func parseUnits(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty amount", ErrValidation)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return decimal.Zero, fmt.Errorf("%w: amount must be a non-negative integer in base units", ErrValidation)
		}
	}
	if len(strings.TrimLeft(s, "0")) > MaxUnitsDigits {
		return decimal.Zero, fmt.Errorf("%w: amount must have at most %d digits", ErrValidation, MaxUnitsDigits)
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	return v, nil
}
