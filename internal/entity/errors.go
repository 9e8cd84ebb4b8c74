package entity

import "errors"

// Ошибки, видимые клиенту
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrAuthentication    = errors.New("authentication failed")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDuplicateAddress  = errors.New("duplicate address")
	ErrWalletDisabled    = errors.New("wallet disabled")
)

// Внутренние ошибки, наружу отдаются как "service unavailable"
var (
	ErrCryptoOperation = errors.New("crypto operation failed")
	ErrPersistence     = errors.New("persistence failure")
)

var ErrInvalidTransition = errors.New("invalid transfer state transition")

// IsClientError ошибка относится к клиенту и может быть показана ему как есть
func IsClientError(err error) bool {
	for _, e := range []error{ErrValidation, ErrNotFound, ErrAuthentication, ErrInsufficientFunds, ErrDuplicateAddress, ErrWalletDisabled} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
