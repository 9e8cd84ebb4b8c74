package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type TransferStatus string

const (
	TransferConstructed TransferStatus = "constructed"
	TransferValidated   TransferStatus = "validated"
	TransferCommitted   TransferStatus = "committed"
	TransferRejected    TransferStatus = "rejected"
)

// Transfer перевод между кошельками
// Constructed -> Validated -> Committed, либо Constructed|Validated -> Rejected. Committed и Rejected конечные
type Transfer struct {
	Hash      string
	From      string
	To        string
	Amount    decimal.Decimal
	Memo      string
	Nonce     string
	Status    TransferStatus
	Reason    string // причина отказа для Rejected
	CreatedAt time.Time
}

// NewTransfer создает перевод в состоянии Constructed и вычисляет его хеш
func NewTransfer(from, to string, amount decimal.Decimal, memo, nonce string, now time.Time) *Transfer {
	t := &Transfer{
		From:      from,
		To:        to,
		Amount:    amount,
		Memo:      memo,
		Nonce:     nonce,
		Status:    TransferConstructed,
		CreatedAt: now.UTC(),
	}
	t.Hash = t.computeHash()
	return t
}

func (t *Transfer) computeHash() string {
	h := sha256.New()
	h.Write([]byte(t.From))
	h.Write([]byte{0})
	h.Write([]byte(t.To))
	h.Write([]byte{0})
	h.Write([]byte(FormatUnits(t.Amount)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(t.CreatedAt.UnixNano(), 10)))
	h.Write([]byte{0})
	h.Write([]byte(t.Nonce))
	return hex.EncodeToString(h.Sum(nil))
}

func (t *Transfer) Validate() error {
	if t.Status != TransferConstructed {
		return t.transitionError(TransferValidated)
	}
	t.Status = TransferValidated
	return nil
}

func (t *Transfer) Commit() error {
	if t.Status != TransferValidated {
		return t.transitionError(TransferCommitted)
	}
	t.Status = TransferCommitted
	return nil
}

func (t *Transfer) Reject(reason string) error {
	if t.IsTerminal() {
		return t.transitionError(TransferRejected)
	}
	t.Status = TransferRejected
	t.Reason = reason
	return nil
}

func (t *Transfer) IsTerminal() bool {
	return t.Status == TransferCommitted || t.Status == TransferRejected
}

func (t *Transfer) transitionError(to TransferStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
}

// SendRequest входные данные перевода
type SendRequest struct {
	From       string
	To         string
	Amount     string // десятичная строка в минимальных единицах
	Passphrase string
	Memo       string
}
