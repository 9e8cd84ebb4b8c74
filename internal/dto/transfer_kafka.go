package dto

import (
	"fmt"
	"time"

	"github.com/dnsoftware/pvx-wallet/internal/entity"
)

// TransferMessage Структура зафиксированного перевода, передаваемая в леджер через Кафку
type TransferMessage struct {
	Hash      string `json:"hash"`      // хеш перевода
	From      string `json:"from"`      // адрес отправителя
	To        string `json:"to"`        // адрес получателя
	Amount    string `json:"amount"`    // сумма в минимальных единицах, десятичная строка
	Memo      string `json:"memo"`      // комментарий
	Nonce     string `json:"nonce"`     // уникальная добавка к хешу
	Status    string `json:"status"`    // всегда committed
	CreatedAt int64  `json:"createdAt"` // время создания, в миллисекундах
}

func NewTransferMessage(t entity.Transfer) TransferMessage {
	return TransferMessage{
		Hash:      t.Hash,
		From:      t.From,
		To:        t.To,
		Amount:    entity.FormatUnits(t.Amount),
		Memo:      t.Memo,
		Nonce:     t.Nonce,
		Status:    string(t.Status),
		CreatedAt: t.CreatedAt.UnixMilli(),
	}
}

// ToTransfer обратный маппинг при чтении из топика
func (m TransferMessage) ToTransfer() (entity.Transfer, error) {
	amount, err := entity.ParseAmount(m.Amount)
	if err != nil {
		return entity.Transfer{}, fmt.Errorf("transfer %s: %w", m.Hash, err)
	}
	if entity.TransferStatus(m.Status) != entity.TransferCommitted {
		return entity.Transfer{}, fmt.Errorf("transfer %s: unexpected status %q", m.Hash, m.Status)
	}

	return entity.Transfer{
		Hash:      m.Hash,
		From:      m.From,
		To:        m.To,
		Amount:    amount,
		Memo:      m.Memo,
		Nonce:     m.Nonce,
		Status:    entity.TransferCommitted,
		CreatedAt: time.UnixMilli(m.CreatedAt).UTC(),
	}, nil
}
