// Package ledger передача зафиксированных переводов внешним получателям (Кафка, websocket-лента)
package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dnsoftware/pvx-wallet/internal/dto"
	"github.com/dnsoftware/pvx-wallet/internal/entity"
)

// MessageWriter kafka_writer.KafkaWriter
type MessageWriter interface {
	SendMessage(ctx context.Context, key string, value []byte) error
}

// KafkaLedger публикует переводы в топик леджера, ключ сообщения адрес отправителя
type KafkaLedger struct {
	writer MessageWriter
}

func NewKafkaLedger(writer MessageWriter) *KafkaLedger {
	return &KafkaLedger{writer: writer}
}

func (l *KafkaLedger) Submit(ctx context.Context, transfer entity.Transfer) error {
	if transfer.Status != entity.TransferCommitted {
		return fmt.Errorf("%w: only committed transfers are accepted, got %s", entity.ErrInvalidTransition, transfer.Status)
	}

	value, err := json.Marshal(dto.NewTransferMessage(transfer))
	if err != nil {
		return err
	}

	return l.writer.SendMessage(ctx, transfer.From, value)
}
