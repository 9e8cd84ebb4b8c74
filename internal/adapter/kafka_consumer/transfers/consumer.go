// Package transfers читает зафиксированные переводы из топика леджера и раздает их в ленту
package transfers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/dnsoftware/pvx-wallet/internal/dto"
	"github.com/dnsoftware/pvx-wallet/internal/entity"
	"github.com/dnsoftware/pvx-wallet/pkg/kafka_writer"
	"github.com/dnsoftware/pvx-wallet/pkg/logger"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 200 * time.Millisecond
)

type Config struct {
	BatchSize     int           // Размер буфера для пакетного чтения
	FlushInterval time.Duration // Максимальное время ожидания для заполнения пакета
}

// Reader источник сообщений (kafka_reader.KafkaReader)
type Reader interface {
	ConsumeMessages(handler sarama.ConsumerGroupHandler)
	Close()
}

// Publisher получатель переводов, обычно лента websocket-подписчиков
type Publisher interface {
	Submit(ctx context.Context, transfer entity.Transfer) error
}

// TransferConsumer реализует интерфейс sarama.ConsumerGroupHandler
type TransferConsumer struct {
	cfg       Config
	reader    Reader
	publisher Publisher
	logger    logger.AppLogger
}

func NewTransferConsumer(cfg Config, reader Reader, publisher Publisher, log logger.AppLogger) *TransferConsumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &TransferConsumer{
		cfg:       cfg,
		reader:    reader,
		publisher: publisher,
		logger:    log,
	}
}

// StartConsume Стартует чтение из Кафки
func (c *TransferConsumer) StartConsume() {
	c.reader.ConsumeMessages(c)
}

func (c *TransferConsumer) Close() {
	c.reader.Close()
}

// Setup вызывается перед началом обработки (интерфейс ConsumerGroupHandler)
func (c *TransferConsumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup вызывается после завершения обработки (интерфейс ConsumerGroupHandler)
func (c *TransferConsumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim обрабатывает сообщения из партиции пакетами (интерфейс ConsumerGroupHandler)
// Пакет отдается по заполнению или по таймеру, после чего смещение помечается прочитанным
func (c *TransferConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	batch := make([]*sarama.ConsumerMessage, 0, c.cfg.BatchSize)
	timer := time.NewTimer(c.cfg.FlushInterval)
	defer timer.Stop()

	processBatch := func() {
		if len(batch) > 0 {
			for _, msg := range batch {
				c.deliver(session.Context(), msg)
			}

			last := batch[len(batch)-1]
			session.MarkOffset(last.Topic, last.Partition, last.Offset+1, "")
			batch = batch[:0]
		}
		timer.Reset(c.cfg.FlushInterval)
	}

	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				processBatch()
				return nil
			}
			if msg == nil {
				continue
			}
			batch = append(batch, msg)
			if len(batch) >= c.cfg.BatchSize {
				processBatch()
			}
		case <-timer.C:
			processBatch()
		case <-session.Context().Done():
			return nil
		}
	}
}

// deliver битые сообщения пропускаются, чтобы не блокировать партицию
func (c *TransferConsumer) deliver(ctx context.Context, msg *sarama.ConsumerMessage) {
	ctx = kafka_writer.ExtractContext(ctx, msg.Headers)
	ctx, span := otel.Tracer("consume-transfer").Start(ctx, "deliver")
	defer span.End()

	var item dto.TransferMessage
	if err := json.Unmarshal(msg.Value, &item); err != nil {
		c.logger.Warn("malformed transfer message",
			zap.String("topic", msg.Topic), zap.Int32("partition", msg.Partition), zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return
	}

	transfer, err := item.ToTransfer()
	if err != nil {
		c.logger.Warn("invalid transfer message", zap.Int64("offset", msg.Offset), zap.Error(err))
		return
	}
	span.SetAttributes(attribute.String("transfer.hash", transfer.Hash))

	if err := c.publisher.Submit(ctx, transfer); err != nil {
		c.logger.Error("transfer delivery failed", zap.String("hash", transfer.Hash), zap.Error(err))
	}
}
