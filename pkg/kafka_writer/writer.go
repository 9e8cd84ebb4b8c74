package kafka_writer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/dnsoftware/pvx-wallet/pkg/logger"
)

var ErrWriterClosed = errors.New("kafka writer is closed")

type Config struct {
	Brokers []string
	Topic   string
}

// KafkaWriter - структура для асинхронного продюсера
type KafkaWriter struct {
	brokers  []string
	topic    string
	producer sarama.AsyncProducer
	wg       sync.WaitGroup
	logger   logger.AppLogger

	mu     sync.RWMutex
	closed bool
}

// NewProducerConfig конфигурация продюсера
func NewProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal     // Дождаться подтверждения от лидера
	config.Producer.Retry.Max = 5                          // Количество попыток повторной отправки
	config.Producer.Return.Successes = true                // Возвращать успешные отправки
	config.Producer.Return.Errors = true                   // Возвращать ошибки отправки
	config.Producer.Partitioner = sarama.NewHashPartitioner // По ключу: переводы одного отправителя в одной партиции
	config.Producer.Retry.Backoff = 200 * time.Millisecond // Задержка между попытками

	// Настройка пакетной отправки
	config.Producer.Flush.Frequency = 500 * time.Millisecond // Отправлять каждые 500 мс
	config.Producer.Flush.Bytes = 1024 * 1024                // Отправлять при накоплении 1 МБ данных
	config.Producer.Flush.Messages = 100                     // Отправлять каждые 100 сообщений
	config.Producer.Flush.MaxMessages = 1000                 // Максимум 1000 сообщений в пакете

	// Ограничения по размеру сообщений
	config.Producer.MaxMessageBytes = 1024 * 1024 // Максимальный размер одного сообщения: 1 МБ

	return config
}

// NewKafkaWriter - конструктор для создания нового KafkaProducer
func NewKafkaWriter(cfg Config, logger logger.AppLogger) (*KafkaWriter, error) {
	// Создание асинхронного продюсера
	producer, err := sarama.NewAsyncProducer(cfg.Brokers, NewProducerConfig())
	if err != nil {
		return nil, err
	}

	return NewKafkaWriterWithProducer(cfg, producer, logger), nil
}

// NewKafkaWriterWithProducer готовый продюсер (например, sarama/mocks в тестах)
func NewKafkaWriterWithProducer(cfg Config, producer sarama.AsyncProducer, logger logger.AppLogger) *KafkaWriter {
	return &KafkaWriter{
		brokers:  cfg.Brokers,
		topic:    cfg.Topic,
		producer: producer,
		logger:   logger,
	}
}

// Start - метод для запуска продюсера
func (k *KafkaWriter) Start() {
	// Горутина для обработки успешных сообщений
	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		for success := range k.producer.Successes() {
			k.logger.Debug("kafka message delivered", zap.String("topic", success.Topic),
				zap.Int32("partition", success.Partition), zap.Int64("offset", success.Offset))
		}
	}()

	// Горутина для обработки ошибок
	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		for err := range k.producer.Errors() {
			k.logger.Error("kafka message delivery failed", zap.String("topic", k.topic), zap.Error(err.Err))
		}
	}()
}

// SendMessage - метод для отправки сообщения в Kafka
// Доставка асинхронная: ошибки брокера логируются в Start, здесь только ошибки постановки в очередь
func (k *KafkaWriter) SendMessage(ctx context.Context, key string, value []byte) error {
	message := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(key), // Ключ сообщения
		Value: sarama.ByteEncoder(value),
	}

	// Заголовки Kafka и инъекция контекста трассировки в них
	headers := SaramaHeadersCarrier(make([]sarama.RecordHeader, 0))
	propagator := otel.GetTextMapPropagator()
	propagator.Inject(ctx, &headers) // Передаём указатель на адаптер
	message.Headers = headers

	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return ErrWriterClosed
	}

	// Отправка сообщения
	select {
	case k.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close - метод для закрытия продюсера
func (k *KafkaWriter) Close() {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return
	}
	k.closed = true
	k.mu.Unlock()

	k.producer.AsyncClose() // завершение работы асинхронного продюсера и закрытие канало Errors() и Successes()
	k.wg.Wait()             // Ожидание завершения горутин обработки Errors() и Successes()

	k.logger.Info("KafkaWriter stopped", zap.String("topic", k.topic))
}

func (k *KafkaWriter) Topic() string {
	return k.topic
}

func (k *KafkaWriter) DeleteTopic(topic string) error {
	// Создаем ClusterAdmin
	admin, err := sarama.NewClusterAdmin(k.brokers, sarama.NewConfig())
	if err != nil {
		return err
	}
	defer admin.Close()

	// Удаляем топик
	return admin.DeleteTopic(topic)
}
