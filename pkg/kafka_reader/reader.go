package kafka_reader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/dnsoftware/pvx-wallet/pkg/logger"
)

type Config struct {
	Brokers            []string
	Group              string
	Topic              string
	AutoCommitEnable   bool
	AutoCommitInterval int
	InitialOffset      int64 // sarama.OffsetOldest или sarama.OffsetNewest, по умолчанию OffsetNewest
}

type KafkaReader struct {
	brokers       []string
	group         string
	topic         string
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	logger        logger.AppLogger
}

func NewKafkaReader(cfg Config, logger logger.AppLogger) (*KafkaReader, error) {
	if cfg.InitialOffset == 0 {
		cfg.InitialOffset = sarama.OffsetNewest
	}

	// Настройка конфигурации
	config := sarama.NewConfig()
	config.Consumer.Offsets.Initial = cfg.InitialOffset                                               // Откуда читать, если нет сохраненного оффсета
	config.Consumer.Offsets.AutoCommit.Enable = cfg.AutoCommitEnable                                  // Включаем автоматическое сохранение оффсетов
	config.Consumer.Offsets.AutoCommit.Interval = time.Duration(cfg.AutoCommitInterval) * time.Second // Интервал для сохранения оффсетов
	config.Consumer.Return.Errors = true

	// Создаем клиента для consumer группы
	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.Group, config)
	if err != nil {
		return nil, err
	}

	// Создание контекста для управления остановкой
	ctx, cancel := context.WithCancel(context.Background())

	r := &KafkaReader{
		brokers:       cfg.Brokers,
		group:         cfg.Group,
		topic:         cfg.Topic,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		logger:        logger,
	}

	// Обработка ошибок в отдельной горутине
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for err := range consumerGroup.Errors() {
			r.logger.Error("kafka consumer group error", zap.String("group", r.group), zap.Error(err))
		}
	}()

	return r, nil
}

// ConsumeMessages - запуск чтения сообщений из топика
func (r *KafkaReader) ConsumeMessages(handler sarama.ConsumerGroupHandler) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		// Бесконечный цикл чтения сообщений
		for {
			// Если контекст завершён, выходим из цикла
			if r.ctx.Err() != nil {
				return
			}

			if err := r.consumerGroup.Consume(r.ctx, []string{r.topic}, handler); err != nil {
				r.logger.Error(fmt.Sprintf("Ошибка при чтении сообщений, Group: %s, Topic: %s", r.group, r.topic), zap.Error(err))
				select {
				case <-r.ctx.Done():
					return
				case <-time.After(time.Second):
				}
			}
		}
	}()
}

func (r *KafkaReader) Close() {
	// Отмена контекста
	r.cancel()
	// Закрытие Consumer Group (закрывает и канал Errors)
	if err := r.consumerGroup.Close(); err != nil {
		r.logger.Error(fmt.Sprintf("Ошибка закрытия Consumer Group, Group: %s, Topic: %s", r.group, r.topic), zap.Error(err))
	}
	// Ожидание завершения горутин
	r.wg.Wait()

	r.logger.Info(fmt.Sprintf("KafkaConsumer завершён, Group: %s, Topic: %s", r.group, r.topic))
}

// SetGroupOffset Устанавливает для текущей группы смещение во всех партициях топика
func (r *KafkaReader) SetGroupOffset(offset int64) error {
	// Создание нового клиента
	client, err := sarama.NewClient(r.brokers, nil)
	if err != nil {
		return fmt.Errorf("failed to create kafka client: %w", err)
	}
	defer client.Close()

	// Создание OffsetManager
	offsetManager, err := sarama.NewOffsetManagerFromClient(r.group, client)
	if err != nil {
		return fmt.Errorf("failed to create offset manager: %w", err)
	}
	defer offsetManager.Close()

	// Получение информации о партициях топика
	partitions, err := client.Partitions(r.topic)
	if err != nil {
		return fmt.Errorf("failed to get partitions: %w", err)
	}

	// Установка конкретных смещений по партициям
	for _, partition := range partitions {
		partitionManager, err := offsetManager.ManagePartition(r.topic, partition)
		if err != nil {
			r.logger.Error(fmt.Sprintf("Failed to manage partition %d", partition), zap.Error(err))
			continue
		}

		partitionManager.ResetOffset(offset, "")
		partitionManager.AsyncClose()

		r.logger.Info(fmt.Sprintf("Set offset for partition %d to %d", partition, offset))
	}

	return nil
}
