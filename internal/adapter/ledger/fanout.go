package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dnsoftware/pvx-wallet/internal/entity"
	"github.com/dnsoftware/pvx-wallet/pkg/logger"
)

type Sink interface {
	Submit(ctx context.Context, transfer entity.Transfer) error
}

type Metrics interface {
	LedgerSubmitted(sink string, err error)
}

type namedSink struct {
	name string
	sink Sink
}

// Fanout передает перевод всем получателям, ошибки объединяются
type Fanout struct {
	sinks   []namedSink
	metrics Metrics
	logger  logger.AppLogger
}

func NewFanout(metrics Metrics, log logger.AppLogger) *Fanout {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fanout{metrics: metrics, logger: log}
}

// Add nil-получатель пропускается
func (f *Fanout) Add(name string, sink Sink) *Fanout {
	if sink != nil {
		f.sinks = append(f.sinks, namedSink{name: name, sink: sink})
	}
	return f
}

func (f *Fanout) Len() int {
	return len(f.sinks)
}

func (f *Fanout) Submit(ctx context.Context, transfer entity.Transfer) error {
	var errs []error
	for _, s := range f.sinks {
		err := s.sink.Submit(ctx, transfer)
		if f.metrics != nil {
			f.metrics.LedgerSubmitted(s.name, err)
		}
		if err != nil {
			f.logger.Warn("ledger sink rejected transfer", zap.String("sink", s.name),
				zap.String("hash", transfer.Hash), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}
