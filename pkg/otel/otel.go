package otel

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

type Config struct {
	ServiceName        string        // Название сервиса (чтобы понимать с какого сервера идет трассировка и т.п.)
	Exporter           string        // otlp, stdout или none
	CollectorEndpoint  string        // адрес:порт Otel коллектора, куда будут отсылаться трассировки
	BatchTimeout       time.Duration // через указанный период времени данные по трассировкам будут отправляться в одном пакете
	MaxExportBatchSize int           // Максимальное кол-во спанов в пакете
	MaxQueueSize       int           // Максимум спанов в очереди
	SkipSpans          []string      // подстроки имен спанов, которые не экспортируются (пробы, метрики)
}

// InitTracer Инициализация трассировщика, вызывать в самом начале программы
// Пример вызова:
//
//	shutdown, err := InitTracer(ctx, cfg)
//	defer shutdown(context.Background())
func InitTracer(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	// Пропагатор нужен и без экспорта: контекст передается дальше через заголовки Кафки
	otel.SetTextMapPropagator(propagation.TraceContext{})

	var exporter trace.SpanExporter
	var err error
	switch cfg.Exporter {
	case ExporterNone, "":
		return func(context.Context) error { return nil }, nil
	case ExporterStdout:
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(os.Stdout))
	case ExporterOTLP:
		// Создаем OTLP gRPC экспортер для трассировок
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithInsecure(),                      // Без TLS
			otlptracegrpc.WithEndpoint(cfg.CollectorEndpoint), // Адрес OpenTelemetry Collector
		)
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s trace exporter: %w", cfg.Exporter, err)
	}

	var batchOpts []trace.BatchSpanProcessorOption
	if cfg.BatchTimeout > 0 {
		batchOpts = append(batchOpts, trace.WithBatchTimeout(cfg.BatchTimeout))
	}
	if cfg.MaxExportBatchSize > 0 {
		batchOpts = append(batchOpts, trace.WithMaxExportBatchSize(cfg.MaxExportBatchSize))
	}
	if cfg.MaxQueueSize > 0 {
		batchOpts = append(batchOpts, trace.WithMaxQueueSize(cfg.MaxQueueSize))
	}

	// Оборачиваем BatchSpanProcessor фильтрующим процессором
	processor := NewFilteringSpanProcessor(trace.NewBatchSpanProcessor(exporter, batchOpts...), cfg.SkipSpans...)

	tp := trace.NewTracerProvider(
		trace.WithSpanProcessor(processor),
		trace.WithResource(resource.NewSchemaless(
			semconv.ServiceNameKey.String(cfg.ServiceName),
		)),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// filteringSpanProcessor Для фильтрации спанов
type filteringSpanProcessor struct {
	next trace.SpanProcessor
	skip []string
}

func NewFilteringSpanProcessor(next trace.SpanProcessor, skip ...string) trace.SpanProcessor {
	return &filteringSpanProcessor{next: next, skip: skip}
}

func (fsp *filteringSpanProcessor) OnStart(parent context.Context, span trace.ReadWriteSpan) {
	fsp.next.OnStart(parent, span)
}

// OnEnd Здесь настраиваем фильтры по названию спана
func (fsp *filteringSpanProcessor) OnEnd(span trace.ReadOnlySpan) {
	for _, s := range fsp.skip {
		if strings.Contains(span.Name(), s) {
			return
		}
	}
	fsp.next.OnEnd(span)
}

func (fsp *filteringSpanProcessor) Shutdown(ctx context.Context) error {
	return fsp.next.Shutdown(ctx)
}

func (fsp *filteringSpanProcessor) ForceFlush(ctx context.Context) error {
	return fsp.next.ForceFlush(ctx)
}
