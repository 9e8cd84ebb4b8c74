// Package grpc gRPC сервер проверки доступности (grpc.health.v1) для балансировщиков и оркестратора
package grpc

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dnsoftware/pvx-wallet/pkg/logger"
)

const (
	ServiceName          = "pvx.wallet"
	defaultProbeInterval = 5 * time.Second
	probeTimeout         = 2 * time.Second
)

// Pinger проверка доступности хранилища
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer статус сервиса повторяет доступность хранилища
type HealthServer struct {
	server   *grpc.Server
	health   *health.Server
	pinger   Pinger
	interval time.Duration
	logger   logger.AppLogger
}

func NewHealthServer(pinger Pinger, interval time.Duration, log logger.AppLogger) *HealthServer {
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	if log == nil {
		log = zap.NewNop()
	}

	h := &HealthServer{
		health:   health.NewServer(),
		pinger:   pinger,
		interval: interval,
		logger:   log,
	}
	h.server = grpc.NewServer(grpc.UnaryInterceptor(h.logInterceptor))
	grpc_health_v1.RegisterHealthServer(h.server, h.health)

	h.setStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return h
}

// Serve блокирует до остановки сервера; пробы хранилища идут до отмены ctx
func (h *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	go h.watch(ctx)
	return h.server.Serve(lis)
}

// Stop помечает сервис недоступным и дожидается завершения текущих вызовов
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}

func (h *HealthServer) watch(ctx context.Context) {
	h.probe(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.probe(ctx)
		}
	}
}

func (h *HealthServer) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if err := h.pinger.Ping(ctx); err != nil {
		if !errors.Is(ctx.Err(), context.Canceled) {
			h.logger.Warn("storage is unavailable", zap.Error(err))
		}
		h.setStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		return
	}
	h.setStatus(grpc_health_v1.HealthCheckResponse_SERVING)
}

func (h *HealthServer) setStatus(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
}

func (h *HealthServer) logInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	h.logger.Debug("grpc request",
		zap.String("method", info.FullMethod),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))
	return resp, err
}
