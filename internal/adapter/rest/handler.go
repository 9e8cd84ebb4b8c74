package rest

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dnsoftware/pvx-wallet/internal/entity"
	"github.com/dnsoftware/pvx-wallet/internal/usecase/wallet"
	"github.com/dnsoftware/pvx-wallet/pkg/logger"
	"github.com/dnsoftware/pvx-wallet/pkg/ratelimiter"
)

type WalletService interface {
	Create(ctx context.Context, passphrase string) (entity.WalletInfo, error)
	Import(ctx context.Context, req wallet.ImportRequest) (entity.WalletInfo, error)
	Export(ctx context.Context, address string, passphrase string) (entity.ExportedKeys, error)
	ChangePassphrase(ctx context.Context, address string, oldPassphrase string, newPassphrase string) error
	Disable(ctx context.Context, address string, passphrase string) error
	Credit(ctx context.Context, address string, amount string) (decimal.Decimal, error)
	Get(ctx context.Context, address string) (entity.WalletInfo, error)
	List(ctx context.Context, page int, limit int) ([]entity.WalletInfo, int, error)
}

type TransferService interface {
	Send(ctx context.Context, req entity.SendRequest) (*entity.Transfer, error)
	Get(ctx context.Context, hash string) (entity.Transfer, error)
	History(ctx context.Context, address string, limit int) ([]entity.Transfer, error)
	Recent(ctx context.Context, limit int) ([]entity.Transfer, error)
}

type Metrics interface {
	Limited(route string)
	Handler() http.Handler
}

// Pinger проверка доступности хранилища
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	AdminToken   string // токен для зачислений, пустой токен выключает маршрут
	MaxBodyBytes int64
	RateRPS      float64
	RateBurst    int
	RateIdleTTL  time.Duration
}

// Handler представляет HTTP сервер
type Handler struct {
	cfg       Config
	wallets   WalletService
	transfers TransferService
	hub       *TransferHub
	metrics   Metrics
	pinger    Pinger
	logger    logger.AppLogger
	router    *chi.Mux

	createLimiter *ratelimiter.KeyLimiter // по IP
	sendLimiter   *ratelimiter.KeyLimiter // по адресу отправителя
	walletLimiter *ratelimiter.KeyLimiter // по адресу кошелька (экспорт, смена пароля, блокировка)
}

// NewHandler hub, metrics и pinger могут быть nil
func NewHandler(cfg Config, wallets WalletService, transfers TransferService, hub *TransferHub, metrics Metrics, pinger Pinger, log logger.AppLogger) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &Handler{
		cfg:           cfg,
		wallets:       wallets,
		transfers:     transfers,
		hub:           hub,
		metrics:       metrics,
		pinger:        pinger,
		logger:        log,
		router:        chi.NewRouter(),
		createLimiter: ratelimiter.New(cfg.RateRPS, cfg.RateBurst, cfg.RateIdleTTL),
		sendLimiter:   ratelimiter.New(cfg.RateRPS, cfg.RateBurst, cfg.RateIdleTTL),
		walletLimiter: ratelimiter.New(cfg.RateRPS, cfg.RateBurst, cfg.RateIdleTTL),
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.routes()

	return s
}

func (s *Handler) Routes() *chi.Mux {
	return s.router
}

// requestLogger журнал запросов через zap
func (s *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// allow проверка лимита, при превышении пишет 429
func (s *Handler) allow(w http.ResponseWriter, limiter *ratelimiter.KeyLimiter, route string, key string) bool {
	if limiter.Allow(key, time.Now()) {
		return true
	}
	if s.metrics != nil {
		s.metrics.Limited(route)
	}
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many requests"})
	return false
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Handler) health(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			s.logger.Error("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: serviceUnavailable})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
