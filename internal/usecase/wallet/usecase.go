package wallet

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dnsoftware/pvx-wallet/internal/constants"
	"github.com/dnsoftware/pvx-wallet/internal/crypto"
	"github.com/dnsoftware/pvx-wallet/internal/entity"
	"github.com/dnsoftware/pvx-wallet/pkg/logger"
)

// WalletStorage хранилище кошельков (единственный источник истины)
type WalletStorage interface {
	// CreateWallet вставка новой записи, ErrDuplicateAddress если адрес занят
	CreateWallet(ctx context.Context, wallet entity.Wallet) error
	// GetWalletByAddress nil без ошибки, если кошелька нет
	GetWalletByAddress(ctx context.Context, address string) (*entity.Wallet, error)
	// UpdateWallet учетные данные и флаг блокировки вычисляются из текущей записи под ее блокировкой.
	// Адрес, публичный ключ, баланс и дата создания не меняются
	UpdateWallet(ctx context.Context, address string, update func(current entity.Wallet) (entity.Wallet, error)) (entity.Wallet, error)
	// UpdateBalance новый баланс вычисляется из текущего под блокировкой записи
	UpdateBalance(ctx context.Context, address string, update func(balance decimal.Decimal) (decimal.Decimal, error)) (decimal.Decimal, error)
	ListWallets(ctx context.Context, offset int, limit int) ([]entity.Wallet, int, error)
}

// WalletCache кеш записей кошельков, сбрасывается при каждой записи
type WalletCache interface {
	GetWallet(address string) (entity.Wallet, bool)
	SetWallet(wallet entity.Wallet)
	Invalidate(addresses ...string)
}

type Metrics interface {
	WalletCreated(source string)
	AuthFailed(operation string)
}

type Config struct {
	MinPassphraseLength int
	CreateAttempts      int
}

type WalletUseCase struct {
	cfg      Config
	storage  WalletStorage
	cache    WalletCache
	kdf      *crypto.KDF
	verifier *crypto.Verifier
	metrics  Metrics
	logger   logger.AppLogger
	now      func() time.Time
}

// NewWalletUseCase cache и metrics могут быть nil
func NewWalletUseCase(cfg Config, storage WalletStorage, cache WalletCache, kdf *crypto.KDF, metrics Metrics, log logger.AppLogger) *WalletUseCase {
	if cfg.MinPassphraseLength <= 0 {
		cfg.MinPassphraseLength = constants.MinPassphraseLength
	}
	if cfg.CreateAttempts <= 0 {
		cfg.CreateAttempts = constants.WalletCreateAttempts
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &WalletUseCase{
		cfg:      cfg,
		storage:  storage,
		cache:    cache,
		kdf:      kdf,
		verifier: crypto.NewVerifier(kdf),
		metrics:  metrics,
		logger:   log,
		now:      time.Now,
	}
}
