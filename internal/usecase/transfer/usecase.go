package transfer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dnsoftware/pvx-wallet/internal/crypto"
	"github.com/dnsoftware/pvx-wallet/internal/entity"
	"github.com/dnsoftware/pvx-wallet/pkg/logger"
)

// TransferStorage хранилище для переводов
type TransferStorage interface {
	// GetWalletByAddress nil без ошибки, если кошелька нет
	GetWalletByAddress(ctx context.Context, address string) (*entity.Wallet, error)
	// ApplyTransfer атомарно: блокировка обеих записей, повторная проверка существования,
	// блокировки и баланса, списание, зачисление, запись перевода
	ApplyTransfer(ctx context.Context, transfer entity.Transfer) error
	// GetTransfer nil без ошибки, если перевода нет
	GetTransfer(ctx context.Context, hash string) (*entity.Transfer, error)
	ListTransfersByAddress(ctx context.Context, address string, limit int) ([]entity.Transfer, error)
	// ListRecentTransfers последние переводы всех кошельков, новые первыми
	ListRecentTransfers(ctx context.Context, limit int) ([]entity.Transfer, error)
}

// Ledger принимает только зафиксированные переводы
type Ledger interface {
	Submit(ctx context.Context, transfer entity.Transfer) error
}

type WalletCache interface {
	Invalidate(addresses ...string)
}

type Metrics interface {
	TransferFinished(status string)
	AuthFailed(operation string)
}

type TransferUseCase struct {
	storage  TransferStorage
	ledger   Ledger
	cache    WalletCache
	verifier *crypto.Verifier
	metrics  Metrics
	logger   logger.AppLogger
	now      func() time.Time
	nonce    func() string
}

// NewTransferUseCase ledger, cache и metrics могут быть nil
func NewTransferUseCase(storage TransferStorage, ledger Ledger, cache WalletCache, kdf *crypto.KDF, metrics Metrics, log logger.AppLogger) *TransferUseCase {
	if log == nil {
		log = zap.NewNop()
	}

	return &TransferUseCase{
		storage:  storage,
		ledger:   ledger,
		cache:    cache,
		verifier: crypto.NewVerifier(kdf),
		metrics:  metrics,
		logger:   log,
		now:      time.Now,
		nonce:    uuid.NewString,
	}
}
