package wallet

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/dnsoftware/pvx-wallet/internal/crypto"
	"github.com/dnsoftware/pvx-wallet/internal/entity"
)

const (
	sourceCreate = "create"
	sourceImport = "import"
)

// Create новый кошелек под паролем. Возвращается только публичная часть
// При коллизии адреса повторяем с новой парой ключей
func (u *WalletUseCase) Create(ctx context.Context, passphrase string) (entity.WalletInfo, error) {
	ctx, span := otel.Tracer("wallet").Start(ctx, "Create")
	defer span.End()

	if err := u.validatePassphrase(passphrase); err != nil {
		return entity.WalletInfo{}, err
	}

	for attempt := 1; attempt <= u.cfg.CreateAttempts; attempt++ {
		kp, err := crypto.GenerateKeyPair()
		if err != nil {
			u.logger.Error("key generation failed", zap.Error(err))
			spanError(span, err)
			return entity.WalletInfo{}, fmt.Errorf("%w: %s", entity.ErrCryptoOperation, err.Error())
		}

		record, err := u.seal(ctx, kp, passphrase)
		kp.Wipe()
		if err != nil {
			u.logger.Error("wallet sealing failed", zap.Error(err))
			spanError(span, err)
			return entity.WalletInfo{}, err
		}

		err = u.storage.CreateWallet(ctx, record)
		if errors.Is(err, entity.ErrDuplicateAddress) {
			u.logger.Warn("address collision on create", zap.String("address", record.Address), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			u.logger.Error("wallet persist failed", zap.String("address", record.Address), zap.Error(err))
			spanError(span, err)
			return entity.WalletInfo{}, err
		}

		if u.metrics != nil {
			u.metrics.WalletCreated(sourceCreate)
		}
		u.logger.Info("wallet created", zap.String("address", record.Address))

		return record.Info(), nil
	}

	err := fmt.Errorf("%w: address collision after %d attempts", entity.ErrDuplicateAddress, u.cfg.CreateAttempts)
	spanError(span, err)
	return entity.WalletInfo{}, err
}
