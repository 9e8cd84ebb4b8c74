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

type ImportRequest struct {
	PrivateKey string // hex, допускается префикс 0x
	Passphrase string
	Overwrite  bool // перезаписать учетные данные существующего кошелька с тем же адресом
}

// Import кошелек из внешнего приватного ключа под свежей солью
// Для существующего адреса без Overwrite ErrDuplicateAddress. При перезаписи баланс,
// дата создания и флаг блокировки сохраняются
func (u *WalletUseCase) Import(ctx context.Context, req ImportRequest) (entity.WalletInfo, error) {
	ctx, span := otel.Tracer("wallet").Start(ctx, "Import")
	defer span.End()

	if err := u.validatePassphrase(req.Passphrase); err != nil {
		return entity.WalletInfo{}, err
	}

	raw, err := crypto.DecodePrivateKey(req.PrivateKey)
	if err != nil {
		return entity.WalletInfo{}, cryptoError(err)
	}
	kp, err := crypto.KeyPairFromPrivateKey(raw)
	clear(raw)
	if err != nil {
		return entity.WalletInfo{}, cryptoError(err)
	}

	record, err := u.seal(ctx, kp, req.Passphrase)
	kp.Wipe()
	if err != nil {
		u.logger.Error("wallet sealing failed", zap.Error(err))
		spanError(span, err)
		return entity.WalletInfo{}, err
	}

	existing, err := u.storage.GetWalletByAddress(ctx, record.Address)
	if err != nil {
		spanError(span, err)
		return entity.WalletInfo{}, err
	}

	if existing == nil {
		err = u.storage.CreateWallet(ctx, record)
		if err == nil {
			if u.metrics != nil {
				u.metrics.WalletCreated(sourceImport)
			}
			u.logger.Info("wallet imported", zap.String("address", record.Address))
			return record.Info(), nil
		}
		// адрес мог появиться между чтением и вставкой
		if !errors.Is(err, entity.ErrDuplicateAddress) {
			spanError(span, err)
			return entity.WalletInfo{}, err
		}
	}

	if !req.Overwrite {
		return entity.WalletInfo{}, fmt.Errorf("%w: wallet %s already exists", entity.ErrDuplicateAddress, record.Address)
	}

	// владение приватным ключом заменяет проверку старого пароля.
	// Баланс, дата создания и флаг блокировки берутся из текущей записи
	updated, err := u.storage.UpdateWallet(ctx, record.Address, func(current entity.Wallet) (entity.Wallet, error) {
		current.EncryptedPrivateKey = record.EncryptedPrivateKey
		current.PassphraseSalt = record.PassphraseSalt
		current.PassphraseHash = record.PassphraseHash
		current.LastSynced = record.LastSynced
		return current, nil
	})
	if err != nil {
		spanError(span, err)
		return entity.WalletInfo{}, err
	}
	u.invalidate(record.Address)
	u.logger.Info("wallet credentials overwritten by import", zap.String("address", record.Address))

	return updated.Info(), nil
}
