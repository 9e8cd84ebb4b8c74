package wallet

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/dnsoftware/pvx-wallet/internal/entity"
)

const (
	operationChangePassphrase = "change_passphrase"
	operationDisable          = "disable"
)

// ChangePassphrase перешифровка приватного ключа под новым паролем и новой солью
func (u *WalletUseCase) ChangePassphrase(ctx context.Context, address string, oldPassphrase string, newPassphrase string) error {
	ctx, span := otel.Tracer("wallet").Start(ctx, "ChangePassphrase")
	defer span.End()

	if err := u.validatePassphrase(newPassphrase); err != nil {
		return err
	}

	w, err := u.lookup(ctx, address)
	if err != nil {
		return err
	}

	keys, err := u.unlock(ctx, w, oldPassphrase, operationChangePassphrase)
	if err != nil {
		spanError(span, err)
		return err
	}
	defer keys.Wipe()

	kp, err := u.openKeyPair(w, keys)
	if err != nil {
		spanError(span, err)
		return err
	}
	defer kp.Wipe()

	record, err := u.seal(ctx, kp, newPassphrase)
	if err != nil {
		spanError(span, err)
		return err
	}

	// запись меняется, только если пароль не сменили после проверки
	_, err = u.storage.UpdateWallet(ctx, address, func(current entity.Wallet) (entity.Wallet, error) {
		if err := unchanged(current, w.PassphraseHash); err != nil {
			return current, err
		}
		current.EncryptedPrivateKey = record.EncryptedPrivateKey
		current.PassphraseSalt = record.PassphraseSalt
		current.PassphraseHash = record.PassphraseHash
		current.LastSynced = record.LastSynced
		return current, nil
	})
	if err != nil {
		spanError(span, err)
		return err
	}
	u.invalidate(address)
	u.logger.Info("wallet passphrase changed", zap.String("address", address))

	return nil
}

// Disable мягкая блокировка: кошелек не может отправлять и получать переводы. Повторный вызов не ошибка
func (u *WalletUseCase) Disable(ctx context.Context, address string, passphrase string) error {
	ctx, span := otel.Tracer("wallet").Start(ctx, "Disable")
	defer span.End()

	w, err := u.lookup(ctx, address)
	if err != nil {
		return err
	}

	ok, err := u.verifier.Verify(ctx, passphrase, w.PassphraseSalt, w.PassphraseHash)
	if err != nil {
		spanError(span, err)
		return cryptoError(err)
	}
	if !ok {
		u.authFailed(address, operationDisable)
		return fmt.Errorf("%w: wrong passphrase", entity.ErrAuthentication)
	}

	if w.Disabled {
		return nil
	}

	_, err = u.storage.UpdateWallet(ctx, address, func(current entity.Wallet) (entity.Wallet, error) {
		if err := unchanged(current, w.PassphraseHash); err != nil {
			return current, err
		}
		if !current.Disabled {
			current.Disabled = true
			current.LastSynced = u.now().UTC()
		}
		return current, nil
	})
	if err != nil {
		spanError(span, err)
		return err
	}
	u.invalidate(address)
	u.logger.Info("wallet disabled", zap.String("address", address))

	return nil
}

// Credit зачисление на баланс от внешних начислений (награды майнинга, стейкинга)
func (u *WalletUseCase) Credit(ctx context.Context, address string, amount string) (decimal.Decimal, error) {
	ctx, span := otel.Tracer("wallet").Start(ctx, "Credit")
	defer span.End()

	value, err := entity.ParseAmount(amount)
	if err != nil {
		return decimal.Zero, err
	}

	w, err := u.lookup(ctx, address)
	if err != nil {
		return decimal.Zero, err
	}
	if w.Disabled {
		return decimal.Zero, fmt.Errorf("%w: wallet %s", entity.ErrWalletDisabled, address)
	}

	balance, err := u.storage.UpdateBalance(ctx, address, func(current decimal.Decimal) (decimal.Decimal, error) {
		return current.Add(value), nil
	})
	if err != nil {
		spanError(span, err)
		return decimal.Zero, err
	}
	u.invalidate(address)
	u.logger.Info("wallet credited", zap.String("address", address), zap.String("amount", entity.FormatUnits(value)))

	return balance, nil
}
