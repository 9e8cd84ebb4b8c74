package wallet

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dnsoftware/pvx-wallet/internal/crypto"
	"github.com/dnsoftware/pvx-wallet/internal/entity"
)

func (u *WalletUseCase) validatePassphrase(passphrase string) error {
	if utf8.RuneCountInString(crypto.NormalizePassphrase(passphrase)) < u.cfg.MinPassphraseLength {
		return fmt.Errorf("%w: passphrase must be at least %d characters", entity.ErrValidation, u.cfg.MinPassphraseLength)
	}
	return nil
}

// validateAddress пустой адрес ошибка запроса, адрес неверного формата не может существовать
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("%w: address is required", entity.ErrValidation)
	}
	if !crypto.ValidateAddress(address) {
		return fmt.Errorf("%w: wallet %s", entity.ErrNotFound, address)
	}
	return nil
}

// seal шифрует приватный ключ под свежей солью и собирает запись кошелька
func (u *WalletUseCase) seal(ctx context.Context, kp *crypto.KeyPair, passphrase string) (entity.Wallet, error) {
	salt, err := crypto.NewSalt()
	if err != nil {
		return entity.Wallet{}, fmt.Errorf("%w: %s", entity.ErrCryptoOperation, err.Error())
	}

	keys, err := u.kdf.Derive(ctx, passphrase, salt)
	if err != nil {
		return entity.Wallet{}, cryptoError(err)
	}
	defer keys.Wipe()

	blob, err := crypto.Encrypt(kp.PrivateKey, keys.EncryptionKey)
	if err != nil {
		return entity.Wallet{}, cryptoError(err)
	}

	now := u.now().UTC()
	return entity.Wallet{
		Address:             crypto.DeriveAddress(kp.PublicKey),
		PublicKey:           crypto.EncodeKey(kp.PublicKey),
		EncryptedPrivateKey: blob,
		PassphraseSalt:      salt,
		PassphraseHash:      crypto.Artifact(keys),
		CreatedAt:           now,
		LastSynced:          now,
	}, nil
}

// lookup запись из хранилища, ErrNotFound если нет
func (u *WalletUseCase) lookup(ctx context.Context, address string) (*entity.Wallet, error) {
	if err := validateAddress(address); err != nil {
		return nil, err
	}

	w, err := u.storage.GetWalletByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, fmt.Errorf("%w: wallet %s", entity.ErrNotFound, address)
	}
	return w, nil
}

// unlock проверка пароля с получением ключей, один вызов KDF. Ключи затирает вызывающий
func (u *WalletUseCase) unlock(ctx context.Context, w *entity.Wallet, passphrase string, operation string) (*crypto.DerivedKeys, error) {
	keys, err := u.kdf.Derive(ctx, passphrase, w.PassphraseSalt)
	if err != nil {
		return nil, cryptoError(err)
	}

	if !crypto.Match(keys, w.PassphraseHash) {
		keys.Wipe()
		u.authFailed(w.Address, operation)
		return nil, fmt.Errorf("%w: wrong passphrase", entity.ErrAuthentication)
	}
	return keys, nil
}

// openKeyPair расшифровка приватного ключа и сверка с адресом записи
func (u *WalletUseCase) openKeyPair(w *entity.Wallet, keys *crypto.DerivedKeys) (*crypto.KeyPair, error) {
	raw, err := crypto.Decrypt(w.EncryptedPrivateKey, keys.EncryptionKey)
	if err != nil {
		if errors.Is(err, crypto.ErrAuthFailed) {
			// пароль совпал с артефактом, а шифротекст не открывается: запись повреждена
			u.logger.Error("stored private key does not decrypt", zap.String("address", w.Address), zap.Error(err))
			return nil, fmt.Errorf("%w: %s", entity.ErrCryptoOperation, err.Error())
		}
		return nil, cryptoError(err)
	}
	defer clear(raw)

	kp, err := crypto.KeyPairFromPrivateKey(raw)
	if err != nil {
		u.logger.Error("stored private key is invalid", zap.String("address", w.Address), zap.Error(err))
		return nil, fmt.Errorf("%w: %s", entity.ErrCryptoOperation, err.Error())
	}

	if crypto.DeriveAddress(kp.PublicKey) != w.Address {
		kp.Wipe()
		u.logger.Error("stored private key does not match address", zap.String("address", w.Address))
		return nil, fmt.Errorf("%w: key does not match address", entity.ErrCryptoOperation)
	}
	return kp, nil
}

// unchanged артефакт в хранилище тот же, что был проверен; иначе пароль успели сменить
func unchanged(current entity.Wallet, verifiedArtifact string) error {
	if current.PassphraseHash != verifiedArtifact {
		return fmt.Errorf("%w: passphrase was changed", entity.ErrAuthentication)
	}
	return nil
}

func (u *WalletUseCase) authFailed(address string, operation string) {
	u.logger.Warn("passphrase verification failed", zap.String("address", address), zap.String("operation", operation))
	if u.metrics != nil {
		u.metrics.AuthFailed(operation)
	}
}

func (u *WalletUseCase) invalidate(addresses ...string) {
	if u.cache != nil {
		u.cache.Invalidate(addresses...)
	}
}

// cryptoError ошибки пакета crypto в таксономию сервиса
func cryptoError(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, crypto.ErrAuthFailed):
		return fmt.Errorf("%w: %s", entity.ErrAuthentication, err.Error())
	case errors.Is(err, crypto.ErrInvalidKey):
		return fmt.Errorf("%w: %s", entity.ErrValidation, err.Error())
	default:
		return fmt.Errorf("%w: %s", entity.ErrCryptoOperation, err.Error())
	}
}

func spanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
