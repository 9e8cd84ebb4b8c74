package wallet

import (
	"context"

	"go.opentelemetry.io/otel"

	"github.com/dnsoftware/pvx-wallet/internal/crypto"
	"github.com/dnsoftware/pvx-wallet/internal/entity"
)

const operationExport = "export"

// Export расшифрованная пара ключей для владельца пароля
// Экспорт доступен и для заблокированного кошелька
func (u *WalletUseCase) Export(ctx context.Context, address string, passphrase string) (entity.ExportedKeys, error) {
	ctx, span := otel.Tracer("wallet").Start(ctx, "Export")
	defer span.End()

	w, err := u.lookup(ctx, address)
	if err != nil {
		return entity.ExportedKeys{}, err
	}

	keys, err := u.unlock(ctx, w, passphrase, operationExport)
	if err != nil {
		spanError(span, err)
		return entity.ExportedKeys{}, err
	}
	defer keys.Wipe()

	kp, err := u.openKeyPair(w, keys)
	if err != nil {
		spanError(span, err)
		return entity.ExportedKeys{}, err
	}
	defer kp.Wipe()

	return entity.ExportedKeys{
		PublicKey:  crypto.EncodeKey(kp.PublicKey),
		PrivateKey: crypto.EncodeKey(kp.PrivateKey),
	}, nil
}
