package wallet

import (
	"context"
	"fmt"
	"math"

	"go.opentelemetry.io/otel"

	"github.com/dnsoftware/pvx-wallet/internal/constants"
	"github.com/dnsoftware/pvx-wallet/internal/entity"
)

// Get публичные данные и баланс кошелька (через кеш)
func (u *WalletUseCase) Get(ctx context.Context, address string) (entity.WalletInfo, error) {
	ctx, span := otel.Tracer("wallet").Start(ctx, "Get")
	defer span.End()

	if err := validateAddress(address); err != nil {
		return entity.WalletInfo{}, err
	}

	if u.cache != nil {
		if w, ok := u.cache.GetWallet(address); ok {
			return w.Info(), nil
		}
	}

	w, err := u.lookup(ctx, address)
	if err != nil {
		return entity.WalletInfo{}, err
	}

	if u.cache != nil {
		u.cache.SetWallet(*w)
	}

	return w.Info(), nil
}

// List постраничный список кошельков, page с 1
func (u *WalletUseCase) List(ctx context.Context, page int, limit int) ([]entity.WalletInfo, int, error) {
	ctx, span := otel.Tracer("wallet").Start(ctx, "List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = constants.DefaultWalletsPageLimit
	}
	if limit > constants.MaxWalletsPageLimit {
		limit = constants.MaxWalletsPageLimit
	}

	if page-1 > math.MaxInt/limit {
		return nil, 0, fmt.Errorf("%w: page %d is out of range", entity.ErrValidation, page)
	}

	wallets, total, err := u.storage.ListWallets(ctx, (page-1)*limit, limit)
	if err != nil {
		spanError(span, err)
		return nil, 0, err
	}

	infos := make([]entity.WalletInfo, 0, len(wallets))
	for _, w := range wallets {
		infos = append(infos, w.Info())
	}

	return infos, total, nil
}
